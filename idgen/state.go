package idgen

import (
	"time"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/xerrors"
)

// pollInterval 等待时钟推进时单次休眠时长
const pollInterval = 100 * time.Microsecond

// state 上次发号的毫秒（相对 Epoch）与序列号，只在 Generator.mu 下读写
type state struct {
	lastMs   int64 // -1 表示尚未发号
	sequence uint64
}

func newState() state {
	return state{lastMs: -1}
}

// now 读取时钟并换算为相对 Epoch 的毫秒
func (g *Generator) now() (int64, error) {
	raw := g.clock.NowMs()
	ms := raw - EpochMs
	if ms < 0 {
		return 0, invalidConfig("clock_before_epoch", "clock reading %d precedes epoch %d", raw, EpochMs)
	}
	if uint64(ms) > TimestampMask {
		return 0, xerrors.Wrapf(ErrTimestampOverflow, "%d ms since epoch", ms)
	}
	return ms, nil
}

// advance 推进状态机，返回本次使用的毫秒与序列号。出错时状态保持不变。
func (g *Generator) advance() (int64, uint64, error) {
	now, err := g.now()
	if err != nil {
		return 0, 0, err
	}

	last := g.state.lastMs
	maxBackward := g.cfg.MaxBackwardMs

	if now < last {
		drift := last - now
		if drift > maxBackward {
			g.metrics.clockBackward(outcomeRejected)
			g.logger.Warn("clock moved backwards beyond tolerance",
				clog.Int64("drift_ms", drift),
				clog.Int64("max_backward_ms", maxBackward),
			)
			return 0, 0, clockBackwardError(drift, maxBackward)
		}

		budget := time.Duration(drift+maxBackward) * time.Millisecond
		caught, ok, err := g.waitUntil(last, budget)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			g.metrics.clockBackward(outcomeRejected)
			g.logger.Warn("clock did not catch up within tolerance",
				clog.Int64("drift_ms", last-caught),
				clog.Duration("budget", budget),
			)
			return 0, 0, clockBackwardError(last-caught, maxBackward)
		}
		g.metrics.clockBackward(outcomeWaited)
		g.logger.Debug("waited out clock backward", clog.Int64("drift_ms", drift))
		now = caught
	}

	if now > last {
		g.state.lastMs, g.state.sequence = now, 0
		return now, 0, nil
	}

	if g.state.sequence < g.layout.SequenceMask() {
		g.state.sequence++
		return now, g.state.sequence, nil
	}

	// 当前毫秒序列号已用尽，等到下一毫秒
	g.metrics.sequenceExhausted()
	budget := time.Duration(maxBackward+1) * time.Millisecond
	next, ok, err := g.waitUntil(last+1, budget)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		g.metrics.clockBackward(outcomeRejected)
		return 0, 0, clockBackwardError(last+1-next, maxBackward)
	}
	g.state.lastMs, g.state.sequence = next, 0
	return next, 0, nil
}

// waitUntil 轮询时钟直到读数 >= target，累计休眠超过 budget 时返回 ok=false
func (g *Generator) waitUntil(target int64, budget time.Duration) (int64, bool, error) {
	var slept time.Duration
	for {
		now, err := g.now()
		if err != nil {
			return 0, false, err
		}
		if now >= target {
			return now, true, nil
		}
		if slept >= budget {
			return now, false, nil
		}
		g.clock.Sleep(pollInterval)
		slept += pollInterval
	}
}

func clockBackwardError(driftMs, maxMs int64) error {
	return xerrors.Retryable(xerrors.WithCode(
		xerrors.Wrapf(ErrClockBackward, "drift: %dms (max: %dms)", driftMs, maxMs),
		"clock_backward",
	))
}
