package idgen

import (
	"sync"

	"github.com/ceyewan/flake/clog"
)

// Generator 雪花算法生成器
//
// 一把互斥锁保护全部状态，按加锁顺序发出的 ID 严格递增。
// 热路径只访问时钟，不做任何网络或磁盘 IO。
type Generator struct {
	mu      sync.Mutex
	cfg     Config
	layout  Layout
	state   state
	fenced  error
	clock   Clock
	retry   RetryPolicy
	logger  clog.Logger
	metrics *generatorMetrics
}

// NewGenerator 用已解析 worker id 的 Config 创建生成器
//
// 使用示例:
//
//	cfg := idgen.DefaultConfig()
//	cfg.WorkerID = 69
//	gen, err := idgen.NewGenerator(cfg, idgen.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	id, err := gen.NextID()
func NewGenerator(cfg Config, opts ...Option) (*Generator, error) {
	return newGenerator(cfg, applyOptions(opts))
}

func newGenerator(cfg Config, o *Options) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := newGeneratorMetrics(o.Meter)
	if err != nil {
		return nil, err
	}
	m.bind(cfg.WorkerID)

	g := &Generator{
		cfg:     cfg,
		layout:  cfg.Layout(),
		state:   newState(),
		clock:   o.Clock,
		retry:   o.Retry,
		logger:  o.Logger,
		metrics: m,
	}

	g.logger.Info("snowflake generator created",
		clog.Uint64("worker_id", cfg.WorkerID),
		clog.Int("worker_id_bits", int(cfg.WorkerIDBits)),
		clog.Int("sequence_bits", int(cfg.SequenceBits)),
		clog.Int64("max_backward_ms", cfg.MaxBackwardMs),
	)
	return g, nil
}

// NextID 生成下一个 ID
//
// 同一毫秒内序列号耗尽或小幅时钟回拨时会短暂阻塞；
// 回拨超过 MaxBackwardMs 返回 ErrClockBackward，状态不变。
func (g *Generator) NextID() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fenced != nil {
		return 0, g.fenced
	}

	ts, seq, err := g.advance()
	if err != nil {
		return 0, err
	}

	g.metrics.generatedOne()
	return g.layout.Encode(ts, g.cfg.WorkerID, seq), nil
}

// Configure 整体替换配置
//
// 保留上次发号的毫秒作为下限并标记序列号耗尽，
// 新配置下的 ID 不会与切换前的 ID 落在同一毫秒。
func (g *Generator) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.cfg
	g.cfg = cfg
	g.layout = cfg.Layout()
	if g.state.lastMs >= 0 {
		g.state.sequence = g.layout.SequenceMask()
	}
	if cfg.WorkerID != old.WorkerID {
		g.metrics.bind(cfg.WorkerID)
	}

	g.logger.Info("generator reconfigured",
		clog.Uint64("worker_id", cfg.WorkerID),
		clog.Int("worker_id_bits", int(cfg.WorkerIDBits)),
		clog.Int("sequence_bits", int(cfg.SequenceBits)),
		clog.Int64("max_backward_ms", cfg.MaxBackwardMs),
	)
	return nil
}

// Config 返回当前配置
func (g *Generator) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// WorkerID 返回当前 worker id
func (g *Generator) WorkerID() uint64 {
	return g.Config().WorkerID
}

// Decode 按当前布局拆解 ID
func (g *Generator) Decode(id uint64) Components {
	return g.Config().Layout().Decode(id)
}

// Err 租约丢失后返回原因，正常时为 nil
func (g *Generator) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fenced
}

// fence 租约丢失后停止发号，后续 NextID 返回 ErrLeaseExpired
func (g *Generator) fence(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fenced != nil {
		return
	}
	g.fenced = err
	g.logger.Error("worker id lease lost, generator fenced",
		clog.Uint64("worker_id", g.cfg.WorkerID),
		clog.Error(err),
	)
}

// watchLease 监听租约丢失，lost 在 Release 后关闭
func (g *Generator) watchLease(lost <-chan error) {
	for err := range lost {
		g.fence(err)
	}
}
