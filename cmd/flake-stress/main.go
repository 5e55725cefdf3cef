// flake-stress 对雪花 ID 生成器做并发与持久压测。
//
// 用法:
//
//	flake-stress [全局选项] <命令> [命令参数]
//
// 命令:
//
//	concurrency   N 个 goroutine 各生成 M 个 ID，检查唯一性与单调性
//	endurance     在给定时长内持续生成，定期输出速率
//	decode <id>   按当前布局拆解 ID
//
// 示例:
//
//	flake-stress concurrency -g 64 -n 100000
//	flake-stress --sequence-bits 10 endurance -d 30s
//	flake-stress decode 1048858624
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/idgen"
	"github.com/ceyewan/flake/xerrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "flake-stress: %v\n", err)
		os.Exit(1)
	}
}

func createApp() *cli.Command {
	defaults := idgen.DefaultConfig()
	return &cli.Command{
		Name:  "flake-stress",
		Usage: "雪花 ID 生成器压测工具",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "worker-id",
				Usage: "worker id",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "worker-bits",
				Usage: "worker id 位宽",
				Value: int(defaults.WorkerIDBits),
			},
			&cli.IntFlag{
				Name:  "sequence-bits",
				Usage: "序列号位宽",
				Value: int(defaults.SequenceBits),
			},
			&cli.IntFlag{
				Name:  "max-backward-ms",
				Usage: "可等待的最大时钟回拨",
				Value: int(defaults.MaxBackwardMs),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			concurrencyCommand(),
			enduranceCommand(),
			decodeCommand(),
		},
	}
}

func configFromFlags(cmd *cli.Command) (idgen.Config, error) {
	workerID := cmd.Int("worker-id")
	workerBits := cmd.Int("worker-bits")
	seqBits := cmd.Int("sequence-bits")
	if workerID < 0 || workerBits < 0 || workerBits > 255 || seqBits < 0 || seqBits > 255 {
		return idgen.Config{}, xerrors.Wrap(idgen.ErrInvalidConfig, "flags out of range")
	}
	cfg := idgen.Config{
		WorkerIDBits:  uint8(workerBits),
		SequenceBits:  uint8(seqBits),
		MaxBackwardMs: int64(cmd.Int("max-backward-ms")),
		WorkerID:      uint64(workerID),
	}
	return cfg, cfg.Validate()
}

func newGenerator(cmd *cli.Command) (*idgen.Generator, error) {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := clog.New(&clog.Config{
		Level:  cmd.String("log-level"),
		Format: "console",
		Output: "stderr",
	}, clog.WithNamespace("flake-stress"))
	if err != nil {
		return nil, err
	}
	return idgen.NewGenerator(cfg, idgen.WithLogger(logger))
}
