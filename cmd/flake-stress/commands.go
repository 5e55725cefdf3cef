package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/flake/idgen"
)

func concurrencyCommand() *cli.Command {
	return &cli.Command{
		Name:  "concurrency",
		Usage: "并发生成 ID 并检查唯一性",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "goroutines", Aliases: []string{"g"}, Usage: "并发数", Value: 16},
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "每个 goroutine 生成的 ID 数", Value: 10000},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			gen, err := newGenerator(cmd)
			if err != nil {
				return err
			}
			report, err := runConcurrency(ctx, gen, int(cmd.Int("goroutines")), int(cmd.Int("count")))
			if err != nil {
				return err
			}
			report.print(cmd.Root().Writer)
			if report.Duplicates > 0 {
				return fmt.Errorf("found %d duplicate ids", report.Duplicates)
			}
			return nil
		},
	}
}

type concurrencyReport struct {
	Total      int
	Duplicates int
	Elapsed    time.Duration
}

func (r concurrencyReport) print(w io.Writer) {
	rate := float64(r.Total) / r.Elapsed.Seconds()
	fmt.Fprintf(w, "generated %d ids in %v (%.0f ids/s), duplicates: %d\n", r.Total, r.Elapsed, rate, r.Duplicates)
}

// runConcurrency 每个 goroutine 内 ID 必须严格递增，全局必须唯一
func runConcurrency(ctx context.Context, gen *idgen.Generator, goroutines, count int) (concurrencyReport, error) {
	if goroutines < 1 || count < 1 {
		return concurrencyReport{}, fmt.Errorf("goroutines and count must be positive")
	}

	results := make([][]uint64, goroutines)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i := range goroutines {
		g.Go(func() error {
			ids := make([]uint64, 0, count)
			for range count {
				if err := gctx.Err(); err != nil {
					return err
				}
				id, err := gen.NextID()
				if err != nil {
					return err
				}
				if n := len(ids); n > 0 && id <= ids[n-1] {
					return fmt.Errorf("goroutine %d: id %d not greater than %d", i, id, ids[n-1])
				}
				ids = append(ids, id)
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return concurrencyReport{}, err
	}

	report := concurrencyReport{Total: goroutines * count, Elapsed: time.Since(start)}
	seen := make(map[uint64]struct{}, report.Total)
	for _, ids := range results {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				report.Duplicates++
				continue
			}
			seen[id] = struct{}{}
		}
	}
	return report, nil
}

func enduranceCommand() *cli.Command {
	return &cli.Command{
		Name:  "endurance",
		Usage: "在给定时长内持续生成 ID",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Usage: "运行时长", Value: 10 * time.Second},
			&cli.IntFlag{Name: "goroutines", Aliases: []string{"g"}, Usage: "并发数", Value: 4},
			&cli.DurationFlag{Name: "report-interval", Usage: "速率输出间隔", Value: time.Second},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			gen, err := newGenerator(cmd)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			total, err := runEndurance(ctx, gen, int(cmd.Int("goroutines")), cmd.Duration("duration"),
				cmd.Duration("report-interval"), func(elapsed time.Duration, total, delta int64, interval time.Duration) {
					fmt.Fprintf(w, "[%6.1fs] total=%d rate=%.0f ids/s\n",
						elapsed.Seconds(), total, float64(delta)/interval.Seconds())
				})
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "done: %d ids\n", total)
			return nil
		},
	}
}

// runEndurance 运行到 duration 结束或 ctx 取消，返回生成总数
func runEndurance(
	ctx context.Context,
	gen *idgen.Generator,
	goroutines int,
	duration, interval time.Duration,
	onTick func(elapsed time.Duration, total, delta int64, interval time.Duration),
) (int64, error) {
	if goroutines < 1 || duration <= 0 || interval <= 0 {
		return 0, fmt.Errorf("goroutines, duration and report interval must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var total atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for range goroutines {
		g.Go(func() error {
			var last uint64
			for gctx.Err() == nil {
				id, err := gen.NextIDWithRetry(gctx)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
				if id <= last {
					return fmt.Errorf("id %d not greater than %d", id, last)
				}
				last = id
				total.Add(1)
			}
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var prev int64
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				cur := total.Load()
				if onTick != nil {
					onTick(time.Since(start), cur, cur-prev, interval)
				}
				prev = cur
			}
		}
	})

	if err := g.Wait(); err != nil {
		return total.Load(), err
	}
	return total.Load(), nil
}

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "拆解 ID",
		ArgsUsage: "<id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("decode takes exactly one id")
			}
			id, err := strconv.ParseUint(cmd.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", cmd.Args().First(), err)
			}
			cfg, err := configFromFlags(cmd)
			if err != nil {
				return err
			}

			parts := idgen.Decode(id, cfg)
			enc := json.NewEncoder(cmd.Root().Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				idgen.Components
				Time time.Time `json:"time"`
			}{parts, parts.Time()})
		},
	}
}
