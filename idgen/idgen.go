// Package idgen 提供基于雪花算法的 64 位有序 ID 生成能力。
//
// ID 布局（从高到低）：
//
//	[1 位保留 0][41 位自 Epoch 起的毫秒][WorkerIDBits 位 worker][SequenceBits 位序列号]
//
// 默认 41/8/12，Epoch 为 2025-03-08T00:00:00Z。worker id 在启动时按
// env → composite → 租约（可选）→ ip → hostname 的顺序解析一次，
// 之后生成过程只读时钟，不访问网络。
//
// 快速开始：
//
//	loader, _ := config.Load(ctx, &config.Config{Name: "snowflake"})
//	settings, err := idgen.LoadSettings(loader)
//	if err != nil {
//	    return err
//	}
//	gen, res, err := idgen.New(ctx, settings, idgen.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer res.Release(context.Background())
//
//	id, err := gen.NextID()
//
// 时钟回拨不超过 MaxBackwardMs 时 NextID 短暂等待，超过则返回 ErrClockBackward，
// 可改用 NextIDWithRetry 按重试策略自动重试。
package idgen
