package idgen

import (
	"context"
	"math"
	"sync"

	"github.com/spf13/cast"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/config"
)

// 配置项 key，环境变量为 SNOWFLAKE_ 前缀加大写 key
const (
	KeyDatacenterID   = "datacenter_id"
	KeyMachineID      = "machine_id"
	KeyDatacenterBits = "datacenter_bits"
	KeyWorkerIDBits   = "worker_id_bits"
	KeySequenceBits   = "sequence_bits"
	KeyMaxBackwardMs  = "max_backward_ms"
)

// ReloadableKeys 运行期可热更新的 key
var ReloadableKeys = []string{KeyWorkerIDBits, KeySequenceBits, KeyMaxBackwardMs}

// Settings 启动参数，由配置源加载
type Settings struct {
	// DatacenterID 与 MachineID 须同时设置或同时缺省
	DatacenterID   *int64
	MachineID      *int64
	DatacenterBits uint8
	WorkerIDBits   uint8
	SequenceBits   uint8
	MaxBackwardMs  int64
}

// DefaultSettings 返回默认参数：2 位数据中心、8 位 worker、12 位序列号、10ms 回拨容忍
func DefaultSettings() Settings {
	cfg := DefaultConfig()
	return Settings{
		DatacenterBits: 2,
		WorkerIDBits:   cfg.WorkerIDBits,
		SequenceBits:   cfg.SequenceBits,
		MaxBackwardMs:  cfg.MaxBackwardMs,
	}
}

// LoadSettings 从配置源读取参数，未设置的 key 使用默认值
func LoadSettings(loader config.Loader) (Settings, error) {
	s := DefaultSettings()

	var err error
	if s.DatacenterID, err = optionalInt(loader, KeyDatacenterID); err != nil {
		return Settings{}, err
	}
	if s.MachineID, err = optionalInt(loader, KeyMachineID); err != nil {
		return Settings{}, err
	}
	if err = loadBits(loader, KeyDatacenterBits, &s.DatacenterBits); err != nil {
		return Settings{}, err
	}
	if err = loadBits(loader, KeyWorkerIDBits, &s.WorkerIDBits); err != nil {
		return Settings{}, err
	}
	if err = loadBits(loader, KeySequenceBits, &s.SequenceBits); err != nil {
		return Settings{}, err
	}
	v, err := optionalInt(loader, KeyMaxBackwardMs)
	if err != nil {
		return Settings{}, err
	}
	if v != nil {
		s.MaxBackwardMs = *v
	}
	return s, nil
}

func optionalInt(loader config.Loader, key string) (*int64, error) {
	if !loader.IsSet(key) {
		return nil, nil
	}
	raw := loader.Get(key)
	if s, ok := raw.(string); ok && s == "" {
		return nil, nil
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return nil, invalidConfig("setting_unparsable", "%s=%v is not an integer", key, raw)
	}
	return &v, nil
}

func loadBits(loader config.Loader, key string, dst *uint8) error {
	v, err := optionalInt(loader, key)
	if err != nil || v == nil {
		return err
	}
	if *v < 0 || *v > math.MaxUint8 {
		return invalidConfig("setting_out_of_range", "%s=%d out of range", key, *v)
	}
	*dst = uint8(*v)
	return nil
}

// Config 用已解析的 worker id 组装生成器配置
func (s Settings) Config(workerID uint64) Config {
	return Config{
		WorkerIDBits:  s.WorkerIDBits,
		SequenceBits:  s.SequenceBits,
		MaxBackwardMs: s.MaxBackwardMs,
		WorkerID:      workerID,
	}
}

// Strategies 按优先级组装默认策略链：env、composite、租约、ip、hostname
func (s Settings) Strategies(o *Options) []Strategy {
	if len(o.Strategies) > 0 {
		return o.Strategies
	}
	chain := []Strategy{
		EnvStrategy(o.LookupEnv),
		CompositeStrategy(s.DatacenterID, s.MachineID, s.DatacenterBits),
	}
	chain = append(chain, o.LeaseStrategies...)
	return append(chain,
		IPStrategy(o.InterfaceAddrs),
		HostnameStrategy(o.Hostname),
	)
}

// New 完整的启动流程：解析 worker id、组装配置、创建生成器
//
// 返回的 Resolution 持有租约时，调用方负责在退出前 Release；
// 租约丢失后生成器停止发号，NextID 返回 ErrLeaseExpired。
//
//	gen, res, err := idgen.New(ctx, settings, idgen.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer res.Release(context.Background())
func New(ctx context.Context, s Settings, opts ...Option) (*Generator, Resolution, error) {
	o := applyOptions(opts)

	// 位宽错误不依赖 worker id，先于解析报出
	if err := s.Config(0).Validate(); err != nil {
		return nil, Resolution{}, err
	}

	res, err := newResolver(s.WorkerIDBits, s.Strategies(o), o).Resolve(ctx)
	if err != nil {
		return nil, Resolution{}, err
	}

	gen, err := newGenerator(s.Config(res.WorkerID), o)
	if err != nil {
		_ = res.Release(ctx)
		return nil, Resolution{}, err
	}

	if lost := res.Lost(); lost != nil {
		go gen.watchLease(lost)
	}
	return gen, res, nil
}

// Watch 监听可热更新的 key，变化时保持 worker id 重新 Configure
//
// 非法的新配置记录日志后忽略。阻塞直到 ctx 取消或 loader 关闭。
func Watch(ctx context.Context, loader config.Loader, gen *Generator) error {
	chans := make([]<-chan config.Event, 0, len(ReloadableKeys))
	for _, key := range ReloadableKeys {
		ch, err := loader.Watch(ctx, key)
		if err != nil {
			return err
		}
		chans = append(chans, ch)
	}

	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				gen.reload(loader, ev)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (g *Generator) reload(loader config.Loader, ev config.Event) {
	s, err := LoadSettings(loader)
	if err != nil {
		g.logger.Warn("ignoring invalid settings reload", clog.String("key", ev.Key), clog.Error(err))
		return
	}
	cfg := s.Config(g.WorkerID())
	if cfg == g.Config() {
		return
	}
	if err := g.Configure(cfg); err != nil {
		g.logger.Warn("ignoring invalid settings reload", clog.String("key", ev.Key), clog.Error(err))
	}
}
