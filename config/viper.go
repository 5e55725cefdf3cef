package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/xerrors"
)

// loader 实现 Loader 接口
//
// viper 本身不是并发安全的，所有读写经过 mu。
type loader struct {
	cfg    *Config
	logger clog.Logger

	mu        sync.RWMutex
	v         *viper.Viper
	watches   map[string][]chan Event
	oldValues map[string]any

	watchOnce sync.Once
	watchErr  error
	done      chan struct{}
	closed    bool
	wg        sync.WaitGroup
}

func newLoader(cfg *Config, opts ...Option) *loader {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return &loader{
		cfg:       cfg,
		logger:    o.logger,
		v:         viper.New(),
		watches:   make(map[string][]chan Event),
		oldValues: make(map[string]any),
		done:      make(chan struct{}),
	}
}

// Load 初始化并从所有来源加载配置
func (l *loader) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. 文件搜索
	l.v.SetConfigName(l.cfg.Name)
	l.v.SetConfigType(l.cfg.FileType)
	for _, path := range l.cfg.Paths {
		l.v.AddConfigPath(path)
	}

	// 2. 环境变量，最高优先级
	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// 3. .env 文件不覆盖已存在的环境变量
	l.loadDotEnv()

	// 4. 基础配置文件，缺失不是错误
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return xerrors.Wrapf(err, "failed to read config file %s", l.cfg.Name)
		}
		l.logger.Debug("no configuration file found", clog.String("name", l.cfg.Name), clog.Any("paths", l.cfg.Paths))
	} else {
		l.logger.Info("configuration file loaded", clog.String("file", l.v.ConfigFileUsed()))
	}

	// 5. 环境特定配置，如 snowflake.dev.toml
	if err := l.mergeEnvironmentConfig(); err != nil {
		return err
	}

	return l.validateLocked()
}

func (l *loader) loadDotEnv() {
	candidates := []string{".env"}
	for _, path := range l.cfg.Paths {
		candidates = append(candidates, filepath.Join(path, ".env"))
	}
	for _, file := range candidates {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			l.logger.Warn("failed to load .env file", clog.String("file", file), clog.Error(err))
		}
	}
}

func (l *loader) mergeEnvironmentConfig() error {
	env := os.Getenv(l.cfg.EnvPrefix + "_ENV")
	if env == "" || l.v.ConfigFileUsed() == "" {
		return nil
	}

	base := l.v.ConfigFileUsed()
	envFile := filepath.Join(filepath.Dir(base), fmt.Sprintf("%s.%s.%s", l.cfg.Name, env, l.cfg.FileType))
	f, err := os.Open(envFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Wrapf(err, "failed to open environment config %s", envFile)
	}
	defer f.Close()

	if err := l.v.MergeConfig(f); err != nil {
		return xerrors.Wrapf(err, "failed to merge environment config %s", envFile)
	}
	l.logger.Info("environment configuration merged", clog.String("env", env), clog.String("file", envFile))
	return nil
}

func (l *loader) Get(key string) any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.Get(key)
}

func (l *loader) IsSet(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.IsSet(key)
}

func (l *loader) Unmarshal(v any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.Unmarshal(v)
}

func (l *loader) UnmarshalKey(key string, v any) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.UnmarshalKey(key, v)
}

func (l *loader) ConfigFileUsed() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v.ConfigFileUsed()
}

func (l *loader) Validate() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.validateLocked()
}

func (l *loader) validateLocked() error {
	var missing []string
	for _, key := range l.cfg.RequiredKeys {
		if !l.v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return xerrors.Wrapf(ErrValidationFailed, "missing keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Watch 订阅特定 key 的变更，首次调用时启动文件监听
func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	l.watchOnce.Do(func() {
		l.watchErr = l.startWatcher()
	})
	if l.watchErr != nil {
		return nil, l.watchErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	ch := make(chan Event, 10)
	l.watches[key] = append(l.watches[key], ch)
	l.oldValues[key] = l.v.Get(key)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		select {
		case <-ctx.Done():
			l.removeWatch(key, ch)
		case <-l.done:
		}
	}()

	return ch, nil
}

// startWatcher 监听配置文件所在目录，兼容编辑器的"写临时文件再重命名"
func (l *loader) startWatcher() error {
	file := l.ConfigFileUsed()
	if file == "" {
		return nil
	}
	file = filepath.Clean(file)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return xerrors.Wrap(err, "create config watcher")
	}
	if err := w.Add(filepath.Dir(file)); err != nil {
		_ = w.Close()
		return xerrors.Wrapf(err, "watch config dir %s", filepath.Dir(file))
	}

	l.wg.Add(1)
	go l.watchLoop(w, file)
	return nil
}

func (l *loader) watchLoop(w *fsnotify.Watcher, file string) {
	defer l.wg.Done()
	defer w.Close()

	// 同一次保存通常触发多个事件，合并后再重新加载
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != file {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(l.cfg.Debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Warn("config watcher error", clog.Error(err))
		case <-timer.C:
			l.reload()
		}
	}
}

func (l *loader) reload() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		l.logger.Warn("failed to reload config file", clog.Error(err))
		return
	}
	if err := l.mergeEnvironmentConfig(); err != nil {
		l.logger.Warn("failed to reload environment config", clog.Error(err))
	}
	l.notifyLocked()
}

func (l *loader) notifyLocked() {
	for key, channels := range l.watches {
		newValue := l.v.Get(key)
		oldValue := l.oldValues[key]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}

		event := Event{
			Key:       key,
			Value:     newValue,
			OldValue:  oldValue,
			Source:    "file",
			Timestamp: time.Now(),
		}
		l.oldValues[key] = newValue

		for _, ch := range channels {
			select {
			case ch <- event:
			default:
				l.logger.Warn("watch channel is full, event dropped", clog.String("key", key))
			}
		}
	}
}

func (l *loader) removeWatch(key string, ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chans := l.watches[key]
	for i, c := range chans {
		if c == ch {
			l.watches[key] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
	if len(l.watches[key]) == 0 {
		delete(l.watches, key)
		delete(l.oldValues, key)
	}
}

// Close 停止监听，可重复调用
func (l *loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	for key, chans := range l.watches {
		for _, ch := range chans {
			close(ch)
		}
		delete(l.watches, key)
	}
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}
