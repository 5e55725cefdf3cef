package clog

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"time"
)

// loggerImpl 基于 slog 的 Logger 实现
type loggerImpl struct {
	handler   slog.Handler
	level     *slog.LevelVar
	opts      *options
	namespace string
}

func newLogger(config *Config, opts *options) (Logger, error) {
	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	w := opts.writer
	if w == nil {
		var err error
		if w, err = openOutput(config.Output); err != nil {
			return nil, err
		}
	}

	return &loggerImpl{
		handler:   newHandler(w, config, levelVar),
		level:     levelVar,
		opts:      opts,
		namespace: strings.Join(opts.namespaceParts, "."),
	}, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &loggerImpl{
		handler:   l.handler.WithAttrs(fields),
		level:     l.level,
		opts:      l.opts,
		namespace: l.namespace,
	}
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	if len(parts) == 0 {
		return l
	}
	ns := strings.Join(parts, ".")
	if l.namespace != "" {
		ns = l.namespace + "." + ns
	}
	return &loggerImpl{
		handler:   l.handler,
		level:     l.level,
		opts:      l.opts,
		namespace: ns,
	}
}

func (l *loggerImpl) SetLevel(level Level) error {
	l.level.Set(level.slogLevel())
	return nil
}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, level.slogLevel()) {
		return
	}

	// 跳过 runtime.Callers、log 与导出方法本身
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), level.slogLevel(), msg, pcs[0])
	if l.namespace != "" {
		r.AddAttrs(slog.String("namespace", l.namespace))
	}
	for _, cf := range l.opts.contextFields {
		if v := ctx.Value(cf.Key); v != nil {
			r.AddAttrs(slog.Any(cf.FieldName, v))
		}
	}
	r.AddAttrs(fields...)
	_ = l.handler.Handle(ctx, r)
}
