package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// 发号 span 的属性键
const (
	AttrWorkerID = "flake.worker_id"
	AttrIDCount  = "flake.id.count"
)

// SpanNameIssue 发号子 span 的名称
const SpanNameIssue = "idgen.issue"

const tracerName = "github.com/ceyewan/flake"

// Tracer 返回 flake 的 Tracer，取自全局 TracerProvider
func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// StartIssue 为一次（批量）发号开启子 span
func StartIssue(ctx context.Context, count int, workerID uint64) (context.Context, oteltrace.Span) {
	return Tracer().Start(ctx, SpanNameIssue,
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.Int(AttrIDCount, count),
			attribute.Int64(AttrWorkerID, int64(workerID)),
		),
	)
}

// End 结束 span，err 非 nil 时记录错误
func End(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
