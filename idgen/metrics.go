package idgen

import (
	"context"
	"strconv"

	"github.com/ceyewan/flake/metrics"
)

// Metrics 指标常量定义
const (
	// MetricIDsGenerated 已生成 ID 总数 (Counter)
	MetricIDsGenerated = "idgen_ids_generated_total"

	// MetricSequenceExhausted 毫秒内序列号耗尽次数 (Counter)
	MetricSequenceExhausted = "idgen_sequence_exhausted_total"

	// MetricClockBackward 时钟回拨次数，按 outcome 区分等待成功与拒绝 (Counter)
	MetricClockBackward = "idgen_clock_backward_total"

	// MetricWorkerID 当前使用的 worker id (Gauge)
	MetricWorkerID = "idgen_worker_id"

	// LabelWorkerID worker id 标签
	LabelWorkerID = "worker_id"
)

const (
	outcomeWaited   = "waited"
	outcomeRejected = "rejected"
)

type generatorMetrics struct {
	generated metrics.Counter
	exhausted metrics.Counter
	backward  metrics.Counter
	workerID  metrics.Gauge
	labels    []metrics.Label
}

func newGeneratorMetrics(meter metrics.Meter) (*generatorMetrics, error) {
	generated, err := meter.Counter(MetricIDsGenerated, "已生成 ID 总数")
	if err != nil {
		return nil, err
	}
	exhausted, err := meter.Counter(MetricSequenceExhausted, "毫秒内序列号耗尽次数")
	if err != nil {
		return nil, err
	}
	backward, err := meter.Counter(MetricClockBackward, "时钟回拨次数")
	if err != nil {
		return nil, err
	}
	workerID, err := meter.Gauge(MetricWorkerID, "当前 worker id")
	if err != nil {
		return nil, err
	}
	return &generatorMetrics{
		generated: generated,
		exhausted: exhausted,
		backward:  backward,
		workerID:  workerID,
	}, nil
}

// bind 切换 worker id 标签并上报 gauge，调用方持有 Generator.mu
func (m *generatorMetrics) bind(workerID uint64) {
	m.labels = []metrics.Label{metrics.L(LabelWorkerID, strconv.FormatUint(workerID, 10))}
	m.workerID.Set(context.Background(), float64(workerID))
}

func (m *generatorMetrics) generatedOne() {
	m.generated.Inc(context.Background(), m.labels...)
}

func (m *generatorMetrics) sequenceExhausted() {
	m.exhausted.Inc(context.Background(), m.labels...)
}

func (m *generatorMetrics) clockBackward(outcome string) {
	m.backward.Inc(context.Background(), append(m.labels, metrics.L(metrics.LabelOutcome, outcome))...)
}
