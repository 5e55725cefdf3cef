package connector

import (
	"context"

	"github.com/ceyewan/flake/metrics"
)

const (
	metricConnectTotal = "connector_connect_total"
	metricHealthy      = "connector_healthy"
)

// instruments 连接器共用的指标
type instruments struct {
	connects metrics.Counter
	healthy  metrics.Gauge
	labels   []metrics.Label
}

func newInstruments(m metrics.Meter, kind, name string) (*instruments, error) {
	connects, err := m.Counter(metricConnectTotal, "Connection attempts by outcome.")
	if err != nil {
		return nil, err
	}
	healthy, err := m.Gauge(metricHealthy, "1 when the last health check succeeded.")
	if err != nil {
		return nil, err
	}
	return &instruments{
		connects: connects,
		healthy:  healthy,
		labels:   []metrics.Label{metrics.L("connector", kind), metrics.L("name", name)},
	}, nil
}

func (i *instruments) observeConnect(ctx context.Context, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	labels := append(append([]metrics.Label{}, i.labels...), metrics.L(metrics.LabelOutcome, outcome))
	i.connects.Inc(ctx, labels...)
	i.setHealthy(ctx, err == nil)
}

func (i *instruments) setHealthy(ctx context.Context, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	i.healthy.Set(ctx, v, i.labels...)
}
