package idgen

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/flake/xerrors"
)

type fakeStrategy struct {
	name     string
	id       uint64
	err      error
	calls    int
	released int
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Allocate(context.Context, uint8) (Allocation, error) {
	s.calls++
	if s.err != nil {
		return Allocation{}, s.err
	}
	return Allocation{
		WorkerID: s.id,
		Release: func(context.Context) error {
			s.released++
			return nil
		},
	}, nil
}

func envOf(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func noAddrs() ([]net.Addr, error) { return nil, errors.New("no interfaces") }

func fixedAddrs(ips ...string) func() ([]net.Addr, error) {
	return func() ([]net.Addr, error) {
		addrs := make([]net.Addr, 0, len(ips))
		for _, ip := range ips {
			addrs = append(addrs, &net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(24, 32)})
		}
		return addrs, nil
	}
}

func fixedHostname(name string) func() (string, error) {
	return func() (string, error) { return name, nil }
}

func int64p(v int64) *int64 { return &v }

func TestResolverSkipsAndFallsBack(t *testing.T) {
	skip := &fakeStrategy{name: "skip", err: ErrSkip}
	broken := &fakeStrategy{name: "broken", err: xerrors.Wrap(ErrResolution, "lookup failed")}
	ok := &fakeStrategy{name: "ok", id: 42}
	never := &fakeStrategy{name: "never", id: 1}

	res, err := NewResolver(8, []Strategy{skip, broken, ok, never}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.WorkerID)
	assert.Equal(t, "ok", res.Strategy)
	assert.Equal(t, 1, skip.calls)
	assert.Equal(t, 1, broken.calls)
	assert.Zero(t, never.calls)

	require.NoError(t, res.Release(context.Background()))
	require.NoError(t, res.Release(context.Background()))
	assert.Equal(t, 1, ok.released)
}

func TestResolverFatalErrorStopsChain(t *testing.T) {
	bad := &fakeStrategy{name: "bad", err: invalidConfig("worker_id_unparsable", "bad value")}
	next := &fakeStrategy{name: "next", id: 1}

	_, err := NewResolver(8, []Strategy{bad, next}).Resolve(context.Background())
	assert.True(t, IsConfigError(err))
	assert.Equal(t, "worker_id_unparsable", xerrors.GetCode(err))
	assert.Contains(t, err.Error(), "strategy bad")
	assert.Zero(t, next.calls)
}

func TestResolverAllFail(t *testing.T) {
	errA := xerrors.Wrap(ErrResolution, "ip lookup failed")
	errB := xerrors.Wrap(ErrResolution, "hostname lookup failed")
	chain := []Strategy{
		&fakeStrategy{name: "skip", err: ErrSkip},
		&fakeStrategy{name: "a", err: errA},
		&fakeStrategy{name: "b", err: errB},
	}

	_, err := NewResolver(8, chain).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrResolution)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "all 2 strategies failed")

	_, err = NewResolver(8, []Strategy{&fakeStrategy{name: "skip", err: ErrSkip}}).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrResolution)
}

func TestResolverRejectsOutOfRange(t *testing.T) {
	big := &fakeStrategy{name: "custom", id: 300}
	_, err := NewResolver(8, []Strategy{big}).Resolve(context.Background())
	assert.True(t, IsConfigError(err))
	assert.Equal(t, 1, big.released)
}

func TestResolverCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &fakeStrategy{name: "ok", id: 1}
	_, err := NewResolver(8, []Strategy{s}).Resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.calls)
}

func TestDefaultChainPriority(t *testing.T) {
	composite := DefaultSettings()
	composite.DatacenterID = int64p(1)
	composite.MachineID = int64p(5)

	tests := []struct {
		name         string
		settings     Settings
		env          map[string]string
		addrs        func() ([]net.Addr, error)
		wantWorker   uint64
		wantStrategy string
	}{
		{
			name:         "env wins over composite",
			settings:     composite,
			env:          map[string]string{EnvWorkerID: "7"},
			addrs:        fixedAddrs("10.0.1.23"),
			wantWorker:   7,
			wantStrategy: "env",
		},
		{
			name:         "composite without env",
			settings:     composite,
			addrs:        fixedAddrs("10.0.1.23"),
			wantWorker:   69,
			wantStrategy: "composite",
		},
		{
			name:         "ip when nothing configured",
			settings:     DefaultSettings(),
			addrs:        fixedAddrs("127.0.0.1", "10.0.1.23"),
			wantWorker:   1<<4 | 23&15,
			wantStrategy: "ip",
		},
		{
			name:         "hostname when ip lookup fails",
			settings:     DefaultSettings(),
			addrs:        noAddrs,
			wantWorker:   0x2c, // fnv1a("a") & 0xff
			wantStrategy: "hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, res, err := New(context.Background(), tt.settings,
				WithLookupEnv(envOf(tt.env)),
				WithHostInfo(tt.addrs, fixedHostname("a")),
			)
			require.NoError(t, err)
			defer res.Release(context.Background())

			assert.Equal(t, tt.wantStrategy, res.Strategy)
			assert.Equal(t, tt.wantWorker, res.WorkerID)
			assert.Equal(t, tt.wantWorker, gen.WorkerID())

			id, err := gen.NextID()
			require.NoError(t, err)
			assert.Equal(t, tt.wantWorker, gen.Decode(id).WorkerID)
		})
	}
}

func TestDefaultChainEnvInvalid(t *testing.T) {
	for _, raw := range []string{"abc", "256", "-1", "   "} {
		_, _, err := New(context.Background(), DefaultSettings(),
			WithLookupEnv(envOf(map[string]string{EnvWorkerID: raw})),
			WithHostInfo(fixedAddrs("10.0.1.23"), fixedHostname("a")),
		)
		assert.True(t, IsConfigError(err), "SNOWFLAKE_WORKER_ID=%s", raw)
	}
}

func TestDefaultChainCompositeIncomplete(t *testing.T) {
	s := DefaultSettings()
	s.MachineID = int64p(5)
	_, _, err := New(context.Background(), s,
		WithLookupEnv(envOf(nil)),
		WithHostInfo(fixedAddrs("10.0.1.23"), fixedHostname("a")),
	)
	assert.True(t, IsConfigError(err))
	assert.Equal(t, "composite_incomplete", xerrors.GetCode(err))
}

func TestNewRejectsBadBitsBeforeResolving(t *testing.T) {
	s := DefaultSettings()
	s.SequenceBits = 16
	unused := &fakeStrategy{name: "unused", id: 1}

	_, _, err := New(context.Background(), s, WithStrategies(unused))
	assert.True(t, IsConfigError(err))
	assert.Zero(t, unused.calls)
}
