package allocator

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/flake/xerrors"
)

func envOf(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func i64(v int64) *int64 { return &v }

func TestEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		bits     uint8
		want     uint64
		wantErr  error
		wantCode string
	}{
		{name: "absent skips", env: map[string]string{}, bits: 8, wantErr: ErrSkip},
		{name: "blank", env: map[string]string{EnvWorkerID: "   "}, bits: 8, wantErr: ErrInvalidConfig, wantCode: "worker_id_unparsable"},
		{name: "empty", env: map[string]string{EnvWorkerID: ""}, bits: 8, wantErr: ErrInvalidConfig, wantCode: "worker_id_unparsable"},
		{name: "surrounding spaces", env: map[string]string{EnvWorkerID: " 12 "}, bits: 8, want: 12},
		{name: "valid", env: map[string]string{EnvWorkerID: "7"}, bits: 8, want: 7},
		{name: "max value", env: map[string]string{EnvWorkerID: "255"}, bits: 8, want: 255},
		{name: "out of range", env: map[string]string{EnvWorkerID: "256"}, bits: 8, wantErr: ErrInvalidConfig, wantCode: "worker_id_out_of_range"},
		{name: "negative", env: map[string]string{EnvWorkerID: "-1"}, bits: 8, wantErr: ErrInvalidConfig, wantCode: "worker_id_unparsable"},
		{name: "garbage", env: map[string]string{EnvWorkerID: "abc"}, bits: 8, wantErr: ErrInvalidConfig, wantCode: "worker_id_unparsable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Env(envOf(tt.env)).Allocate(context.Background(), tt.bits)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantCode != "" {
					assert.Equal(t, tt.wantCode, xerrors.GetCode(err))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.WorkerID)
			assert.Nil(t, got.Release)
		})
	}
}

func TestComposite(t *testing.T) {
	tests := []struct {
		name     string
		dc, m    *int64
		dcBits   uint8
		bits     uint8
		want     uint64
		wantErr  error
		wantCode string
	}{
		{name: "both absent skips", dcBits: 2, bits: 8, wantErr: ErrSkip},
		{name: "dc 1 machine 5", dc: i64(1), m: i64(5), dcBits: 2, bits: 8, want: 69},
		{name: "max values", dc: i64(3), m: i64(63), dcBits: 2, bits: 8, want: 255},
		{name: "zero", dc: i64(0), m: i64(0), dcBits: 2, bits: 8, want: 0},
		{name: "wider datacenter", dc: i64(5), m: i64(1), dcBits: 5, bits: 10, want: 5<<5 | 1},
		{name: "only datacenter", dc: i64(1), dcBits: 2, bits: 8, wantErr: ErrInvalidConfig, wantCode: "composite_incomplete"},
		{name: "only machine", m: i64(1), dcBits: 2, bits: 8, wantErr: ErrInvalidConfig, wantCode: "composite_incomplete"},
		{name: "datacenter too large", dc: i64(4), m: i64(0), dcBits: 2, bits: 8, wantErr: ErrInvalidConfig, wantCode: "datacenter_id_out_of_range"},
		{name: "machine too large", dc: i64(0), m: i64(64), dcBits: 2, bits: 8, wantErr: ErrInvalidConfig, wantCode: "machine_id_out_of_range"},
		{name: "negative machine", dc: i64(0), m: i64(-1), dcBits: 2, bits: 8, wantErr: ErrInvalidConfig, wantCode: "machine_id_out_of_range"},
		{name: "datacenter bits fill worker", dc: i64(0), m: i64(0), dcBits: 8, bits: 8, wantErr: ErrInvalidConfig, wantCode: "datacenter_bits_invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Composite(tt.dc, tt.m, tt.dcBits).Allocate(context.Background(), tt.bits)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.wantCode != "" {
					assert.Equal(t, tt.wantCode, xerrors.GetCode(err))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.WorkerID)
		})
	}
}

func ipNet(s string) net.Addr {
	ip := net.ParseIP(s)
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(24, 8*len(ip))}
}

func TestFromIP(t *testing.T) {
	assert.Equal(t, uint64((0x1A&15)<<4|(0x2B&15)), FromIP(netip.MustParseAddr("192.168.26.43"), 8))
	assert.Equal(t, uint64(3<<5|10), FromIP(netip.MustParseAddr("10.0.3.10"), 10))
	assert.Equal(t, uint64(0x12&15)<<4|0x34&15, FromIP(netip.MustParseAddr("fd00::1234"), 8))
	assert.Equal(t, uint64(1), FromIP(netip.MustParseAddr("10.0.0.3"), 1))
}

func TestIP(t *testing.T) {
	tests := []struct {
		name    string
		addrs   []net.Addr
		err     error
		want    uint64
		wantErr error
	}{
		{
			name:  "private ipv4 preferred",
			addrs: []net.Addr{ipNet("127.0.0.1"), ipNet("8.8.4.4"), ipNet("192.168.1.23")},
			want:  FromIP(netip.MustParseAddr("192.168.1.23"), 8),
		},
		{
			name:  "public ipv4 fallback",
			addrs: []net.Addr{ipNet("127.0.0.1"), ipNet("fd00::1"), ipNet("8.8.4.4")},
			want:  FromIP(netip.MustParseAddr("8.8.4.4"), 8),
		},
		{
			name:  "ipv6 last resort",
			addrs: []net.Addr{ipNet("::1"), ipNet("fd00::abcd")},
			want:  FromIP(netip.MustParseAddr("fd00::abcd"), 8),
		},
		{name: "only loopback", addrs: []net.Addr{ipNet("127.0.0.1"), ipNet("::1")}, wantErr: ErrResolution},
		{name: "lookup error", err: errors.New("no interfaces"), wantErr: ErrResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := IP(func() ([]net.Addr, error) { return tt.addrs, tt.err })
			got, err := s.Allocate(context.Background(), 8)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.WorkerID)
		})
	}
}

func TestHostname(t *testing.T) {
	s := Hostname(func() (string, error) { return "flake-node-01", nil })
	a, err := s.Allocate(context.Background(), 8)
	require.NoError(t, err)
	b, err := s.Allocate(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, a.WorkerID, b.WorkerID)
	assert.LessOrEqual(t, a.WorkerID, uint64(255))
	assert.Equal(t, FromHostname("flake-node-01", 8), a.WorkerID)

	// FNV-1a 32 of "a" is 0xe40c292c
	assert.Equal(t, uint64(0x2c), FromHostname("a", 8))

	_, err = Hostname(func() (string, error) { return "", nil }).Allocate(context.Background(), 8)
	assert.ErrorIs(t, err, ErrResolution)

	_, err = Hostname(func() (string, error) { return "", errors.New("boom") }).Allocate(context.Background(), 8)
	assert.ErrorIs(t, err, ErrResolution)
}
