package allocator

import (
	"context"
	"hash/fnv"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/ceyewan/flake/xerrors"
)

// EnvWorkerID 覆盖 worker id 的环境变量
const EnvWorkerID = "SNOWFLAKE_WORKER_ID"

// ============================================================================
// env
// ============================================================================

type envStrategy struct {
	lookup func(string) (string, bool)
}

// Env 从 SNOWFLAKE_WORKER_ID 读取 worker id，lookup 为 nil 时使用 os.LookupEnv
//
// 变量存在但非法（包括空值）时直接失败，不降级。
func Env(lookup func(string) (string, bool)) Strategy {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envStrategy{lookup: lookup}
}

func (s *envStrategy) Name() string { return "env" }

func (s *envStrategy) Allocate(_ context.Context, bits uint8) (Allocation, error) {
	raw, ok := s.lookup(EnvWorkerID)
	if !ok {
		return Allocation{}, ErrSkip
	}
	raw = strings.TrimSpace(raw)

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return Allocation{}, invalid("worker_id_unparsable", "%s=%q is not a non-negative integer", EnvWorkerID, raw)
	}
	if id > MaxWorkerID(bits) {
		return Allocation{}, invalid("worker_id_out_of_range", "%s=%d exceeds %d", EnvWorkerID, id, MaxWorkerID(bits))
	}
	return Allocation{WorkerID: id}, nil
}

// ============================================================================
// composite
// ============================================================================

type compositeStrategy struct {
	datacenterID   *int64
	machineID      *int64
	datacenterBits uint8
}

// Composite 由数据中心号与机器号组合：高 datacenterBits 位放数据中心，其余放机器号
//
// 8 位 worker、2 位数据中心时 dc=1, machine=5 得到 69。两者都缺失时跳过，只给一个视为配置错误。
func Composite(datacenterID, machineID *int64, datacenterBits uint8) Strategy {
	return &compositeStrategy{
		datacenterID:   datacenterID,
		machineID:      machineID,
		datacenterBits: datacenterBits,
	}
}

func (s *compositeStrategy) Name() string { return "composite" }

func (s *compositeStrategy) Allocate(_ context.Context, bits uint8) (Allocation, error) {
	if s.datacenterID == nil && s.machineID == nil {
		return Allocation{}, ErrSkip
	}
	if s.datacenterID == nil || s.machineID == nil {
		return Allocation{}, invalid("composite_incomplete", "datacenter_id and machine_id must be set together")
	}
	if s.datacenterBits == 0 || s.datacenterBits >= bits {
		return Allocation{}, invalid("datacenter_bits_invalid", "datacenter_bits %d must be in [1, %d)", s.datacenterBits, bits)
	}

	machineBits := bits - s.datacenterBits
	dc, machine := *s.datacenterID, *s.machineID
	if dc < 0 || uint64(dc) > MaxWorkerID(s.datacenterBits) {
		return Allocation{}, invalid("datacenter_id_out_of_range", "datacenter_id %d must be in [0, %d]", dc, MaxWorkerID(s.datacenterBits))
	}
	if machine < 0 || uint64(machine) > MaxWorkerID(machineBits) {
		return Allocation{}, invalid("machine_id_out_of_range", "machine_id %d must be in [0, %d]", machine, MaxWorkerID(machineBits))
	}

	return Allocation{WorkerID: uint64(dc)<<machineBits | uint64(machine)}, nil
}

// ============================================================================
// ip
// ============================================================================

type ipStrategy struct {
	addrs func() ([]net.Addr, error)
}

// IP 由本机地址末两个字节派生：worker 位对半分，高半取倒数第二字节低位，低半取末字节低位
//
// 8 位时为 ((o3&15)<<4)|(o4&15)。优先私有 IPv4，其次任意非回环 IPv4，最后 IPv6。
func IP(addrs func() ([]net.Addr, error)) Strategy {
	if addrs == nil {
		addrs = net.InterfaceAddrs
	}
	return &ipStrategy{addrs: addrs}
}

func (s *ipStrategy) Name() string { return "ip" }

func (s *ipStrategy) Allocate(_ context.Context, bits uint8) (Allocation, error) {
	addrs, err := s.addrs()
	if err != nil {
		return Allocation{}, xerrors.Wrapf(ErrResolution, "list interface addresses: %v", err)
	}
	ip, ok := pickAddr(addrs)
	if !ok {
		return Allocation{}, xerrors.Wrap(ErrResolution, "no usable interface address")
	}
	return Allocation{WorkerID: FromIP(ip, bits)}, nil
}

// FromIP 按 IP 策略计算 worker id
func FromIP(ip netip.Addr, bits uint8) uint64 {
	b := ip.AsSlice()
	hi := bits / 2
	lo := bits - hi
	return (uint64(b[len(b)-2])&MaxWorkerID(hi))<<lo | uint64(b[len(b)-1])&MaxWorkerID(lo)
}

func pickAddr(addrs []net.Addr) (netip.Addr, bool) {
	var public4, v6 netip.Addr
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			continue
		}
		switch {
		case ip.Is4() && ip.IsPrivate():
			return ip, true
		case ip.Is4():
			if !public4.IsValid() {
				public4 = ip
			}
		case !v6.IsValid():
			v6 = ip
		}
	}
	if public4.IsValid() {
		return public4, true
	}
	return v6, v6.IsValid()
}

// ============================================================================
// hostname
// ============================================================================

type hostnameStrategy struct {
	hostname func() (string, error)
}

// Hostname 对主机名做 FNV-1a 32 位哈希后按 2^bits 取模，同一主机结果稳定
func Hostname(hostname func() (string, error)) Strategy {
	if hostname == nil {
		hostname = os.Hostname
	}
	return &hostnameStrategy{hostname: hostname}
}

func (s *hostnameStrategy) Name() string { return "hostname" }

func (s *hostnameStrategy) Allocate(_ context.Context, bits uint8) (Allocation, error) {
	name, err := s.hostname()
	if err != nil {
		return Allocation{}, xerrors.Wrapf(ErrResolution, "hostname: %v", err)
	}
	if strings.TrimSpace(name) == "" {
		return Allocation{}, xerrors.Wrap(ErrResolution, "hostname is empty")
	}
	return Allocation{WorkerID: FromHostname(name, bits)}, nil
}

// FromHostname 按主机名策略计算 worker id
func FromHostname(name string, bits uint8) uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return uint64(h.Sum32()) & MaxWorkerID(bits)
}
