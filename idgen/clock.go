package idgen

import "time"

// Clock 生成器的时间来源，测试中可替换为可控时钟
type Clock interface {
	// NowMs 返回当前 Unix 毫秒
	NowMs() int64
	// Sleep 让出执行权一段时间
	Sleep(d time.Duration)
}

type systemClock struct{}

// SystemClock 基于 time.Now 的墙上时钟
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) NowMs() int64          { return time.Now().UnixMilli() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }
