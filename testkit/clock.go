package testkit

import (
	"sync"
	"time"
)

// ManualClock 手动推进的时钟，满足 idgen.Clock
//
// Sleep 不阻塞，而是把虚拟时间向前推进 d，
// 因此等待时钟追上的逻辑在测试中立即结束。
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

// NewManualClock 创建从 start 开始的时钟
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// NowMs 返回当前虚拟时间的 Unix 毫秒
func (c *ManualClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.UnixMilli()
}

// Sleep 推进虚拟时间
func (c *ManualClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.sleeps++
}

// Set 将时钟拨到 t，可以向过去拨动以模拟回拨
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance 将时钟推进 d，d 为负数时回拨
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Now 返回当前虚拟时间
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleeps 返回 Sleep 被调用的次数
func (c *ManualClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

// FrozenClock 读数固定、Sleep 不推进的时钟，用于模拟时钟停滞
type FrozenClock struct {
	ms int64
}

// NewFrozenClock 创建固定在 t 的时钟
func NewFrozenClock(t time.Time) *FrozenClock {
	return &FrozenClock{ms: t.UnixMilli()}
}

func (c *FrozenClock) NowMs() int64        { return c.ms }
func (c *FrozenClock) Sleep(time.Duration) {}
