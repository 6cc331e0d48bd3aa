// Package clock keeps the firmware's monotonic millisecond counter. The
// counter is advanced by 5 on each timer tick, either from the tick interrupt
// (TickISR) or from the polling fallback (Poll) when interrupt delivery is
// unavailable. All timestamps elsewhere in the firmware are relative to this
// counter; comparisons use modular difference so wraparound is harmless.
package clock

import (
	"sync/atomic"

	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
)

// TickMS is the tick period: the timer fires at 200 Hz.
const TickMS = 5

type Clock struct {
	ms atomic.Uint32

	ticker hw.Ticker
	sys    hw.SysCtl
}

func New(ticker hw.Ticker, sys hw.SysCtl) *Clock {
	return &Clock{ticker: ticker, sys: sys}
}

// Now returns the current millisecond counter. A single load; callers that
// need a consistent value across a computation copy it into a local first.
func (c *Clock) Now() uint32 {
	return c.ms.Load()
}

// TickISR advances time by one tick. Only the timer interrupt (or the Poll
// fallback below) calls this; the counter never moves backwards.
func (c *Clock) TickISR() {
	c.ms.Add(TickMS)
}

// Poll services the tick flag when interrupts are masked or unavailable.
// It must be called more often than the tick period; it coalesces at most
// one missed tick per call so the counter stays monotonic rather than exact.
func (c *Clock) Poll() {
	if c.ticker != nil && c.ticker.Pending() {
		c.TickISR()
	}
}

// Since returns now-start in modular arithmetic.
func Since(now, start uint32) uint32 {
	return now - start
}

// DelayMS busy-waits for n milliseconds, servicing the tick flag and feeding
// the independent watchdog on every iteration.
func (c *Clock) DelayMS(n uint32) {
	start := c.Now()
	for Since(c.Now(), start) < n {
		c.Poll()
		if c.sys != nil {
			c.sys.FeedWatchdog()
		}
	}
}

// Deadline is a helper for bounded waits on external bits.
type Deadline struct {
	clk   *Clock
	start uint32
	limit uint32
}

func (c *Clock) NewDeadline(limitMS uint32) Deadline {
	return Deadline{clk: c, start: c.Now(), limit: limitMS}
}

// Expired also services the tick flag so spin loops keep time moving on
// targets without the tick interrupt.
func (d Deadline) Expired() bool {
	d.clk.Poll()
	return Since(d.clk.Now(), d.start) >= d.limit
}
