package sim

import (
	"sync"
	"sync/atomic"
)

// UART is a loopback serial device for one firmware port. Injected bytes are
// delivered to an optional RX hook byte by byte, standing in for the receive
// interrupt; transmitted bytes accumulate until drained by the harness.
type UART struct {
	mu     sync.Mutex
	rx     []byte
	tx     []byte
	rxHook func(b byte)
}

func NewUART() *UART { return &UART{} }

// SetRxHook installs the interrupt stand-in. With a hook set, InjectRx
// delivers bytes synchronously instead of queueing them.
func (u *UART) SetRxHook(fn func(b byte)) {
	u.mu.Lock()
	u.rxHook = fn
	u.mu.Unlock()
}

// InjectRx feeds bytes into the port as if they arrived on the wire.
func (u *UART) InjectRx(data []byte) {
	u.mu.Lock()
	hook := u.rxHook
	if hook == nil {
		u.rx = append(u.rx, data...)
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()
	for _, b := range data {
		hook(b)
	}
}

func (u *UART) WriteByte(b byte) {
	u.mu.Lock()
	u.tx = append(u.tx, b)
	u.mu.Unlock()
}

func (u *UART) ReadByte() (byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.rx) == 0 {
		return 0, false
	}
	b := u.rx[0]
	u.rx = u.rx[1:]
	return b, true
}

// TakeTx drains and returns everything the firmware has transmitted.
func (u *UART) TakeTx() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := u.tx
	u.tx = nil
	return out
}

// ADC is a settable battery-divider sample source.
type ADC struct{ raw atomic.Uint32 }

func (a *ADC) SetRaw(v uint16)     { a.raw.Store(uint32(v)) }
func (a *ADC) ReadBattery() uint16 { return uint16(a.raw.Load()) }

// ButtonPad is a settable five-button mask.
type ButtonPad struct{ mask atomic.Uint32 }

func (b *ButtonPad) Set(mask uint8) { b.mask.Store(uint32(mask)) }
func (b *ButtonPad) Read() uint8    { return uint8(b.mask.Load()) }

// Backlight records the last PWM duty set by the firmware.
type Backlight struct{ pct atomic.Uint32 }

func (b *Backlight) Set(percent uint8) { b.pct.Store(uint32(percent)) }
func (b *Backlight) Percent() uint8    { return uint8(b.pct.Load()) }

// Ticker hands out pending tick flags on demand.
type Ticker struct{ pending atomic.Int32 }

// Tick arms n pending tick flags.
func (t *Ticker) Tick(n int) { t.pending.Add(int32(n)) }

func (t *Ticker) Pending() bool {
	for {
		v := t.pending.Load()
		if v <= 0 {
			return false
		}
		if t.pending.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

// Sys records reset requests and watchdog feeds.
type Sys struct {
	resets atomic.Uint32
	feeds  atomic.Uint32
}

func (s *Sys) Reset()            { s.resets.Add(1) }
func (s *Sys) FeedWatchdog()     { s.feeds.Add(1) }
func (s *Sys) ResetCount() int   { return int(s.resets.Load()) }
func (s *Sys) WatchdogFed() bool { return s.feeds.Load() > 0 }
