// Package uart implements the interrupt-drained serial driver shared by the
// BLE passthrough port and the motor controller port. RX bytes land in a
// per-port SPSC ring from the interrupt handler; TX is polled.
package uart

import "github.com/darvell/open-bc280-firmware-sub002/internal/hw"

// Port numbers, fixed by the board wiring.
const (
	PortBLE   = 0 // USART1, BLE passthrough module
	PortMotor = 1 // USART2, motor controller
)

type Port struct {
	dev hw.UART
	rx  Ring
}

func NewPort(dev hw.UART) *Port {
	return &Port{dev: dev}
}

// Receive is the RX interrupt path: one byte per status-register read goes
// into the ring. Overflow drops the newest byte.
func (p *Port) Receive(b byte) {
	p.rx.Put(b)
}

// RxAvailable reports whether Getc will return data without touching the
// data register.
func (p *Port) RxAvailable() bool {
	return p.rx.Used() > 0
}

// Getc returns the next received byte, preferring the ring and falling back
// to a direct data-register read.
func (p *Port) Getc() (byte, bool) {
	if b, ok := p.rx.Get(); ok {
		return b, true
	}
	return p.dev.ReadByte()
}

// Putc transmits one byte, spinning on TXE inside the device.
func (p *Port) Putc(b byte) {
	p.dev.WriteByte(b)
}

// Write sends raw bytes with no translation.
func (p *Port) Write(data []byte) {
	for _, b := range data {
		p.dev.WriteByte(b)
	}
}

// WriteString sends text, inserting a carriage return before each newline.
func (p *Port) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			p.dev.WriteByte('\r')
		}
		p.dev.WriteByte(s[i])
	}
}

// Ring exposes driver internals for the ring-buffer summary command.
func (p *Port) RingUsed() int { return p.rx.Used() }
func (p *Port) RingSize() int { return p.rx.Size() }
