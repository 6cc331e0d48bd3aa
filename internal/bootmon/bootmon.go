// Package bootmon tracks bring-up progress: every stage marker is persisted
// to the flash stage log and mirrored as a text line to the UART and LCD
// sinks. Markers emitted before a sink is declared ready are buffered and
// flushed when it comes up, so the earliest stages are never lost.
package bootmon

import "github.com/darvell/open-bc280-firmware-sub002/internal/store"

// Stage marker codes, in bring-up order.
const (
	StageReset     = 0x0001
	StageClocks    = 0x0002
	StageGPIO      = 0x0003
	StageUART      = 0x0004
	StageNOR       = 0x0005
	StageLCD       = 0x0006
	StageConfig    = 0x0007
	StageCrashScan = 0x0008
	StageProto     = 0x0009
	StageReady     = 0x000A
	StageFault     = 0x00F0
)

// maxPending bounds the pre-ready buffer; older markers are dropped first
// once a sink has fallen this far behind.
const maxPending = 16

// Sink receives one formatted marker line, without a trailing newline.
type Sink func(line string)

type entry struct {
	code uint32
	ms   uint32
}

// Monitor owns the volatile boot log. Not safe for concurrent use; the main
// loop is the only caller.
type Monitor struct {
	stages *store.StageLog

	pending [maxPending]entry
	head    int
	count   int

	uart      Sink
	lcd       Sink
	uartReady bool
	lcdReady  bool

	// uartAt/lcdAt track how much of the history each sink has consumed,
	// as an absolute marker index.
	total  int
	uartAt int
	lcdAt  int
}

// NewMonitor wraps the persistent stage log. stages may be nil when flash
// is not yet up; markers are then mirror-only.
func NewMonitor(stages *store.StageLog) *Monitor {
	return &Monitor{stages: stages}
}

// Mark records one stage marker: persisted first, then mirrored to any
// ready sink, and buffered for the ones still coming up.
func (m *Monitor) Mark(code, nowMS uint32) {
	if m.stages != nil {
		m.stages.Append(code, nowMS)
	}
	e := entry{code: code, ms: nowMS}
	m.push(e)
	m.total++
	if m.uartReady {
		m.uart(formatMarker(e))
		m.uartAt = m.total
	}
	if m.lcdReady {
		m.lcd(formatMarker(e))
		m.lcdAt = m.total
	}
}

func (m *Monitor) push(e entry) {
	if m.count == maxPending {
		m.head = (m.head + 1) % maxPending
		m.count--
	}
	m.pending[(m.head+m.count)%maxPending] = e
	m.count++
}

func (m *Monitor) at(i int) entry {
	return m.pending[(m.head+i)%maxPending]
}

// UARTReady registers the UART sink and flushes the buffered markers it
// has not yet seen.
func (m *Monitor) UARTReady(s Sink) {
	m.uart = s
	m.uartReady = true
	m.uartAt = m.flush(s, m.uartAt)
}

// LCDReady registers the LCD sink and flushes the buffered markers it has
// not yet seen.
func (m *Monitor) LCDReady(s Sink) {
	m.lcd = s
	m.lcdReady = true
	m.lcdAt = m.flush(s, m.lcdAt)
}

func (m *Monitor) flush(s Sink, seen int) int {
	first := m.total - m.count
	if seen < first {
		seen = first
	}
	for i := seen - first; i < m.count; i++ {
		s(formatMarker(m.at(i)))
	}
	return m.total
}

// Lines returns the buffered marker lines, oldest first, for the LCD boot
// page renderer.
func (m *Monitor) Lines() []string {
	out := make([]string, m.count)
	for i := 0; i < m.count; i++ {
		out[i] = formatMarker(m.at(i))
	}
	return out
}

// formatMarker renders "BOOT 000A 001234" (code hex, ms decimal mod 1e6).
func formatMarker(e entry) string {
	var b [16]byte
	copy(b[:], "BOOT ")
	const hex = "0123456789ABCDEF"
	b[5] = hex[e.code>>12&0xF]
	b[6] = hex[e.code>>8&0xF]
	b[7] = hex[e.code>>4&0xF]
	b[8] = hex[e.code&0xF]
	b[9] = ' '
	ms := e.ms % 1000000
	for i := 15; i >= 10; i-- {
		b[i] = byte('0' + ms%10)
		ms /= 10
	}
	return string(b[:])
}
