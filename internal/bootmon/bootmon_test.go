package bootmon

import (
	"testing"

	"github.com/darvell/open-bc280-firmware-sub002/internal/clock"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw/sim"
	"github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"
	"github.com/darvell/open-bc280-firmware-sub002/internal/store"
)

type freeTicker struct{}

func (freeTicker) Pending() bool { return true }

func newStageLog(t *testing.T) *store.StageLog {
	t.Helper()
	nor := sim.NewNOR()
	flash := spiflash.New(nor, clock.New(freeTicker{}, nil))
	return store.NewStageLog(flash)
}

func TestMarkersPersistToStageLog(t *testing.T) {
	sl := newStageLog(t)
	m := NewMonitor(sl)

	m.Mark(StageReset, 1)
	m.Mark(StageClocks, 4)
	m.Mark(StageUART, 9)

	recs := sl.Records()
	if len(recs) != 3 {
		t.Fatalf("stage log has %d records, want 3", len(recs))
	}
	if recs[0].Code != StageReset || recs[0].MS != 1 {
		t.Fatalf("first record = %+v", recs[0])
	}
	if recs[2].Code != StageUART || recs[2].MS != 9 {
		t.Fatalf("third record = %+v", recs[2])
	}
}

func TestPreReadyMarkersFlushOnReady(t *testing.T) {
	m := NewMonitor(nil)

	m.Mark(StageReset, 1)
	m.Mark(StageClocks, 4)

	var uartLines []string
	m.UARTReady(func(line string) { uartLines = append(uartLines, line) })
	if len(uartLines) != 2 {
		t.Fatalf("flush delivered %d lines, want 2", len(uartLines))
	}
	if uartLines[0] != "BOOT 0001 000001" {
		t.Fatalf("first line = %q", uartLines[0])
	}

	// post-ready markers are delivered directly, not re-flushed
	m.Mark(StageNOR, 12)
	if len(uartLines) != 3 {
		t.Fatalf("live marker not delivered, have %d lines", len(uartLines))
	}
	if uartLines[2] != "BOOT 0005 000012" {
		t.Fatalf("live line = %q", uartLines[2])
	}
}

func TestSinksFlushIndependently(t *testing.T) {
	m := NewMonitor(nil)
	m.Mark(StageReset, 1)

	var uartLines, lcdLines []string
	m.UARTReady(func(line string) { uartLines = append(uartLines, line) })
	m.Mark(StageGPIO, 3)
	m.LCDReady(func(line string) { lcdLines = append(lcdLines, line) })

	if len(uartLines) != 2 {
		t.Fatalf("uart saw %d lines, want 2", len(uartLines))
	}
	if len(lcdLines) != 2 {
		t.Fatalf("lcd flush saw %d lines, want 2", len(lcdLines))
	}
	m.Mark(StageReady, 20)
	if len(uartLines) != 3 || len(lcdLines) != 3 {
		t.Fatalf("post-ready marker missed a sink: uart=%d lcd=%d",
			len(uartLines), len(lcdLines))
	}
}

func TestPendingBufferBounded(t *testing.T) {
	m := NewMonitor(nil)
	for i := uint32(0); i < maxPending+5; i++ {
		m.Mark(0x0100+i, i)
	}

	var lines []string
	m.UARTReady(func(line string) { lines = append(lines, line) })
	if len(lines) != maxPending {
		t.Fatalf("flush delivered %d lines, want %d", len(lines), maxPending)
	}
	// oldest surviving marker is the sixth one emitted
	if lines[0] != "BOOT 0105 000005" {
		t.Fatalf("oldest surviving line = %q", lines[0])
	}
}

func TestLinesForBootPage(t *testing.T) {
	m := NewMonitor(nil)
	m.Mark(StageReset, 1)
	m.Mark(StageLCD, 30)

	lines := m.Lines()
	if len(lines) != 2 {
		t.Fatalf("Lines() = %d entries, want 2", len(lines))
	}
	if lines[1] != "BOOT 0006 000030" {
		t.Fatalf("lines[1] = %q", lines[1])
	}
}

func TestFormatMarkerWrapsMS(t *testing.T) {
	got := formatMarker(entry{code: 0xABCD, ms: 1234567})
	if got != "BOOT ABCD 234567" {
		t.Fatalf("formatMarker = %q", got)
	}
}
