package st7789

import (
	"testing"

	"github.com/darvell/open-bc280-firmware-sub002/internal/clock"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw/sim"
)

type freeTicker struct{}

func (freeTicker) Pending() bool { return true }

func newDev() (*Device, *sim.Panel) {
	p := sim.NewPanel()
	return New(p, clock.New(freeTicker{}, nil)), p
}

func TestInitSequenceReachesDisplayOn(t *testing.T) {
	d, p := newDev()
	d.Init()
	log := p.CommandLog()
	var sawSleepOut, sawColmod, sawInvOn, sawDispOn bool
	for _, c := range log {
		switch c {
		case cmdSLPOUT:
			sawSleepOut = true
		case cmdCOLMOD:
			sawColmod = true
		case cmdINVON:
			sawInvOn = true
		case cmdDISPON:
			sawDispOn = true
		}
	}
	if !sawSleepOut || !sawColmod || !sawInvOn || !sawDispOn {
		t.Fatalf("init sequence incomplete: slpout=%v colmod=%v invon=%v dispon=%v",
			sawSleepOut, sawColmod, sawInvOn, sawDispOn)
	}
}

func TestFullScreenFillWritesExactPixelCount(t *testing.T) {
	d, p := newDev()
	d.FillRect(0, 0, Width, Height, 0xF800)
	if got := p.PixelsWritten(); got != Width*Height {
		t.Fatalf("streamed %d pixels, want %d", got, Width*Height)
	}
	if p.Pixel(0, 0) != 0xF800 || p.Pixel(Width-1, Height-1) != 0xF800 {
		t.Fatal("corners not filled")
	}
}

func TestFillRectClips(t *testing.T) {
	d, p := newDev()
	d.FillRect(-10, -10, 20, 20, 0x07E0)
	if got := p.PixelsWritten(); got != 100 {
		t.Fatalf("clipped fill wrote %d pixels, want 100", got)
	}
	if p.Pixel(9, 9) != 0x07E0 {
		t.Fatal("pixel inside clip not painted")
	}
	if p.Pixel(10, 10) == 0x07E0 {
		t.Fatal("pixel outside clip painted")
	}

	// Entirely off-screen: no window, no pixels.
	before := p.PixelsWritten()
	d.FillRect(Width, Height, 5, 5, 0xFFFF)
	if p.PixelsWritten() != before {
		t.Fatal("off-screen fill wrote pixels")
	}
}

func TestWritePixel(t *testing.T) {
	d, p := newDev()
	d.WritePixel(5, 7, 0x001F)
	if p.Pixel(5, 7) != 0x001F {
		t.Fatal("pixel not written")
	}
	d.WritePixel(-1, 0, 0xFFFF)
	d.WritePixel(0, Height, 0xFFFF)
}
