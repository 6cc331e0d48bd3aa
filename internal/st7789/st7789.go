// Package st7789 drives the 240x320 TFT over the memory-mapped 8080 bus.
// The controller is command/data only; the firmware keeps no framebuffer and
// streams pixels straight into the panel RAM window.
package st7789

import (
	"github.com/darvell/open-bc280-firmware-sub002/internal/clock"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
)

const (
	Width  = 240
	Height = 320
)

// ST7789 command set used here.
const (
	cmdSLPOUT  = 0x11
	cmdINVON   = 0x21
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A
	cmdPORCTRL = 0xB2
	cmdGCTRL   = 0xB7
	cmdVCOMS   = 0xBB
	cmdLCMCTRL = 0xC0
	cmdVDVVRHE = 0xC2
	cmdVRHS    = 0xC3
	cmdVDVS    = 0xC4
	cmdFRCTRL2 = 0xC6
	cmdPWCTRL1 = 0xD0
	cmdPVGAMCT = 0xE0
	cmdNVGAMCT = 0xE1
	cmdEQCTRL  = 0xE9
)

type Device struct {
	bus hw.Bus8080
	clk *clock.Clock
}

func New(bus hw.Bus8080, clk *clock.Clock) *Device {
	return &Device{bus: bus, clk: clk}
}

func (d *Device) WriteCmd(c byte)      { d.bus.WriteCmd(c) }
func (d *Device) WriteData(b byte)     { d.bus.WriteData(b) }
func (d *Device) WriteData16(v uint16) { d.bus.WriteData16(v) }
func (d *Device) DelayMS(n uint32)     { d.clk.DelayMS(n) }

func (d *Device) cmd(c byte, params ...byte) {
	d.bus.WriteCmd(c)
	for _, p := range params {
		d.bus.WriteData(p)
	}
}

// Init issues the vendor bring-up sequence for the BC280 panel.
func (d *Device) Init() {
	d.cmd(cmdSLPOUT)
	d.clk.DelayMS(120)

	d.cmd(cmdMADCTL, 0x00)
	d.cmd(cmdCOLMOD, 0x05) // 16-bit RGB565
	d.cmd(cmdINVON)

	d.cmd(cmdPORCTRL, 0x0C, 0x0C, 0x00, 0x33, 0x33)
	d.cmd(cmdGCTRL, 0x35)
	d.cmd(cmdVCOMS, 0x19)
	d.cmd(cmdLCMCTRL, 0x2C)
	d.cmd(cmdVDVVRHE, 0x01)
	d.cmd(cmdVRHS, 0x12)
	d.cmd(cmdVDVS, 0x20)
	d.cmd(cmdFRCTRL2, 0x0F)
	d.cmd(cmdPWCTRL1, 0xA4, 0xA1)
	d.cmd(cmdEQCTRL, 0x11, 0x11, 0x03)
	d.cmd(cmdPVGAMCT, 0xD0, 0x04, 0x0D, 0x11, 0x13, 0x2B, 0x3F,
		0x54, 0x4C, 0x18, 0x0D, 0x0B, 0x1F, 0x23)
	d.cmd(cmdNVGAMCT, 0xD0, 0x04, 0x0C, 0x11, 0x13, 0x2C, 0x3F,
		0x44, 0x51, 0x2F, 0x1F, 0x1F, 0x20, 0x23)

	d.cmd(cmdDISPON)
	d.clk.DelayMS(20)
}

// SetAddressWindow selects the RAM window [x0,x1]x[y0,y1] and opens a RAMWR
// burst. Coordinates must already be clipped to the panel.
func (d *Device) SetAddressWindow(x0, y0, x1, y1 int) {
	d.bus.WriteCmd(cmdCASET)
	d.bus.WriteData16(uint16(x0))
	d.bus.WriteData16(uint16(x1))
	d.bus.WriteCmd(cmdRASET)
	d.bus.WriteData16(uint16(y0))
	d.bus.WriteData16(uint16(y1))
	d.bus.WriteCmd(cmdRAMWR)
}

// clip trims a rectangle to the panel. ok is false when nothing remains.
func clip(x, y, w, h int) (cx, cy, cw, ch int, ok bool) {
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > Width {
		w = Width - x
	}
	if y+h > Height {
		h = Height - y
	}
	if w <= 0 || h <= 0 {
		return 0, 0, 0, 0, false
	}
	return x, y, w, h, true
}

// FillRect streams w*h pixels of a single color into the clipped window.
func (d *Device) FillRect(x, y, w, h int, color uint16) {
	x, y, w, h, ok := clip(x, y, w, h)
	if !ok {
		return
	}
	d.SetAddressWindow(x, y, x+w-1, y+h-1)
	for i := 0; i < w*h; i++ {
		d.bus.WriteData16(color)
	}
}

// WritePixel writes a single clipped pixel.
func (d *Device) WritePixel(x, y int, color uint16) {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return
	}
	d.SetAddressWindow(x, y, x, y)
	d.bus.WriteData16(color)
}
