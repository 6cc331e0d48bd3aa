package sim

import "sync"

// Panel geometry matches the ST7789 module on the BC280.
const (
	PanelWidth  = 240
	PanelHeight = 320
)

// ST7789 command bytes the model decodes.
const (
	cmdCASET = 0x2A
	cmdRASET = 0x2B
	cmdRAMWR = 0x2C
)

// Panel models the ST7789 on the memory-mapped 8080 bus. Command and
// parameter bytes arrive through WriteCmd/WriteData; pixel data arrives as
// 16-bit words through WriteData16 after RAMWR. The model keeps a full
// RGB565 framebuffer for screenshot assertions and the websocket viewer.
type Panel struct {
	mu sync.Mutex
	fb [PanelWidth * PanelHeight]uint16

	cmd    byte
	params []byte

	x0, x1, y0, y1 int
	cx, cy         int
	writing        bool

	cmdLog []byte
	pixels int
}

func NewPanel() *Panel {
	return &Panel{x1: PanelWidth - 1, y1: PanelHeight - 1}
}

func (p *Panel) WriteCmd(c byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushParams()
	p.cmd = c
	p.params = p.params[:0]
	p.writing = c == cmdRAMWR
	if p.writing {
		p.cx, p.cy = p.x0, p.y0
	}
	p.cmdLog = append(p.cmdLog, c)
}

func (p *Panel) WriteData(d byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = append(p.params, d)
	p.flushIfComplete()
}

func (p *Panel) WriteData16(d uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writing {
		if p.cx >= 0 && p.cx < PanelWidth && p.cy >= 0 && p.cy < PanelHeight {
			p.fb[p.cy*PanelWidth+p.cx] = d
		}
		p.pixels++
		p.cx++
		if p.cx > p.x1 {
			p.cx = p.x0
			p.cy++
			if p.cy > p.y1 {
				p.cy = p.y0
			}
		}
		return
	}
	// Window commands may arrive as big-endian u16 pairs.
	p.params = append(p.params, byte(d>>8), byte(d))
	p.flushIfComplete()
}

func (p *Panel) flushIfComplete() {
	if (p.cmd == cmdCASET || p.cmd == cmdRASET) && len(p.params) >= 4 {
		p.flushParams()
	}
}

func (p *Panel) flushParams() {
	if len(p.params) < 4 {
		p.params = p.params[:0]
		return
	}
	a := int(p.params[0])<<8 | int(p.params[1])
	b := int(p.params[2])<<8 | int(p.params[3])
	switch p.cmd {
	case cmdCASET:
		p.x0, p.x1 = a, b
	case cmdRASET:
		p.y0, p.y1 = a, b
	}
	p.params = p.params[:0]
}

// Pixel returns the framebuffer contents at x,y.
func (p *Panel) Pixel(x, y int) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fb[y*PanelWidth+x]
}

// Snapshot copies the whole framebuffer.
func (p *Panel) Snapshot() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint16, len(p.fb))
	copy(out, p.fb[:])
	return out
}

// PixelsWritten counts 16-bit words streamed since construction.
func (p *Panel) PixelsWritten() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pixels
}

// CommandLog returns every command byte seen, in order.
func (p *Panel) CommandLog() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.cmdLog))
	copy(out, p.cmdLog)
	return out
}
