// Package sim provides host-side behavioural models of the BC280 hardware:
// the W25Q32 NOR, the ST7789 panel on the 8080 bus, the battery ADC, the
// button pad, MCU memory and system control. Tests and the bc280sim binary
// run the unmodified firmware core against these models.
package sim

import "sync"

// NORSize is the W25Q32 capacity (32 Mbit).
const (
	NORSize       = 4 * 1024 * 1024
	norPageSize   = 256
	norSectorSize = 4096
)

// NOR opcode set understood by the model.
const (
	norOpPageProgram = 0x02
	norOpRead        = 0x03
	norOpReadStatus  = 0x05
	norOpWriteEnable = 0x06
	norOpSectorErase = 0x20
)

// NOR models a W25Q32-class flash behind the hw.SPI interface. Programming
// only clears bits (bit-AND semantics) so a missing erase shows up in tests;
// page programs wrap inside the 256-byte page like the real part.
type NOR struct {
	mu  sync.Mutex
	mem [NORSize]byte

	selected bool
	wren     bool

	cmd     byte
	haveCmd bool
	addr    uint32
	addrLen int

	erases   int
	programs int
}

func NewNOR() *NOR {
	n := &NOR{}
	for i := range n.mem {
		n.mem[i] = 0xFF
	}
	return n
}

func (n *NOR) Select() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.selected = true
	n.haveCmd = false
	n.addrLen = 0
	n.addr = 0
}

func (n *NOR) Deselect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.selected && n.haveCmd {
		switch n.cmd {
		case norOpSectorErase:
			if n.wren && n.addrLen == 3 {
				base := n.addr &^ uint32(norSectorSize-1)
				for i := uint32(0); i < norSectorSize; i++ {
					n.mem[(base+i)%NORSize] = 0xFF
				}
				n.erases++
			}
			n.wren = false
		case norOpPageProgram:
			n.wren = false
		}
	}
	n.selected = false
}

func (n *NOR) Transfer(b byte) byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.selected {
		return 0xFF
	}
	if !n.haveCmd {
		n.cmd = b
		n.haveCmd = true
		if n.cmd == norOpWriteEnable {
			n.wren = true
		}
		return 0xFF
	}
	switch n.cmd {
	case norOpReadStatus:
		// Model is never busy; WEL mirrors the write-enable latch.
		if n.wren {
			return 0x02
		}
		return 0x00
	case norOpRead:
		if n.addrLen < 3 {
			n.addr = n.addr<<8 | uint32(b)
			n.addrLen++
			return 0xFF
		}
		v := n.mem[n.addr%NORSize]
		n.addr++
		return v
	case norOpPageProgram:
		if n.addrLen < 3 {
			n.addr = n.addr<<8 | uint32(b)
			n.addrLen++
			return 0xFF
		}
		if n.wren {
			n.mem[n.addr%NORSize] &= b
			n.programs++
			// Address wraps within the page, as on the real part.
			n.addr = (n.addr &^ uint32(norPageSize-1)) | ((n.addr + 1) & (norPageSize - 1))
		}
		return 0xFF
	case norOpSectorErase:
		if n.addrLen < 3 {
			n.addr = n.addr<<8 | uint32(b)
			n.addrLen++
		}
		return 0xFF
	}
	return 0xFF
}

// Peek reads model contents directly, for assertions.
func (n *NOR) Peek(addr uint32, p []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range p {
		p[i] = n.mem[(addr+uint32(i))%NORSize]
	}
}

// Poke seeds model contents directly, bypassing program semantics.
func (n *NOR) Poke(addr uint32, p []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range p {
		n.mem[(addr+uint32(i))%NORSize] = p[i]
	}
}

// Erases and Programs report operation counts, for wear assertions.
func (n *NOR) Erases() int   { n.mu.Lock(); defer n.mu.Unlock(); return n.erases }
func (n *NOR) Programs() int { n.mu.Lock(); defer n.mu.Unlock(); return n.programs }
