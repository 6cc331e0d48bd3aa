package sim

import (
	"encoding/binary"
	"sync"
)

// Mem models the MCU address space for the debug memory commands: a SRAM
// region plus any registered windows (peripheral registers, internal flash).
// Accesses outside known regions report false, and an invalid Exec target is
// the simulator's stand-in for a bus fault.
type Mem struct {
	mu      sync.Mutex
	regions []memRegion
	jumps   []uint32
}

type memRegion struct {
	base uint32
	data []byte
	exec bool
}

// SRAMBase matches the Cortex-M SRAM alias; the BC280 part carries 96 KB.
const (
	SRAMBase = 0x20000000
	SRAMSize = 96 * 1024
)

func NewMem() *Mem {
	m := &Mem{}
	m.AddRegion(SRAMBase, make([]byte, SRAMSize), false)
	return m
}

// AddRegion registers an address window. data is aliased, not copied, so
// harnesses can seed register values.
func (m *Mem) AddRegion(base uint32, data []byte, exec bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = append(m.regions, memRegion{base: base, data: data, exec: exec})
}

func (m *Mem) find(addr uint32, n int) []byte {
	for _, r := range m.regions {
		if addr >= r.base && addr-r.base+uint32(n) <= uint32(len(r.data)) {
			off := addr - r.base
			return r.data[off : off+uint32(n)]
		}
	}
	return nil
}

func (m *Mem) Read32(addr uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.find(addr, 4)
	if b == nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (m *Mem) Write32(addr uint32, v uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.find(addr, 4)
	if b == nil {
		return false
	}
	binary.LittleEndian.PutUint32(b, v)
	return true
}

func (m *Mem) Read(addr uint32, p []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.find(addr, len(p))
	if b == nil {
		return false
	}
	copy(p, b)
	return true
}

func (m *Mem) Write(addr uint32, p []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.find(addr, len(p))
	if b == nil {
		return false
	}
	copy(b, p)
	return true
}

// Exec accepts a Thumb entry inside an executable region and records the
// jump. Anything else reports false, which the firmware treats as a fault.
func (m *Mem) Exec(addr uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(addr&^1, 2) == nil {
		return false
	}
	for _, r := range m.regions {
		if a := addr &^ 1; a >= r.base && a-r.base < uint32(len(r.data)) {
			if !r.exec {
				return false
			}
			m.jumps = append(m.jumps, addr)
			return true
		}
	}
	return false
}

// Jumps returns the recorded Exec targets.
func (m *Mem) Jumps() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint32, len(m.jumps))
	copy(out, m.jumps)
	return out
}
