package proto

// Motor-bus capture, monitor and replay. Captured frames are stored as
// fixed 20-byte wire records so the read command can page through them.

const (
	busRingCap     = 64
	busDataMax     = 16
	BusRecordSize  = 20
	replayRateMin  = 20
	replayRateMax  = 1000
	replayRateDefl = 100
)

// Capture directions.
const (
	BusDirRX = 0
	BusDirTX = 1
)

type busFrame struct {
	dtMS uint16
	dir  uint8
	n    uint8
	data [busDataMax]byte
}

// BusCapture is the ring of recent motor-bus frames with relative
// timestamps.
type BusCapture struct {
	ring    [busRingCap]busFrame
	head    int
	count   int
	Enabled bool
	lastMS  uint32
	started bool
}

// Record stores one frame. Oversize frames are truncated to the record's
// data field.
func (c *BusCapture) Record(nowMS uint32, dir uint8, data []byte) {
	if !c.Enabled {
		return
	}
	var dt uint32
	if c.started {
		dt = nowMS - c.lastMS
		if dt > 0xFFFF {
			dt = 0xFFFF
		}
	}
	c.lastMS = nowMS
	c.started = true

	f := &c.ring[c.head]
	f.dtMS = uint16(dt)
	f.dir = dir
	f.n = uint8(len(data))
	if f.n > busDataMax {
		f.n = busDataMax
	}
	copy(f.data[:], data[:f.n])
	c.head = (c.head + 1) % busRingCap
	if c.count < busRingCap {
		c.count++
	}
}

func (c *BusCapture) Count() int    { return c.count }
func (c *BusCapture) Capacity() int { return busRingCap }
func (c *BusCapture) Head() int     { return c.head }

// Reset returns the ring to count 0 and head 0.
func (c *BusCapture) Reset() {
	c.head = 0
	c.count = 0
	c.started = false
}

// RecordAt serializes frame i (oldest first) into the 20-byte wire record
// {dt_ms u16, dir u8, len u8, data[16]}.
func (c *BusCapture) RecordAt(i int) ([BusRecordSize]byte, bool) {
	var out [BusRecordSize]byte
	if i < 0 || i >= c.count {
		return out, false
	}
	f := &c.ring[(c.head-c.count+i+busRingCap*2)%busRingCap]
	out[0] = byte(f.dtMS >> 8)
	out[1] = byte(f.dtMS)
	out[2] = f.dir
	out[3] = f.n
	copy(out[4:], f.data[:f.n])
	return out, true
}

// frameAt returns the raw frame i, oldest first.
func (c *BusCapture) frameAt(i int) (busFrame, bool) {
	if i < 0 || i >= c.count {
		return busFrame{}, false
	}
	return c.ring[(c.head-c.count+i+busRingCap*2)%busRingCap], true
}

// BusMonitor filters which captured frames the display surfaces.
type BusMonitor struct {
	Enabled     bool
	ID          uint8 // 0 = any
	Opcode      uint8 // 0 = any
	Diff        bool
	ChangedOnly bool

	last  [busDataMax]byte
	lastN uint8
	seen  bool
}

// Pass reports whether data clears the filter, updating the changed-only
// comparison state as a side effect.
func (m *BusMonitor) Pass(data []byte) bool {
	if !m.Enabled {
		return false
	}
	if m.ID != 0 && (len(data) < 1 || data[0] != m.ID) {
		return false
	}
	if m.Opcode != 0 && (len(data) < 2 || data[1] != m.Opcode) {
		return false
	}
	if m.ChangedOnly {
		same := m.seen && int(m.lastN) == len(data)
		if same {
			for i := 0; i < len(data); i++ {
				if m.last[i] != data[i] {
					same = false
					break
				}
			}
		}
		n := len(data)
		if n > busDataMax {
			n = busDataMax
		}
		copy(m.last[:], data[:n])
		m.lastN = uint8(n)
		m.seen = true
		if same {
			return false
		}
	}
	return true
}

// BusReplay plays captured frames back at a bounded rate.
type BusReplay struct {
	Active bool
	Pos    int
	RateMS uint16
	nextMS uint32
}

// Start arms replay from offset at rate, clamped into the allowed band.
func (r *BusReplay) Start(nowMS uint32, offset int, rateMS uint16) {
	if rateMS < replayRateMin {
		rateMS = replayRateMin
	}
	if rateMS > replayRateMax {
		rateMS = replayRateMax
	}
	r.Active = true
	r.Pos = offset
	r.RateMS = rateMS
	r.nextMS = nowMS
}

func (r *BusReplay) Stop() { r.Active = false }

// Next returns the frame due at nowMS, if any, and advances the cursor.
// Replay stops at the end of the capture.
func (r *BusReplay) Next(nowMS uint32, c *BusCapture) ([]byte, bool) {
	if !r.Active || int32(nowMS-r.nextMS) < 0 {
		return nil, false
	}
	f, ok := c.frameAt(r.Pos)
	if !ok {
		r.Active = false
		return nil, false
	}
	r.Pos++
	r.nextMS = nowMS + uint32(r.RateMS)
	return f.data[:f.n], true
}
