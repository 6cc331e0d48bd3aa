package ride

// Graph channels selectable over the wire and from the UI.
const (
	ChanSpeed = iota
	ChanPower
	ChanBatteryV
	ChanBatteryA
	ChanTemp
	ChanCadence
	ChanCount
)

const sampleRingCap = 120

// SampleRing is a fixed ring of u16 samples with running min/max/latest.
// Min and max are recomputed over the live window on each query so that
// overwritten samples stop contributing.
type SampleRing struct {
	buf   [sampleRingCap]uint16
	head  int
	count int
}

func (r *SampleRing) Push(v uint16) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % sampleRingCap
	if r.count < sampleRingCap {
		r.count++
	}
}

func (r *SampleRing) Count() int    { return r.count }
func (r *SampleRing) Capacity() int { return sampleRingCap }

// At returns sample i, oldest first.
func (r *SampleRing) At(i int) uint16 {
	if i < 0 || i >= r.count {
		return 0
	}
	return r.buf[(r.head-r.count+i+sampleRingCap*2)%sampleRingCap]
}

func (r *SampleRing) Latest() uint16 {
	if r.count == 0 {
		return 0
	}
	return r.buf[(r.head-1+sampleRingCap)%sampleRingCap]
}

func (r *SampleRing) Min() uint16 {
	if r.count == 0 {
		return 0
	}
	min := r.At(0)
	for i := 1; i < r.count; i++ {
		if v := r.At(i); v < min {
			min = v
		}
	}
	return min
}

func (r *SampleRing) Max() uint16 {
	var max uint16
	for i := 0; i < r.count; i++ {
		if v := r.At(i); v > max {
			max = v
		}
	}
	return max
}

func (r *SampleRing) Reset() {
	r.head = 0
	r.count = 0
}

// Graph owns one ring per channel, an active channel and a sample window.
// The window bounds how many trailing samples summaries and renderers look
// at; zero means the whole ring.
type Graph struct {
	rings    [ChanCount]SampleRing
	Channel  uint8
	WindowMS uint16
	lastMS   uint32
}

// Due reports whether a new sample should be taken at nowMS. A zero window
// samples every call.
func (g *Graph) Due(nowMS uint32) bool {
	if g.WindowMS == 0 {
		return true
	}
	if nowMS-g.lastMS < uint32(g.WindowMS) {
		return false
	}
	g.lastMS = nowMS
	return true
}

// Sample pushes the current model values onto every channel's ring.
func (g *Graph) Sample(m *Model) {
	g.rings[ChanSpeed].Push(m.In.SpeedDmph)
	g.rings[ChanPower].Push(m.CmdPowerW)
	g.rings[ChanBatteryV].Push(m.In.BatteryDV)
	g.rings[ChanBatteryA].Push(m.In.BatteryDA)
	var t uint16
	if m.In.TempDC > 0 {
		t = uint16(m.In.TempDC)
	}
	g.rings[ChanTemp].Push(t)
	g.rings[ChanCadence].Push(m.In.CadenceRPM)
}

// Ring returns the ring for channel c, clamped into range.
func (g *Graph) Ring(c uint8) *SampleRing {
	if c >= ChanCount {
		c = ChanSpeed
	}
	return &g.rings[c]
}

// Active returns the ring for the selected channel.
func (g *Graph) Active() *SampleRing { return g.Ring(g.Channel) }

// SetChannel selects the active channel; out-of-range values are rejected.
func (g *Graph) SetChannel(c uint8) bool {
	if c >= ChanCount {
		return false
	}
	g.Channel = c
	return true
}

// ResetAll clears every channel's ring.
func (g *Graph) ResetAll() {
	for i := range g.rings {
		g.rings[i].Reset()
	}
}
