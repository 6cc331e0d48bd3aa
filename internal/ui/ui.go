package ui

import "github.com/darvell/open-bc280-firmware-sub002/internal/ride"

// Button bits as wired on the pad (active state already normalized).
const (
	BtnPower = 1 << 0
	BtnUp    = 1 << 1
	BtnDown  = 1 << 2
	BtnRaw   = 1 << 3
	BtnLight = 1 << 4
)

const (
	tickPeriodMS = 50 // rate limit, 20 fps ceiling
	longPressMS  = 700
	navBothMask  = BtnRaw | BtnPower
)

// State is the flattened snapshot pages render from. It is a plain value so
// prev/curr comparison and dirty computation are field compares.
type State struct {
	MS uint32

	SpeedDmph  uint16
	CadenceRPM uint16
	PowerW     uint16
	BatteryDV  uint16
	BatteryDA  uint16
	TempDC     int16
	SOC        uint8
	Err        uint8

	AssistMode  uint8
	ProfileID   uint8
	VirtualGear uint8
	GearCount   uint8
	Brake       bool
	Walk        bool
	LimitReason uint8
	CruiseMode  uint8
	CruiseDmph  uint16

	CapPowerW    uint16
	CapSpeedDmph uint16
	CapCurrentDA uint16

	TripDistanceMM uint32
	TripEnergyMWh  uint32
	TripMovingMS   uint32
	TripMaxDmph    uint16
	TripAvgDmph    uint16

	RangeEstHM   uint16
	RangeConf    uint8
	ThermalState uint8

	DriveMode uint8
	DriveSet  uint16
	RegenLvl  uint8
	LockState uint8

	BLEConnected bool
	CaptureCount uint16
	CaptureOn    bool
	MonitorOn    bool
	MonitorHits  uint16
	MonitorDiff  uint8
	MonitorLine  string
	EventCount   uint16
	ReplayOn     bool

	Theme uint8
	Units uint8
}

// StateFromModel flattens the ride model; protocol-side fields (BLE,
// capture) are filled in by the caller.
func StateFromModel(m *ride.Model) State {
	return State{
		MS:             m.MS,
		SpeedDmph:      m.In.SpeedDmph,
		CadenceRPM:     m.In.CadenceRPM,
		PowerW:         m.CmdPowerW,
		BatteryDV:      m.In.BatteryDV,
		BatteryDA:      m.In.BatteryDA,
		TempDC:         m.In.TempDC,
		SOC:            m.SOC,
		Err:            m.In.Err,
		AssistMode:     m.AssistMode,
		ProfileID:      m.ProfileID,
		VirtualGear:    m.VirtualGear,
		GearCount:      m.GearCount,
		Brake:          m.In.Brake,
		Walk:           m.Walk,
		LimitReason:    m.LimitReason,
		CruiseMode:     m.CruiseMode,
		CruiseDmph:     m.CruiseDmph,
		CapPowerW:      m.Caps.PowerW,
		CapSpeedDmph:   m.Caps.SpeedDmph,
		CapCurrentDA:   m.Caps.CurrentDA,
		TripDistanceMM: m.Trip.DistanceMM,
		TripEnergyMWh:  m.Trip.EnergyMWh,
		TripMovingMS:   m.Trip.MovingMS,
		TripMaxDmph:    m.Trip.MaxSpeedDmph,
		TripAvgDmph:    m.Trip.AvgSpeedDmph(),
		RangeEstHM:     m.RangeEstHM,
		RangeConf:      m.RangeConf,
		ThermalState:   m.Gov.ThermalState,
		DriveMode:      m.DriveMode,
		DriveSet:       m.DriveSet,
		RegenLvl:       m.Regen.Level,
		LockState:      m.LockState,
		Theme:          m.Theme,
		Units:          m.Units,
	}
}

// Warning reports whether the warning chip is shown.
func (s *State) Warning() bool {
	return s.Err != 0 || s.Brake || s.LimitReason != ride.LimitUser
}

// TraceRecord is the optional per-render diagnostic emitted by Tick.
type TraceRecord struct {
	Hash       uint32
	DirtyCount int
	DrawOps    uint32
	RenderMS   uint32
	Full       bool
	Page       uint8
	TripHM     uint16
	TripAvg    uint16
}

// Engine owns the page registry, the dirty tracker and the content hash.
type Engine struct {
	Canvas *Canvas
	Graph  *ride.Graph

	// OnTrace, when set, receives a record for every render.
	OnTrace func(TraceRecord)

	// NowMS supplies the time source for render duration measurement.
	NowMS func() uint32

	pageIdx  int
	prev     State
	havePrev bool
	prevPage int

	dirty      DirtyTracker
	lastHash   uint32
	lastTickMS uint32
	ticked     bool

	// button edge state
	prevBtn  uint8
	pressMS  [5]uint32
	navEaten uint8

	// lazy ring for the graphing pages, fed on tick
	pageRing ride.SampleRing
}

func NewEngine(c *Canvas, g *ride.Graph) *Engine {
	return &Engine{Canvas: c, Graph: g, prevPage: -1}
}

func (e *Engine) PageIndex() int   { return e.pageIdx }
func (e *Engine) PageName() string { return pages[e.pageIdx].Name }
func (e *Engine) LastHash() uint32 { return e.lastHash }

// SetPage jumps directly to page i, wrapping into range.
func (e *Engine) SetPage(i int) {
	n := len(pages)
	e.pageIdx = ((i % n) + n) % n
}

// NextPage and PrevPage implement the short-press navigation with wrap.
func (e *Engine) NextPage() { e.SetPage(e.pageIdx + 1) }
func (e *Engine) PrevPage() { e.SetPage(e.pageIdx - 1) }

// HandleButtons runs the navigation rules on the sampled button mask:
// short "raw" previous page, short "power" next page, long "raw" jumps to
// the dashboard, both together is a no-op.
func (e *Engine) HandleButtons(mask uint8, nowMS uint32) {
	pressed := mask &^ e.prevBtn
	released := e.prevBtn &^ mask

	for b := 0; b < 5; b++ {
		bit := uint8(1) << b
		if pressed&bit != 0 {
			e.pressMS[b] = nowMS
		}
	}

	// both nav buttons held: swallow the chord
	if mask&navBothMask == navBothMask {
		e.navEaten |= navBothMask
	}

	// long raw press fires while still held
	if mask&BtnRaw != 0 && e.navEaten&BtnRaw == 0 &&
		nowMS-e.pressMS[3] >= longPressMS && mask&BtnPower == 0 {
		e.SetPage(0)
		e.navEaten |= BtnRaw
	}

	if released&BtnRaw != 0 {
		if e.navEaten&BtnRaw == 0 && nowMS-e.pressMS[3] < longPressMS {
			e.PrevPage()
		}
		e.navEaten &^= BtnRaw
	}
	if released&BtnPower != 0 {
		if e.navEaten&BtnPower == 0 && nowMS-e.pressMS[0] < longPressMS {
			e.NextPage()
		}
		e.navEaten &^= BtnPower
	}

	e.prevBtn = mask
}

// Tick runs one render pass if the rate limit allows. Returns true when a
// render happened.
func (e *Engine) Tick(nowMS uint32, curr State) bool {
	if e.ticked && nowMS-e.lastTickMS < tickPeriodMS {
		return false
	}
	e.lastTickMS = nowMS
	e.ticked = true

	pg := &pages[e.pageIdx]

	// 1. sample the active graph channel into the page's lazy ring
	if pg.Sampled {
		e.pageRing.Push(channelValue(&curr, e.graphChannel()))
	}

	// 2. dirty set
	pageChanged := e.pageIdx != e.prevPage
	e.dirty.Reset()
	switch {
	case !e.havePrev || pageChanged || pg.DirtyFn == nil:
		e.dirty.Full()
	default:
		pg.DirtyFn(&e.prev, &curr, &e.dirty)
	}

	// 3. stable content hash: replay render_full with drawing disabled
	c := e.Canvas
	wasEnabled := c.DrawEnabled
	c.DrawEnabled = false
	c.BeginHash()
	pg.RenderFull(c, &curr, e)
	hash := c.EndHash()
	c.DrawEnabled = wasEnabled

	// 4. render if anything is dirty
	rendered := false
	var start uint32
	if e.NowMS != nil {
		start = e.NowMS()
	}
	c.ResetDrawOps()
	if e.dirty.Count() > 0 {
		rendered = true
		if e.dirty.IsFull() || pg.RenderPartial == nil {
			c.ClearClip()
			pg.RenderFull(c, &curr, e)
		} else {
			pg.RenderPartial(c, &curr, e, e.dirty.Rects())
		}
	}

	// 5. trace
	if e.OnTrace != nil && rendered {
		var dur uint32
		if e.NowMS != nil {
			dur = e.NowMS() - start
		}
		e.OnTrace(TraceRecord{
			Hash:       hash,
			DirtyCount: e.dirty.Count(),
			DrawOps:    c.DrawOps(),
			RenderMS:   dur,
			Full:       e.dirty.IsFull(),
			Page:       uint8(e.pageIdx),
			TripHM:     uint16(curr.TripDistanceMM / 100000),
			TripAvg:    curr.TripAvgDmph,
		})
	}

	// 6. snapshot
	e.prev = curr
	e.havePrev = true
	e.prevPage = e.pageIdx
	e.lastHash = hash
	return rendered
}

func (e *Engine) graphChannel() uint8 {
	if e.Graph == nil {
		return ride.ChanSpeed
	}
	return e.Graph.Channel
}

// channelValue extracts the graph channel's current value from the state.
func channelValue(s *State, ch uint8) uint16 {
	switch ch {
	case ride.ChanPower:
		return s.PowerW
	case ride.ChanBatteryV:
		return s.BatteryDV
	case ride.ChanBatteryA:
		return s.BatteryDA
	case ride.ChanTemp:
		if s.TempDC > 0 {
			return uint16(s.TempDC)
		}
		return 0
	case ride.ChanCadence:
		return s.CadenceRPM
	}
	return s.SpeedDmph
}

// fmtU32Pad4 renders v into exactly four digits. Values of 10000 and above
// wrap into the low four digits, matching the panel's historical behavior.
func fmtU32Pad4(dst []byte, v uint32) {
	v %= 10000
	dst[0] = byte('0' + v/1000)
	dst[1] = byte('0' + v/100%10)
	dst[2] = byte('0' + v/10%10)
	dst[3] = byte('0' + v%10)
}

// FmtU32Pad4 returns the four-digit rendering of v.
func FmtU32Pad4(v uint32) string {
	var b [4]byte
	fmtU32Pad4(b[:], v)
	return string(b[:])
}

// fmtDmph renders deci-mph as "MM.m".
func fmtDmph(v uint16) string {
	var b [4]byte
	b[0] = byte('0' + v/100%10)
	b[1] = byte('0' + v/10%10)
	b[2] = '.'
	b[3] = byte('0' + v%10)
	if b[0] == '0' {
		return string(b[1:])
	}
	return string(b[:])
}

// fmtU16 renders v in decimal without padding.
func fmtU16(v uint16) string {
	if v == 0 {
		return "0"
	}
	var b [5]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return string(b[i:])
}
