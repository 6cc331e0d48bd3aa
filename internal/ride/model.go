// Package ride holds the rider-facing state of the machine: sensor inputs,
// governor outputs, trip accumulators and the derived values the UI,
// telemetry and debug dumps all read. The model is a plain value owned by
// the main loop; nothing in here talks to hardware.
package ride

// Assist modes selectable from the buttons or over the wire.
const (
	AssistOff = iota
	AssistEco
	AssistTour
	AssistSport
	AssistTurbo
	AssistWalk
	assistModeCount
)

// Drive modes (how the commanded power is derived).
const (
	DriveAssist  = iota // pedal-proportional from the curve
	DriveManualA        // fixed current setpoint
	DriveManualW        // fixed power setpoint
	driveModeCount
)

// Reasons the governor clamped below the rider's request.
const (
	LimitUser = iota
	LimitSpeed
	LimitCurrent
	LimitThermal
	LimitSag
	LimitLug
	LimitBrake
)

// Cruise states.
const (
	CruiseOff = iota
	CruiseArmed
	CruiseEngaged
)

// Thermal derate states.
const (
	ThermalOK = iota
	ThermalWarm
	ThermalDerate
	ThermalCutback
)

// Lock states.
const (
	LockOpen = iota
	LockLocked
	LockPinEntry
)

// Flags bits reported in telemetry and event records.
const (
	FlagBrake = 1 << 0
	FlagWalk  = 1 << 1
)

// Inputs is everything sampled off the bus, the ADC and the buttons.
type Inputs struct {
	SpeedDmph  uint16
	RPM        uint16
	CadenceRPM uint16
	TorqueRaw  uint16
	ThrottlePC uint8
	Brake      bool
	Buttons    uint8
	BatteryDV  uint16
	BatteryDA  uint16
	TempDC     int16
	Err        uint8
}

// Caps are the effective limits after config and hardware capability merge.
type Caps struct {
	CurrentDA uint16
	SpeedDmph uint16
	PowerW    uint16
}

// Trip accumulates over a ride until reset.
type Trip struct {
	DistanceMM   uint32
	EnergyMWh    uint32
	MovingMS     uint32
	MaxSpeedDmph uint16
	AssistMS     uint32
	GearMS       uint32

	distUM uint64 // micrometre remainder
	wms    uint64 // watt-millisecond remainder
}

// AvgSpeedDmph derives the moving average from distance and moving time.
func (t *Trip) AvgSpeedDmph() uint16 {
	if t.MovingMS == 0 {
		return 0
	}
	// mm per ms back to dmph: v[dmph] = mm * 1000 / (ms * 44.704)
	v := uint64(t.DistanceMM) * 100000 / (uint64(t.MovingMS) * 4470)
	if v > 0xFFFF {
		v = 0xFFFF
	}
	return uint16(v)
}

// Governor carries the power pipeline internals exposed by the debug dump.
type Governor struct {
	PUserW         uint16
	PLugW          uint16
	PThermW        uint16
	PSagW          uint16
	PFinalW        uint16
	DutyQ16        uint32
	PhaseCurrentDA uint16
	ThermalState   uint8
	SagMarginDV    uint16
}

// Ramp is the soft-start state: output chases target at a bounded slope.
type Ramp struct {
	PowerW    uint16
	TargetW   uint16
	RateWPS   uint16
	DeadbandW uint16
	KickW     uint16
}

// Boost is the temporary over-cap budget.
type Boost struct {
	BudgetMS    uint16
	CooldownMS  uint16
	RemainMS    uint16
	CoolMS      uint16
	ThresholdDA uint16
	GainQ15     uint16
	Active      bool
}

// Regen configuration and live state.
type Regen struct {
	Supported bool
	Level     uint8
	Active    bool
}

// CurvePoint maps a pedal input x to an assist output y.
type CurvePoint struct {
	X uint16
	Y uint16
}

// Model is the full ride snapshot. The UI and telemetry consume it
// read-only; the main loop and the command handlers mutate it.
type Model struct {
	MS uint32

	In Inputs

	AssistMode  uint8
	ProfileID   uint8
	VirtualGear uint8
	GearCount   uint8
	CadenceBias int8

	CmdPowerW    uint16
	CmdCurrentDA uint16
	CruiseMode   uint8
	CruiseDmph   uint16
	Walk         bool
	LimitReason  uint8

	Caps Caps
	Trip Trip
	Gov  Governor
	Ramp Ramp

	RangeEstHM uint16 // hectometres
	RangeConf  uint8  // 0..100

	ResetFlags uint8

	DriveMode     uint8
	DriveSet      uint16
	Boost         Boost
	Regen         Regen
	LockState     uint8
	QuickAction   uint8
	QuickArmMS    uint16
	PrivateMode   bool
	InjectArmed   bool
	BrakeOverride bool

	UIPage uint8
	Theme  uint8
	Units  uint8

	SOC    uint8
	LastMS uint32 // ms of the last accepted set_state

	CurveCount uint8
	Curve      [8]CurvePoint

	BattNominalDV uint16
	WheelMM       uint16
}

// NewModel returns a model with safe power-off defaults.
func NewModel() *Model {
	m := &Model{
		AssistMode:    AssistEco,
		GearCount:     9,
		VirtualGear:   5,
		BattNominalDV: 360,
		WheelMM:       2074,
	}
	m.Caps = Caps{CurrentDA: 150, SpeedDmph: 320, PowerW: 540}
	m.Ramp.RateWPS = 250
	m.Regen.Supported = true
	m.SOC = 100
	return m
}

// Flags packs the telemetry flag byte.
func (m *Model) Flags() uint8 {
	var f uint8
	if m.In.Brake {
		f |= FlagBrake
	}
	if m.Walk {
		f |= FlagWalk
	}
	return f
}

// Moving reports whether safety gating applies. The threshold is 1.0 mph.
func (m *Model) Moving() bool { return m.In.SpeedDmph > 10 }

// SetState applies an externally injected sensor snapshot. The injected
// rotational speed feeds both rpm and cadence; the board has one sensor.
func (m *Model) SetState(rpm, torque, speedDmph uint16, soc, errCode uint8) {
	m.In.RPM = rpm
	m.In.CadenceRPM = rpm
	m.In.TorqueRaw = torque
	m.In.SpeedDmph = speedDmph
	m.SOC = soc
	m.In.Err = errCode
	m.LastMS = m.MS
}

// curveLookup interpolates the assist curve at pedal input x.
func (m *Model) curveLookup(x uint16) uint16 {
	n := int(m.CurveCount)
	if n == 0 || n > len(m.Curve) {
		return uint16(uint32(x) * uint32(m.Caps.PowerW) / 1000)
	}
	if x <= m.Curve[0].X {
		return m.Curve[0].Y
	}
	for i := 1; i < n; i++ {
		if x <= m.Curve[i].X {
			a, b := m.Curve[i-1], m.Curve[i]
			span := uint32(b.X - a.X)
			if span == 0 {
				return b.Y
			}
			return a.Y + uint16(uint32(x-a.X)*uint32(b.Y-a.Y)/span)
		}
	}
	return m.Curve[n-1].Y
}

// assistScaleQ8 maps the assist mode to a fraction of the curve output.
func assistScaleQ8(mode uint8) uint32 {
	switch mode {
	case AssistOff:
		return 0
	case AssistEco:
		return 80
	case AssistTour:
		return 140
	case AssistSport:
		return 200
	case AssistTurbo:
		return 256
	case AssistWalk:
		return 40
	}
	return 0
}

// requestedPowerW derives the rider's request before any protection clamp.
func (m *Model) requestedPowerW() uint16 {
	switch m.DriveMode {
	case DriveManualA:
		// P = I * V, dA * dV / 100 = W
		p := uint32(m.DriveSet) * uint32(m.In.BatteryDV) / 100
		if p > 0xFFFF {
			p = 0xFFFF
		}
		return uint16(p)
	case DriveManualW:
		return m.DriveSet
	}
	var pedal uint16
	if m.In.TorqueRaw > 0 && m.In.CadenceRPM > 0 {
		pedal = m.In.TorqueRaw
		if pedal > 1000 {
			pedal = 1000
		}
	} else if m.In.ThrottlePC > 0 {
		pedal = uint16(m.In.ThrottlePC) * 10
	}
	if m.Walk {
		return uint16(uint32(m.Caps.PowerW) * assistScaleQ8(AssistWalk) / 256)
	}
	if m.CruiseMode == CruiseEngaged {
		// hold speed: proportional on the speed error
		if m.In.SpeedDmph >= m.CruiseDmph {
			return 0
		}
		e := uint32(m.CruiseDmph - m.In.SpeedDmph)
		p := e * 8
		if p > uint32(m.Caps.PowerW) {
			p = uint32(m.Caps.PowerW)
		}
		return uint16(p)
	}
	base := uint32(m.curveLookup(pedal))
	p := base * assistScaleQ8(m.AssistMode) / 256
	// virtual gear trims the request around the mid gear
	if m.GearCount > 0 {
		g := uint32(m.VirtualGear)
		p = p * (128 + g*128/uint32(m.GearCount)) / 192
	}
	if p > 0xFFFF {
		p = 0xFFFF
	}
	return uint16(p)
}

// govern runs the protection pipeline and fills Gov and LimitReason.
func (m *Model) govern() {
	g := &m.Gov
	g.PUserW = m.requestedPowerW()
	m.LimitReason = LimitUser

	// lug protection: pedalling hard at very low cadence
	g.PLugW = g.PUserW
	if m.In.CadenceRPM > 0 && m.In.CadenceRPM < 20 && m.In.TorqueRaw > 400 {
		g.PLugW = g.PUserW / 2
	}

	// thermal derate in three steps
	switch {
	case m.In.TempDC >= 950:
		g.ThermalState = ThermalCutback
	case m.In.TempDC >= 850:
		g.ThermalState = ThermalDerate
	case m.In.TempDC >= 700:
		g.ThermalState = ThermalWarm
	default:
		g.ThermalState = ThermalOK
	}
	g.PThermW = g.PLugW
	switch g.ThermalState {
	case ThermalDerate:
		g.PThermW = g.PLugW * 3 / 4
	case ThermalCutback:
		g.PThermW = g.PLugW / 4
	}

	// voltage sag: back off as the pack droops below nominal - 15%
	g.PSagW = g.PThermW
	floor := m.BattNominalDV - m.BattNominalDV*15/100
	if m.In.BatteryDV > 0 && m.In.BatteryDV < floor {
		g.SagMarginDV = 0
		g.PSagW = g.PThermW / 2
	} else if m.In.BatteryDV >= floor {
		g.SagMarginDV = m.In.BatteryDV - floor
	}

	p := g.PSagW
	if p != g.PUserW {
		switch {
		case g.PLugW != g.PUserW:
			m.LimitReason = LimitLug
		case g.PThermW != g.PLugW:
			m.LimitReason = LimitThermal
		default:
			m.LimitReason = LimitSag
		}
	}

	// hard caps
	if m.In.SpeedDmph >= m.Caps.SpeedDmph {
		p = 0
		m.LimitReason = LimitSpeed
	}
	if p > m.Caps.PowerW {
		p = m.Caps.PowerW
		m.LimitReason = LimitCurrent
	}
	if m.In.Brake {
		p = 0
		m.LimitReason = LimitBrake
	}
	g.PFinalW = p

	if m.Caps.PowerW > 0 {
		g.DutyQ16 = uint32(p) * 65536 / uint32(m.Caps.PowerW)
	}
	if m.In.BatteryDV > 0 {
		i := uint32(p) * 100 / uint32(m.In.BatteryDV) // W / dV * 100 = dA
		if i > 0xFFFF {
			i = 0xFFFF
		}
		g.PhaseCurrentDA = uint16(i)
	}
}

// ramp chases the governor output with a bounded slope.
func (m *Model) ramp(dtMS uint32) {
	r := &m.Ramp
	r.TargetW = m.Gov.PFinalW
	if r.RateWPS == 0 {
		r.PowerW = r.TargetW
		return
	}
	step := uint32(r.RateWPS) * dtMS / 1000
	if step == 0 {
		step = 1
	}
	switch {
	case r.TargetW > r.PowerW:
		d := uint32(r.TargetW - r.PowerW)
		if r.PowerW == 0 && r.KickW > 0 && d > uint32(r.DeadbandW) {
			r.PowerW = r.KickW
		}
		if d > step {
			r.PowerW += uint16(step)
		} else {
			r.PowerW = r.TargetW
		}
	case r.TargetW < r.PowerW:
		// cut immediately on the way down
		r.PowerW = r.TargetW
	}
}

// boost lets the output exceed the cap briefly on a hard pull.
func (m *Model) boost(dtMS uint32) {
	b := &m.Boost
	if b.BudgetMS == 0 {
		b.Active = false
		return
	}
	want := b.ThresholdDA > 0 && m.Gov.PhaseCurrentDA >= b.ThresholdDA
	switch {
	case b.Active:
		if !want || b.RemainMS == 0 {
			b.Active = false
			b.CoolMS = b.CooldownMS
			return
		}
		if uint32(b.RemainMS) > dtMS {
			b.RemainMS -= uint16(dtMS)
		} else {
			b.RemainMS = 0
		}
		extra := uint32(m.Ramp.PowerW) * uint32(b.GainQ15) / 32768
		p := uint32(m.Ramp.PowerW) + extra
		if p > 0xFFFF {
			p = 0xFFFF
		}
		m.Ramp.PowerW = uint16(p)
	case b.CoolMS > 0:
		if uint32(b.CoolMS) > dtMS {
			b.CoolMS -= uint16(dtMS)
		} else {
			b.CoolMS = 0
		}
	case want:
		b.Active = true
		b.RemainMS = b.BudgetMS
	}
}

// estimateRange updates the remaining range from SOC and the recent draw.
func (m *Model) estimateRange() {
	if m.Trip.EnergyMWh < 500 || m.Trip.DistanceMM < 100000 {
		// not enough ride yet for a consumption figure
		m.RangeEstHM = uint16(m.SOC) * 4
		m.RangeConf = 20
		return
	}
	// Wh per km so far, scaled against a 360 Wh nominal pack.
	whPerKM := uint64(m.Trip.EnergyMWh) * 1000000 / uint64(m.Trip.DistanceMM)
	if whPerKM == 0 {
		whPerKM = 1
	}
	packWh := uint64(360) * uint64(m.SOC) / 100
	hm := packWh * 10000 / whPerKM
	if hm > 0xFFFF {
		hm = 0xFFFF
	}
	m.RangeEstHM = uint16(hm)
	conf := uint32(m.Trip.DistanceMM) / 100000 // +1 per 100 m ridden
	if conf > 90 {
		conf = 90
	}
	m.RangeConf = uint8(10 + conf)
}

// Advance runs the model forward by dtMS. It is called from the main loop
// once per tick with the inputs already refreshed.
func (m *Model) Advance(nowMS, dtMS uint32) {
	m.MS = nowMS
	if dtMS == 0 {
		return
	}

	m.govern()
	m.ramp(dtMS)
	m.boost(dtMS)

	m.CmdPowerW = m.Ramp.PowerW
	if m.In.BatteryDV > 0 {
		i := uint32(m.CmdPowerW) * 100 / uint32(m.In.BatteryDV)
		if i > uint32(m.Caps.CurrentDA) {
			i = uint32(m.Caps.CurrentDA)
		}
		m.CmdCurrentDA = uint16(i)
	} else {
		m.CmdCurrentDA = 0
	}

	m.Regen.Active = m.Regen.Supported && m.Regen.Level > 0 && m.In.Brake && m.Moving()

	// trip accumulation
	t := &m.Trip
	if m.Moving() {
		t.MovingMS += dtMS
		t.distUM += uint64(m.In.SpeedDmph) * uint64(dtMS) * 44704 / 1000
		t.DistanceMM += uint32(t.distUM / 1000)
		t.distUM %= 1000
		if m.In.SpeedDmph > t.MaxSpeedDmph {
			t.MaxSpeedDmph = m.In.SpeedDmph
		}
	}
	if m.CmdPowerW > 0 {
		t.AssistMS += dtMS
		t.wms += uint64(m.CmdPowerW) * uint64(dtMS)
		t.EnergyMWh += uint32(t.wms / 3600)
		t.wms %= 3600
	}
	if m.VirtualGear != m.GearCount/2 {
		t.GearMS += dtMS
	}

	if m.QuickArmMS > 0 {
		if uint32(m.QuickArmMS) > dtMS {
			m.QuickArmMS -= uint16(dtMS)
		} else {
			m.QuickArmMS = 0
			m.QuickAction = 0
		}
	}

	m.estimateRange()
}

// ResetTrip clears the trip accumulators and notes it in the reset flags.
func (m *Model) ResetTrip() {
	m.Trip = Trip{}
	m.ResetFlags |= 1
}
