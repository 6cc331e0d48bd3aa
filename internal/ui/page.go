package ui

import "github.com/darvell/open-bc280-firmware-sub002/internal/ride"

// Page couples a name with its renderers. RenderFull must draw the whole
// screen; RenderPartial, when present, redraws only the dirty rectangles;
// DirtyFn, when present, computes the minimal dirty set between states. A
// missing DirtyFn or a page change forces a full redraw.
type Page struct {
	Name          string
	Sampled       bool
	RenderFull    func(c *Canvas, s *State, e *Engine)
	RenderPartial func(c *Canvas, s *State, e *Engine, dirty []Rect)
	DirtyFn       func(prev, curr *State, d *DirtyTracker)
}

// Page indices, in registry order.
const (
	PageDashboard = iota
	PageFocus
	PageGraphs
	PageTrip
	PageProfiles
	PageSettings
	PageCruise
	PageBattery
	PageThermal
	PageDiagnostics
	PageBus
	PageCapture
	PageAlerts
	PageTune
	PageAmbient
	PageAbout
	PageEngineerRaw
	PageEngineerPower
	PageCount
)

var pages = [PageCount]Page{
	PageDashboard: {
		Name:          "dashboard",
		RenderFull:    renderDashboard,
		RenderPartial: renderDashboardPartial,
		DirtyFn:       dashboardDirty,
	},
	PageFocus: {
		Name:       "focus",
		RenderFull: renderFocus,
		DirtyFn:    focusDirty,
	},
	PageGraphs: {
		Name:       "graphs",
		Sampled:    true,
		RenderFull: renderGraphs,
	},
	PageTrip:          {Name: "trip", RenderFull: renderTrip},
	PageProfiles:      {Name: "profiles", RenderFull: renderProfiles},
	PageSettings:      {Name: "settings", RenderFull: renderSettings},
	PageCruise:        {Name: "cruise", RenderFull: renderCruise},
	PageBattery:       {Name: "battery", RenderFull: renderBattery},
	PageThermal:       {Name: "thermal", RenderFull: renderThermal},
	PageDiagnostics:   {Name: "diagnostics", RenderFull: renderDiagnostics},
	PageBus:           {Name: "bus", RenderFull: renderBus},
	PageCapture:       {Name: "capture", RenderFull: renderCapture},
	PageAlerts:        {Name: "alerts", RenderFull: renderAlerts},
	PageTune:          {Name: "tune", RenderFull: renderTune},
	PageAmbient:       {Name: "ambient", RenderFull: renderAmbient},
	PageAbout:         {Name: "about", RenderFull: renderAbout},
	PageEngineerRaw:   {Name: "engineer-raw", RenderFull: renderEngineerRaw},
	PageEngineerPower: {Name: "engineer-power", RenderFull: renderEngineerPower},
}

// dashboard layout regions
var (
	rcDashSpeed  = Rect{20, 40, 200, 66}
	rcDashAssist = Rect{96, 8, 80, 22}
	rcDashGauge  = Rect{50, 120, 140, 140}
	rcDashWarn   = Rect{8, 270, 224, 40}
)

func renderHeader(c *Canvas, s *State, pal *Palette, title string) {
	c.FillRect(0, 0, Width, 36, pal.Colors[SlotPanel])
	Text(c, 8, 12, title, FontSmall, pal.Colors[SlotMuted])
	BatteryIcon(c, Width-60, 8, 48, 20, s.SOC, pal)
	if s.BLEConnected {
		Text(c, Width-100, 12, "B", FontSmall, pal.Colors[SlotAccent])
	}
}

func renderWarnChip(c *Canvas, s *State, pal *Palette) {
	r := rcDashWarn
	if !s.Warning() {
		c.FillRect(r.X, r.Y, r.W, r.H, pal.Colors[SlotBG])
		return
	}
	FillRoundedRect(c, r.X, r.Y, r.W, r.H, 6, pal.Colors[SlotWarn])
	WarnTriangle(c, r.X+6, r.Y+8, 24, pal)
	msg := "CHECK"
	switch {
	case s.Err != 0:
		msg = "ERR " + fmtU16(uint16(s.Err))
	case s.Brake:
		msg = "BRAKE"
	case s.LimitReason == ride.LimitThermal:
		msg = "HOT"
	case s.LimitReason == ride.LimitSag:
		msg = "BATT SAG"
	case s.LimitReason == ride.LimitSpeed:
		msg = "SPEED CAP"
	case s.LimitReason == ride.LimitCurrent:
		msg = "CURR CAP"
	}
	Text(c, r.X+40, r.Y+12, msg, FontMedium, pal.Colors[SlotBG])
}

func renderDashboard(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "BC280")

	// big speed readout
	sp := rcDashSpeed
	c.FillRect(sp.X, sp.Y, sp.W, sp.H, pal.Colors[SlotBG])
	StrokeNumber(c, sp.X, sp.Y, fmtDmph(s.SpeedDmph), 6, pal.Colors[SlotText])
	Text(c, sp.X+160, sp.Y+44, "MPH", FontSmall, pal.Colors[SlotMuted])

	// assist mode / gear
	am := rcDashAssist
	Text(c, am.X, am.Y, assistName(s.AssistMode), FontSmall, pal.Colors[SlotAccent])

	// power ring gauge
	g := rcDashGauge
	RingGauge(c, g.X+g.W/2, g.Y+g.H/2, 52, 62, s.PowerW, s.CapPowerW,
		pal.Colors[SlotAccent], pal.Colors[SlotPanel], pal.Colors[SlotBG])
	Text(c, g.X+g.W/2-TextWidth(fmtU16(s.PowerW), FontMedium)/2, g.Y+g.H/2-8,
		fmtU16(s.PowerW), FontMedium, pal.Colors[SlotText])
	Text(c, g.X+g.W/2-6, g.Y+g.H/2+12, "W", FontSmall, pal.Colors[SlotMuted])

	renderWarnChip(c, s, pal)
}

func dashboardDirty(prev, curr *State, d *DirtyTracker) {
	if prev.Theme != curr.Theme {
		d.Full()
		return
	}
	if prev.SpeedDmph != curr.SpeedDmph {
		d.Add(rcDashSpeed)
	}
	if prev.SOC != curr.SOC || prev.BLEConnected != curr.BLEConnected {
		d.Add(Rect{0, 0, Width, 36})
	}
	if prev.AssistMode != curr.AssistMode || prev.VirtualGear != curr.VirtualGear {
		d.Add(rcDashAssist)
	}
	if prev.PowerW != curr.PowerW || prev.CapPowerW != curr.CapPowerW {
		d.Add(rcDashGauge)
	}
	if prev.Warning() != curr.Warning() || prev.Err != curr.Err ||
		prev.Brake != curr.Brake || prev.LimitReason != curr.LimitReason {
		d.Add(rcDashWarn)
	}
}

// renderDashboardPartial clips the full renderer to each dirty rectangle;
// the regions are disjoint so the cost tracks the dirty area.
func renderDashboardPartial(c *Canvas, s *State, e *Engine, dirty []Rect) {
	for _, r := range dirty {
		c.SetClip(r)
		renderDashboard(c, s, e)
	}
	c.ClearClip()
}

var rcFocusSpeed = Rect{10, 90, 220, 110}

func renderFocus(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	txt := fmtDmph(s.SpeedDmph)
	StrokeNumber(c, 24, 100, txt, 9, pal.Colors[SlotText])
	Text(c, 100, 230, "MPH", FontMedium, pal.Colors[SlotMuted])
	if s.Warning() {
		WarnTriangle(c, 104, 20, 32, pal)
	}
}

func focusDirty(prev, curr *State, d *DirtyTracker) {
	if prev.Theme != curr.Theme {
		d.Full()
		return
	}
	if prev.SpeedDmph != curr.SpeedDmph {
		d.Add(rcFocusSpeed)
	}
	if prev.Warning() != curr.Warning() {
		d.Add(Rect{100, 16, 40, 40})
	}
}

func renderGraphs(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "GRAPH "+chanName(e.graphChannel()))

	r := &e.pageRing
	max := r.Max()
	if max == 0 {
		max = 1
	}
	const gx, gy, gw, gh = 8, 48, 224, 220
	c.FillRect(gx, gy, gw, gh, pal.Colors[SlotPanel])
	n := r.Count()
	if n > gw/2 {
		n = gw / 2
	}
	for i := 0; i < n; i++ {
		v := r.At(r.Count() - n + i)
		bh := int16(int32(gh-4) * int32(v) / int32(max))
		c.FillRect(gx+int16(i)*2, gy+gh-2-bh, 2, bh, pal.Colors[SlotAccent])
	}
	Text(c, 8, 280, "MAX "+fmtU16(r.Max()), FontSmall, pal.Colors[SlotMuted])
	Text(c, 120, 280, "NOW "+fmtU16(r.Latest()), FontSmall, pal.Colors[SlotText])
}

func textRow(c *Canvas, pal *Palette, row int16, label, value string) {
	y := 52 + row*24
	Text(c, 8, y, label, FontSmall, pal.Colors[SlotMuted])
	Text(c, 130, y, value, FontSmall, pal.Colors[SlotText])
}

func renderTrip(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "TRIP")
	textRow(c, pal, 0, "DIST HM", FmtU32Pad4(s.TripDistanceMM/100000))
	textRow(c, pal, 1, "ENERGY WH", FmtU32Pad4(s.TripEnergyMWh/1000))
	textRow(c, pal, 2, "MOVING S", FmtU32Pad4(s.TripMovingMS/1000))
	textRow(c, pal, 3, "MAX MPH", fmtDmph(s.TripMaxDmph))
	textRow(c, pal, 4, "AVG MPH", fmtDmph(s.TripAvgDmph))
	textRow(c, pal, 5, "RANGE HM", fmtU16(s.RangeEstHM))
	textRow(c, pal, 6, "CONF", fmtU16(uint16(s.RangeConf)))
}

func renderProfiles(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "PROFILES")
	for i := int16(0); i < 8; i++ {
		y := 52 + i*32
		bg := pal.Colors[SlotPanel]
		if uint8(i) == s.ProfileID {
			bg = pal.Colors[SlotAccent]
		}
		if pal.Dither && uint8(i) != s.ProfileID {
			FillRoundedRectDither(c, 8, y, 224, 26, 4, bg, pal.Colors[SlotBG], 4)
		} else {
			FillRoundedRect(c, 8, y, 224, 26, 4, bg)
		}
		Text(c, 16, y+8, "PROFILE "+fmtU16(uint16(i)), FontSmall, pal.Colors[SlotText])
	}
}

func renderSettings(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "SETTINGS")
	textRow(c, pal, 0, "THEME", themeName(s.Theme))
	textRow(c, pal, 1, "UNITS", unitsName(s.Units))
	textRow(c, pal, 2, "GEARS", fmtU16(uint16(s.GearCount)))
	textRow(c, pal, 3, "REGEN", fmtU16(uint16(s.RegenLvl)))
	textRow(c, pal, 4, "LOCK", lockName(s.LockState))
}

func renderCruise(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "CRUISE")
	state := "OFF"
	col := pal.Colors[SlotMuted]
	switch s.CruiseMode {
	case ride.CruiseArmed:
		state, col = "ARMED", pal.Colors[SlotWarn]
	case ride.CruiseEngaged:
		state, col = "ENGAGED", pal.Colors[SlotOK]
	}
	Text(c, 80, 80, state, FontMedium, col)
	StrokeNumber(c, 50, 130, fmtDmph(s.CruiseDmph), 6, pal.Colors[SlotText])
	Text(c, 100, 220, "SET MPH", FontSmall, pal.Colors[SlotMuted])
}

func renderBattery(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "BATTERY")
	BatteryIcon(c, 60, 60, 120, 48, s.SOC, pal)
	Text(c, 104, 120, fmtU16(uint16(s.SOC))+"%", FontMedium, pal.Colors[SlotText])
	textRow(c, pal, 4, "PACK DV", fmtU16(s.BatteryDV))
	textRow(c, pal, 5, "DRAW DA", fmtU16(s.BatteryDA))
	textRow(c, pal, 6, "RANGE HM", fmtU16(s.RangeEstHM))
}

func renderThermal(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "THERMAL")
	var t uint16
	if s.TempDC > 0 {
		t = uint16(s.TempDC)
	}
	RingGauge(c, 120, 140, 56, 68, t, 1000,
		thermalColor(s.ThermalState, pal), pal.Colors[SlotPanel], pal.Colors[SlotBG])
	Text(c, 96, 132, fmtDmph(t), FontMedium, pal.Colors[SlotText])
	Text(c, 96, 156, "DEG C", FontSmall, pal.Colors[SlotMuted])
	textRow(c, pal, 8, "STATE", thermalName(s.ThermalState))
}

func renderDiagnostics(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "DIAG")
	textRow(c, pal, 0, "ERR", fmtU16(uint16(s.Err)))
	textRow(c, pal, 1, "EVENTS", fmtU16(s.EventCount))
	textRow(c, pal, 2, "LIMIT", limitName(s.LimitReason))
	textRow(c, pal, 3, "BLE", boolName(s.BLEConnected))
	textRow(c, pal, 4, "UPTIME S", fmtU16(uint16(s.MS/1000)))
}

func renderBus(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "BUS")
	textRow(c, pal, 0, "MONITOR", boolName(s.MonitorOn))
	textRow(c, pal, 1, "FRAMES", fmtU16(s.CaptureCount))
	textRow(c, pal, 2, "REPLAY", boolName(s.ReplayOn))
	textRow(c, pal, 3, "HITS", fmtU16(s.MonitorHits))
	textRow(c, pal, 4, "DIFF", fmtU16(uint16(s.MonitorDiff)))
	if s.MonitorLine != "" {
		Text(c, 8, 52+5*24+8, s.MonitorLine, FontSmall, pal.Colors[SlotAccent])
	}
}

func renderCapture(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "CAPTURE")
	textRow(c, pal, 0, "ACTIVE", boolName(s.CaptureOn))
	textRow(c, pal, 1, "COUNT", fmtU16(s.CaptureCount))
	// coarse fill bar
	c.FillRect(8, 120, 224, 12, pal.Colors[SlotPanel])
	w := int16(int32(224) * int32(s.CaptureCount) / 64)
	if w > 224 {
		w = 224
	}
	c.FillRect(8, 120, w, 12, pal.Colors[SlotAccent])
}

func renderAlerts(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "ALERTS")
	if !s.Warning() {
		Text(c, 70, 150, "ALL CLEAR", FontMedium, pal.Colors[SlotOK])
		return
	}
	row := int16(0)
	if s.Err != 0 {
		textRow(c, pal, row, "ERROR", fmtU16(uint16(s.Err)))
		row++
	}
	if s.Brake {
		textRow(c, pal, row, "BRAKE", "ACTIVE")
		row++
	}
	if s.LimitReason != ride.LimitUser {
		textRow(c, pal, row, "LIMIT", limitName(s.LimitReason))
	}
}

func renderTune(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "TUNE")
	textRow(c, pal, 0, "DRIVE", driveName(s.DriveMode))
	textRow(c, pal, 1, "SETPOINT", fmtU16(s.DriveSet))
	textRow(c, pal, 2, "CAP W", fmtU16(s.CapPowerW))
	textRow(c, pal, 3, "CAP DA", fmtU16(s.CapCurrentDA))
	textRow(c, pal, 4, "CAP DMPH", fmtU16(s.CapSpeedDmph))
}

func renderAmbient(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	// minimal glanceable face: dimmed clock-style uptime and SOC
	mins := s.MS / 60000
	StrokeNumber(c, 40, 110, FmtU32Pad4(mins), 7, Dim(pal.Colors[SlotText], 96))
	BatteryIcon(c, 92, 220, 56, 22, s.SOC, pal)
}

func renderAbout(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "ABOUT")
	Text(c, 8, 60, "OPEN BC280", FontMedium, pal.Colors[SlotText])
	Text(c, 8, 90, "SUB-002", FontSmall, pal.Colors[SlotMuted])
	Text(c, 8, 120, "240X320 ST7789", FontSmall, pal.Colors[SlotMuted])
	Text(c, 8, 140, "W25Q32 4MB NOR", FontSmall, pal.Colors[SlotMuted])
}

func renderEngineerRaw(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "ENG RAW")
	textRow(c, pal, 0, "SPEED", fmtU16(s.SpeedDmph))
	textRow(c, pal, 1, "CADENCE", fmtU16(s.CadenceRPM))
	textRow(c, pal, 2, "BATT DV", fmtU16(s.BatteryDV))
	textRow(c, pal, 3, "BATT DA", fmtU16(s.BatteryDA))
	textRow(c, pal, 4, "TEMP DC", fmtU16(uint16(s.TempDC)))
	textRow(c, pal, 5, "MS", FmtU32Pad4(s.MS))
}

func renderEngineerPower(c *Canvas, s *State, e *Engine) {
	pal := ThemePalette(s.Theme)
	c.FillRect(0, 0, Width, Height, pal.Colors[SlotBG])
	renderHeader(c, s, pal, "ENG POWER")
	textRow(c, pal, 0, "CMD W", fmtU16(s.PowerW))
	textRow(c, pal, 1, "CAP W", fmtU16(s.CapPowerW))
	textRow(c, pal, 2, "LIMIT", limitName(s.LimitReason))
	textRow(c, pal, 3, "THERMAL", thermalName(s.ThermalState))
	HLine(c, 8, 160, 224, pal.Colors[SlotAccent], pal.Colors[SlotBG], 8)
	RingGauge(c, 120, 230, 40, 50, s.PowerW, s.CapPowerW,
		pal.Colors[SlotAccent], pal.Colors[SlotPanel], pal.Colors[SlotBG])
}

func assistName(m uint8) string {
	switch m {
	case ride.AssistOff:
		return "OFF"
	case ride.AssistEco:
		return "ECO"
	case ride.AssistTour:
		return "TOUR"
	case ride.AssistSport:
		return "SPORT"
	case ride.AssistTurbo:
		return "TURBO"
	case ride.AssistWalk:
		return "WALK"
	}
	return "?"
}

func chanName(ch uint8) string {
	switch ch {
	case ride.ChanPower:
		return "POWER"
	case ride.ChanBatteryV:
		return "VOLTS"
	case ride.ChanBatteryA:
		return "AMPS"
	case ride.ChanTemp:
		return "TEMP"
	case ride.ChanCadence:
		return "CADENCE"
	}
	return "SPEED"
}

func themeName(t uint8) string {
	switch t {
	case ThemeNight:
		return "NIGHT"
	case ThemeHighContrast:
		return "CONTRAST"
	case ThemeColorblind:
		return "CB SAFE"
	}
	return "DAY"
}

func unitsName(u uint8) string {
	if u == 1 {
		return "METRIC"
	}
	return "IMPERIAL"
}

func lockName(l uint8) string {
	switch l {
	case ride.LockLocked:
		return "LOCKED"
	case ride.LockPinEntry:
		return "PIN"
	}
	return "OPEN"
}

func limitName(r uint8) string {
	switch r {
	case ride.LimitSpeed:
		return "SPEED"
	case ride.LimitCurrent:
		return "CURRENT"
	case ride.LimitThermal:
		return "THERMAL"
	case ride.LimitSag:
		return "SAG"
	case ride.LimitLug:
		return "LUG"
	case ride.LimitBrake:
		return "BRAKE"
	}
	return "USER"
}

func thermalName(t uint8) string {
	switch t {
	case ride.ThermalWarm:
		return "WARM"
	case ride.ThermalDerate:
		return "DERATE"
	case ride.ThermalCutback:
		return "CUTBACK"
	}
	return "OK"
}

func thermalColor(t uint8, pal *Palette) uint16 {
	switch t {
	case ride.ThermalWarm:
		return pal.Colors[SlotWarn]
	case ride.ThermalDerate, ride.ThermalCutback:
		return pal.Colors[SlotDanger]
	}
	return pal.Colors[SlotOK]
}

func driveName(m uint8) string {
	switch m {
	case ride.DriveManualA:
		return "MANUAL A"
	case ride.DriveManualW:
		return "MANUAL W"
	}
	return "ASSIST"
}

func boolName(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
