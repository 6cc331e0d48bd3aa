// Package fw assembles the firmware: bring-up ordering with stage markers,
// then the single main loop that drains the UART rings, samples the battery,
// advances the ride model, services the protocol engine and ticks the
// display. The backends in hw/sim and hw/stm32 provide the Board endpoints;
// everything above them is shared.
package fw

import (
	"fmt"

	"github.com/darvell/open-bc280-firmware-sub002/internal/bootmon"
	"github.com/darvell/open-bc280-firmware-sub002/internal/clock"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/proto"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ride"
	"github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"
	"github.com/darvell/open-bc280-firmware-sub002/internal/st7789"
	"github.com/darvell/open-bc280-firmware-sub002/internal/store"
	"github.com/darvell/open-bc280-firmware-sub002/internal/uart"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ui"
)

const (
	battSamplePeriodMS = 50
	commTimeoutMS      = 1000

	// divider full-scale in centivolts at ADC code 4095
	battCodeFullCV = 6930

	backlightDayPC = 100
	backlightDimPC = 30
)

// Board is the set of hardware endpoints a backend provides.
type Board struct {
	SPI       hw.SPI
	LCD       hw.Bus8080
	UART      [2]hw.UART
	ADC       hw.ADC
	Buttons   hw.Buttons
	Backlight hw.Backlight
	Ticker    hw.Ticker
	Sys       hw.SysCtl
	Mem       hw.Mem
}

// Firmware owns every subsystem. Fields are exported for the simulator and
// the bridge; ownership stays with the main loop.
type Firmware struct {
	Clock *clock.Clock
	Ports [2]*uart.Port
	Flash *spiflash.Device
	Panel *st7789.Device

	Config *store.ConfigStore
	Stages *store.StageLog
	Events *store.EventLog
	Stream *store.StreamLog
	Crash  *store.CrashStore
	Boot   *bootmon.Monitor

	Model *ride.Model
	Graph *ride.Graph
	Proto *proto.Engine
	UI    *ui.Engine

	// Producer, when set, synthesizes ride inputs each step (demo mode,
	// or a host-side motor stand-in).
	Producer ride.Producer

	board Board

	ready      bool
	lastMS     uint32
	battNextMS uint32
	cfgSeq     uint32
	commLost   bool
	prevBrake  bool
	prevTherm  uint8
	prevCruise uint8
	prevBtn    uint8
	lightOn    bool
	bootLine   int16
}

func New(b Board) *Firmware {
	f := &Firmware{board: b}
	f.Clock = clock.New(b.Ticker, b.Sys)
	f.Ports[uart.PortBLE] = uart.NewPort(b.UART[uart.PortBLE])
	f.Ports[uart.PortMotor] = uart.NewPort(b.UART[uart.PortMotor])
	f.Flash = spiflash.New(b.SPI, f.Clock)
	f.Panel = st7789.New(b.LCD, f.Clock)

	f.Config = store.NewConfigStore(f.Flash)
	f.Stages = store.NewStageLog(f.Flash)
	f.Events = &store.EventLog{}
	f.Stream = &store.StreamLog{}
	f.Crash = store.NewCrashStore(f.Flash)
	f.Boot = bootmon.NewMonitor(f.Stages)

	f.Model = ride.NewModel()
	f.Graph = &ride.Graph{WindowMS: 500}

	f.Proto = proto.NewEngine()
	f.Proto.Model = f.Model
	f.Proto.Graph = f.Graph
	f.Proto.Mem = b.Mem
	f.Proto.Sys = b.Sys
	f.Proto.Flash = f.Flash
	f.Proto.Config = f.Config
	f.Proto.Events = f.Events
	f.Proto.Stream = f.Stream
	f.Proto.Crash = f.Crash
	f.Proto.Ports = f.Ports
	f.Proto.OnFault = f.execFault

	f.UI = ui.NewEngine(ui.NewCanvas(&ui.PanelSink{Dev: f.Panel}), f.Graph)
	return f
}

// Init runs the bring-up sequence, leaving a stage marker after each step.
// The UART mirror comes up first so later markers stream live; the LCD
// mirror attaches after panel init and replays the buffered ones.
func (f *Firmware) Init() error {
	f.Boot.Mark(bootmon.StageReset, f.Clock.Now())
	f.Boot.Mark(bootmon.StageClocks, f.Clock.Now())
	f.Boot.Mark(bootmon.StageGPIO, f.Clock.Now())

	f.Boot.UARTReady(func(line string) { f.Proto.Log(uart.PortBLE, line) })
	f.Boot.Mark(bootmon.StageUART, f.Clock.Now())

	f.Boot.Mark(bootmon.StageNOR, f.Clock.Now())

	f.Panel.Init()
	f.board.Backlight.Set(backlightDayPC)
	f.lightOn = true
	f.Boot.LCDReady(f.lcdBootSink)
	f.Boot.Mark(bootmon.StageLCD, f.Clock.Now())

	if err := f.Config.Load(); err != nil {
		f.Boot.Mark(bootmon.StageFault, f.Clock.Now())
		return fmt.Errorf("fw: config load: %w", err)
	}
	f.applyConfig(f.Config.Current())
	f.cfgSeq = f.Config.Current().Seq
	f.Boot.Mark(bootmon.StageConfig, f.Clock.Now())

	if _, ok := f.Crash.LoadRaw(); ok {
		f.Proto.Log(uart.PortBLE, "CRASH SAVED")
	}
	f.Boot.Mark(bootmon.StageCrashScan, f.Clock.Now())

	f.Boot.Mark(bootmon.StageProto, f.Clock.Now())
	f.Proto.NoteEvent(store.EventReset)

	f.Boot.Mark(bootmon.StageReady, f.Clock.Now())
	f.ready = true
	f.lastMS = f.Clock.Now()
	return nil
}

// RxISR is the receive-interrupt entry: one byte into the port ring.
func (f *Firmware) RxISR(port int, b byte) {
	f.Ports[port].Receive(b)
}

// Fault records a CPU fault context and resets. The exception handlers in
// the register backend call this with the stacked frame.
func (f *Firmware) Fault(regs store.CrashRegs, flags uint8) {
	f.Crash.Capture(f.Clock.Now(), regs, flags, f.Events)
	f.board.Sys.Reset()
}

// execFault handles a failed debug-protocol jump the same way as a CPU
// fault, with the forced-HardFault bit set.
func (f *Firmware) execFault(pc uint32) {
	f.Fault(store.CrashRegs{PC: pc, LR: 0xFFFFFFFD, HFSR: 1 << 30}, 0)
}

// Step runs one main-loop iteration. Call it continuously; internal periods
// (battery sampling, graph window, UI rate limit) gate their own work.
func (f *Firmware) Step() {
	if !f.ready {
		return
	}
	f.Clock.Poll()
	now := f.Clock.Now()
	f.board.Sys.FeedWatchdog()

	for port := range f.Ports {
		for {
			b, ok := f.Ports[port].Getc()
			if !ok {
				break
			}
			f.Proto.Feed(port, b, now)
		}
	}

	dt := clock.Since(now, f.lastMS)
	f.lastMS = now

	if int32(now-f.battNextMS) >= 0 {
		f.battNextMS = now + battSamplePeriodMS
		f.sampleBattery(now)
	}

	if f.Producer != nil && dt > 0 {
		f.Producer.Step(f.Model, dt)
	}

	f.watchMotorLink(now)
	f.Model.Advance(now, dt)

	if f.Graph.Due(now) {
		f.Graph.Sample(f.Model)
	}

	f.noteEdges()
	f.Proto.Poll(now)
	f.handleButtons(now)

	if cfg := f.Config.Current(); cfg.Seq != f.cfgSeq {
		f.cfgSeq = cfg.Seq
		f.applyConfig(cfg)
	}

	f.UI.Tick(now, f.uiState())
}

// uiState flattens the model plus the protocol-side fields the pages show.
func (f *Firmware) uiState() ui.State {
	st := ui.StateFromModel(f.Model)
	st.BLEConnected = f.Proto.BLE.Connected
	st.CaptureOn = f.Proto.Capture.Enabled
	st.CaptureCount = uint16(f.Proto.Capture.Count())
	st.MonitorOn = f.Proto.Monitor.Enabled
	mon, hits, diff := f.Proto.MonitorView()
	st.MonitorHits = hits
	st.MonitorDiff = diff
	st.MonitorLine = hexLine(mon)
	st.EventCount = uint16(f.Events.Count())
	st.ReplayOn = f.Proto.Replay.Active
	return st
}

// sampleBattery converts the 12-bit divider code to pack decivolts. When no
// fresh motor data has arrived the SOC falls back to a voltage estimate.
func (f *Firmware) sampleBattery(now uint32) {
	raw := f.board.ADC.ReadBattery()
	dv := uint16(uint32(raw) * battCodeFullCV / 4095 / 10)
	f.Model.In.BatteryDV = dv
	if clock.Since(now, f.Model.LastMS) > commTimeoutMS {
		f.Model.SOC = socFromVoltage(dv)
	}
}

// socFromVoltage maps pack decivolts onto 0..100 between the empty and full
// knees of a nominal 36 V pack.
func socFromVoltage(dv uint16) uint8 {
	const emptyDV, fullDV = 310, 420
	if dv <= emptyDV {
		return 0
	}
	if dv >= fullDV {
		return 100
	}
	return uint8(uint32(dv-emptyDV) * 100 / (fullDV - emptyDV))
}

// watchMotorLink notes one comm-loss event each time the motor port goes
// quiet for longer than the timeout.
func (f *Firmware) watchMotorLink(now uint32) {
	last := f.Proto.Parser(uart.PortMotor).LastRxMS
	lost := last != 0 && clock.Since(now, last) > commTimeoutMS
	if lost && !f.commLost {
		f.Proto.NoteEvent(store.EventCommLoss)
	}
	f.commLost = lost
}

// noteEdges appends event records on brake press, derate entry and cruise
// engagement.
func (f *Firmware) noteEdges() {
	m := f.Model
	if m.In.Brake && !f.prevBrake {
		f.Proto.NoteEvent(store.EventBrake)
	}
	f.prevBrake = m.In.Brake

	ts := m.Gov.ThermalState
	if ts >= ride.ThermalDerate && f.prevTherm < ride.ThermalDerate {
		f.Proto.NoteEvent(store.EventDerate)
	}
	f.prevTherm = ts

	if m.CruiseMode == ride.CruiseEngaged && f.prevCruise != ride.CruiseEngaged {
		f.Proto.NoteEvent(store.EventCruiseEngage)
	}
	f.prevCruise = m.CruiseMode
}

// handleButtons samples the pad, toggles the backlight on the light button
// edge and forwards the mask to the page navigation.
func (f *Firmware) handleButtons(now uint32) {
	mask := f.board.Buttons.Read()
	if mask&ui.BtnLight != 0 && f.prevBtn&ui.BtnLight == 0 {
		f.lightOn = !f.lightOn
		if f.lightOn {
			f.board.Backlight.Set(backlightDayPC)
		} else {
			f.board.Backlight.Set(backlightDimPC)
		}
	}
	f.prevBtn = mask
	f.UI.HandleButtons(mask, now)
}

// applyConfig pushes the persisted config into the live model. Runs at boot
// and again after every committed config change.
func (f *Firmware) applyConfig(c store.Config) {
	m := f.Model
	m.WheelMM = c.WheelMM
	m.Units = c.Units
	m.ProfileID = c.ProfileID
	m.Theme = c.Theme
	m.Caps.CurrentDA = c.CapCurrentDA
	m.Caps.SpeedDmph = c.CapSpeedDmph
	m.Ramp.RateWPS = c.SoftStartRampW
	m.Ramp.DeadbandW = c.SoftStartDeadW
	m.Ramp.KickW = c.SoftStartKickW
	m.DriveMode = c.DriveMode
	switch c.DriveMode {
	case ride.DriveManualA:
		m.DriveSet = c.ManualCurrentDA
	case ride.DriveManualW:
		m.DriveSet = c.ManualPowerW
	}
	m.Boost.BudgetMS = c.BoostBudgetMS
	m.Boost.CooldownMS = c.BoostCooldownMS
	m.Boost.ThresholdDA = c.BoostThreshDA
	m.Boost.GainQ15 = c.BoostGainQ15
	m.CurveCount = c.CurveCount
	for i := range m.Curve {
		m.Curve[i] = ride.CurvePoint{X: c.Curve[i][0], Y: c.Curve[i][1]}
	}
	f.Stream.PeriodMS = c.LogPeriodMS
}

// lcdBootSink paints boot markers onto the panel, wrapping to the top when
// the page fills. The UI engine repaints over them on its first tick.
func (f *Firmware) lcdBootSink(line string) {
	const rowH = 16
	const rows = ui.Height / rowH
	y := (f.bootLine % rows) * rowH
	c := f.UI.Canvas
	c.FillRect(0, y, ui.Width, rowH, 0x0000)
	ui.Text(c, 4, y+4, line, ui.FontSmall, 0xFFFF)
	f.bootLine++
}

// hexLine renders up to eight frame bytes as space-separated hex.
func hexLine(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > 8 {
		data = data[:8]
	}
	const digits = "0123456789ABCDEF"
	b := make([]byte, 0, len(data)*3-1)
	for i, v := range data {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, digits[v>>4], digits[v&0xF])
	}
	return string(b)
}
