package proto

import (
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ride"
	"github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"
	"github.com/darvell/open-bc280-firmware-sub002/internal/store"
	"github.com/darvell/open-bc280-firmware-sub002/internal/uart"
)

// Command bytes. Responses set bit 7, except the log frame.
const (
	CmdPing         = 0x01
	CmdRead32       = 0x02
	CmdWrite32      = 0x03
	CmdReadMem      = 0x04
	CmdWriteMem     = 0x05
	CmdExec         = 0x06
	CmdUploadExec   = 0x07
	CmdReadFlash    = 0x08
	CmdStateDump    = 0x0A
	CmdBootFlag     = 0x0B
	CmdSetState     = 0x0C
	CmdStreamPeriod = 0x0D
	CmdReboot       = 0x0E

	CmdRingSummary  = 0x20
	CmdDebugState   = 0x21
	CmdGraphSummary = 0x22
	CmdGraphControl = 0x23

	CmdConfigGet      = 0x30
	CmdConfigStage    = 0x31
	CmdConfigCommit   = 0x32
	CmdSetProfile     = 0x33
	CmdSetGears       = 0x34
	CmdSetCadenceBias = 0x35
	CmdTripGet        = 0x36
	CmdTripReset      = 0x37
	CmdSetDriveMode   = 0x38
	CmdSetRegen       = 0x39
	CmdSetHWCaps      = 0x3A

	CmdEventSummary = 0x40
	CmdEventRead    = 0x41
	CmdEventMark    = 0x42

	CmdStreamSummary = 0x44
	CmdStreamRead    = 0x45
	CmdStreamControl = 0x46

	CmdCrashRead  = 0x47
	CmdCrashClear = 0x48

	CmdCaptureControl = 0x50
	CmdCaptureSummary = 0x51
	CmdCaptureRead    = 0x52
	CmdMonitorControl = 0x53
	CmdBusInject      = 0x54
	CmdReplayControl  = 0x55
	CmdReplayStatus   = 0x56

	CmdHackerExchange = 0x70
	CmdSlotStatus     = 0x71
	CmdPendingSet     = 0x72

	CmdLogFrame  = 0x7D
	CmdTelemetry = 0x81 // CmdPing | respBit, emitted unsolicited when streaming
)

// telemetry period bounds for 0x0D; zero disables streaming
const (
	telemPeriodMin = 10
	telemPeriodMax = 5000
)

// a reply frame payload never exceeds one length byte
const maxReplyRecords = (255 - 1) / store.EventRecordSize

type handler func(e *Engine, port int, payload []byte)

var handlers [256]handler

// Engine owns the wire protocol: it frames bytes from both ports, dispatches
// complete commands through a flat table, and emits responses, telemetry and
// log frames. All methods run on the main loop.
type Engine struct {
	Model  *ride.Model
	Graph  *ride.Graph
	Mem    hw.Mem
	Sys    hw.SysCtl
	Flash  *spiflash.Device
	Config *store.ConfigStore
	Events *store.EventLog
	Stream *store.StreamLog
	Crash  *store.CrashStore
	Ports  [2]*uart.Port

	// OnFault is invoked when a jump target faults; the board wires it to
	// crash capture and reset.
	OnFault func(pc uint32)

	BLE     BLEState
	Capture BusCapture
	Monitor BusMonitor
	Replay  BusReplay

	parsers [2]Parser

	cfgBuf [store.ConfigSize]byte
	cfgGot int

	telemPeriodMS uint16
	telemNextMS   uint32
	nowMS         uint32
	prevBrake     bool

	// latest frame that cleared the monitor filter, for the bus page
	monData [1 + busDataMax]byte
	monLen  int
	monHits uint16
	monDiff uint8

	tx [4 + 255]byte
}

// NewEngine wires the parsers to the dispatcher. All dependency fields must
// be set before the first byte is fed.
func NewEngine() *Engine {
	e := &Engine{}
	e.parsers[uart.PortBLE] = Parser{ble: &e.BLE}
	e.parsers[uart.PortBLE].OnFrame = func(cmd byte, p []byte) { e.dispatch(uart.PortBLE, cmd, p) }
	e.parsers[uart.PortMotor].OnFrame = func(cmd byte, p []byte) { e.dispatch(uart.PortMotor, cmd, p) }
	return e
}

// Feed consumes one received byte from port.
func (e *Engine) Feed(port int, b byte, nowMS uint32) {
	e.nowMS = nowMS
	e.parsers[port].Feed(b, nowMS)
}

// Parser exposes the per-port framing state (last-rx time, error count).
func (e *Engine) Parser(port int) *Parser { return &e.parsers[port] }

func (e *Engine) send(port int, cmd byte, payload []byte) {
	f := AppendFrame(e.tx[:0], cmd, payload)
	e.Ports[port].Write(f)
}

func (e *Engine) reply(port int, cmd byte, payload []byte) {
	e.send(port, cmd|respBit, payload)
}

func (e *Engine) status(port int, cmd, st byte) {
	e.reply(port, cmd, []byte{st})
}

func (e *Engine) dispatch(port int, cmd byte, payload []byte) {
	if port == uart.PortMotor {
		e.captureFrame(BusDirRX, cmd, payload)
	}
	h := handlers[cmd]
	if h == nil {
		e.status(port, cmd, StatusUnknown)
		return
	}
	h(e, port, payload)
}

// captureFrame records a motor-bus frame body (cmd followed by payload) and
// runs it through the display monitor. The monitor works with capture off.
func (e *Engine) captureFrame(dir uint8, cmd byte, payload []byte) {
	var body [1 + busDataMax]byte
	body[0] = cmd
	n := copy(body[1:], payload)
	e.Capture.Record(e.nowMS, dir, body[:1+n])
	e.monitorFrame(body[:1+n])
}

// monitorFrame retains the latest frame that clears the monitor filter.
func (e *Engine) monitorFrame(body []byte) {
	if !e.Monitor.Pass(body) {
		return
	}
	if e.Monitor.Diff {
		e.monDiff = diffBytes(e.monData[:e.monLen], body)
	}
	e.monLen = copy(e.monData[:], body)
	e.monHits++
}

// MonitorView returns the latest passing frame, the hit count and the
// byte-diff count against the previous hit.
func (e *Engine) MonitorView() (data []byte, hits uint16, diff uint8) {
	return e.monData[:e.monLen], e.monHits, e.monDiff
}

// diffBytes counts byte positions where a and b differ, length included.
func diffBytes(a, b []byte) uint8 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var d uint8
	for i := 0; i < n; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			d++
		}
	}
	return d
}

// snapshotEvent builds an event record from the current model state.
func (e *Engine) snapshotEvent(typ, flags uint8) store.Event {
	m := e.Model
	return store.Event{
		MS:           m.MS,
		Type:         typ,
		Flags:        flags | m.Flags(),
		SpeedDmph:    m.In.SpeedDmph,
		BatteryDV:    m.In.BatteryDV,
		BatteryDA:    m.In.BatteryDA,
		TempDC:       m.In.TempDC,
		CmdPowerW:    m.CmdPowerW,
		CmdCurrentDA: m.CmdCurrentDA,
	}
}

// NoteEvent appends a typed event for a state transition observed by the
// main loop (brake edge, comm loss, derate, cruise engage).
func (e *Engine) NoteEvent(typ uint8) {
	e.Events.Append(e.snapshotEvent(typ, 0))
}

// SetTelemetryPeriod applies the 0x0D bounds: zero disables, anything else
// is clamped into the allowed band.
func (e *Engine) SetTelemetryPeriod(ms uint16) {
	if ms != 0 {
		if ms < telemPeriodMin {
			ms = telemPeriodMin
		}
		if ms > telemPeriodMax {
			ms = telemPeriodMax
		}
	}
	e.telemPeriodMS = ms
	e.telemNextMS = e.nowMS
}

func (e *Engine) TelemetryPeriod() uint16 { return e.telemPeriodMS }

// Poll runs the periodic protocol work: streaming telemetry, the stream log
// sampler, replay playback and the brake-cancel rule. Called once per main
// loop iteration.
func (e *Engine) Poll(nowMS uint32) {
	e.nowMS = nowMS

	if e.telemPeriodMS != 0 && int32(nowMS-e.telemNextMS) >= 0 {
		e.telemNextMS = nowMS + uint32(e.telemPeriodMS)
		t := ride.EncodeTelemetry(e.Model)
		e.send(uart.PortBLE, CmdTelemetry, t[:])
		e.Stream.Append(e.streamSample())
	}

	if e.Stream.Due(nowMS) {
		e.Stream.Append(e.streamSample())
	}

	brake := e.Model.In.Brake
	if brake && !e.prevBrake && e.Replay.Active && !e.Model.BrakeOverride {
		e.Replay.Stop()
		e.NoteEvent(store.EventBus)
	}
	e.prevBrake = brake

	if data, ok := e.Replay.Next(nowMS, &e.Capture); ok {
		e.Ports[uart.PortMotor].Write(data)
		e.Capture.Record(nowMS, BusDirTX, data)
		e.monitorFrame(data)
	}
}

func (e *Engine) streamSample() store.StreamSample {
	m := e.Model
	return store.StreamSample{
		MS:         m.MS,
		SpeedDmph:  m.In.SpeedDmph,
		CadenceRPM: m.In.CadenceRPM,
		PowerW:     m.CmdPowerW,
		BatteryDV:  m.In.BatteryDV,
		BatteryDA:  m.In.BatteryDA,
		TempDC:     m.In.TempDC,
		AssistMode: m.AssistMode,
		Flags:      m.Flags(),
	}
}

// Log emits a log frame on port. Log frames are the one response that does
// not set the high bit.
func (e *Engine) Log(port int, text string) {
	if len(text) > MaxPayload {
		text = text[:MaxPayload]
	}
	e.send(port, CmdLogFrame, []byte(text))
}

func rd16(p []byte) uint16 { return uint16(p[0])<<8 | uint16(p[1]) }
func rd32(p []byte) uint32 {
	return uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
}

func put16(p []byte, v uint16) {
	p[0] = byte(v >> 8)
	p[1] = byte(v)
}

func put32(p []byte, v uint32) {
	p[0] = byte(v >> 24)
	p[1] = byte(v >> 16)
	p[2] = byte(v >> 8)
	p[3] = byte(v)
}
