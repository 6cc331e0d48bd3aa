package proto

import (
	"github.com/darvell/open-bc280-firmware-sub002/internal/ride"
	"github.com/darvell/open-bc280-firmware-sub002/internal/store"
	"github.com/darvell/open-bc280-firmware-sub002/internal/uart"
)

func init() {
	handlers[CmdPing] = (*Engine).handlePing
	handlers[CmdRead32] = (*Engine).handleRead32
	handlers[CmdWrite32] = (*Engine).handleWrite32
	handlers[CmdReadMem] = (*Engine).handleReadMem
	handlers[CmdWriteMem] = (*Engine).handleWriteMem
	handlers[CmdExec] = (*Engine).handleExec
	handlers[CmdUploadExec] = (*Engine).handleUploadExec
	handlers[CmdReadFlash] = (*Engine).handleReadFlash
	handlers[CmdStateDump] = (*Engine).handleStateDump
	handlers[CmdBootFlag] = (*Engine).handleBootFlag
	handlers[CmdSetState] = (*Engine).handleSetState
	handlers[CmdStreamPeriod] = (*Engine).handleStreamPeriod
	handlers[CmdReboot] = (*Engine).handleReboot

	handlers[CmdRingSummary] = (*Engine).handleRingSummary
	handlers[CmdDebugState] = (*Engine).handleDebugState
	handlers[CmdGraphSummary] = (*Engine).handleGraphSummary
	handlers[CmdGraphControl] = (*Engine).handleGraphControl

	handlers[CmdConfigGet] = (*Engine).handleConfigGet
	handlers[CmdConfigStage] = (*Engine).handleConfigStage
	handlers[CmdConfigCommit] = (*Engine).handleConfigCommit
	handlers[CmdSetProfile] = (*Engine).handleSetProfile
	handlers[CmdSetGears] = (*Engine).handleSetGears
	handlers[CmdSetCadenceBias] = (*Engine).handleSetCadenceBias
	handlers[CmdTripGet] = (*Engine).handleTripGet
	handlers[CmdTripReset] = (*Engine).handleTripReset
	handlers[CmdSetDriveMode] = (*Engine).handleSetDriveMode
	handlers[CmdSetRegen] = (*Engine).handleSetRegen
	handlers[CmdSetHWCaps] = (*Engine).handleSetHWCaps

	handlers[CmdEventSummary] = (*Engine).handleEventSummary
	handlers[CmdEventRead] = (*Engine).handleEventRead
	handlers[CmdEventMark] = (*Engine).handleEventMark

	handlers[CmdStreamSummary] = (*Engine).handleStreamSummary
	handlers[CmdStreamRead] = (*Engine).handleStreamRead
	handlers[CmdStreamControl] = (*Engine).handleStreamControl

	handlers[CmdCrashRead] = (*Engine).handleCrashRead
	handlers[CmdCrashClear] = (*Engine).handleCrashClear

	handlers[CmdCaptureControl] = (*Engine).handleCaptureControl
	handlers[CmdCaptureSummary] = (*Engine).handleCaptureSummary
	handlers[CmdCaptureRead] = (*Engine).handleCaptureRead
	handlers[CmdMonitorControl] = (*Engine).handleMonitorControl
	handlers[CmdBusInject] = (*Engine).handleBusInject
	handlers[CmdReplayControl] = (*Engine).handleReplayControl
	handlers[CmdReplayStatus] = (*Engine).handleReplayStatus

	handlers[CmdHackerExchange] = (*Engine).handleHackerExchange
	handlers[CmdSlotStatus] = (*Engine).handleSlotStatus
	handlers[CmdPendingSet] = (*Engine).handlePendingSet

	handlers[CmdLogFrame] = (*Engine).handleLogFrame
}

func (e *Engine) handlePing(port int, payload []byte) {
	e.status(port, CmdPing, StatusOK)
}

func (e *Engine) handleRead32(port int, payload []byte) {
	if len(payload) != 4 {
		e.status(port, CmdRead32, StatusInvalid)
		return
	}
	v, ok := e.Mem.Read32(rd32(payload))
	if !ok {
		e.status(port, CmdRead32, StatusInvalid)
		return
	}
	var out [4]byte
	put32(out[:], v)
	e.reply(port, CmdRead32, out[:])
}

func (e *Engine) handleWrite32(port int, payload []byte) {
	if len(payload) != 8 {
		e.status(port, CmdWrite32, StatusInvalid)
		return
	}
	if !e.Mem.Write32(rd32(payload), rd32(payload[4:])) {
		e.status(port, CmdWrite32, StatusInvalid)
		return
	}
	e.status(port, CmdWrite32, StatusOK)
}

func (e *Engine) handleReadMem(port int, payload []byte) {
	if len(payload) != 5 {
		e.status(port, CmdReadMem, StatusInvalid)
		return
	}
	n := int(payload[4])
	var buf [255]byte
	if !e.Mem.Read(rd32(payload), buf[:n]) {
		e.status(port, CmdReadMem, StatusInvalid)
		return
	}
	e.reply(port, CmdReadMem, buf[:n])
}

func (e *Engine) handleWriteMem(port int, payload []byte) {
	if len(payload) < 5 || len(payload) != 5+int(payload[4]) {
		e.status(port, CmdWriteMem, StatusInvalid)
		return
	}
	if !e.Mem.Write(rd32(payload), payload[5:]) {
		e.status(port, CmdWriteMem, StatusInvalid)
		return
	}
	e.status(port, CmdWriteMem, StatusOK)
}

// exec acknowledges before jumping; a faulting target never returns.
func (e *Engine) handleExec(port int, payload []byte) {
	if len(payload) != 4 {
		e.status(port, CmdExec, StatusInvalid)
		return
	}
	e.status(port, CmdExec, StatusOK)
	e.jump(rd32(payload))
}

func (e *Engine) handleUploadExec(port int, payload []byte) {
	if len(payload) < 5 || len(payload) != 5+int(payload[4]) {
		e.status(port, CmdUploadExec, StatusInvalid)
		return
	}
	addr := rd32(payload)
	if !e.Mem.Write(addr, payload[5:]) {
		e.status(port, CmdUploadExec, StatusInvalid)
		return
	}
	e.status(port, CmdUploadExec, StatusOK)
	e.jump(addr)
}

func (e *Engine) jump(addr uint32) {
	if !e.Mem.Exec(addr) && e.OnFault != nil {
		e.OnFault(addr)
	}
}

func (e *Engine) handleReadFlash(port int, payload []byte) {
	if len(payload) != 5 {
		e.status(port, CmdReadFlash, StatusInvalid)
		return
	}
	n := int(payload[4])
	var buf [255]byte
	e.Flash.Read(rd32(payload), buf[:n])
	e.reply(port, CmdReadFlash, buf[:n])
}

func (e *Engine) handleStateDump(port int, payload []byte) {
	b := ride.EncodeStateDump(e.Model)
	e.reply(port, CmdStateDump, b[:])
}

func (e *Engine) handleBootFlag(port int, payload []byte) {
	if err := e.Flash.SetBootloaderFlag(); err != nil {
		e.status(port, CmdBootFlag, StatusInvalid)
		return
	}
	e.status(port, CmdBootFlag, StatusOK)
}

func (e *Engine) handleSetState(port int, payload []byte) {
	if len(payload) != 8 {
		e.status(port, CmdSetState, StatusInvalid)
		return
	}
	e.Model.SetState(rd16(payload), rd16(payload[2:]), rd16(payload[4:]), payload[6], payload[7])
	e.status(port, CmdSetState, StatusOK)
}

func (e *Engine) handleStreamPeriod(port int, payload []byte) {
	if len(payload) != 2 {
		e.status(port, CmdStreamPeriod, StatusInvalid)
		return
	}
	e.SetTelemetryPeriod(rd16(payload))
	e.status(port, CmdStreamPeriod, StatusOK)
}

// reboot sets the bootloader flag, acknowledges, then resets.
func (e *Engine) handleReboot(port int, payload []byte) {
	if err := e.Flash.SetBootloaderFlag(); err != nil {
		e.status(port, CmdReboot, StatusInvalid)
		return
	}
	e.status(port, CmdReboot, StatusOK)
	e.Sys.Reset()
}

func (e *Engine) handleRingSummary(port int, payload []byte) {
	r := e.Graph.Ring(ride.ChanSpeed)
	var out [10]byte
	put16(out[0:], uint16(r.Count()))
	put16(out[2:], uint16(r.Capacity()))
	put16(out[4:], r.Min())
	put16(out[6:], r.Max())
	put16(out[8:], r.Latest())
	e.reply(port, CmdRingSummary, out[:])
}

func (e *Engine) handleDebugState(port int, payload []byte) {
	b := ride.EncodeDebugState(e.Model, e.telemPeriodMS, e.Events.Seq(), e.Stream.Seq(), store.CRC16)
	e.reply(port, CmdDebugState, b[:])
}

func (e *Engine) handleGraphSummary(port int, payload []byte) {
	r := e.Graph.Active()
	var out [13]byte
	out[0] = e.Graph.Channel
	put16(out[1:], e.Graph.WindowMS)
	put16(out[3:], uint16(r.Count()))
	put16(out[5:], uint16(r.Capacity()))
	put16(out[7:], r.Min())
	put16(out[9:], r.Max())
	put16(out[11:], r.Latest())
	e.reply(port, CmdGraphSummary, out[:])
}

func (e *Engine) handleGraphControl(port int, payload []byte) {
	if len(payload) != 4 {
		e.status(port, CmdGraphControl, StatusInvalid)
		return
	}
	if !e.Graph.SetChannel(payload[0]) {
		e.status(port, CmdGraphControl, StatusInvalid)
		return
	}
	e.Graph.WindowMS = rd16(payload[1:])
	if payload[3] != 0 {
		e.Graph.ResetAll()
	}
	e.status(port, CmdGraphControl, StatusOK)
}

func (e *Engine) handleConfigGet(port int, payload []byte) {
	blob := e.Config.StagedBlob()
	e.reply(port, CmdConfigGet, blob[:])
}

// config_stage accepts the 81-byte blob as contiguous {offset u8, data}
// chunks; offset 0 restarts the transfer. The complete blob is validated
// and staged in RAM.
func (e *Engine) handleConfigStage(port int, payload []byte) {
	if e.Model.Moving() {
		e.status(port, CmdConfigStage, StatusBlocked)
		return
	}
	if len(payload) < 2 {
		e.status(port, CmdConfigStage, StatusInvalid)
		return
	}
	off := int(payload[0])
	data := payload[1:]
	if off == 0 {
		e.cfgGot = 0
	}
	if off != e.cfgGot || off+len(data) > store.ConfigSize {
		e.cfgGot = 0
		e.status(port, CmdConfigStage, StatusInvalid)
		return
	}
	copy(e.cfgBuf[off:], data)
	e.cfgGot = off + len(data)
	if e.cfgGot < store.ConfigSize {
		e.status(port, CmdConfigStage, StatusOK)
		return
	}
	e.cfgGot = 0
	if err := e.Config.Stage(e.cfgBuf[:]); err != nil {
		e.status(port, CmdConfigStage, StatusInvalid)
		return
	}
	e.status(port, CmdConfigStage, StatusOK)
}

func (e *Engine) handleConfigCommit(port int, payload []byte) {
	if e.Model.Moving() {
		e.status(port, CmdConfigCommit, StatusBlocked)
		return
	}
	if err := e.Config.Commit(); err != nil {
		e.status(port, CmdConfigCommit, StatusInvalid)
		return
	}
	e.NoteEvent(store.EventConfigChange)
	reboot := len(payload) >= 1 && payload[0] != 0
	e.status(port, CmdConfigCommit, StatusOK)
	if reboot {
		if e.Flash.SetBootloaderFlag() == nil {
			e.Sys.Reset()
		}
	}
}

func (e *Engine) handleSetProfile(port int, payload []byte) {
	if len(payload) != 1 || payload[0] > 7 {
		e.status(port, CmdSetProfile, StatusInvalid)
		return
	}
	e.Model.ProfileID = payload[0]
	e.status(port, CmdSetProfile, StatusOK)
}

func (e *Engine) handleSetGears(port int, payload []byte) {
	if len(payload) != 2 || payload[0] == 0 || payload[0] > 15 || payload[1] > payload[0] {
		e.status(port, CmdSetGears, StatusInvalid)
		return
	}
	e.Model.GearCount = payload[0]
	e.Model.VirtualGear = payload[1]
	e.status(port, CmdSetGears, StatusOK)
}

func (e *Engine) handleSetCadenceBias(port int, payload []byte) {
	if len(payload) != 1 {
		e.status(port, CmdSetCadenceBias, StatusInvalid)
		return
	}
	e.Model.CadenceBias = int8(payload[0])
	e.status(port, CmdSetCadenceBias, StatusOK)
}

func (e *Engine) handleTripGet(port int, payload []byte) {
	t := &e.Model.Trip
	var out [24]byte
	put32(out[0:], t.DistanceMM)
	put32(out[4:], t.EnergyMWh)
	put32(out[8:], t.MovingMS)
	put16(out[12:], t.MaxSpeedDmph)
	put16(out[14:], t.AvgSpeedDmph())
	put32(out[16:], t.AssistMS)
	put32(out[20:], t.GearMS)
	e.reply(port, CmdTripGet, out[:])
}

func (e *Engine) handleTripReset(port int, payload []byte) {
	e.Model.ResetTrip()
	e.status(port, CmdTripReset, StatusOK)
}

func (e *Engine) handleSetDriveMode(port int, payload []byte) {
	if len(payload) != 3 || payload[0] > ride.DriveManualW {
		e.status(port, CmdSetDriveMode, StatusInvalid)
		return
	}
	e.Model.DriveMode = payload[0]
	e.Model.DriveSet = rd16(payload[1:])
	e.status(port, CmdSetDriveMode, StatusOK)
}

func (e *Engine) handleSetRegen(port int, payload []byte) {
	if len(payload) != 1 || payload[0] > 5 {
		e.status(port, CmdSetRegen, StatusInvalid)
		return
	}
	if !e.Model.Regen.Supported {
		e.status(port, CmdSetRegen, StatusUnsupported)
		return
	}
	e.Model.Regen.Level = payload[0]
	e.status(port, CmdSetRegen, StatusOK)
}

func (e *Engine) handleSetHWCaps(port int, payload []byte) {
	if len(payload) != 6 {
		e.status(port, CmdSetHWCaps, StatusInvalid)
		return
	}
	c := ride.Caps{CurrentDA: rd16(payload), SpeedDmph: rd16(payload[2:]), PowerW: rd16(payload[4:])}
	if c.CurrentDA == 0 || c.SpeedDmph == 0 || c.PowerW == 0 {
		e.status(port, CmdSetHWCaps, StatusInvalid)
		return
	}
	e.Model.Caps = c
	e.status(port, CmdSetHWCaps, StatusOK)
}

func (e *Engine) handleEventSummary(port int, payload []byte) {
	var out [8]byte
	put16(out[0:], uint16(e.Events.Count()))
	put16(out[2:], uint16(e.Events.Capacity()))
	put32(out[4:], e.Events.Seq())
	e.reply(port, CmdEventSummary, out[:])
}

func (e *Engine) handleEventRead(port int, payload []byte) {
	if len(payload) != 3 {
		e.status(port, CmdEventRead, StatusInvalid)
		return
	}
	off := int(rd16(payload))
	limit := int(payload[2])
	if limit > maxReplyRecords {
		limit = maxReplyRecords
	}
	var out [1 + maxReplyRecords*store.EventRecordSize]byte
	n := 0
	for i := 0; i < limit; i++ {
		rec, ok := e.Events.Record(off + i)
		if !ok {
			break
		}
		copy(out[1+n*store.EventRecordSize:], rec[:])
		n++
	}
	out[0] = byte(n)
	e.reply(port, CmdEventRead, out[:1+n*store.EventRecordSize])
}

func (e *Engine) handleEventMark(port int, payload []byte) {
	var flags uint8
	if len(payload) >= 1 {
		flags = payload[0]
	}
	e.Events.Append(e.snapshotEvent(store.EventMark, flags))
	e.status(port, CmdEventMark, StatusOK)
}

func (e *Engine) handleStreamSummary(port int, payload []byte) {
	var out [10]byte
	put16(out[0:], uint16(e.Stream.Count()))
	put16(out[2:], uint16(e.Stream.Capacity()))
	put32(out[4:], e.Stream.Seq())
	put16(out[8:], e.Stream.PeriodMS)
	e.reply(port, CmdStreamSummary, out[:])
}

func (e *Engine) handleStreamRead(port int, payload []byte) {
	if len(payload) != 3 {
		e.status(port, CmdStreamRead, StatusInvalid)
		return
	}
	off := int(rd16(payload))
	limit := int(payload[2])
	if limit > maxReplyRecords {
		limit = maxReplyRecords
	}
	var out [1 + maxReplyRecords*store.StreamRecordSize]byte
	n := 0
	for i := 0; i < limit; i++ {
		rec, ok := e.Stream.Record(off + i)
		if !ok {
			break
		}
		copy(out[1+n*store.StreamRecordSize:], rec[:])
		n++
	}
	out[0] = byte(n)
	e.reply(port, CmdStreamRead, out[:1+n*store.StreamRecordSize])
}

func (e *Engine) handleStreamControl(port int, payload []byte) {
	if len(payload) != 3 {
		e.status(port, CmdStreamControl, StatusInvalid)
		return
	}
	e.Stream.PeriodMS = rd16(payload)
	if payload[2] != 0 {
		e.Stream.Reset()
	}
	e.status(port, CmdStreamControl, StatusOK)
}

// crash_dump_read always returns the raw record; a cleared dump comes back
// zeroed so the reader sees the CRC fail.
func (e *Engine) handleCrashRead(port int, payload []byte) {
	raw, _ := e.Crash.LoadRaw()
	e.reply(port, CmdCrashRead, raw[:])
}

func (e *Engine) handleCrashClear(port int, payload []byte) {
	if err := e.Crash.Clear(); err != nil {
		e.status(port, CmdCrashClear, StatusInvalid)
		return
	}
	e.status(port, CmdCrashClear, StatusOK)
}

func (e *Engine) handleCaptureControl(port int, payload []byte) {
	if len(payload) != 2 {
		e.status(port, CmdCaptureControl, StatusInvalid)
		return
	}
	e.Capture.Enabled = payload[0] != 0
	if payload[1] != 0 {
		e.Capture.Reset()
	}
	e.status(port, CmdCaptureControl, StatusOK)
}

func (e *Engine) handleCaptureSummary(port int, payload []byte) {
	var out [7]byte
	put16(out[0:], uint16(e.Capture.Count()))
	put16(out[2:], uint16(e.Capture.Capacity()))
	put16(out[4:], uint16(e.Capture.Head()))
	if e.Capture.Enabled {
		out[6] = 1
	}
	e.reply(port, CmdCaptureSummary, out[:])
}

func (e *Engine) handleCaptureRead(port int, payload []byte) {
	if len(payload) != 3 {
		e.status(port, CmdCaptureRead, StatusInvalid)
		return
	}
	off := int(rd16(payload))
	limit := int(payload[2])
	if limit > maxReplyRecords {
		limit = maxReplyRecords
	}
	var out [1 + maxReplyRecords*BusRecordSize]byte
	n := 0
	for i := 0; i < limit; i++ {
		rec, ok := e.Capture.RecordAt(off + i)
		if !ok {
			break
		}
		copy(out[1+n*BusRecordSize:], rec[:])
		n++
	}
	out[0] = byte(n)
	e.reply(port, CmdCaptureRead, out[:1+n*BusRecordSize])
}

func (e *Engine) handleMonitorControl(port int, payload []byte) {
	if len(payload) != 4 {
		e.status(port, CmdMonitorControl, StatusInvalid)
		return
	}
	e.Monitor.Enabled = payload[0] != 0
	e.Monitor.ID = payload[1]
	e.Monitor.Opcode = payload[2]
	e.Monitor.Diff = payload[3]&0x01 != 0
	e.Monitor.ChangedOnly = payload[3]&0x02 != 0
	e.status(port, CmdMonitorControl, StatusOK)
}

// injectAllowed applies the shared bus-write gate: stationary, private mode
// and explicitly armed.
func (e *Engine) injectAllowed() byte {
	if e.Model.Moving() {
		return StatusBlocked
	}
	if !e.Model.PrivateMode || !e.Model.InjectArmed {
		return StatusBlocked
	}
	return StatusOK
}

func (e *Engine) handleBusInject(port int, payload []byte) {
	if st := e.injectAllowed(); st != StatusOK {
		e.status(port, CmdBusInject, st)
		return
	}
	if len(payload) == 0 {
		e.status(port, CmdBusInject, StatusInvalid)
		return
	}
	e.Ports[uart.PortMotor].Write(payload)
	e.Capture.Record(e.nowMS, BusDirTX, payload)
	e.monitorFrame(payload)
	e.NoteEvent(store.EventBus)
	e.status(port, CmdBusInject, StatusOK)
}

func (e *Engine) handleReplayControl(port int, payload []byte) {
	if len(payload) != 5 {
		e.status(port, CmdReplayControl, StatusInvalid)
		return
	}
	if payload[0] == 0 {
		e.Replay.Stop()
		e.status(port, CmdReplayControl, StatusOK)
		return
	}
	if st := e.injectAllowed(); st != StatusOK {
		e.status(port, CmdReplayControl, st)
		return
	}
	off := int(rd16(payload[1:]))
	if off >= e.Capture.Count() {
		e.status(port, CmdReplayControl, StatusInvalid)
		return
	}
	e.Replay.Start(e.nowMS, off, rd16(payload[3:]))
	e.status(port, CmdReplayControl, StatusOK)
}

func (e *Engine) handleReplayStatus(port int, payload []byte) {
	var out [5]byte
	if e.Replay.Active {
		out[0] = 1
	}
	put16(out[1:], uint16(e.Replay.Pos))
	put16(out[3:], e.Replay.RateMS)
	e.reply(port, CmdReplayStatus, out[:])
}

// hacker exchange reports framing health and the BLE module state:
// {status u8, connected u8, mac[12]}. The status is 0x00 when the port has
// been clean since the last exchange, else 0xF0 plus the saturated error
// count.
func (e *Engine) handleHackerExchange(port int, payload []byte) {
	var out [14]byte
	if n := e.parsers[port].TakeErrors(); n != 0 {
		out[0] = statusFrameErrBase | (n & 0x0F)
	}
	if e.BLE.Connected {
		out[1] = 1
	}
	copy(out[2:], e.BLE.MAC[:])
	e.reply(port, CmdHackerExchange, out[:])
}

func (e *Engine) handleSlotStatus(port int, payload []byte) {
	var out [12]byte
	out[0] = byte(e.Config.ActiveSlot())
	if e.Config.Pending() {
		out[1] = 1
	}
	seqA, validA := e.Config.SlotSeq(0)
	seqB, validB := e.Config.SlotSeq(1)
	if validA {
		out[2] = 1
	}
	if validB {
		out[3] = 1
	}
	put32(out[4:], seqA)
	put32(out[8:], seqB)
	e.reply(port, CmdSlotStatus, out[:])
}

func (e *Engine) handlePendingSet(port int, payload []byte) {
	if len(payload) != 1 {
		e.status(port, CmdPendingSet, StatusInvalid)
		return
	}
	if payload[0] == 0 {
		e.Config.Discard()
		e.status(port, CmdPendingSet, StatusOK)
		return
	}
	if !e.Config.Pending() {
		e.status(port, CmdPendingSet, StatusInvalid)
		return
	}
	e.status(port, CmdPendingSet, StatusOK)
}

// Inbound log frames are acknowledged with a plain (un-ORed) log frame.
func (e *Engine) handleLogFrame(port int, payload []byte) {
	e.send(port, CmdLogFrame, []byte{StatusOK})
}
