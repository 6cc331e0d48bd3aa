package proto

import (
	"bytes"
	"testing"

	"github.com/darvell/open-bc280-firmware-sub002/internal/clock"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw/sim"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ride"
	"github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"
	"github.com/darvell/open-bc280-firmware-sub002/internal/store"
	"github.com/darvell/open-bc280-firmware-sub002/internal/uart"
)

type freeTicker struct{}

func (freeTicker) Pending() bool { return true }

type rig struct {
	e     *Engine
	ble   *sim.UART
	motor *sim.UART
	nor   *sim.NOR
	mem   *sim.Mem
	sys   *sim.Sys
	now   uint32
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		ble:   sim.NewUART(),
		motor: sim.NewUART(),
		nor:   sim.NewNOR(),
		mem:   sim.NewMem(),
		sys:   &sim.Sys{},
	}
	flash := spiflash.New(r.nor, clock.New(freeTicker{}, nil))
	cfg := store.NewConfigStore(flash)
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	e := NewEngine()
	e.Model = ride.NewModel()
	e.Graph = &ride.Graph{}
	e.Mem = r.mem
	e.Sys = r.sys
	e.Flash = flash
	e.Config = cfg
	e.Events = &store.EventLog{}
	e.Stream = &store.StreamLog{}
	e.Crash = store.NewCrashStore(flash)
	e.Ports[uart.PortBLE] = uart.NewPort(r.ble)
	e.Ports[uart.PortMotor] = uart.NewPort(r.motor)
	e.OnFault = func(pc uint32) {
		e.Crash.Capture(r.now, store.CrashRegs{PC: pc}, 0, e.Events)
		e.Sys.Reset()
	}
	r.e = e
	return r
}

func (r *rig) rx(port int, data []byte) {
	for _, b := range data {
		r.e.Feed(port, b, r.now)
	}
}

// frames splits a TX byte stream into frames, failing on trailing garbage.
func frames(t *testing.T, tx []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for len(tx) > 0 {
		if tx[0] != SOF || len(tx) < 4 {
			t.Fatalf("bad frame start: % x", tx)
		}
		n := 4 + int(tx[2])
		if len(tx) < n {
			t.Fatalf("truncated frame: % x", tx)
		}
		f := tx[:n]
		if Checksum(f[1:n-1]) != f[n-1] {
			t.Fatalf("bad checksum in % x", f)
		}
		out = append(out, f)
		tx = tx[n:]
	}
	return out
}

func (r *rig) oneReply(t *testing.T, port int) (cmd byte, payload []byte) {
	t.Helper()
	dev := r.ble
	if port == uart.PortMotor {
		dev = r.motor
	}
	fs := frames(t, dev.TakeTx())
	if len(fs) != 1 {
		t.Fatalf("got %d frames, want 1", len(fs))
	}
	f := fs[0]
	return f[1], f[3 : len(f)-1]
}

func (r *rig) command(t *testing.T, port int, cmd byte, payload []byte) (byte, []byte) {
	t.Helper()
	r.rx(port, AppendFrame(nil, cmd, payload))
	return r.oneReply(t, port)
}

func TestPingLiteralHex(t *testing.T) {
	r := newRig(t)
	r.rx(uart.PortBLE, []byte{0x55, 0x01, 0x00, 0xFE})
	got := r.ble.TakeTx()
	want := []byte{0x55, 0x81, 0x01, 0x00, 0x7F}
	if !bytes.Equal(got, want) {
		t.Fatalf("ping reply = % x, want % x", got, want)
	}
}

func TestRead32VTOR(t *testing.T) {
	r := newRig(t)
	// SCB region with VTOR at +8 holding the app vector table address.
	scb := make([]byte, 16)
	scb[8], scb[9], scb[10], scb[11] = 0x00, 0x00, 0x02, 0x08 // LE 0x08020000
	r.mem.AddRegion(0xE000ED00, scb, false)

	r.rx(uart.PortBLE, []byte{0x55, 0x02, 0x04, 0xE0, 0x00, 0xED, 0x08,
		Checksum([]byte{0x02, 0x04, 0xE0, 0x00, 0xED, 0x08})})
	cmd, p := r.oneReply(t, uart.PortBLE)
	if cmd != 0x82 {
		t.Fatalf("reply cmd = %#x", cmd)
	}
	if !bytes.Equal(p, []byte{0x08, 0x02, 0x00, 0x00}) {
		t.Fatalf("vtor = % x", p)
	}
}

func TestRead32UnmappedRejected(t *testing.T) {
	r := newRig(t)
	_, p := r.command(t, uart.PortBLE, CmdRead32, []byte{0x12, 0x34, 0x56, 0x78})
	if len(p) != 1 || p[0] != StatusInvalid {
		t.Fatalf("reply = % x", p)
	}
}

func TestSetStateThenStream(t *testing.T) {
	r := newRig(t)
	// rpm=220 torque=50 speed=12.3mph soc=87 err=1
	r.rx(uart.PortBLE, []byte{0x55, 0x0C, 0x08, 0x00, 0xDC, 0x00, 0x32, 0x00, 0x7B, 0x57, 0x01,
		Checksum([]byte{0x0C, 0x08, 0x00, 0xDC, 0x00, 0x32, 0x00, 0x7B, 0x57, 0x01})})
	if _, p := r.oneReply(t, uart.PortBLE); p[0] != StatusOK {
		t.Fatalf("set_state status = %#x", p[0])
	}
	if st, _ := r.command(t, uart.PortBLE, CmdStreamPeriod, []byte{0x01, 0xF4}); st != 0x8D {
		t.Fatalf("period reply cmd = %#x", st)
	}

	r.now = 500
	r.e.Poll(r.now)
	r.e.Poll(r.now + 100) // within the period, no second frame
	fs := frames(t, r.ble.TakeTx())
	if len(fs) != 1 {
		t.Fatalf("got %d telemetry frames, want 1", len(fs))
	}
	f := fs[0]
	if f[1] != CmdTelemetry || f[2] != 22 {
		t.Fatalf("telemetry header = % x", f[:3])
	}
	p := f[3 : len(f)-1]
	if p[0] != 1 || p[1] != 22 {
		t.Fatalf("payload version header = % x", p[:2])
	}
	if !bytes.Equal(p[6:10], []byte{0x00, 0x7B, 0x00, 0xDC}) {
		t.Fatalf("speed/cadence = % x", p[6:10])
	}
	if !bytes.Equal(p[10:12], []byte{0x00, 0x00}) {
		t.Fatalf("power = % x", p[10:12])
	}

	// each emission also lands in the stream log
	if r.e.Stream.Count() != 1 {
		t.Fatalf("stream log count = %d", r.e.Stream.Count())
	}

	r.e.Poll(1000)
	if len(frames(t, r.ble.TakeTx())) != 1 {
		t.Fatal("no frame at the next period")
	}
}

func TestStreamPeriodZeroDisables(t *testing.T) {
	r := newRig(t)
	r.command(t, uart.PortBLE, CmdStreamPeriod, []byte{0x01, 0xF4})
	r.command(t, uart.PortBLE, CmdStreamPeriod, []byte{0x00, 0x00})
	for ms := uint32(0); ms < 5000; ms += 100 {
		r.e.Poll(ms)
	}
	if tx := r.ble.TakeTx(); len(tx) != 0 {
		t.Fatalf("telemetry emitted while disabled: % x", tx)
	}
}

func TestConfigGateWhileMoving(t *testing.T) {
	r := newRig(t)
	r.e.Model.In.SpeedDmph = 100
	progsBefore := r.nor.Programs()

	if _, p := r.command(t, uart.PortBLE, CmdConfigStage, []byte{0x00, 0x01}); p[0] != StatusBlocked {
		t.Fatalf("stage while moving = %#x", p[0])
	}
	if _, p := r.command(t, uart.PortBLE, CmdConfigCommit, nil); p[0] != StatusBlocked {
		t.Fatalf("commit while moving = %#x", p[0])
	}
	if r.nor.Programs() != progsBefore {
		t.Fatal("flash touched while gated")
	}
}

func TestConfigStageChunkedAndCommit(t *testing.T) {
	r := newRig(t)
	c := r.e.Config.Current()
	c.WheelMM = 2105
	c.Seal()
	blob := c.Marshal()

	// two contiguous chunks
	if _, p := r.command(t, uart.PortBLE, CmdConfigStage, append([]byte{0}, blob[:48]...)); p[0] != StatusOK {
		t.Fatalf("chunk 1 = %#x", p[0])
	}
	if _, p := r.command(t, uart.PortBLE, CmdConfigStage, append([]byte{48}, blob[48:]...)); p[0] != StatusOK {
		t.Fatalf("chunk 2 = %#x", p[0])
	}
	if !r.e.Config.Pending() {
		t.Fatal("stage did not mark pending")
	}

	// config_get reflects the staged blob with a bumped seq
	_, p := r.command(t, uart.PortBLE, CmdConfigGet, nil)
	if len(p) != store.ConfigSize {
		t.Fatalf("config_get len = %d", len(p))
	}
	got, err := store.UnmarshalConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if got.WheelMM != 2105 || got.Seq != c.Seq+1 {
		t.Fatalf("staged wheel=%d seq=%d", got.WheelMM, got.Seq)
	}

	if _, p := r.command(t, uart.PortBLE, CmdConfigCommit, nil); p[0] != StatusOK {
		t.Fatalf("commit = %#x", p[0])
	}
	if r.e.Config.ActiveSlot() != 1 {
		t.Fatal("commit did not flip the slot")
	}
	if r.e.Events.Count() == 0 {
		t.Fatal("commit did not log an event")
	}

	// non-contiguous offset is rejected and restarts the transfer
	if _, p := r.command(t, uart.PortBLE, CmdConfigStage, append([]byte{10}, blob[10:20]...)); p[0] != StatusInvalid {
		t.Fatalf("gap chunk = %#x", p[0])
	}
}

func TestBootloaderRebootLiteralHex(t *testing.T) {
	r := newRig(t)
	r.rx(uart.PortBLE, []byte{0x55, 0x0E, 0x00, 0xF1})
	if _, p := r.oneReply(t, uart.PortBLE); p[0] != StatusOK {
		t.Fatalf("reboot status = %#x", p[0])
	}
	var flag [4]byte
	r.nor.Peek(spiflash.BootFlagAddr, flag[:])
	if !bytes.Equal(flag[:], []byte{0xAA, 0x00, 0x00, 0x00}) {
		t.Fatalf("boot flag = % x", flag)
	}
	if r.sys.ResetCount() != 1 {
		t.Fatal("system did not reset")
	}
}

func TestExecFaultCapturesCrash(t *testing.T) {
	r := newRig(t)
	_, p := r.command(t, uart.PortBLE, CmdExec, []byte{0x12, 0x34, 0x56, 0x78})
	if p[0] != StatusOK {
		t.Fatalf("exec ack = %#x", p[0])
	}
	if r.sys.ResetCount() != 1 {
		t.Fatal("fault did not reset")
	}

	_, raw := r.command(t, uart.PortBLE, CmdCrashRead, nil)
	if len(raw) != store.CrashDumpSize {
		t.Fatalf("crash read len = %d", len(raw))
	}
	if !bytes.Equal(raw[:4], []byte{'C', 'R', 'S', 'H'}) {
		t.Fatalf("magic = % x", raw[:4])
	}
	d, ok := r.e.Crash.Load()
	if !ok || d.Regs.PC != 0x12345678 {
		t.Fatalf("crash pc = %#x ok=%v", d.Regs.PC, ok)
	}

	if _, p := r.command(t, uart.PortBLE, CmdCrashClear, nil); p[0] != StatusOK {
		t.Fatal("clear failed")
	}
	_, raw = r.command(t, uart.PortBLE, CmdCrashRead, nil)
	for _, b := range raw {
		if b != 0 {
			t.Fatal("cleared dump not zeroed")
		}
	}
}

func TestEventMarkThenRead(t *testing.T) {
	r := newRig(t)
	r.e.Model.In.SpeedDmph = 77
	if _, p := r.command(t, uart.PortBLE, CmdEventMark, []byte{0x05}); p[0] != StatusOK {
		t.Fatal("mark failed")
	}
	_, sum := r.command(t, uart.PortBLE, CmdEventSummary, nil)
	count := int(rd16(sum))
	if count != 1 {
		t.Fatalf("count = %d", count)
	}
	_, p := r.command(t, uart.PortBLE, CmdEventRead, []byte{0x00, byte(count - 1), 1})
	if p[0] != 1 || len(p) != 1+store.EventRecordSize {
		t.Fatalf("read returned %d records, %d bytes", p[0], len(p))
	}
	rec := p[1:]
	if store.CRC16(rec[:18]) != rd16(rec[18:]) {
		t.Fatal("record CRC mismatch")
	}
	if rd16(rec[6:]) != 77 {
		t.Fatalf("speed in record = %d", rd16(rec[6:]))
	}
}

func TestCaptureResetReturnsToZero(t *testing.T) {
	r := newRig(t)
	r.command(t, uart.PortBLE, CmdCaptureControl, []byte{1, 0})
	// a frame arriving on the motor port is captured
	r.rx(uart.PortMotor, AppendFrame(nil, CmdPing, nil))
	r.motor.TakeTx()
	_, p := r.command(t, uart.PortBLE, CmdCaptureSummary, nil)
	if rd16(p) != 1 {
		t.Fatalf("capture count = %d", rd16(p))
	}
	r.command(t, uart.PortBLE, CmdCaptureControl, []byte{0, 1})
	_, p = r.command(t, uart.PortBLE, CmdCaptureSummary, nil)
	if rd16(p) != 0 || rd16(p[4:]) != 0 {
		t.Fatalf("after reset count=%d head=%d", rd16(p), rd16(p[4:]))
	}
}

func TestInjectGating(t *testing.T) {
	r := newRig(t)
	if _, p := r.command(t, uart.PortBLE, CmdBusInject, []byte{0xAA}); p[0] != StatusBlocked {
		t.Fatalf("unarmed inject = %#x", p[0])
	}
	r.e.Model.PrivateMode = true
	r.e.Model.InjectArmed = true
	r.e.Model.In.SpeedDmph = 50
	if _, p := r.command(t, uart.PortBLE, CmdBusInject, []byte{0xAA}); p[0] != StatusBlocked {
		t.Fatalf("moving inject = %#x", p[0])
	}
	r.e.Model.In.SpeedDmph = 0
	if _, p := r.command(t, uart.PortBLE, CmdBusInject, []byte{0xAA, 0xBB}); p[0] != StatusOK {
		t.Fatalf("armed inject = %#x", p[0])
	}
	if !bytes.Equal(r.motor.TakeTx(), []byte{0xAA, 0xBB}) {
		t.Fatal("inject did not reach the motor port")
	}
}

func TestReplayBrakeCancel(t *testing.T) {
	r := newRig(t)
	r.e.Model.PrivateMode = true
	r.e.Model.InjectArmed = true
	r.e.Capture.Enabled = true
	r.e.Capture.Record(0, BusDirRX, []byte{0x01, 0x02})
	r.e.Capture.Record(5, BusDirRX, []byte{0x03, 0x04})

	if _, p := r.command(t, uart.PortBLE, CmdReplayControl, []byte{1, 0x00, 0x00, 0x00, 0x64}); p[0] != StatusOK {
		t.Fatalf("replay start = %#x", p[0])
	}
	r.e.Poll(10)
	if got := r.motor.TakeTx(); !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Fatalf("replayed frame = % x", got)
	}

	r.e.Model.In.Brake = true
	r.e.Poll(20)
	if r.e.Replay.Active {
		t.Fatal("brake edge did not cancel replay")
	}

	// with the override set, replay keeps going
	r.e.Model.In.Brake = false
	r.e.Poll(30)
	r.e.Model.BrakeOverride = true
	r.command(t, uart.PortBLE, CmdReplayControl, []byte{1, 0x00, 0x00, 0x00, 0x64})
	r.e.Model.In.Brake = true
	r.e.Poll(200)
	if !r.e.Replay.Active {
		t.Fatal("override replay canceled on brake")
	}
}

func TestReplayRateClamped(t *testing.T) {
	var rp BusReplay
	rp.Start(0, 0, 5)
	if rp.RateMS != replayRateMin {
		t.Fatalf("rate = %d", rp.RateMS)
	}
	rp.Start(0, 0, 5000)
	if rp.RateMS != replayRateMax {
		t.Fatalf("rate = %d", rp.RateMS)
	}
}

func TestUnknownCommand(t *testing.T) {
	r := newRig(t)
	cmd, p := r.command(t, uart.PortBLE, 0x6E, nil)
	if cmd != 0x6E|0x80 || p[0] != StatusUnknown {
		t.Fatalf("unknown reply cmd=%#x st=%#x", cmd, p[0])
	}
}

func TestLogFrameKeepsPlainCommand(t *testing.T) {
	r := newRig(t)
	cmd, _ := r.command(t, uart.PortBLE, CmdLogFrame, []byte("x"))
	if cmd != CmdLogFrame {
		t.Fatalf("log reply cmd = %#x, want plain 0x7D", cmd)
	}
	r.e.Log(uart.PortBLE, "boot")
	fs := frames(t, r.ble.TakeTx())
	if fs[0][1] != CmdLogFrame || !bytes.Equal(fs[0][3:7], []byte("boot")) {
		t.Fatalf("log frame = % x", fs[0])
	}
}

func TestHackerExchangeReportsFrameErrors(t *testing.T) {
	r := newRig(t)
	// bad checksum, then oversize LEN
	r.rx(uart.PortBLE, []byte{0x55, 0x01, 0x00, 0x00})
	r.rx(uart.PortBLE, []byte{0x55, 0x01, 0x65})
	_, p := r.command(t, uart.PortBLE, CmdHackerExchange, nil)
	if p[0] != 0xF2 {
		t.Fatalf("status = %#x, want 0xF2", p[0])
	}
	// count clears on read
	_, p = r.command(t, uart.PortBLE, CmdHackerExchange, nil)
	if p[0] != 0x00 {
		t.Fatalf("status after clear = %#x", p[0])
	}
}

func TestSlotStatusAndPendingSet(t *testing.T) {
	r := newRig(t)
	_, p := r.command(t, uart.PortBLE, CmdSlotStatus, nil)
	if p[0] != 0 || p[1] != 0 {
		t.Fatalf("initial slot status = % x", p)
	}
	if p[2] != 1 {
		t.Fatal("seeded slot A not valid")
	}

	c := r.e.Config.Current()
	c.Seal()
	blob := c.Marshal()
	r.command(t, uart.PortBLE, CmdConfigStage, append([]byte{0}, blob[:48]...))
	r.command(t, uart.PortBLE, CmdConfigStage, append([]byte{48}, blob[48:]...))
	_, p = r.command(t, uart.PortBLE, CmdSlotStatus, nil)
	if p[1] != 1 {
		t.Fatal("pending not reported")
	}
	if _, p := r.command(t, uart.PortBLE, CmdPendingSet, []byte{0}); p[0] != StatusOK {
		t.Fatal("pending clear failed")
	}
	if r.e.Config.Pending() {
		t.Fatal("discard did not clear pending")
	}
}
