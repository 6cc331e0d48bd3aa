package fw

import (
	"bytes"
	"strings"
	"testing"

	"github.com/darvell/open-bc280-firmware-sub002/internal/bootmon"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw/sim"
	"github.com/darvell/open-bc280-firmware-sub002/internal/proto"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ride"
	"github.com/darvell/open-bc280-firmware-sub002/internal/uart"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ui"
)

// bench runs the whole firmware against the sim backend. The ticker is armed
// with a large budget up front so Init's panel delays complete and every
// Step advances time by one tick.
type bench struct {
	f     *Firmware
	nor   *sim.NOR
	panel *sim.Panel
	ble   *sim.UART
	motor *sim.UART
	adc   *sim.ADC
	btn   *sim.ButtonPad
	bl    *sim.Backlight
	tick  *sim.Ticker
	sys   *sim.Sys
}

func newBench(t *testing.T) *bench {
	t.Helper()
	b := &bench{
		nor:   sim.NewNOR(),
		panel: sim.NewPanel(),
		ble:   sim.NewUART(),
		motor: sim.NewUART(),
		adc:   &sim.ADC{},
		btn:   &sim.ButtonPad{},
		bl:    &sim.Backlight{},
		tick:  &sim.Ticker{},
		sys:   &sim.Sys{},
	}
	b.tick.Tick(1 << 20)
	b.f = New(Board{
		SPI:       b.nor,
		LCD:       b.panel,
		UART:      [2]hw.UART{b.ble, b.motor},
		ADC:       b.adc,
		Buttons:   b.btn,
		Backlight: b.bl,
		Ticker:    b.tick,
		Sys:       b.sys,
		Mem:       sim.NewMem(),
	})
	b.ble.SetRxHook(func(bb byte) { b.f.RxISR(uart.PortBLE, bb) })
	b.motor.SetRxHook(func(bb byte) { b.f.RxISR(uart.PortMotor, bb) })
	if err := b.f.Init(); err != nil {
		t.Fatal(err)
	}
	return b
}

func (b *bench) step(n int) {
	for i := 0; i < n; i++ {
		b.f.Step()
	}
}

// frames splits a TX stream, validating framing and checksums.
func frames(t *testing.T, tx []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for len(tx) > 0 {
		if tx[0] != proto.SOF || len(tx) < 4 {
			t.Fatalf("bad frame start: % x", tx)
		}
		n := 4 + int(tx[2])
		if len(tx) < n {
			t.Fatalf("truncated frame: % x", tx)
		}
		f := tx[:n]
		if proto.Checksum(f[1:n-1]) != f[n-1] {
			t.Fatalf("bad checksum in % x", f)
		}
		out = append(out, f)
		tx = tx[n:]
	}
	return out
}

// replies filters out the boot and crash log frames.
func replies(t *testing.T, tx []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for _, f := range frames(t, tx) {
		if f[1] != proto.CmdLogFrame {
			out = append(out, f)
		}
	}
	return out
}

func TestInitPersistsStageMarkers(t *testing.T) {
	b := newBench(t)

	recs := b.f.Stages.Records()
	if len(recs) != 10 {
		t.Fatalf("stage records = %d, want 10", len(recs))
	}
	if recs[0].Code != bootmon.StageReset {
		t.Fatalf("first stage = %#x", recs[0].Code)
	}
	if recs[len(recs)-1].Code != bootmon.StageReady {
		t.Fatalf("last stage = %#x", recs[len(recs)-1].Code)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].MS-recs[i-1].MS > 1<<31 {
			t.Fatalf("stage %d timestamp moved backwards", i)
		}
	}
}

func TestInitMirrorsMarkersOverUART(t *testing.T) {
	b := newBench(t)

	fs := frames(t, b.ble.TakeTx())
	if len(fs) != 10 {
		t.Fatalf("boot log frames = %d, want 10", len(fs))
	}
	for i, f := range fs {
		if f[1] != proto.CmdLogFrame {
			t.Fatalf("frame %d cmd = %#x", i, f[1])
		}
	}
	first := string(fs[0][3 : len(fs[0])-1])
	if !strings.HasPrefix(first, "BOOT 0001 ") {
		t.Fatalf("first marker line %q", first)
	}
	last := string(fs[9][3 : len(fs[9])-1])
	if !strings.HasPrefix(last, "BOOT 000A ") {
		t.Fatalf("last marker line %q", last)
	}
}

func TestInitPaintsBootLinesOnPanel(t *testing.T) {
	b := newBench(t)
	// Only the post-LCD markers land on the panel, but each paints pixels.
	if b.panel.PixelsWritten() == 0 {
		t.Fatal("no pixels written during bring-up")
	}
}

func TestPingEndToEnd(t *testing.T) {
	b := newBench(t)
	b.ble.TakeTx()

	b.ble.InjectRx([]byte{0x55, 0x01, 0x00, 0xFE})
	b.step(1)

	fs := replies(t, b.ble.TakeTx())
	if len(fs) != 1 {
		t.Fatalf("got %d replies, want 1", len(fs))
	}
	want := []byte{0x55, 0x81, 0x01, 0x00, 0x7F}
	if !bytes.Equal(fs[0], want) {
		t.Fatalf("ping reply = % x, want % x", fs[0], want)
	}
}

func TestWatchdogFedEachStep(t *testing.T) {
	b := newBench(t)
	b.step(1)
	if !b.sys.WatchdogFed() {
		t.Fatal("watchdog not fed")
	}
}

func TestBatterySampleScalesDivider(t *testing.T) {
	b := newBench(t)
	b.adc.SetRaw(2048)
	b.step(1)
	if got := b.f.Model.In.BatteryDV; got != 346 {
		t.Fatalf("BatteryDV = %d, want 346", got)
	}
}

func TestSOCFallsBackToVoltageWhenMotorSilent(t *testing.T) {
	b := newBench(t)
	b.adc.SetRaw(2048)
	// No set_state ever arrives; step past the comm timeout.
	b.step(250)
	if got := b.f.Model.SOC; got != 32 {
		t.Fatalf("SOC = %d, want 32", got)
	}
}

func TestMotorSetStateOverridesVoltageSOC(t *testing.T) {
	b := newBench(t)
	b.adc.SetRaw(2048)
	b.step(250)

	// rpm=60 torque=100 speed=85 soc=77 err=0
	payload := []byte{0x00, 0x3C, 0x00, 0x64, 0x00, 0x55, 77, 0}
	b.motor.InjectRx(proto.AppendFrame(nil, proto.CmdSetState, payload))
	b.step(1)

	m := b.f.Model
	if m.In.SpeedDmph != 85 || m.In.RPM != 60 || m.SOC != 77 {
		t.Fatalf("speed=%d rpm=%d soc=%d", m.In.SpeedDmph, m.In.RPM, m.SOC)
	}
	// The next battery sample must not clobber the fresh SOC.
	b.step(15)
	if b.f.Model.SOC != 77 {
		t.Fatalf("SOC overwritten to %d", b.f.Model.SOC)
	}
}

func TestCommLossEventAfterMotorSilence(t *testing.T) {
	b := newBench(t)

	payload := []byte{0, 0, 0, 0, 0, 0, 50, 0}
	b.motor.InjectRx(proto.AppendFrame(nil, proto.CmdSetState, payload))
	b.step(1)
	before := b.f.Events.Count()

	b.step(250)
	if b.f.Events.Count() != before+1 {
		t.Fatalf("events = %d, want %d", b.f.Events.Count(), before+1)
	}

	// Staying silent does not repeat the event.
	b.step(100)
	if b.f.Events.Count() != before+1 {
		t.Fatal("comm loss logged more than once")
	}
}

func TestUIRendersAfterStep(t *testing.T) {
	b := newBench(t)
	base := b.panel.PixelsWritten()
	b.step(12)
	if b.panel.PixelsWritten() <= base {
		t.Fatal("UI tick wrote no pixels")
	}
}

func TestLightButtonTogglesBacklight(t *testing.T) {
	b := newBench(t)
	if b.bl.Percent() != 100 {
		t.Fatalf("boot backlight = %d", b.bl.Percent())
	}

	b.btn.Set(ui.BtnLight)
	b.step(1)
	if b.bl.Percent() != 30 {
		t.Fatalf("after press = %d, want 30", b.bl.Percent())
	}

	// Held button is one edge.
	b.step(5)
	if b.bl.Percent() != 30 {
		t.Fatal("held button retoggled")
	}

	b.btn.Set(0)
	b.step(1)
	b.btn.Set(ui.BtnLight)
	b.step(1)
	if b.bl.Percent() != 100 {
		t.Fatalf("after second press = %d, want 100", b.bl.Percent())
	}
}

func TestPowerButtonChangesPage(t *testing.T) {
	b := newBench(t)
	b.btn.Set(ui.BtnPower)
	b.step(1)
	b.btn.Set(0)
	b.step(1)
	if b.f.UI.PageIndex() != 1 {
		t.Fatalf("page = %d, want 1", b.f.UI.PageIndex())
	}
}

func TestConfigCommitReappliesToModel(t *testing.T) {
	b := newBench(t)
	b.ble.TakeTx()

	c := b.f.Config.Current()
	c.WheelMM = 2105
	c.Theme = 1
	c.Seal()
	blob := c.Marshal()

	b.ble.InjectRx(proto.AppendFrame(nil, proto.CmdConfigStage, append([]byte{0}, blob[:48]...)))
	b.ble.InjectRx(proto.AppendFrame(nil, proto.CmdConfigStage, append([]byte{48}, blob[48:]...)))
	b.ble.InjectRx(proto.AppendFrame(nil, proto.CmdConfigCommit, nil))
	b.step(2)

	fs := replies(t, b.ble.TakeTx())
	if len(fs) != 3 {
		t.Fatalf("got %d replies, want 3", len(fs))
	}
	for i, f := range fs {
		if f[3] != proto.StatusOK {
			t.Fatalf("reply %d status = %#x", i, f[3])
		}
	}
	if b.f.Model.WheelMM != 2105 {
		t.Fatalf("WheelMM = %d, want 2105", b.f.Model.WheelMM)
	}
	if b.f.Model.Theme != 1 {
		t.Fatalf("Theme = %d, want 1", b.f.Model.Theme)
	}
}

func TestDemoProducerDrivesModel(t *testing.T) {
	b := newBench(t)
	b.f.Producer = ride.NewDemoProducer()
	// 150 ticks is 750 ms, past the 500 ms graph sampling window.
	b.step(150)

	m := b.f.Model
	if m.In.SpeedDmph == 0 {
		t.Fatal("demo produced no speed")
	}
	if b.f.Graph.Ring(ride.ChanSpeed).Count() == 0 {
		t.Fatal("graph sampled nothing")
	}
}

func TestExecFaultCapturesCrashAndResets(t *testing.T) {
	b := newBench(t)
	b.f.execFault(0x08001234)
	if b.sys.ResetCount() != 1 {
		t.Fatalf("resets = %d", b.sys.ResetCount())
	}
	d, ok := b.f.Crash.Load()
	if !ok {
		t.Fatal("no crash record")
	}
	if d.Regs.PC != 0x08001234 || d.Regs.HFSR != 1<<30 {
		t.Fatalf("crash regs = %+v", d.Regs)
	}
}

func TestHexLine(t *testing.T) {
	if got := hexLine(nil); got != "" {
		t.Fatalf("empty = %q", got)
	}
	if got := hexLine([]byte{0x55, 0x0E, 0xF1}); got != "55 0E F1" {
		t.Fatalf("short = %q", got)
	}
	long := hexLine([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if got := len(long); got != 23 {
		t.Fatalf("long line length = %d, want 23", got)
	}
}

func TestSOCFromVoltageKnees(t *testing.T) {
	cases := []struct {
		dv   uint16
		want uint8
	}{
		{300, 0}, {310, 0}, {365, 50}, {420, 100}, {440, 100},
	}
	for _, c := range cases {
		if got := socFromVoltage(c.dv); got != c.want {
			t.Fatalf("socFromVoltage(%d) = %d, want %d", c.dv, got, c.want)
		}
	}
}
