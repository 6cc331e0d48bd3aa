package ride

import (
	"testing"

	"github.com/darvell/open-bc280-firmware-sub002/internal/store"
)

func TestMovingThreshold(t *testing.T) {
	m := NewModel()
	m.In.SpeedDmph = 10
	if m.Moving() {
		t.Fatal("1.0 mph must not count as moving")
	}
	m.In.SpeedDmph = 11
	if !m.Moving() {
		t.Fatal("1.1 mph must count as moving")
	}
}

func TestBrakeZeroesOutput(t *testing.T) {
	m := NewModel()
	m.In.BatteryDV = 360
	m.In.TorqueRaw = 600
	m.In.CadenceRPM = 70
	m.Advance(5, 5)
	for i := uint32(2); i < 400; i++ {
		m.Advance(i*5, 5)
	}
	if m.CmdPowerW == 0 {
		t.Fatal("expected assist under pedal load")
	}
	m.In.Brake = true
	m.Advance(2005, 5)
	if m.CmdPowerW != 0 {
		t.Fatalf("brake did not cut power, CmdPowerW=%d", m.CmdPowerW)
	}
	if m.LimitReason != LimitBrake {
		t.Fatalf("limit reason = %d, want LimitBrake", m.LimitReason)
	}
	if m.Flags()&FlagBrake == 0 {
		t.Fatal("brake flag not set")
	}
}

func TestSpeedCapZeroesOutput(t *testing.T) {
	m := NewModel()
	m.In.BatteryDV = 360
	m.In.TorqueRaw = 600
	m.In.CadenceRPM = 70
	m.In.SpeedDmph = m.Caps.SpeedDmph
	m.Advance(5, 5)
	if m.Gov.PFinalW != 0 || m.LimitReason != LimitSpeed {
		t.Fatalf("at the cap: PFinalW=%d reason=%d", m.Gov.PFinalW, m.LimitReason)
	}
}

func TestRampBoundsSlope(t *testing.T) {
	m := NewModel()
	m.Ramp.RateWPS = 100
	m.In.BatteryDV = 360
	m.In.TorqueRaw = 600
	m.In.CadenceRPM = 70
	m.Advance(5, 5)
	// 100 W/s over 5 ms rounds up to the 1 W minimum step
	if m.Ramp.PowerW != 1 {
		t.Fatalf("first ramp step = %d, want 1", m.Ramp.PowerW)
	}
	m.In.Brake = true
	m.Advance(10, 5)
	if m.Ramp.PowerW != 0 {
		t.Fatal("ramp must cut immediately on the way down")
	}
}

func TestThermalDerate(t *testing.T) {
	m := NewModel()
	m.In.BatteryDV = 360
	m.In.TorqueRaw = 600
	m.In.CadenceRPM = 70
	m.In.TempDC = 860
	m.Advance(5, 5)
	if m.Gov.ThermalState != ThermalDerate {
		t.Fatalf("thermal state = %d", m.Gov.ThermalState)
	}
	if m.Gov.PThermW >= m.Gov.PLugW {
		t.Fatal("derate did not reduce power")
	}
	m.In.TempDC = 960
	m.Advance(10, 5)
	if m.Gov.ThermalState != ThermalCutback {
		t.Fatalf("thermal state = %d, want cutback", m.Gov.ThermalState)
	}
}

func TestTripAccumulatesAndResets(t *testing.T) {
	m := NewModel()
	m.In.BatteryDV = 360
	m.In.SpeedDmph = 200 // 20 mph = 8940.8 mm/s
	for i := uint32(1); i <= 200; i++ {
		m.Advance(i*5, 5)
	}
	// one second at 20 mph
	if m.Trip.DistanceMM < 8900 || m.Trip.DistanceMM > 8990 {
		t.Fatalf("distance after 1 s at 20 mph = %d mm", m.Trip.DistanceMM)
	}
	if m.Trip.MovingMS != 1000 {
		t.Fatalf("moving ms = %d", m.Trip.MovingMS)
	}
	if m.Trip.MaxSpeedDmph != 200 {
		t.Fatalf("max speed = %d", m.Trip.MaxSpeedDmph)
	}
	if avg := m.Trip.AvgSpeedDmph(); avg < 195 || avg > 205 {
		t.Fatalf("avg speed = %d", avg)
	}
	m.ResetTrip()
	if m.Trip.DistanceMM != 0 || m.Trip.MovingMS != 0 {
		t.Fatal("trip not cleared")
	}
	if m.ResetFlags&1 == 0 {
		t.Fatal("reset flag not recorded")
	}
}

func TestSetStateRecordsTimestamp(t *testing.T) {
	m := NewModel()
	m.MS = 4321
	m.SetState(220, 50, 123, 87, 1)
	if m.In.RPM != 220 || m.In.TorqueRaw != 50 || m.In.SpeedDmph != 123 {
		t.Fatal("set_state fields not applied")
	}
	if m.SOC != 87 || m.In.Err != 1 {
		t.Fatal("soc/err not applied")
	}
	if m.LastMS != 4321 {
		t.Fatalf("LastMS = %d", m.LastMS)
	}
}

func TestStateDumpLayout(t *testing.T) {
	m := NewModel()
	m.MS = 0x01020304
	m.SetState(220, 50, 123, 87, 1)
	b := EncodeStateDump(m)
	if b[0] != 1 || b[1] != 2 || b[2] != 3 || b[3] != 4 {
		t.Fatal("ms not big-endian")
	}
	if b[4] != 0 || b[5] != 220 {
		t.Fatal("rpm misplaced")
	}
	if b[10] != 87 || b[11] != 1 {
		t.Fatal("soc/err misplaced")
	}
	if got := uint16(b[12])<<8 | uint16(b[13]); got != uint16(m.LastMS) {
		t.Fatalf("last_ms_lo16 = %#x", got)
	}
	if b[14] != 0 || b[15] != 0 {
		t.Fatal("padding not zero")
	}
}

func TestTelemetryLayoutMatchesSetState(t *testing.T) {
	m := NewModel()
	m.SetState(220, 50, 123, 87, 1)
	b := EncodeTelemetry(m)
	if b[0] != 1 || b[1] != 22 {
		t.Fatalf("header = % x", b[:2])
	}
	if b[6] != 0x00 || b[7] != 0x7B {
		t.Fatalf("speed bytes = % x", b[6:8])
	}
	if b[21]&FlagBrake != 0 {
		t.Fatal("brake flag set unexpectedly")
	}
}

func TestDebugStateV19(t *testing.T) {
	m := NewModel()
	m.In.BatteryDV = 368
	m.In.SpeedDmph = 95
	m.Advance(5, 5)
	b := EncodeDebugState(m, 500, 7, 9, store.CRC16)
	if b[0] != 19 || b[1] != 122 {
		t.Fatalf("header = % x", b[:2])
	}
	if got := uint16(b[6])<<8 | uint16(b[7]); got != 95 {
		t.Fatalf("speed = %d", got)
	}
	if got := uint16(b[110])<<8 | uint16(b[111]); got != 500 {
		t.Fatalf("stream period = %d", got)
	}
	if got := uint16(b[120])<<8 | uint16(b[121]); got != store.CRC16(b[:120]) {
		t.Fatal("trailing CRC wrong")
	}
}

func TestSampleRingMinMaxLatest(t *testing.T) {
	var r SampleRing
	if r.Min() != 0 || r.Max() != 0 || r.Latest() != 0 {
		t.Fatal("empty ring not zero")
	}
	for _, v := range []uint16{5, 9, 3, 7} {
		r.Push(v)
	}
	if r.Min() != 3 || r.Max() != 9 || r.Latest() != 7 || r.Count() != 4 {
		t.Fatalf("min=%d max=%d latest=%d count=%d", r.Min(), r.Max(), r.Latest(), r.Count())
	}
	// Overflow evicts the oldest sample from the min/max window.
	for i := 0; i < r.Capacity(); i++ {
		r.Push(100)
	}
	if r.Min() != 100 || r.Count() != r.Capacity() {
		t.Fatalf("after wrap min=%d count=%d", r.Min(), r.Count())
	}
}

func TestGraphChannelsAndReset(t *testing.T) {
	var g Graph
	m := NewModel()
	m.In.SpeedDmph = 42
	m.CmdPowerW = 300
	g.Sample(m)
	if g.Ring(ChanSpeed).Latest() != 42 || g.Ring(ChanPower).Latest() != 300 {
		t.Fatal("channels not sampled")
	}
	if g.SetChannel(ChanCount) {
		t.Fatal("out-of-range channel accepted")
	}
	if !g.SetChannel(ChanTemp) {
		t.Fatal("valid channel rejected")
	}
	g.ResetAll()
	if g.Ring(ChanSpeed).Count() != 0 {
		t.Fatal("reset did not clear")
	}
}

func TestDemoProducerStaysInRange(t *testing.T) {
	d := NewDemoProducer()
	m := NewModel()
	for i := uint32(1); i < 24000; i++ { // two minutes of ticks
		d.Step(m, 5)
		m.Advance(i*5, 5)
		if m.In.SpeedDmph > 300 {
			t.Fatalf("speed out of range: %d", m.In.SpeedDmph)
		}
		if m.In.CadenceRPM > 110 {
			t.Fatalf("cadence out of range: %d", m.In.CadenceRPM)
		}
	}
	if m.Trip.DistanceMM == 0 {
		t.Fatal("demo ride covered no distance")
	}
}
