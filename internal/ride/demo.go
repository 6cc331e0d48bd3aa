package ride

import (
	"math"
	"math/rand"
)

// Producer feeds sensor inputs into the model. The hardware build reads the
// motor bus; the simulator uses the demo producer below.
type Producer interface {
	// Name returns the human-readable name of this input source.
	Name() string
	// Step refreshes m.In for the elapsed interval.
	Step(m *Model, dtMS uint32)
}

// DemoProducer generates a simulated ride for development and testing:
// a rider that accelerates, cruises, coasts and brakes in a loop, with
// battery and temperature tracking the load.
type DemoProducer struct {
	t     float64 // virtual time accumulator
	socMU float64 // fractional SOC drain
}

func NewDemoProducer() *DemoProducer {
	return &DemoProducer{}
}

func (d *DemoProducer) Name() string { return "Demo (Simulated)" }

func (d *DemoProducer) Step(m *Model, dtMS uint32) {
	d.t += float64(dtMS) / 1000

	// Speed cycles between a stop and ~24 mph over about two minutes.
	phase := math.Sin(d.t * 2 * math.Pi / 120)
	speed := 120 + 120*phase + rand.Float64()*4
	if speed < 0 {
		speed = 0
	}
	m.In.SpeedDmph = uint16(speed)

	// Cadence follows speed through the virtual gear.
	cadence := speed / 3
	if cadence > 110 {
		cadence = 110
	}
	m.In.CadenceRPM = uint16(cadence)
	m.In.RPM = uint16(speed * 1.8)

	// Pedal torque leads on the accelerating half of the cycle.
	accel := math.Cos(d.t * 2 * math.Pi / 120)
	torque := 200 + 500*accel + rand.Float64()*30
	if torque < 0 {
		torque = 0
	}
	m.In.TorqueRaw = uint16(torque)

	// Brake on the steepest deceleration.
	m.In.Brake = accel < -0.92

	// Pack voltage sags under load and drains slowly.
	load := float64(m.CmdPowerW)
	d.socMU += load * float64(dtMS) / 3.6e7
	if d.socMU >= 1 && m.SOC > 0 {
		d.socMU--
		m.SOC--
	}
	sag := load / 40
	m.In.BatteryDV = uint16(300 + float64(m.SOC)*0.72 - sag)
	if m.In.BatteryDV > 0 {
		m.In.BatteryDA = uint16(load * 100 / float64(m.In.BatteryDV))
	}

	// Controller temperature chases the load with a slow time constant.
	target := 250 + load*0.8
	cur := float64(m.In.TempDC)
	m.In.TempDC = int16(cur + (target-cur)*float64(dtMS)/20000)
}
