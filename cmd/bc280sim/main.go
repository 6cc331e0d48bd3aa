package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/darvell/open-bc280-firmware-sub002/internal/bridge"
	"github.com/darvell/open-bc280-firmware-sub002/internal/fw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw/sim"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ride"
	"github.com/darvell/open-bc280-firmware-sub002/internal/ridelog"
	"github.com/darvell/open-bc280-firmware-sub002/internal/server"
	"github.com/darvell/open-bc280-firmware-sub002/internal/simcfg"
	"github.com/darvell/open-bc280-firmware-sub002/internal/uart"
	"github.com/darvell/open-bc280-firmware-sub002/web"
)

const tickPeriod = 5 * time.Millisecond // firmware tick, 200 Hz

// rig owns the simulated board and serializes access to the firmware: the
// step loop and the telemetry sampler run on different goroutines.
type rig struct {
	mu sync.Mutex
	f  *fw.Firmware

	// unattached ports have their TX discarded so it cannot grow unbounded
	dropBLE   bool
	dropMotor bool

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

func newRig() *rig {
	r := &rig{
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
	r.f = fw.New(fw.Board{
		SPI:       r.nor,
		LCD:       r.panel,
		UART:      [2]hw.UART{r.ble, r.motor},
		ADC:       r.adc,
		Buttons:   r.btn,
		Backlight: r.bl,
		Ticker:    r.tick,
		Sys:       r.sys,
		Mem:       sim.NewMem(),
	})
	// Nominal mid-charge pack on the divider
	r.adc.SetRaw(3000)
	return r
}

// run drives the firmware at the tick rate until the context ends.
func (r *rig) run(ctx context.Context) {
	t := time.NewTicker(tickPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.mu.Lock()
			r.tick.Tick(1)
			r.f.Step()
			r.mu.Unlock()
			if r.dropBLE {
				r.ble.TakeTx()
			}
			if r.dropMotor {
				r.motor.TakeTx()
			}
		}
	}
}

// rxISR delivers one host serial byte into a firmware port.
func (r *rig) rxISR(port int) func(b byte) {
	return func(b byte) {
		r.mu.Lock()
		r.f.RxISR(port, b)
		r.mu.Unlock()
	}
}

// sample snapshots the ride model for the viewer and the ride log.
func (r *rig) sample() *ridelog.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.f.Model
	return &ridelog.Sample{
		SpeedDmph:      m.In.SpeedDmph,
		CadenceRPM:     m.In.CadenceRPM,
		RPM:            m.In.RPM,
		TorqueRaw:      m.In.TorqueRaw,
		PowerW:         m.CmdPowerW,
		CurrentDA:      m.CmdCurrentDA,
		BatteryDV:      m.In.BatteryDV,
		BatteryDA:      m.In.BatteryDA,
		SOC:            m.SOC,
		TempDC:         m.In.TempDC,
		AssistMode:     m.AssistMode,
		ProfileID:      m.ProfileID,
		Gear:           m.VirtualGear,
		Brake:          m.In.Brake,
		Walk:           m.Walk,
		Cruise:         m.CruiseMode,
		Thermal:        m.Gov.ThermalState,
		Err:            m.In.Err,
		TripDistanceMM: m.Trip.DistanceMM,
		TripEnergyMWh:  m.Trip.EnergyMWh,
		TripMaxDmph:    m.Trip.MaxSpeedDmph,
		Page:           r.f.UI.PageName(),
	}
}

func main() {
	configPath := flag.String("config", "/etc/bc280sim/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated ride instead of a motor link")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8280)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] bc280sim starting")

	cfg := simcfg.LoadConfig(*configPath)
	if *demo {
		cfg.Ride.Producer = "demo"
		cfg.Motor.Type = "disabled"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	r := newRig()
	if err := r.f.Init(); err != nil {
		log.Fatalf("[main] firmware init: %v", err)
	}

	if cfg.Ride.Producer == "demo" && cfg.Motor.Type != "serial" {
		r.f.Producer = ride.NewDemoProducer()
		log.Println("[main] using demo ride producer")
	}

	// Bench links attach host serial ports to the firmware UARTs. The
	// firmware works regardless; links retry in the background.
	r.dropBLE = cfg.BLE.Type != "serial"
	r.dropMotor = cfg.Motor.Type != "serial"
	if cfg.BLE.Type == "serial" {
		l := bridge.NewLink("ble", bridge.Config{
			PortPath: cfg.BLE.PortPath,
			BaudRate: cfg.BLE.BaudRate,
		}, r.rxISR(uart.PortBLE), r.ble.TakeTx)
		go l.ConnectWithRetry(ctx, 10)
	}
	if cfg.Motor.Type == "serial" {
		l := bridge.NewLink("motor", bridge.Config{
			PortPath: cfg.Motor.PortPath,
			BaudRate: cfg.Motor.BaudRate,
		}, r.rxISR(uart.PortMotor), r.motor.TakeTx)
		go l.ConnectWithRetry(ctx, 10)
	}

	go r.run(ctx)

	srv := server.New(cfg, r.panel, r.btn, r.sample, web.FS)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}
