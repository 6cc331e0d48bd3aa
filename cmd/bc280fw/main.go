//go:build tinygo && stm32f4

// bc280fw is the on-device entry point: bring up the register backend,
// initialize the firmware and run the main loop forever.
package main

import (
	"github.com/darvell/open-bc280-firmware-sub002/internal/fw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw/stm32"
)

func main() {
	dev := stm32.Init()
	f := fw.New(dev.Board())
	dev.Attach(f)

	if err := f.Init(); err != nil {
		// Config storage is unusable; the stage log already holds the
		// fault marker. Hold for the watchdog reset.
		for {
		}
	}

	for {
		f.Step()
	}
}
