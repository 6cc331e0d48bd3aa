// Package hw declares the narrow hardware interfaces the firmware core is
// written against. Real silicon lives in hw/stm32 (TinyGo build only); the
// simulator and tests use the behavioural models in hw/sim.
package hw

// SPI is a chip-select framed full-duplex byte exchange, as used by the
// serial NOR flash on SPI1.
type SPI interface {
	// Select drives chip-select low, starting a command sequence.
	Select()
	// Deselect raises chip-select, terminating the command sequence.
	Deselect()
	// Transfer clocks one byte out and returns the byte clocked in.
	Transfer(b byte) byte
}

// Bus8080 is the memory-mapped 8080 parallel bus the LCD controller sits on:
// one address strobes commands, the other data.
type Bus8080 interface {
	WriteCmd(c byte)
	WriteData(d byte)
	WriteData16(d uint16)
}

// UART is the raw port the interrupt-driven driver in internal/uart wraps.
// ReadByte is the direct data-register read used when the RX ring is empty.
type UART interface {
	WriteByte(b byte)
	ReadByte() (byte, bool)
}

// ADC samples the battery divider channel (12-bit right aligned).
type ADC interface {
	ReadBattery() uint16
}

// Buttons returns the sampled state of the five momentary buttons as a mask,
// bit n set meaning button n is pressed (active-low inputs already inverted).
type Buttons interface {
	Read() uint8
}

// Backlight drives the panel backlight PWM channel.
type Backlight interface {
	Set(percent uint8)
}

// Ticker exposes the 5 ms timer update flag for the polling fallback path.
// Pending reports and clears the flag.
type Ticker interface {
	Pending() bool
}

// Mem is word/byte access to the MCU address space, used by the debug
// protocol's read32/write32/read_mem/write_mem/exec commands. All methods
// report false when the address range is not accessible.
type Mem interface {
	Read32(addr uint32) (uint32, bool)
	Write32(addr uint32, v uint32) bool
	Read(addr uint32, p []byte) bool
	Write(addr uint32, p []byte) bool
	// Exec jumps to a Thumb entry point and reports whether the target was
	// executable. On hardware a successful jump does not return.
	Exec(addr uint32) bool
}

// SysCtl groups system reset and the independent watchdog.
type SysCtl interface {
	// Reset requests a system reset. It does not return on hardware.
	Reset()
	FeedWatchdog()
}
