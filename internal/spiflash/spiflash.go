// Package spiflash drives the external W25Q32-class serial NOR. Every
// command goes through the byte-exchange helper with chip-select framing;
// writes are split at 256-byte page boundaries and read-modify-write runs at
// 4 KB sector granularity through a single static scratch buffer.
package spiflash

import (
	"errors"

	"github.com/darvell/open-bc280-firmware-sub002/internal/clock"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
)

const (
	PageSize   = 256
	SectorSize = 4096
)

const (
	opPageProgram = 0x02
	opRead        = 0x03
	opReadStatus  = 0x05
	opWriteEnable = 0x06
	opSectorErase = 0x20

	statusWIP = 0x01
)

// Bootloader flag locations. Two layouts exist in the wild: the vendor
// mirrors and the open-firmware location. Only the open-firmware location is
// writable here; SetBootloaderFlag refuses anything else.
const (
	BootFlagAddr         = 0x000000
	bootFlagVendorMirror = 0x1F0000
)

var ErrTimeout = errors.New("spiflash: WIP timeout")

// waitReadyTimeoutMS bounds every WIP poll. Sector erase on the W25Q32 tops
// out around 400 ms; page program well under 3 ms.
const waitReadyTimeoutMS = 500

type Device struct {
	bus hw.SPI
	clk *clock.Clock

	// One sector scratch for read-modify-write, owned solely by this driver.
	scratch [SectorSize]byte
}

func New(bus hw.SPI, clk *clock.Clock) *Device {
	return &Device{bus: bus, clk: clk}
}

// cmdAddr starts a command sequence: opcode then 24-bit address MSB first.
// The caller must Deselect when the data phase is done.
func (d *Device) cmdAddr(op byte, addr uint32) {
	d.bus.Select()
	d.bus.Transfer(op)
	d.bus.Transfer(byte(addr >> 16))
	d.bus.Transfer(byte(addr >> 8))
	d.bus.Transfer(byte(addr))
}

func (d *Device) writeEnable() {
	d.bus.Select()
	d.bus.Transfer(opWriteEnable)
	d.bus.Deselect()
}

func (d *Device) readStatus() byte {
	d.bus.Select()
	d.bus.Transfer(opReadStatus)
	s := d.bus.Transfer(0xFF)
	d.bus.Deselect()
	return s
}

// waitReady polls the WIP bit until clear, servicing the tick flag so the
// millisecond deadline moves on polled targets.
func (d *Device) waitReady() error {
	dl := d.clk.NewDeadline(waitReadyTimeoutMS)
	for d.readStatus()&statusWIP != 0 {
		if dl.Expired() {
			return ErrTimeout
		}
	}
	return nil
}

// Read fills p from addr. Reads are unrestricted.
func (d *Device) Read(addr uint32, p []byte) {
	if len(p) == 0 {
		return
	}
	d.cmdAddr(opRead, addr)
	for i := range p {
		p[i] = d.bus.Transfer(0xFF)
	}
	d.bus.Deselect()
}

// Write programs p at addr, splitting at page boundaries. The destination
// must already be erased; Write never crosses a 256-byte page in one program.
func (d *Device) Write(addr uint32, p []byte) error {
	for len(p) > 0 {
		chunk := PageSize - int(addr&(PageSize-1))
		if chunk > len(p) {
			chunk = len(p)
		}
		d.writeEnable()
		d.cmdAddr(opPageProgram, addr)
		for _, b := range p[:chunk] {
			d.bus.Transfer(b)
		}
		d.bus.Deselect()
		if err := d.waitReady(); err != nil {
			return err
		}
		addr += uint32(chunk)
		p = p[chunk:]
	}
	return nil
}

// Erase4K erases the 4 KB sector containing addr.
func (d *Device) Erase4K(addr uint32) error {
	addr &^= uint32(SectorSize - 1)
	d.writeEnable()
	d.cmdAddr(opSectorErase, addr)
	d.bus.Deselect()
	return d.waitReady()
}

// UpdateBytes is the read-modify-write path: for each touched 4 KB sector,
// read the whole sector into the scratch buffer, overlay the new slice,
// erase, then program back all sixteen pages.
func (d *Device) UpdateBytes(addr uint32, data []byte) error {
	for len(data) > 0 {
		base := addr &^ uint32(SectorSize-1)
		off := int(addr - base)
		n := SectorSize - off
		if n > len(data) {
			n = len(data)
		}
		d.Read(base, d.scratch[:])
		copy(d.scratch[off:off+n], data[:n])
		if err := d.Erase4K(base); err != nil {
			return err
		}
		if err := d.Write(base, d.scratch[:]); err != nil {
			return err
		}
		addr += uint32(n)
		data = data[n:]
	}
	return nil
}

// SetBootloaderFlag patches the boot-mode marker so the vendor bootloader
// stays resident after the next reset. Only the open-firmware flag location
// is written; the vendor mirror offsets stay read-only.
func (d *Device) SetBootloaderFlag() error {
	return d.UpdateBytes(BootFlagAddr, []byte{0xAA, 0x00, 0x00, 0x00})
}
