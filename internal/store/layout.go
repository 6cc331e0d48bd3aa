// Package store implements the persistent layer on the external NOR (boot
// flag, OEM mirror, A/B config, stage log, crash dump) and the in-RAM event
// and stream log rings, all with the record layouts the debug protocol
// exposes.
package store

import "github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"

// Byte offsets on the external NOR, 4 KB sector granularity.
const (
	BootFlagAddr = spiflash.BootFlagAddr

	// OEM mirror: factory calibration kept twice. The n69300 scale word and
	// the nominal battery voltage code sit at fixed offsets within each copy.
	OEMPrimaryAddr = 0x001000
	OEMBackupAddr  = 0x002000
	OEMScaleOff    = 0x20 // n69300 scale, u16
	OEMBattVOff    = 0x24 // nominal battery voltage code, u8

	ConfigSlotAAddr = 0x003000
	ConfigSlotBAddr = 0x004000

	StageLogAddr = 0x005000 // one full sector of 8-byte records

	CrashDumpAddr = 0x006000
)

// crc16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF), used on the
// 20-byte event and stream records.
func crc16(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// CRC16 is exported for protocol-side verification.
func CRC16(p []byte) uint16 { return crc16(p) }

func be16(p []byte, v uint16) {
	p[0] = byte(v >> 8)
	p[1] = byte(v)
}

func be32(p []byte, v uint32) {
	p[0] = byte(v >> 24)
	p[1] = byte(v >> 16)
	p[2] = byte(v >> 8)
	p[3] = byte(v)
}

func rd16(p []byte) uint16 { return uint16(p[0])<<8 | uint16(p[1]) }

func rd32(p []byte) uint32 {
	return uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
}
