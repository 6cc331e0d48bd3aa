package store

import (
	"hash/crc32"

	"github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"
)

// Crash dump: one fixed 152-byte record, written on a fault and read back
// over the debug protocol after reboot.
//
//	off  field
//	  0  magic 'CRSH'
//	  4  ver (1)
//	  5  size (152)
//	  6  flags
//	  7  reserved
//	  8  seq        u32
//	 12  crc32      u32 (zeroed during compute)
//	 16  ms         u32
//	 20  sp lr pc psr cfsr hfsr dfsr mmfar bfar afsr  (10 x u32)
//	 60  event_count u16
//	 62  event_record_size (20)
//	 63  reserved
//	 64  event_seq  u32
//	 68  last events, up to 4 x 20 bytes
//	148  reserved   u32
const (
	CrashDumpSize    = 152
	crashVersion     = 1
	crashTailEvents  = 4
	crashMagic       = 0x43525348 // 'CRSH'
	crashOffSeq      = 8
	crashOffCRC      = 12
	crashOffMS       = 16
	crashOffRegs     = 20
	crashOffEvCount  = 60
	crashOffEvSize   = 62
	crashOffEvSeq    = 64
	crashOffEvents   = 68
)

// CrashRegs is the captured CPU context: the stacked frame registers plus
// the fault status and address registers.
type CrashRegs struct {
	SP, LR, PC, PSR               uint32
	CFSR, HFSR, DFSR, MMFAR, BFAR uint32
	AFSR                          uint32
}

type CrashDump struct {
	Seq    uint32
	Flags  uint8
	MS     uint32
	Regs   CrashRegs
	EvSeq  uint32
	Events [][EventRecordSize]byte
}

// CrashStore owns the persistent record and its scratch buffer.
type CrashStore struct {
	flash   *spiflash.Device
	scratch [CrashDumpSize]byte
	seq     uint32
}

func NewCrashStore(flash *spiflash.Device) *CrashStore {
	return &CrashStore{flash: flash}
}

func crashCRC(b []byte) uint32 {
	var tmp [CrashDumpSize]byte
	copy(tmp[:], b)
	be32(tmp[crashOffCRC:], 0)
	return crc32.ChecksumIEEE(tmp[:])
}

// Capture assembles and persists the record. It runs from the fault handler
// path, so it only touches its own scratch buffer and the NOR driver.
func (s *CrashStore) Capture(ms uint32, regs CrashRegs, flags uint8, ev *EventLog) error {
	b := &s.scratch
	for i := range b {
		b[i] = 0
	}
	be32(b[0:], crashMagic)
	b[4] = crashVersion
	b[5] = CrashDumpSize
	b[6] = flags
	s.seq++
	be32(b[crashOffSeq:], s.seq)
	be32(b[crashOffMS:], ms)
	regList := [10]uint32{regs.SP, regs.LR, regs.PC, regs.PSR,
		regs.CFSR, regs.HFSR, regs.DFSR, regs.MMFAR, regs.BFAR, regs.AFSR}
	for i, r := range regList {
		be32(b[crashOffRegs+i*4:], r)
	}
	var tail [crashTailEvents][EventRecordSize]byte
	n := 0
	if ev != nil {
		n = ev.Tail(tail[:])
		be32(b[crashOffEvSeq:], ev.Seq())
	}
	be16(b[crashOffEvCount:], uint16(n))
	b[crashOffEvSize] = EventRecordSize
	for i := 0; i < n; i++ {
		copy(b[crashOffEvents+i*EventRecordSize:], tail[i][:])
	}
	be32(b[crashOffCRC:], crashCRC(b[:]))
	return s.flash.UpdateBytes(CrashDumpAddr, b[:])
}

// LoadRaw reads the persisted record and reports whether its CRC validates.
func (s *CrashStore) LoadRaw() ([CrashDumpSize]byte, bool) {
	var b [CrashDumpSize]byte
	s.flash.Read(CrashDumpAddr, b[:])
	if rd32(b[0:]) != crashMagic || b[5] != CrashDumpSize {
		return b, false
	}
	return b, rd32(b[crashOffCRC:]) == crashCRC(b[:])
}

// Load decodes the persisted record.
func (s *CrashStore) Load() (CrashDump, bool) {
	b, ok := s.LoadRaw()
	if !ok {
		return CrashDump{}, false
	}
	d := CrashDump{
		Seq:   rd32(b[crashOffSeq:]),
		Flags: b[6],
		MS:    rd32(b[crashOffMS:]),
		EvSeq: rd32(b[crashOffEvSeq:]),
	}
	regs := []*uint32{&d.Regs.SP, &d.Regs.LR, &d.Regs.PC, &d.Regs.PSR,
		&d.Regs.CFSR, &d.Regs.HFSR, &d.Regs.DFSR, &d.Regs.MMFAR, &d.Regs.BFAR, &d.Regs.AFSR}
	for i, p := range regs {
		*p = rd32(b[crashOffRegs+i*4:])
	}
	n := int(rd16(b[crashOffEvCount:]))
	if n > crashTailEvents {
		n = crashTailEvents
	}
	for i := 0; i < n; i++ {
		var rec [EventRecordSize]byte
		copy(rec[:], b[crashOffEvents+i*EventRecordSize:])
		d.Events = append(d.Events, rec)
	}
	return d, true
}

// Clear zeroes the record; a zeroed record deliberately fails CRC.
func (s *CrashStore) Clear() error {
	var zero [CrashDumpSize]byte
	return s.flash.UpdateBytes(CrashDumpAddr, zero[:])
}
