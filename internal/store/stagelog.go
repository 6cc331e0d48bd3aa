package store

import "github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"

// Stage log: one dedicated sector of sequential 8-byte records
// {code u32 BE, ms u32 BE}. A code of 0xFFFFFFFF marks the next free slot;
// a full sector is erased and restarted.
const (
	stageRecSize  = 8
	stageSlots    = spiflash.SectorSize / stageRecSize
	stageFreeMark = 0xFFFFFFFF
)

type StageRecord struct {
	Code uint32
	MS   uint32
}

type StageLog struct {
	flash *spiflash.Device

	next    int
	scanned bool
}

func NewStageLog(flash *spiflash.Device) *StageLog {
	return &StageLog{flash: flash}
}

// scan locates the first free slot. Codes never legitimately equal the free
// mark, so the first 0xFFFFFFFF code is the append point.
func (l *StageLog) scan() {
	var rec [stageRecSize]byte
	for i := 0; i < stageSlots; i++ {
		l.flash.Read(StageLogAddr+uint32(i*stageRecSize), rec[:])
		if rd32(rec[:]) == stageFreeMark {
			l.next = i
			l.scanned = true
			return
		}
	}
	l.next = stageSlots
	l.scanned = true
}

// Append persists one boot-stage marker.
func (l *StageLog) Append(code, ms uint32) error {
	if !l.scanned {
		l.scan()
	}
	if l.next >= stageSlots {
		if err := l.flash.Erase4K(StageLogAddr); err != nil {
			return err
		}
		l.next = 0
	}
	var rec [stageRecSize]byte
	be32(rec[:], code)
	be32(rec[4:], ms)
	if err := l.flash.Write(StageLogAddr+uint32(l.next*stageRecSize), rec[:]); err != nil {
		return err
	}
	l.next++
	return nil
}

// Records reads back every persisted marker, oldest first.
func (l *StageLog) Records() []StageRecord {
	var out []StageRecord
	var rec [stageRecSize]byte
	for i := 0; i < stageSlots; i++ {
		l.flash.Read(StageLogAddr+uint32(i*stageRecSize), rec[:])
		code := rd32(rec[:])
		if code == stageFreeMark {
			break
		}
		out = append(out, StageRecord{Code: code, MS: rd32(rec[4:])})
	}
	return out
}
