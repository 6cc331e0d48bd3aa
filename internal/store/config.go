package store

import (
	"errors"
	"hash/crc32"

	"github.com/darvell/open-bc280-firmware-sub002/internal/spiflash"
)

// Config blob layout, 81 bytes, big-endian. The CRC32 covers the whole blob
// with the CRC field zeroed.
const (
	ConfigSize    = 81
	ConfigVersion = 7

	cfgOffVer      = 0  // u8
	cfgOffSize     = 1  // u8
	cfgOffReserved = 2  // u8[2]
	cfgOffSeq      = 4  // u32
	cfgOffCRC      = 8  // u32
	cfgOffWheelMM  = 12 // u16
	cfgOffUnits    = 14 // u8
	cfgOffProfile  = 15 // u8
	cfgOffTheme    = 16 // u8
	cfgOffFlags    = 17 // u8
	cfgOffBtnMap   = 18 // u8
	cfgOffBtnFlags = 19 // u8
	cfgOffMode     = 20 // u8
	cfgOffPin      = 21 // u16
	cfgOffCapCur   = 23 // u16, dA
	cfgOffCapSpeed = 25 // u16, dmph
	cfgOffLogPer   = 27 // u16, ms
	cfgOffRampWPS  = 29 // u16
	cfgOffDeadband = 31 // u16, W
	cfgOffKickW    = 33 // u16, W
	cfgOffDrive    = 35 // u8
	cfgOffManCur   = 36 // u16, dA
	cfgOffManPwr   = 38 // u16, W
	cfgOffBoostBud = 40 // u16, ms
	cfgOffBoostCD  = 42 // u16, ms
	cfgOffBoostThr = 44 // u16, dA
	cfgOffBoostGn  = 46 // u16, Q15
	cfgOffCurveCnt = 48 // u8
	cfgOffCurve    = 49 // 8 * {x u16, y u16} = 32
)

var (
	ErrConfigCRC  = errors.New("store: config CRC mismatch")
	ErrConfigSize = errors.New("store: bad config blob")
)

// Config is the decoded 81-byte device configuration.
type Config struct {
	Ver, Size       uint8
	Seq             uint32
	CRC             uint32
	WheelMM         uint16
	Units           uint8
	ProfileID       uint8
	Theme           uint8
	Flags           uint8
	ButtonMap       uint8
	ButtonFlags     uint8
	Mode            uint8
	PinCode         uint16
	CapCurrentDA    uint16
	CapSpeedDmph    uint16
	LogPeriodMS     uint16
	SoftStartRampW  uint16
	SoftStartDeadW  uint16
	SoftStartKickW  uint16
	DriveMode       uint8
	ManualCurrentDA uint16
	ManualPowerW    uint16
	BoostBudgetMS   uint16
	BoostCooldownMS uint16
	BoostThreshDA   uint16
	BoostGainQ15    uint16
	CurveCount      uint8
	Curve           [8][2]uint16
}

// DefaultConfig is the blob burned on first boot of a blank NOR.
func DefaultConfig() Config {
	return Config{
		Ver:             ConfigVersion,
		Size:            ConfigSize,
		Seq:             1,
		WheelMM:         2074,
		ProfileID:       1,
		CapCurrentDA:    150, // 15.0 A
		CapSpeedDmph:    320, // 32.0 mph hardware cap
		LogPeriodMS:     1000,
		SoftStartRampW:  250,
		SoftStartDeadW:  20,
		SoftStartKickW:  60,
		BoostBudgetMS:   8000,
		BoostCooldownMS: 20000,
		BoostThreshDA:   120,
		BoostGainQ15:    0x4000,
		CurveCount:      2,
		Curve:           [8][2]uint16{{0, 0}, {320, 2500}},
	}
}

// Marshal encodes the config. Seq and CRC fields are written as-is; use
// Seal to recompute the CRC.
func (c *Config) Marshal() [ConfigSize]byte {
	var b [ConfigSize]byte
	b[cfgOffVer] = c.Ver
	b[cfgOffSize] = c.Size
	be32(b[cfgOffSeq:], c.Seq)
	be32(b[cfgOffCRC:], c.CRC)
	be16(b[cfgOffWheelMM:], c.WheelMM)
	b[cfgOffUnits] = c.Units
	b[cfgOffProfile] = c.ProfileID
	b[cfgOffTheme] = c.Theme
	b[cfgOffFlags] = c.Flags
	b[cfgOffBtnMap] = c.ButtonMap
	b[cfgOffBtnFlags] = c.ButtonFlags
	b[cfgOffMode] = c.Mode
	be16(b[cfgOffPin:], c.PinCode)
	be16(b[cfgOffCapCur:], c.CapCurrentDA)
	be16(b[cfgOffCapSpeed:], c.CapSpeedDmph)
	be16(b[cfgOffLogPer:], c.LogPeriodMS)
	be16(b[cfgOffRampWPS:], c.SoftStartRampW)
	be16(b[cfgOffDeadband:], c.SoftStartDeadW)
	be16(b[cfgOffKickW:], c.SoftStartKickW)
	b[cfgOffDrive] = c.DriveMode
	be16(b[cfgOffManCur:], c.ManualCurrentDA)
	be16(b[cfgOffManPwr:], c.ManualPowerW)
	be16(b[cfgOffBoostBud:], c.BoostBudgetMS)
	be16(b[cfgOffBoostCD:], c.BoostCooldownMS)
	be16(b[cfgOffBoostThr:], c.BoostThreshDA)
	be16(b[cfgOffBoostGn:], c.BoostGainQ15)
	b[cfgOffCurveCnt] = c.CurveCount
	for i := 0; i < 8; i++ {
		be16(b[cfgOffCurve+i*4:], c.Curve[i][0])
		be16(b[cfgOffCurve+i*4+2:], c.Curve[i][1])
	}
	return b
}

// UnmarshalConfig decodes a blob without CRC verification.
func UnmarshalConfig(b []byte) (Config, error) {
	if len(b) != ConfigSize {
		return Config{}, ErrConfigSize
	}
	var c Config
	c.Ver = b[cfgOffVer]
	c.Size = b[cfgOffSize]
	c.Seq = rd32(b[cfgOffSeq:])
	c.CRC = rd32(b[cfgOffCRC:])
	c.WheelMM = rd16(b[cfgOffWheelMM:])
	c.Units = b[cfgOffUnits]
	c.ProfileID = b[cfgOffProfile]
	c.Theme = b[cfgOffTheme]
	c.Flags = b[cfgOffFlags]
	c.ButtonMap = b[cfgOffBtnMap]
	c.ButtonFlags = b[cfgOffBtnFlags]
	c.Mode = b[cfgOffMode]
	c.PinCode = rd16(b[cfgOffPin:])
	c.CapCurrentDA = rd16(b[cfgOffCapCur:])
	c.CapSpeedDmph = rd16(b[cfgOffCapSpeed:])
	c.LogPeriodMS = rd16(b[cfgOffLogPer:])
	c.SoftStartRampW = rd16(b[cfgOffRampWPS:])
	c.SoftStartDeadW = rd16(b[cfgOffDeadband:])
	c.SoftStartKickW = rd16(b[cfgOffKickW:])
	c.DriveMode = b[cfgOffDrive]
	c.ManualCurrentDA = rd16(b[cfgOffManCur:])
	c.ManualPowerW = rd16(b[cfgOffManPwr:])
	c.BoostBudgetMS = rd16(b[cfgOffBoostBud:])
	c.BoostCooldownMS = rd16(b[cfgOffBoostCD:])
	c.BoostThreshDA = rd16(b[cfgOffBoostThr:])
	c.BoostGainQ15 = rd16(b[cfgOffBoostGn:])
	c.CurveCount = b[cfgOffCurveCnt]
	for i := 0; i < 8; i++ {
		c.Curve[i][0] = rd16(b[cfgOffCurve+i*4:])
		c.Curve[i][1] = rd16(b[cfgOffCurve+i*4+2:])
	}
	return c, nil
}

// blobCRC computes the CRC32 over a blob with the CRC field zeroed.
func blobCRC(b []byte) uint32 {
	var tmp [ConfigSize]byte
	copy(tmp[:], b)
	be32(tmp[cfgOffCRC:], 0)
	return crc32.ChecksumIEEE(tmp[:])
}

// Seal recomputes and stores the blob CRC.
func (c *Config) Seal() {
	blob := c.Marshal()
	c.CRC = blobCRC(blob[:])
}

// ValidBlob checks version, size and CRC.
func ValidBlob(b []byte) bool {
	if len(b) != ConfigSize || b[cfgOffVer] != ConfigVersion || b[cfgOffSize] != ConfigSize {
		return false
	}
	return rd32(b[cfgOffCRC:]) == blobCRC(b)
}

// ConfigStore manages the two persistent slots. Exactly one slot is active:
// the one with the higher valid sequence number, slot A on ties. Commit is
// atomic at sector granularity: the previously active slot is untouched
// until the new one is fully written and verified.
type ConfigStore struct {
	flash *spiflash.Device

	active  int // 0 = A, 1 = B, -1 = none valid
	current Config
	staged  Config
	pending bool // staged-but-not-committed
}

func slotAddr(slot int) uint32 {
	if slot == 1 {
		return ConfigSlotBAddr
	}
	return ConfigSlotAAddr
}

func NewConfigStore(flash *spiflash.Device) *ConfigStore {
	return &ConfigStore{flash: flash, active: -1}
}

// Load scans both slots and selects the active config, falling back to the
// defaults (and seeding slot A) when neither validates.
func (s *ConfigStore) Load() error {
	var a, b [ConfigSize]byte
	s.flash.Read(ConfigSlotAAddr, a[:])
	s.flash.Read(ConfigSlotBAddr, b[:])
	validA, validB := ValidBlob(a[:]), ValidBlob(b[:])

	switch {
	case validA && validB:
		ca, _ := UnmarshalConfig(a[:])
		cb, _ := UnmarshalConfig(b[:])
		if cb.Seq > ca.Seq {
			s.active, s.current = 1, cb
		} else {
			s.active, s.current = 0, ca
		}
	case validA:
		ca, _ := UnmarshalConfig(a[:])
		s.active, s.current = 0, ca
	case validB:
		cb, _ := UnmarshalConfig(b[:])
		s.active, s.current = 1, cb
	default:
		def := DefaultConfig()
		def.Seal()
		blob := def.Marshal()
		if err := s.flash.UpdateBytes(ConfigSlotAAddr, blob[:]); err != nil {
			return err
		}
		s.active, s.current = 0, def
	}
	s.staged = s.current
	s.pending = false
	return nil
}

// Current returns the running config.
func (s *ConfigStore) Current() Config { return s.current }

// ActiveSlot returns 0 for A, 1 for B, -1 before Load.
func (s *ConfigStore) ActiveSlot() int { return s.active }

// Pending reports whether a staged config awaits commit.
func (s *ConfigStore) Pending() bool { return s.pending }

// SlotSeq returns (seq, valid) for a slot, read from flash.
func (s *ConfigStore) SlotSeq(slot int) (uint32, bool) {
	var b [ConfigSize]byte
	s.flash.Read(slotAddr(slot), b[:])
	if !ValidBlob(b[:]) {
		return 0, false
	}
	return rd32(b[cfgOffSeq:]), true
}

// Stage validates an incoming blob, bumps its sequence past the active one
// and reseals it into the RAM staging copy. Nothing touches flash.
func (s *ConfigStore) Stage(blob []byte) error {
	if !ValidBlob(blob) {
		if len(blob) != ConfigSize {
			return ErrConfigSize
		}
		return ErrConfigCRC
	}
	c, _ := UnmarshalConfig(blob)
	c.Seq = s.current.Seq + 1
	if s.pending && s.staged.Seq >= c.Seq {
		c.Seq = s.staged.Seq + 1
	}
	c.Seal()
	s.staged = c
	s.pending = true
	return nil
}

// StagedBlob returns the sealed staging copy (the running config when
// nothing is staged), as served by config_get.
func (s *ConfigStore) StagedBlob() [ConfigSize]byte {
	return s.staged.Marshal()
}

// Discard drops the staged config, reverting config_get to the running one.
func (s *ConfigStore) Discard() {
	s.staged = s.current
	s.pending = false
}

// Commit writes the staged config to the non-active slot, verifies it by
// read-back, and only then flips the active slot. The old slot is left
// intact so an interrupted commit still boots the previous config.
func (s *ConfigStore) Commit() error {
	if !s.pending {
		// Committing without a stage rewrites the current config; harmless.
		s.staged = s.current
	}
	target := 1 - s.active
	if s.active < 0 {
		target = 0
	}
	blob := s.staged.Marshal()
	if err := s.flash.UpdateBytes(slotAddr(target), blob[:]); err != nil {
		return err
	}
	var back [ConfigSize]byte
	s.flash.Read(slotAddr(target), back[:])
	if !ValidBlob(back[:]) || back != blob {
		return ErrConfigCRC
	}
	s.active = target
	s.current = s.staged
	s.pending = false
	return nil
}
