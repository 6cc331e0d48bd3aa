package ride

// Wire codecs for the model snapshots served over the debug protocol.
// All multi-byte fields are big-endian.

const (
	StateDumpSize     = 16
	DebugStateVersion = 19
	DebugStateSize    = 122
	TelemetryVersion  = 1
	TelemetrySize     = 22
)

func put16(p []byte, v uint16) {
	p[0] = byte(v >> 8)
	p[1] = byte(v)
}

func put32(p []byte, v uint32) {
	p[0] = byte(v >> 24)
	p[1] = byte(v >> 16)
	p[2] = byte(v >> 8)
	p[3] = byte(v)
}

// EncodeStateDump packs the compact 16-byte state snapshot.
func EncodeStateDump(m *Model) [StateDumpSize]byte {
	var b [StateDumpSize]byte
	put32(b[0:], m.MS)
	put16(b[4:], m.In.RPM)
	put16(b[6:], m.In.TorqueRaw)
	put16(b[8:], m.In.SpeedDmph)
	b[10] = m.SOC
	b[11] = m.In.Err
	put16(b[12:], uint16(m.LastMS))
	return b
}

// EncodeTelemetry packs the versioned streaming payload.
func EncodeTelemetry(m *Model) [TelemetrySize]byte {
	var b [TelemetrySize]byte
	b[0] = TelemetryVersion
	b[1] = TelemetrySize
	put32(b[2:], m.MS)
	put16(b[6:], m.In.SpeedDmph)
	put16(b[8:], m.In.CadenceRPM)
	put16(b[10:], m.CmdPowerW)
	put16(b[12:], m.In.BatteryDV)
	put16(b[14:], m.In.BatteryDA)
	put16(b[16:], uint16(m.In.TempDC))
	b[18] = m.AssistMode
	b[19] = m.ProfileID
	b[20] = m.VirtualGear
	b[21] = m.Flags()
	return b
}

// EncodeDebugState packs the full versioned debug snapshot. The layout is
// append-only across versions; readers key on the version byte.
func EncodeDebugState(m *Model, streamPeriodMS uint16, eventSeq, streamSeq uint32, crc16 func([]byte) uint16) [DebugStateSize]byte {
	var b [DebugStateSize]byte
	b[0] = DebugStateVersion
	b[1] = DebugStateSize
	put32(b[2:], m.MS)
	put16(b[6:], m.In.SpeedDmph)
	put16(b[8:], m.In.RPM)
	put16(b[10:], m.In.CadenceRPM)
	put16(b[12:], m.In.TorqueRaw)
	b[14] = m.In.ThrottlePC
	if m.In.Brake {
		b[15] = 1
	}
	b[16] = m.In.Buttons
	b[17] = m.In.Err
	put16(b[18:], m.In.BatteryDV)
	put16(b[20:], m.In.BatteryDA)
	put16(b[22:], uint16(m.In.TempDC))
	b[24] = m.AssistMode
	b[25] = m.ProfileID
	b[26] = m.VirtualGear
	b[27] = m.LimitReason
	put16(b[28:], m.CmdPowerW)
	put16(b[30:], m.CmdCurrentDA)
	b[32] = m.CruiseMode
	if m.Walk {
		b[33] = 1
	}
	put16(b[34:], m.CruiseDmph)
	put16(b[36:], m.Caps.CurrentDA)
	put16(b[38:], m.Caps.SpeedDmph)
	put16(b[40:], m.Caps.PowerW)
	put32(b[42:], m.Trip.DistanceMM)
	put32(b[46:], m.Trip.EnergyMWh)
	put32(b[50:], m.Trip.MovingMS)
	put16(b[54:], m.Trip.MaxSpeedDmph)
	put16(b[56:], m.Trip.AvgSpeedDmph())
	put32(b[58:], m.Trip.AssistMS)
	put32(b[62:], m.Trip.GearMS)
	put16(b[66:], m.RangeEstHM)
	b[68] = m.RangeConf
	b[69] = m.Gov.ThermalState
	put16(b[70:], m.Gov.PUserW)
	put16(b[72:], m.Gov.PLugW)
	put16(b[74:], m.Gov.PThermW)
	put16(b[76:], m.Gov.PSagW)
	put16(b[78:], m.Gov.PFinalW)
	put32(b[80:], m.Gov.DutyQ16)
	put16(b[84:], m.Gov.PhaseCurrentDA)
	put16(b[86:], m.Gov.SagMarginDV)
	put16(b[88:], m.Ramp.PowerW)
	put16(b[90:], m.Ramp.TargetW)
	b[92] = m.ResetFlags
	b[93] = m.DriveMode
	put16(b[94:], m.DriveSet)
	put16(b[96:], m.Boost.RemainMS)
	put16(b[98:], m.Boost.CoolMS)
	b[100] = m.Regen.Level
	if m.Regen.Active {
		b[101] = 1
	}
	b[102] = m.LockState
	b[103] = m.QuickAction
	put16(b[104:], m.QuickArmMS)
	b[106] = m.UIPage
	b[107] = m.Theme
	b[108] = m.Units
	b[109] = m.Flags()
	put16(b[110:], streamPeriodMS)
	put32(b[112:], eventSeq)
	put32(b[116:], streamSeq)
	put16(b[120:], crc16(b[:120]))
	return b
}
