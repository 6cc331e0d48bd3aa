package store

// Stream log: an in-RAM ring of 20-byte ride samples appended at the
// configured log period or alongside telemetry emission.
const (
	StreamRecordSize = 20
	streamRingCap    = 64
)

type StreamSample struct {
	MS         uint32
	SpeedDmph  uint16
	CadenceRPM uint16
	PowerW     uint16
	BatteryDV  uint16
	BatteryDA  uint16
	TempDC     int16
	AssistMode uint8
	Flags      uint8
}

func EncodeStreamSample(s StreamSample) [StreamRecordSize]byte {
	var b [StreamRecordSize]byte
	be32(b[0:], s.MS)
	be16(b[4:], s.SpeedDmph)
	be16(b[6:], s.CadenceRPM)
	be16(b[8:], s.PowerW)
	be16(b[10:], s.BatteryDV)
	be16(b[12:], s.BatteryDA)
	be16(b[14:], uint16(s.TempDC))
	b[16] = s.AssistMode
	b[17] = s.Flags
	be16(b[18:], crc16(b[:18]))
	return b
}

type StreamLog struct {
	recs  [streamRingCap][StreamRecordSize]byte
	head  int
	count int
	seq   uint32

	// PeriodMS = 0 disables the sampler; anything else is a best-effort
	// request bound.
	PeriodMS uint16
	lastMS   uint32
}

func (l *StreamLog) Append(s StreamSample) {
	l.recs[l.head] = EncodeStreamSample(s)
	l.head = (l.head + 1) % streamRingCap
	if l.count < streamRingCap {
		l.count++
	}
	l.seq++
}

// Due reports whether the sampler period has elapsed, and arms the next one.
func (l *StreamLog) Due(nowMS uint32) bool {
	if l.PeriodMS == 0 {
		return false
	}
	if nowMS-l.lastMS < uint32(l.PeriodMS) {
		return false
	}
	l.lastMS = nowMS
	return true
}

func (l *StreamLog) Count() int    { return l.count }
func (l *StreamLog) Capacity() int { return streamRingCap }
func (l *StreamLog) Seq() uint32   { return l.seq }

func (l *StreamLog) Record(i int) ([StreamRecordSize]byte, bool) {
	if i < 0 || i >= l.count {
		return [StreamRecordSize]byte{}, false
	}
	idx := (l.head - l.count + i + streamRingCap*2) % streamRingCap
	return l.recs[idx], true
}

func (l *StreamLog) Reset() {
	l.head, l.count, l.seq = 0, 0, 0
	l.lastMS = 0
}
