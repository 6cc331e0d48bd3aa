package store

// Event log: an in-RAM append-only ring of 20-byte records written on
// significant transitions and on the protocol's mark command. Each record
// carries a CRC-16 over its first 18 bytes.
const (
	EventRecordSize = 20
	eventRingCap    = 64
)

// Event types recorded by the firmware.
const (
	EventMark         = 0x00
	EventBrake        = 0x01
	EventCommLoss     = 0x02
	EventDerate       = 0x03
	EventCruiseEngage = 0x04
	EventConfigChange = 0x05
	EventPin          = 0x06
	EventReset        = 0x07
	EventBus          = 0x08
)

type Event struct {
	MS           uint32
	Type         uint8
	Flags        uint8
	SpeedDmph    uint16
	BatteryDV    uint16
	BatteryDA    uint16
	TempDC       int16
	CmdPowerW    uint16
	CmdCurrentDA uint16
}

// EncodeEvent lays out the wire record and seals it with CRC-16.
func EncodeEvent(e Event) [EventRecordSize]byte {
	var b [EventRecordSize]byte
	be32(b[0:], e.MS)
	b[4] = e.Type
	b[5] = e.Flags
	be16(b[6:], e.SpeedDmph)
	be16(b[8:], e.BatteryDV)
	be16(b[10:], e.BatteryDA)
	be16(b[12:], uint16(e.TempDC))
	be16(b[14:], e.CmdPowerW)
	be16(b[16:], e.CmdCurrentDA)
	be16(b[18:], crc16(b[:18]))
	return b
}

// EventLog is the ring. Append overwrites the oldest record once full; seq
// counts every append ever made.
type EventLog struct {
	recs  [eventRingCap][EventRecordSize]byte
	head  int
	count int
	seq   uint32
}

func (l *EventLog) Append(e Event) {
	l.recs[l.head] = EncodeEvent(e)
	l.head = (l.head + 1) % eventRingCap
	if l.count < eventRingCap {
		l.count++
	}
	l.seq++
}

func (l *EventLog) Count() int    { return l.count }
func (l *EventLog) Capacity() int { return eventRingCap }
func (l *EventLog) Seq() uint32   { return l.seq }

// Record returns record i, 0 = oldest retained.
func (l *EventLog) Record(i int) ([EventRecordSize]byte, bool) {
	if i < 0 || i >= l.count {
		return [EventRecordSize]byte{}, false
	}
	idx := (l.head - l.count + i + eventRingCap*2) % eventRingCap
	return l.recs[idx], true
}

// Tail copies up to n of the newest records into dst, newest last, and
// returns how many were copied. Used by the crash dump capture.
func (l *EventLog) Tail(dst [][EventRecordSize]byte) int {
	n := len(dst)
	if n > l.count {
		n = l.count
	}
	for i := 0; i < n; i++ {
		rec, _ := l.Record(l.count - n + i)
		dst[i] = rec
	}
	return n
}

func (l *EventLog) Reset() {
	l.head, l.count, l.seq = 0, 0, 0
}
