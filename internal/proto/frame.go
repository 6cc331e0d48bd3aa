// Package proto implements the framed debug protocol spoken on both serial
// ports: `0x55 CMD LEN PAYLOAD CKSUM` with the checksum being the bitwise
// complement of the XOR over everything before it. Port 0 additionally
// carries the BLE module's TTM text overlay between frames.
package proto

const (
	SOF = 0x55

	// MaxPayload bounds inbound frames. Outbound frames may carry up to a
	// full length byte; large reads (crash dump, debug state) rely on that.
	MaxPayload = 64
)

// Status bytes used in single-byte replies.
const (
	StatusOK          = 0x00
	StatusBlocked     = 0xFC // safety gating (moving, unarmed)
	StatusUnsupported = 0xFD
	StatusInvalid     = 0xFE // bad payload or range
	StatusUnknown     = 0xFF

	// Framing-error statuses reported by the hacker exchange: 0xF0 plus the
	// saturated error count since the last exchange.
	statusFrameErrBase = 0xF0
)

// respBit marks a response command byte. The log frame is the one command
// that never sets it.
const respBit = 0x80

// Checksum computes the frame trailer: the complement of the XOR over
// CMD, LEN and the payload (the SOF is not covered).
func Checksum(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return ^x
}

// AppendFrame appends a complete frame to dst and returns the result.
func AppendFrame(dst []byte, cmd byte, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, SOF, cmd, byte(len(payload)))
	dst = append(dst, payload...)
	return append(dst, Checksum(dst[start+1:]))
}
