package proto

// frame buffer: SOF + CMD + LEN + payload + checksum
const frameBufSize = 3 + MaxPayload + 1

const ttmLineMax = 48

// BLEState tracks what the TTM text overlay has reported about the module.
type BLEState struct {
	Connected bool
	MAC       [12]byte
	HasMAC    bool
}

// Parser is the per-port framing state machine. It scans bytes into a frame
// buffer, resets on any framing error, and hands complete verified frames to
// the dispatch callback. On the BLE port it also accumulates TTM status
// lines whenever no binary frame is in progress.
type Parser struct {
	OnFrame func(cmd byte, payload []byte)

	buf    [frameBufSize]byte
	n      int
	active bool

	LastRxMS uint32
	Errors   uint8 // saturating count since the last hacker exchange

	textMode bool
	line     [ttmLineMax]byte
	lineN    int
	ble      *BLEState
}

// NewParser returns a parser. ble is non-nil only for the BLE port.
func NewParser(ble *BLEState) *Parser {
	return &Parser{ble: ble}
}

func (p *Parser) countError() {
	if p.Errors < 0x0F {
		p.Errors++
	}
}

// TakeErrors returns and clears the framing-error count.
func (p *Parser) TakeErrors() uint8 {
	n := p.Errors
	p.Errors = 0
	return n
}

// Feed consumes one received byte.
func (p *Parser) Feed(b byte, nowMS uint32) {
	p.LastRxMS = nowMS

	// SOF always wins: it cancels text accumulation and restarts framing.
	if b == SOF && !p.active {
		p.textMode = false
		p.lineN = 0
		p.buf[0] = b
		p.n = 1
		p.active = true
		return
	}

	if p.textMode {
		p.feedText(b)
		return
	}

	if !p.active {
		if p.ble != nil && b == 'T' {
			p.textMode = true
			p.line[0] = b
			p.lineN = 1
			return
		}
		// idle noise, discard
		return
	}

	p.buf[p.n] = b
	p.n++

	if p.n == 3 && p.buf[2] > MaxPayload {
		p.reset()
		p.countError()
		return
	}
	if p.n >= 3 && p.n == 4+int(p.buf[2]) {
		if Checksum(p.buf[1:p.n-1]) != p.buf[p.n-1] {
			p.reset()
			p.countError()
			return
		}
		cmd := p.buf[1]
		payload := p.buf[3 : 3+int(p.buf[2])]
		p.reset()
		if p.OnFrame != nil {
			p.OnFrame(cmd, payload)
		}
	}
}

func (p *Parser) reset() {
	p.n = 0
	p.active = false
}

func (p *Parser) feedText(b byte) {
	if b == '\n' || b == '\r' {
		p.parseTTMLine(p.line[:p.lineN])
		p.textMode = false
		p.lineN = 0
		return
	}
	if p.lineN < len(p.line) {
		p.line[p.lineN] = b
		p.lineN++
	}
	// overlong lines keep consuming until the terminator and are discarded
}

func hasPrefix(b []byte, s string) bool {
	if len(b) < len(s) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if b[i] != s[i] {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'A' && c <= 'F' || c >= 'a' && c <= 'f'
}

func (p *Parser) parseTTMLine(line []byte) {
	switch {
	case hasPrefix(line, "TTM:CONNECTED"):
		p.ble.Connected = true
	case hasPrefix(line, "TTM:DISCONNECT"):
		p.ble.Connected = false
	case hasPrefix(line, "TTM:MAC-"):
		mac := line[len("TTM:MAC-"):]
		if len(mac) < len(p.ble.MAC) {
			return
		}
		for i := range p.ble.MAC {
			if !isHex(mac[i]) {
				return
			}
		}
		copy(p.ble.MAC[:], mac)
		p.ble.HasMAC = true
	}
	// anything else is module chatter, dropped
}
