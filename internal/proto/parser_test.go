package proto

import (
	"bytes"
	"math/rand"
	"testing"
)

type frameSink struct {
	cmds     []byte
	payloads [][]byte
}

func (s *frameSink) onFrame(cmd byte, payload []byte) {
	s.cmds = append(s.cmds, cmd)
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
}

func newTestParser(ble *BLEState) (*Parser, *frameSink) {
	s := &frameSink{}
	p := NewParser(ble)
	p.OnFrame = s.onFrame
	return p, s
}

func feedAll(p *Parser, data []byte) {
	for _, b := range data {
		p.Feed(b, 0)
	}
}

func TestParserAcceptsEveryLength(t *testing.T) {
	for n := 0; n <= MaxPayload; n++ {
		p, s := newTestParser(nil)
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		feedAll(p, AppendFrame(nil, 0x42, payload))
		if len(s.cmds) != 1 || s.cmds[0] != 0x42 {
			t.Fatalf("len %d: %d dispatches", n, len(s.cmds))
		}
		if !bytes.Equal(s.payloads[0], payload) {
			t.Fatalf("len %d: payload mangled", n)
		}
	}
}

func TestParserRejectsOversizeLen(t *testing.T) {
	p, s := newTestParser(nil)
	feedAll(p, []byte{SOF, 0x01, MaxPayload + 1})
	if p.Errors != 1 {
		t.Fatalf("errors = %d", p.Errors)
	}
	// the port stays receptive
	feedAll(p, AppendFrame(nil, 0x01, nil))
	if len(s.cmds) != 1 {
		t.Fatal("parser stuck after oversize LEN")
	}
}

func TestParserRejectsBadChecksum(t *testing.T) {
	p, s := newTestParser(nil)
	f := AppendFrame(nil, 0x01, []byte{1, 2, 3})
	f[len(f)-1] ^= 0xFF
	feedAll(p, f)
	if len(s.cmds) != 0 {
		t.Fatal("corrupt frame dispatched")
	}
	if p.Errors != 1 {
		t.Fatalf("errors = %d", p.Errors)
	}
}

func TestParserSurvivesNoise(t *testing.T) {
	p, s := newTestParser(nil)
	rng := rand.New(rand.NewSource(1))
	noise := make([]byte, 4096)
	for i := range noise {
		noise[i] = byte(rng.Intn(256))
	}
	feedAll(p, noise)
	// whatever the noise did, a clean frame afterwards must parse, possibly
	// after the parser digests a partial frame the noise started
	preamble := make([]byte, frameBufSize)
	feedAll(p, preamble)
	p.reset()
	before := len(s.cmds)
	feedAll(p, AppendFrame(nil, 0x0A, []byte{9}))
	if len(s.cmds) != before+1 {
		t.Fatal("clean frame not parsed after noise")
	}
}

func TestParserPayloadMayContainSOF(t *testing.T) {
	p, s := newTestParser(nil)
	feedAll(p, AppendFrame(nil, 0x31, []byte{SOF, SOF, SOF}))
	if len(s.cmds) != 1 || !bytes.Equal(s.payloads[0], []byte{SOF, SOF, SOF}) {
		t.Fatal("SOF bytes inside payload broke framing")
	}
}

func TestTTMOverlay(t *testing.T) {
	var ble BLEState
	p, _ := newTestParser(&ble)

	feedAll(p, []byte("TTM:CONNECTED\r\n"))
	if !ble.Connected {
		t.Fatal("connect line ignored")
	}
	feedAll(p, []byte("TTM:MAC-0011AABBCCDD\n"))
	if !ble.HasMAC || string(ble.MAC[:]) != "0011AABBCCDD" {
		t.Fatalf("mac = %q has=%v", ble.MAC, ble.HasMAC)
	}
	feedAll(p, []byte("TTM:DISCONNECT\n"))
	if ble.Connected {
		t.Fatal("disconnect line ignored")
	}
}

func TestTTMJunkLinesDiscarded(t *testing.T) {
	var ble BLEState
	p, s := newTestParser(&ble)
	feedAll(p, []byte("TTM:SOMETHINGELSE\n"))
	feedAll(p, []byte("TTM:MAC-NOTHEX!!!!!!\n"))
	if ble.Connected || ble.HasMAC {
		t.Fatal("junk line changed state")
	}
	if len(s.cmds) != 0 {
		t.Fatal("text dispatched a frame")
	}
}

func TestSOFCancelsTextMode(t *testing.T) {
	var ble BLEState
	p, s := newTestParser(&ble)
	feedAll(p, []byte("TTM:CONNE")) // unterminated text
	feedAll(p, AppendFrame(nil, 0x01, nil))
	if len(s.cmds) != 1 {
		t.Fatal("SOF did not reset text mode")
	}
	if ble.Connected {
		t.Fatal("partial text line applied")
	}
}

func TestTextModeOnlyOnBLEPort(t *testing.T) {
	p, s := newTestParser(nil) // motor port has no BLE state
	feedAll(p, []byte("TTM:CONNECTED\n"))
	feedAll(p, AppendFrame(nil, 0x01, nil))
	if len(s.cmds) != 1 {
		t.Fatal("text bytes wedged the motor port parser")
	}
}

func TestChecksumVectors(t *testing.T) {
	// literal vectors from the bring-up notes
	if got := Checksum([]byte{0x01, 0x00}); got != 0xFE {
		t.Fatalf("ping checksum = %#x", got)
	}
	if got := Checksum([]byte{0x0E, 0x00}); got != 0xF1 {
		t.Fatalf("reboot checksum = %#x", got)
	}
}
