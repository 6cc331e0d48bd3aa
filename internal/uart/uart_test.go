package uart

import "testing"

type loopDev struct {
	tx []byte
	rx []byte
}

func (d *loopDev) WriteByte(b byte) { d.tx = append(d.tx, b) }
func (d *loopDev) ReadByte() (byte, bool) {
	if len(d.rx) == 0 {
		return 0, false
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	return b, true
}

func TestRingFillDrainAndOverflow(t *testing.T) {
	var r Ring
	for i := 0; i < r.Size(); i++ {
		if !r.Put(byte(i)) {
			t.Fatalf("Put failed at %d with ring not full", i)
		}
	}
	if r.Used() != r.Size() {
		t.Fatalf("Used = %d, want %d", r.Used(), r.Size())
	}
	// Full: the newest byte is dropped.
	if r.Put(0xEE) {
		t.Fatal("Put succeeded on a full ring")
	}
	for i := 0; i < r.Size(); i++ {
		b, ok := r.Get()
		if !ok || b != byte(i) {
			t.Fatalf("Get #%d = %#x,%v, want %#x", i, b, ok, byte(i))
		}
	}
	if _, ok := r.Get(); ok {
		t.Fatal("Get succeeded on an empty ring")
	}
}

func TestRingInterleaved(t *testing.T) {
	var r Ring
	// Run indices well past one wrap to exercise masking.
	for i := 0; i < 5000; i++ {
		if !r.Put(byte(i)) {
			t.Fatalf("unexpected overflow at %d", i)
		}
		b, ok := r.Get()
		if !ok || b != byte(i) {
			t.Fatalf("step %d: got %#x,%v", i, b, ok)
		}
	}
}

func TestGetcPrefersRingThenRegister(t *testing.T) {
	dev := &loopDev{rx: []byte{'R'}}
	p := NewPort(dev)
	p.Receive('Q')

	if b, ok := p.Getc(); !ok || b != 'Q' {
		t.Fatalf("first Getc = %q,%v, want Q", b, ok)
	}
	// Ring drained: falls through to the data register.
	if b, ok := p.Getc(); !ok || b != 'R' {
		t.Fatalf("second Getc = %q,%v, want R", b, ok)
	}
	if _, ok := p.Getc(); ok {
		t.Fatal("Getc reported data on an idle port")
	}
}

func TestWriteStringInsertsCR(t *testing.T) {
	dev := &loopDev{}
	p := NewPort(dev)
	p.WriteString("ok\n")
	if string(dev.tx) != "ok\r\n" {
		t.Fatalf("wire bytes = %q, want %q", dev.tx, "ok\r\n")
	}
}
