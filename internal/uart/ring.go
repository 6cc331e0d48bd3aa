package uart

import "sync/atomic"

// ringSize must stay a power of two so the index mask is a single AND.
const ringSize = 128

// Ring is a single-producer/single-consumer byte ring. The RX interrupt is
// the only writer of head; the main loop is the only writer of tail. Indices
// grow without bound and are masked on access, so Used is a plain subtraction.
type Ring struct {
	buf  [ringSize]byte
	head atomic.Uint32 // producer owned
	tail atomic.Uint32 // consumer owned
}

// Size returns the ring capacity in bytes.
func (r *Ring) Size() int { return ringSize }

// Used returns how many bytes are buffered.
func (r *Ring) Used() int {
	return int(r.head.Load() - r.tail.Load())
}

// Put stores one byte. When the ring is full the newest byte is dropped and
// Put reports false. ISR side only.
func (r *Ring) Put(b byte) bool {
	h := r.head.Load()
	if h-r.tail.Load() >= ringSize {
		return false
	}
	r.buf[h&(ringSize-1)] = b // 1) write data
	r.head.Store(h + 1)       // 2) publish
	return true
}

// Get removes one byte. Main loop side only.
func (r *Ring) Get() (byte, bool) {
	t := r.tail.Load()
	if r.head.Load() == t {
		return 0, false
	}
	b := r.buf[t&(ringSize-1)] // 1) read element
	r.tail.Store(t + 1)        // 2) publish consumption
	return b, true
}

// Clear resets both indices. Only safe while the producer is quiescent.
func (r *Ring) Clear() {
	r.head.Store(0)
	r.tail.Store(0)
}
