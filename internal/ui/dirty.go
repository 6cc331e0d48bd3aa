package ui

const dirtyMax = 12

// DirtyTracker is a bounded set of rectangles to redraw. Overflow promotes
// to a single full-screen rectangle.
type DirtyTracker struct {
	rects [dirtyMax]Rect
	n     int
	full  bool
}

// Add appends a rectangle; empty rectangles are ignored.
func (d *DirtyTracker) Add(r Rect) {
	if d.full || r.Empty() {
		return
	}
	if d.n == dirtyMax {
		d.Full()
		return
	}
	d.rects[d.n] = r
	d.n++
}

// Full replaces the set with the whole screen.
func (d *DirtyTracker) Full() {
	d.n = 1
	d.full = true
	d.rects[0] = Rect{0, 0, Width, Height}
}

func (d *DirtyTracker) IsFull() bool { return d.full }
func (d *DirtyTracker) Count() int   { return d.n }

// Rects returns the current set.
func (d *DirtyTracker) Rects() []Rect { return d.rects[:d.n] }

// Reset clears the set.
func (d *DirtyTracker) Reset() {
	d.n = 0
	d.full = false
}
