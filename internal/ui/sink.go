// Package ui is the display engine: dirty-rectangle rendering of a page
// registry onto an abstract drawing sink, with themes, fixed-point geometry
// and two font systems. Renderers never talk to the panel directly; they go
// through the rect-ops and pixel-writer capability sets so the same code
// draws to the LCD, to an in-memory buffer in tests, and into the content
// hash with drawing disabled.
package ui

import (
	"hash/crc32"

	"github.com/darvell/open-bc280-firmware-sub002/internal/st7789"
)

const (
	Width  = st7789.Width
	Height = st7789.Height
)

// Rect is x/y/w/h in screen coordinates.
type Rect struct {
	X, Y, W, H int16
}

func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Intersects reports rectangle overlap; empty rectangles never intersect.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Union returns the bounding rectangle of both.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0, y0 := r.X, r.Y
	if o.X < x0 {
		x0 = o.X
	}
	if o.Y < y0 {
		y0 = o.Y
	}
	x1, y1 := r.X+r.W, r.Y+r.H
	if o.X+o.W > x1 {
		x1 = o.X + o.W
	}
	if o.Y+o.H > y1 {
		y1 = o.Y + o.H
	}
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// RectOps is the bulk-fill capability set.
type RectOps interface {
	FillRect(x, y, w, h int16, color uint16)
}

// PixelWriter is the single-pixel capability set.
type PixelWriter interface {
	WritePixel(x, y int16, color uint16)
}

// Sink is what renderers draw through.
type Sink interface {
	RectOps
	PixelWriter
}

// PanelSink adapts the LCD driver.
type PanelSink struct {
	Dev *st7789.Device
}

func (s *PanelSink) FillRect(x, y, w, h int16, color uint16) {
	s.Dev.FillRect(int(x), int(y), int(w), int(h), color)
}

func (s *PanelSink) WritePixel(x, y int16, color uint16) {
	s.Dev.WritePixel(int(x), int(y), color)
}

// MemSink renders into RAM for tests and screenshots.
type MemSink struct {
	fb [Width * Height]uint16
}

func (s *MemSink) FillRect(x, y, w, h int16, color uint16) {
	x0, y0, x1, y1 := clipRect(x, y, w, h)
	for yy := y0; yy < y1; yy++ {
		row := int(yy) * Width
		for xx := x0; xx < x1; xx++ {
			s.fb[row+int(xx)] = color
		}
	}
}

func (s *MemSink) WritePixel(x, y int16, color uint16) {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return
	}
	s.fb[int(y)*Width+int(x)] = color
}

func (s *MemSink) Pixel(x, y int) uint16 {
	return s.fb[y*Width+x]
}

func clipRect(x, y, w, h int16) (x0, y0, x1, y1 int16) {
	x0, y0 = x, y
	x1, y1 = x+w, y+h
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > Width {
		x1 = Width
	}
	if y1 > Height {
		y1 = Height
	}
	return
}

// Canvas wraps a sink with the draw-enable gate and the content hash. A
// tick first replays the page with drawing disabled to hash what would be
// drawn, then renders for real only if something is dirty.
type Canvas struct {
	sink Sink

	DrawEnabled bool
	Hashing     bool

	hash    uint32
	drawOps uint32

	clip Rect
}

func NewCanvas(sink Sink) *Canvas {
	return &Canvas{sink: sink, DrawEnabled: true, clip: Rect{0, 0, Width, Height}}
}

// BeginHash resets the content hash accumulator.
func (c *Canvas) BeginHash() {
	c.hash = 0
	c.Hashing = true
}

// EndHash stops hashing and returns the accumulated content hash.
func (c *Canvas) EndHash() uint32 {
	c.Hashing = false
	return c.hash
}

func (c *Canvas) Hash() uint32    { return c.hash }
func (c *Canvas) DrawOps() uint32 { return c.drawOps }
func (c *Canvas) ResetDrawOps()   { c.drawOps = 0 }
func (c *Canvas) SetClip(r Rect)  { c.clip = r }
func (c *Canvas) ClearClip()      { c.clip = Rect{0, 0, Width, Height} }

func (c *Canvas) mix(vals ...int32) {
	var b [4]byte
	for _, v := range vals {
		b[0] = byte(v >> 24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
		b[3] = byte(v)
		c.hash = crc32.Update(c.hash, crc32.IEEETable, b[:])
	}
}

// FillRect draws a filled rectangle truncated to the clip.
func (c *Canvas) FillRect(x, y, w, h int16, color uint16) {
	if c.Hashing {
		c.mix(1, int32(x), int32(y), int32(w), int32(h), int32(color))
	}
	if !c.DrawEnabled {
		return
	}
	r := clipTo(Rect{x, y, w, h}, c.clip)
	if r.Empty() {
		return
	}
	c.drawOps++
	c.sink.FillRect(r.X, r.Y, r.W, r.H, color)
}

// clipTo returns the intersection of r and clip.
func clipTo(r, clip Rect) Rect {
	x0, y0 := r.X, r.Y
	if clip.X > x0 {
		x0 = clip.X
	}
	if clip.Y > y0 {
		y0 = clip.Y
	}
	x1, y1 := r.X+r.W, r.Y+r.H
	if clip.X+clip.W < x1 {
		x1 = clip.X + clip.W
	}
	if clip.Y+clip.H < y1 {
		y1 = clip.Y + clip.H
	}
	return Rect{x0, y0, x1 - x0, y1 - y0}
}

// WritePixel draws one pixel subject to the clip.
func (c *Canvas) WritePixel(x, y int16, color uint16) {
	if c.Hashing {
		c.mix(2, int32(x), int32(y), int32(color))
	}
	if !c.DrawEnabled {
		return
	}
	cl := c.clip
	if x < cl.X || y < cl.Y || x >= cl.X+cl.W || y >= cl.Y+cl.H {
		return
	}
	c.drawOps++
	c.sink.WritePixel(x, y, color)
}
