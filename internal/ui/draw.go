package ui

// Drawing primitives. Everything goes through the Canvas so hashing and
// clipping apply uniformly.

// bayer4 is the 4x4 ordered-dither threshold matrix, levels 0..15.
var bayer4 = [4][4]uint8{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// HLine draws a horizontal line. A non-zero dither level (1..15) draws
// alternating pixels of a and b instead of a solid run of a.
func HLine(c *Canvas, x, y, w int16, a, b uint16, dither uint8) {
	if dither == 0 {
		c.FillRect(x, y, w, 1, a)
		return
	}
	for i := int16(0); i < w; i++ {
		col := a
		if bayer4[y&3][(x+i)&3] < dither {
			col = b
		}
		c.WritePixel(x+i, y, col)
	}
}

// FillRoundedRect fills a rectangle with quarter-circle corners of radius r.
func FillRoundedRect(c *Canvas, x, y, w, h, r int16, color uint16) {
	if r <= 0 {
		c.FillRect(x, y, w, h, color)
		return
	}
	if r > w/2 {
		r = w / 2
	}
	if r > h/2 {
		r = h / 2
	}
	c.FillRect(x, y+r, w, h-2*r, color)
	for dy := int16(0); dy < r; dy++ {
		// horizontal chord of the corner circle at this row
		yy := r - dy
		dx := isqrt(int32(r)*int32(r) - int32(yy)*int32(yy))
		c.FillRect(x+r-dx, y+dy, w-2*(r-dx), 1, color)
		c.FillRect(x+r-dx, y+h-1-dy, w-2*(r-dx), 1, color)
	}
}

// FillRoundedRectDither fills a rounded rectangle with an ordered-dither
// blend of a and b at level (0=a .. 16=b).
func FillRoundedRectDither(c *Canvas, x, y, w, h, r int16, a, b uint16, level uint8) {
	if level == 0 {
		FillRoundedRect(c, x, y, w, h, r, a)
		return
	}
	if level >= 16 {
		FillRoundedRect(c, x, y, w, h, r, b)
		return
	}
	if r > w/2 {
		r = w / 2
	}
	if r > h/2 {
		r = h / 2
	}
	for dy := int16(0); dy < h; dy++ {
		x0, x1 := x, x+w
		if r > 0 {
			var yy int16
			if dy < r {
				yy = r - dy
			} else if dy >= h-r {
				yy = dy - (h - 1 - r)
			}
			if yy > 0 {
				dx := isqrt(int32(r)*int32(r) - int32(yy)*int32(yy))
				x0 = x + r - dx
				x1 = x + w - (r - dx)
			}
		}
		for xx := x0; xx < x1; xx++ {
			col := a
			if bayer4[(y+dy)&3][xx&3] < level {
				col = b
			}
			c.WritePixel(xx, y+dy, col)
		}
	}
}

// isqrt is the integer square root, rounded down.
func isqrt(v int32) int16 {
	if v <= 0 {
		return 0
	}
	var r int32
	bit := int32(1) << 14
	for bit > v {
		bit >>= 2
	}
	for bit != 0 {
		if v >= r+bit {
			v -= r + bit
			r = r>>1 + bit
		} else {
			r >>= 1
		}
		bit >>= 2
	}
	return int16(r)
}

// BatteryIcon draws an outlined pill with an inner fill proportional to
// level (0-100). The fill color shifts to warn/danger at low levels.
func BatteryIcon(c *Canvas, x, y, w, h int16, level uint8, pal *Palette) {
	if level > 100 {
		level = 100
	}
	outline := pal.Colors[SlotText]
	fill := pal.Colors[SlotOK]
	switch {
	case level <= 10:
		fill = pal.Colors[SlotDanger]
	case level <= 25:
		fill = pal.Colors[SlotWarn]
	}

	// body outline, nub, interior
	FillRoundedRect(c, x, y, w-3, h, 2, outline)
	c.FillRect(x+w-3, y+h/3, 3, h/3, outline)
	inW := w - 7
	inH := h - 4
	c.FillRect(x+2, y+2, inW, inH, pal.Colors[SlotBG])
	fw := int16(int32(inW) * int32(level) / 100)
	if fw > 0 {
		c.FillRect(x+2, y+2, fw, inH, fill)
	}
}

// WarnTriangle draws a filled warning triangle with an exclamation mark.
func WarnTriangle(c *Canvas, x, y, size int16, pal *Palette) {
	half := size / 2
	for dy := int16(0); dy < size; dy++ {
		w := int16(int32(half) * int32(dy) / int32(size))
		c.FillRect(x+half-w, y+dy, 2*w+1, 1, pal.Colors[SlotWarn])
	}
	bx := x + half
	c.FillRect(bx, y+size/4, 2, size/2-size/8, pal.Colors[SlotBG])
	c.FillRect(bx, y+size-size/6, 2, 2, pal.Colors[SlotBG])
}

// seven-segment encodings, bit order a,b,c,d,e,f,g
var sevenSeg = [10]uint8{
	0b0111111, 0b0000110, 0b1011011, 0b1001111, 0b1100110,
	0b1101101, 0b1111101, 0b0000111, 0b1111111, 0b1101111,
}

// SevenSegDigit draws digit d at scale; the digit body is 6x10 grid units
// with segment thickness of one unit.
func SevenSegDigit(c *Canvas, x, y int16, d int, scale int16, on, off uint16) {
	if d < 0 || d > 9 {
		return
	}
	segs := sevenSeg[d]
	w := 6 * scale
	half := 5 * scale
	t := scale

	pick := func(bit uint8) uint16 {
		if segs&(1<<bit) != 0 {
			return on
		}
		return off
	}
	c.FillRect(x+t, y, w-2*t, t, pick(0))           // a
	c.FillRect(x+w-t, y+t, t, half-t, pick(1))      // b
	c.FillRect(x+w-t, y+half+t, t, half-t, pick(2)) // c
	c.FillRect(x+t, y+2*half, w-2*t, t, pick(3))    // d
	c.FillRect(x, y+half+t, t, half-t, pick(4))     // e
	c.FillRect(x, y+t, t, half-t, pick(5))          // f
	c.FillRect(x+t, y+half, w-2*t, t, pick(6))      // g
}

// SevenSegWidth returns the advance of one digit at scale.
func SevenSegWidth(scale int16) int16 { return 8 * scale }

// SevenSegNumber draws s ('0'-'9' and space) and returns the advance.
func SevenSegNumber(c *Canvas, x, y int16, s string, scale int16, on, off uint16) int16 {
	adv := int16(0)
	for i := 0; i < len(s); i++ {
		if ch := s[i]; ch >= '0' && ch <= '9' {
			SevenSegDigit(c, x+adv, y, int(ch-'0'), scale, on, off)
		}
		adv += SevenSegWidth(scale)
	}
	return adv
}

// RingArc draws an anti-aliased arc of the ring between a0 and a1 degrees
// (clockwise from east), radii rIn..rOut, blending color toward bg with
// 4-bit coverage at the radial edges.
func RingArc(c *Canvas, cx, cy int16, rIn, rOut int16, a0, a1 int, color, bg uint16) {
	if a1 < a0 {
		a0, a1 = a1, a0
	}
	rOut2 := int32(rOut+1) * int32(rOut+1)
	rIn2 := int32(rIn-1) * int32(rIn-1)
	if rIn <= 1 {
		rIn2 = 0
	}

	for dy := -rOut - 1; dy <= rOut+1; dy++ {
		py := cy + dy
		if py < 0 || py >= Height {
			continue
		}
		for dx := -rOut - 1; dx <= rOut+1; dx++ {
			px := cx + dx
			if px < 0 || px >= Width {
				continue
			}
			d2 := int32(dx)*int32(dx) + int32(dy)*int32(dy)
			if d2 > rOut2 || d2 < rIn2 {
				continue
			}
			if !angleWithin(int(dx), int(dy), a0, a1) {
				continue
			}
			// 4-bit coverage from the radial distance fraction
			d := isqrt(d2)
			alpha := int32(15)
			switch {
			case int16(d) > rOut:
				alpha = 15 - (int32(d)-int32(rOut))*15
			case int16(d) < rIn:
				alpha = 15 - (int32(rIn)-int32(d))*15
			}
			if alpha <= 0 {
				continue
			}
			if alpha >= 15 {
				c.WritePixel(px, py, color)
			} else {
				c.WritePixel(px, py, Lerp(bg, color, uint8(alpha*17)))
			}
		}
	}
}

// angleWithin reports whether the pixel offset (dx,dy) lies inside the
// clockwise-from-east arc [a0,a1] using Q15 half-plane tests.
func angleWithin(dx, dy, a0, a1 int) bool {
	if a1-a0 >= 360 {
		return true
	}
	// cross products against the arc boundary vectors
	x0, y0 := int32(CosQ15(a0)), int32(SinQ15(a0))
	x1, y1 := int32(CosQ15(a1)), int32(SinQ15(a1))
	px, py := int32(dx), int32(dy)
	c0 := x0*py - y0*px // >=0 when clockwise past a0
	c1 := x1*py - y1*px // <=0 when not yet past a1
	if a1-a0 <= 180 {
		return c0 >= 0 && c1 <= 0
	}
	return c0 >= 0 || c1 <= 0
}

// RingGauge draws an inactive full sweep and an active sweep proportional
// to value/max over the gauge's 270-degree range starting at 135 degrees.
func RingGauge(c *Canvas, cx, cy, rIn, rOut int16, value, max uint16, active, inactive, bg uint16) {
	const gaugeStart = 135
	const gaugeSweep = 270
	RingArc(c, cx, cy, rIn, rOut, gaugeStart, gaugeStart+gaugeSweep, inactive, bg)
	if max == 0 || value == 0 {
		return
	}
	if value > max {
		value = max
	}
	sweep := int(int32(gaugeSweep) * int32(value) / int32(max))
	if sweep > 0 {
		RingArc(c, cx, cy, rIn, rOut, gaugeStart, gaugeStart+sweep, active, bg)
	}
}
