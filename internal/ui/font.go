package ui

// Bitmap font: classic 5x7 column-packed glyphs (bit 0 = top row) rendered
// at four integer scales. Stroke font: programmatic vector glyphs for the
// large numeric readouts.

// Font sizes map to integer pixel scales of the 5x7 base.
const (
	FontSmall  = 1
	FontMedium = 2
	FontLarge  = 3
	FontHuge   = 4
)

const (
	glyphW    = 5
	glyphH    = 7
	glyphPad  = 1
	glyphFrom = ' '
	glyphTo   = 'Z'
)

// ASCII 0x20..0x5A. Lowercase input is folded to uppercase.
var font5x7 = [glyphTo - glyphFrom + 1][glyphW]byte{
	{0x00, 0x00, 0x00, 0x00, 0x00}, // space
	{0x00, 0x00, 0x5F, 0x00, 0x00}, // !
	{0x00, 0x07, 0x00, 0x07, 0x00}, // "
	{0x14, 0x7F, 0x14, 0x7F, 0x14}, // #
	{0x24, 0x2A, 0x7F, 0x2A, 0x12}, // $
	{0x23, 0x13, 0x08, 0x64, 0x62}, // %
	{0x36, 0x49, 0x55, 0x22, 0x50}, // &
	{0x00, 0x05, 0x03, 0x00, 0x00}, // '
	{0x00, 0x1C, 0x22, 0x41, 0x00}, // (
	{0x00, 0x41, 0x22, 0x1C, 0x00}, // )
	{0x14, 0x08, 0x3E, 0x08, 0x14}, // *
	{0x08, 0x08, 0x3E, 0x08, 0x08}, // +
	{0x00, 0x50, 0x30, 0x00, 0x00}, // ,
	{0x08, 0x08, 0x08, 0x08, 0x08}, // -
	{0x00, 0x60, 0x60, 0x00, 0x00}, // .
	{0x20, 0x10, 0x08, 0x04, 0x02}, // /
	{0x3E, 0x51, 0x49, 0x45, 0x3E}, // 0
	{0x00, 0x42, 0x7F, 0x40, 0x00}, // 1
	{0x42, 0x61, 0x51, 0x49, 0x46}, // 2
	{0x21, 0x41, 0x45, 0x4B, 0x31}, // 3
	{0x18, 0x14, 0x12, 0x7F, 0x10}, // 4
	{0x27, 0x45, 0x45, 0x45, 0x39}, // 5
	{0x3C, 0x4A, 0x49, 0x49, 0x30}, // 6
	{0x01, 0x71, 0x09, 0x05, 0x03}, // 7
	{0x36, 0x49, 0x49, 0x49, 0x36}, // 8
	{0x06, 0x49, 0x49, 0x29, 0x1E}, // 9
	{0x00, 0x36, 0x36, 0x00, 0x00}, // :
	{0x00, 0x56, 0x36, 0x00, 0x00}, // ;
	{0x08, 0x14, 0x22, 0x41, 0x00}, // <
	{0x14, 0x14, 0x14, 0x14, 0x14}, // =
	{0x00, 0x41, 0x22, 0x14, 0x08}, // >
	{0x02, 0x01, 0x51, 0x09, 0x06}, // ?
	{0x32, 0x49, 0x79, 0x41, 0x3E}, // @
	{0x7E, 0x11, 0x11, 0x11, 0x7E}, // A
	{0x7F, 0x49, 0x49, 0x49, 0x36}, // B
	{0x3E, 0x41, 0x41, 0x41, 0x22}, // C
	{0x7F, 0x41, 0x41, 0x22, 0x1C}, // D
	{0x7F, 0x49, 0x49, 0x49, 0x41}, // E
	{0x7F, 0x09, 0x09, 0x09, 0x01}, // F
	{0x3E, 0x41, 0x49, 0x49, 0x7A}, // G
	{0x7F, 0x08, 0x08, 0x08, 0x7F}, // H
	{0x00, 0x41, 0x7F, 0x41, 0x00}, // I
	{0x20, 0x40, 0x41, 0x3F, 0x01}, // J
	{0x7F, 0x08, 0x14, 0x22, 0x41}, // K
	{0x7F, 0x40, 0x40, 0x40, 0x40}, // L
	{0x7F, 0x02, 0x0C, 0x02, 0x7F}, // M
	{0x7F, 0x04, 0x08, 0x10, 0x7F}, // N
	{0x3E, 0x41, 0x41, 0x41, 0x3E}, // O
	{0x7F, 0x09, 0x09, 0x09, 0x06}, // P
	{0x3E, 0x41, 0x51, 0x21, 0x5E}, // Q
	{0x7F, 0x09, 0x19, 0x29, 0x46}, // R
	{0x46, 0x49, 0x49, 0x49, 0x31}, // S
	{0x01, 0x01, 0x7F, 0x01, 0x01}, // T
	{0x3F, 0x40, 0x40, 0x40, 0x3F}, // U
	{0x1F, 0x20, 0x40, 0x20, 0x1F}, // V
	{0x3F, 0x40, 0x38, 0x40, 0x3F}, // W
	{0x63, 0x14, 0x08, 0x14, 0x63}, // X
	{0x07, 0x08, 0x70, 0x08, 0x07}, // Y
	{0x61, 0x51, 0x49, 0x45, 0x43}, // Z
}

func glyphFor(ch byte) *[glyphW]byte {
	if ch >= 'a' && ch <= 'z' {
		ch -= 'a' - 'A'
	}
	if ch < glyphFrom || ch > glyphTo {
		ch = '?'
	}
	return &font5x7[ch-glyphFrom]
}

// TextWidth returns the pixel width of s at scale.
func TextWidth(s string, scale int16) int16 {
	if len(s) == 0 {
		return 0
	}
	return int16(len(s)) * (glyphW + glyphPad) * scale
}

// TextHeight returns the pixel height of the bitmap font at scale.
func TextHeight(scale int16) int16 { return glyphH * scale }

// Text draws s at (x,y) top-left in the bitmap font at scale. Only set
// bits are drawn; the caller paints the background.
func Text(c *Canvas, x, y int16, s string, scale int16, color uint16) {
	for i := 0; i < len(s); i++ {
		g := glyphFor(s[i])
		gx := x + int16(i)*(glyphW+glyphPad)*scale
		for col := int16(0); col < glyphW; col++ {
			bits := g[col]
			for row := int16(0); row < glyphH; row++ {
				if bits&(1<<uint(row)) == 0 {
					continue
				}
				if scale == 1 {
					c.WritePixel(gx+col, y+row, color)
				} else {
					c.FillRect(gx+col*scale, y+row*scale, scale, scale, color)
				}
			}
		}
	}
}

// stroke font: glyphs as segment lists on a 0..6 x 0..10 grid, scaled.
type strokeSeg struct {
	x0, y0, x1, y1 int8
}

var strokeDigits = [10][]strokeSeg{
	{{0, 0, 6, 0}, {6, 0, 6, 10}, {6, 10, 0, 10}, {0, 10, 0, 0}},             // 0
	{{3, 0, 3, 10}, {1, 2, 3, 0}},                                            // 1
	{{0, 0, 6, 0}, {6, 0, 6, 5}, {6, 5, 0, 5}, {0, 5, 0, 10}, {0, 10, 6, 10}}, // 2
	{{0, 0, 6, 0}, {6, 0, 6, 10}, {0, 5, 6, 5}, {0, 10, 6, 10}},              // 3
	{{0, 0, 0, 5}, {0, 5, 6, 5}, {6, 0, 6, 10}},                              // 4
	{{6, 0, 0, 0}, {0, 0, 0, 5}, {0, 5, 6, 5}, {6, 5, 6, 10}, {6, 10, 0, 10}}, // 5
	{{6, 0, 0, 0}, {0, 0, 0, 10}, {0, 10, 6, 10}, {6, 10, 6, 5}, {6, 5, 0, 5}}, // 6
	{{0, 0, 6, 0}, {6, 0, 2, 10}},                                            // 7
	{{0, 0, 6, 0}, {6, 0, 6, 10}, {6, 10, 0, 10}, {0, 10, 0, 0}, {0, 5, 6, 5}}, // 8
	{{6, 5, 0, 5}, {0, 5, 0, 0}, {0, 0, 6, 0}, {6, 0, 6, 10}, {6, 10, 0, 10}}, // 9
}

const (
	strokeGridW = 6
	strokeGridH = 10
)

// StrokeDigitWidth returns the advance of one stroke digit at scale.
func StrokeDigitWidth(scale int16) int16 { return (strokeGridW + 2) * scale }

// strokeLine draws a thick line between grid points scaled by scale.
func strokeLine(c *Canvas, x, y int16, s strokeSeg, scale, thick int16, color uint16) {
	x0 := x + int16(s.x0)*scale
	y0 := y + int16(s.y0)*scale
	x1 := x + int16(s.x1)*scale
	y1 := y + int16(s.y1)*scale

	dx := x1 - x0
	dy := y1 - y0
	steps := dx
	if steps < 0 {
		steps = -steps
	}
	if dy > steps {
		steps = dy
	}
	if -dy > steps {
		steps = -dy
	}
	if steps == 0 {
		c.FillRect(x0, y0, thick, thick, color)
		return
	}
	for i := int16(0); i <= steps; i++ {
		px := x0 + dx*i/steps
		py := y0 + dy*i/steps
		c.FillRect(px, py, thick, thick, color)
	}
}

// StrokeDigit draws digit d (0-9) at (x,y) top-left.
func StrokeDigit(c *Canvas, x, y int16, d int, scale int16, color uint16) {
	if d < 0 || d > 9 {
		return
	}
	thick := scale
	if thick < 1 {
		thick = 1
	}
	for _, s := range strokeDigits[d] {
		strokeLine(c, x, y, s, scale, thick, color)
	}
}

// StrokeNumber draws the decimal digits of s ('0'-'9', ':', '.', '-' and
// space) left to right and returns the advance.
func StrokeNumber(c *Canvas, x, y int16, s string, scale int16, color uint16) int16 {
	adv := int16(0)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
			StrokeDigit(c, x+adv, y, int(ch-'0'), scale, color)
			adv += StrokeDigitWidth(scale)
		case ch == ':':
			c.FillRect(x+adv+scale, y+3*scale, scale, scale, color)
			c.FillRect(x+adv+scale, y+7*scale, scale, scale, color)
			adv += 4 * scale
		case ch == '.':
			c.FillRect(x+adv+scale, y+(strokeGridH-1)*scale, scale, scale, color)
			adv += 4 * scale
		case ch == '-':
			c.FillRect(x+adv, y+5*scale, strokeGridW*scale, scale, color)
			adv += StrokeDigitWidth(scale)
		default:
			adv += StrokeDigitWidth(scale)
		}
	}
	return adv
}
