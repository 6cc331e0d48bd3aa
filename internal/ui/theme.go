package ui

// Theme identifiers, matching the config blob's theme field.
const (
	ThemeDay = iota
	ThemeNight
	ThemeHighContrast
	ThemeColorblind
	ThemeCount
)

// Palette slot indices.
const (
	SlotBG = iota
	SlotPanel
	SlotText
	SlotMuted
	SlotAccent
	SlotWarn
	SlotDanger
	SlotOK
	slotCount
)

// Palette is one theme's 8-slot color table.
type Palette struct {
	Colors [slotCount]uint16
	// Dither enables ordered-dither soft fills on panels larger than the
	// area threshold.
	Dither bool
}

// RGB565 packs 8-bit components into the panel's pixel format.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

var palettes = [ThemeCount]Palette{
	ThemeDay: {Colors: [slotCount]uint16{
		SlotBG:     RGB565(245, 245, 240),
		SlotPanel:  RGB565(225, 228, 232),
		SlotText:   RGB565(24, 24, 28),
		SlotMuted:  RGB565(120, 126, 134),
		SlotAccent: RGB565(0, 102, 204),
		SlotWarn:   RGB565(230, 150, 0),
		SlotDanger: RGB565(200, 32, 32),
		SlotOK:     RGB565(24, 150, 70),
	}, Dither: true},
	ThemeNight: {Colors: [slotCount]uint16{
		SlotBG:     RGB565(8, 10, 14),
		SlotPanel:  RGB565(28, 32, 40),
		SlotText:   RGB565(230, 232, 236),
		SlotMuted:  RGB565(110, 116, 126),
		SlotAccent: RGB565(80, 160, 255),
		SlotWarn:   RGB565(255, 176, 32),
		SlotDanger: RGB565(255, 72, 72),
		SlotOK:     RGB565(64, 200, 112),
	}, Dither: true},
	ThemeHighContrast: {Colors: [slotCount]uint16{
		SlotBG:     RGB565(0, 0, 0),
		SlotPanel:  RGB565(0, 0, 0),
		SlotText:   RGB565(255, 255, 255),
		SlotMuted:  RGB565(200, 200, 200),
		SlotAccent: RGB565(255, 255, 0),
		SlotWarn:   RGB565(255, 255, 0),
		SlotDanger: RGB565(255, 0, 0),
		SlotOK:     RGB565(0, 255, 0),
	}},
	ThemeColorblind: {Colors: [slotCount]uint16{
		SlotBG:     RGB565(16, 16, 20),
		SlotPanel:  RGB565(40, 44, 52),
		SlotText:   RGB565(240, 240, 240),
		SlotMuted:  RGB565(130, 134, 142),
		SlotAccent: RGB565(86, 180, 233), // sky blue
		SlotWarn:   RGB565(230, 159, 0),  // orange
		SlotDanger: RGB565(213, 94, 0),   // vermillion
		SlotOK:     RGB565(0, 158, 115),  // bluish green
	}},
}

// ThemePalette returns the palette for theme, clamping out-of-range ids.
func ThemePalette(theme uint8) *Palette {
	if theme >= ThemeCount {
		theme = ThemeDay
	}
	return &palettes[theme]
}

// ditherAreaThreshold is the panel area above which dither-capable themes
// use a soft two-color fill.
const ditherAreaThreshold = 2400

// Lerp blends a toward b by t/255 per RGB565 channel, rounding to nearest.
func Lerp(a, b uint16, t uint8) uint16 {
	lerpCh := func(av, bv uint16) uint16 {
		return uint16((int32(av)*(255-int32(t)) + int32(bv)*int32(t) + 127) / 255)
	}
	r := lerpCh(a>>11&0x1F, b>>11&0x1F)
	g := lerpCh(a>>5&0x3F, b>>5&0x3F)
	bl := lerpCh(a&0x1F, b&0x1F)
	return r<<11 | g<<5 | bl
}

// Dim scales a color toward black by t/255, rounding to nearest.
func Dim(c uint16, t uint8) uint16 {
	return Lerp(c, 0, t)
}
