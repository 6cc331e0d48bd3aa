package ui

// Q15 trigonometry indexed by degrees clockwise from east: in screen
// coordinates (+Y down) the unit vector for angle a is (CosQ15(a),
// SinQ15(a)), so angles sweep visually clockwise.

// first quadrant, one entry per degree, round(32767*sin(d))
var sinQ15Table = [91]int16{
	0, 572, 1144, 1715, 2286, 2856, 3425, 3993, 4560, 5126,
	5690, 6252, 6813, 7371, 7927, 8481, 9032, 9580, 10126, 10668,
	11207, 11743, 12275, 12803, 13328, 13848, 14365, 14876, 15384, 15886,
	16384, 16877, 17364, 17847, 18324, 18795, 19261, 19720, 20174, 20622,
	21063, 21498, 21926, 22348, 22763, 23170, 23571, 23965, 24351, 24730,
	25102, 25466, 25822, 26170, 26510, 26842, 27166, 27482, 27789, 28088,
	28378, 28660, 28932, 29197, 29452, 29698, 29935, 30163, 30382, 30592,
	30792, 30983, 31164, 31336, 31499, 31651, 31795, 31928, 32052, 32166,
	32270, 32365, 32449, 32524, 32588, 32643, 32688, 32723, 32748, 32763,
	32767,
}

// SinQ15 returns sin of deg (any integer degree) in Q15.
func SinQ15(deg int) int16 {
	d := deg % 360
	if d < 0 {
		d += 360
	}
	switch {
	case d <= 90:
		return sinQ15Table[d]
	case d <= 180:
		return sinQ15Table[180-d]
	case d <= 270:
		return -sinQ15Table[d-180]
	default:
		return -sinQ15Table[360-d]
	}
}

// CosQ15 returns cos of deg in Q15.
func CosQ15(deg int) int16 {
	return SinQ15(deg + 90)
}
