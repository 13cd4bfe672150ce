package asset

import "strconv"

// ParseHexColor converts a "#RRGGBB" string to RGBA bytes with full opacity.
// Malformed input yields the unknown-type grey rather than an error, since a
// bad colour should never sink an export.
func ParseHexColor(hex string) [4]uint8 {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return [4]uint8{0x80, 0x80, 0x80, 0xFF}
	}
	var rgba [4]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return [4]uint8{0x80, 0x80, 0x80, 0xFF}
		}
		rgba[i] = uint8(v)
	}
	rgba[3] = 0xFF
	return rgba
}
