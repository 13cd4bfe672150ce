// Package geo reprojects point sequences between coordinate reference
// systems. One Transformer is built per export run; when source and target
// are the same CRS the transform is the identity and no geodesy is involved.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wroge/wgs84"
)

// Transformer reprojects (x, y) and passes z through unchanged. The axis
// order is (longitude, latitude) for geographic systems, (easting, northing)
// for projected ones.
type Transformer struct {
	fn       wgs84.Func
	identity bool
	source   string
	target   string
}

// NewTransformer builds a transformer for the given CRS identifiers
// ("EPSG:4326" or a bare numeric code). Equal identifiers yield the
// identity transform without touching the EPSG repository.
func NewTransformer(sourceCRS, targetCRS string) (*Transformer, error) {
	t := &Transformer{source: sourceCRS, target: targetCRS}
	if strings.EqualFold(sourceCRS, targetCRS) {
		t.identity = true
		return t, nil
	}

	srcCode, err := ParseEPSG(sourceCRS)
	if err != nil {
		return nil, err
	}
	dstCode, err := ParseEPSG(targetCRS)
	if err != nil {
		return nil, err
	}

	repo := wgs84.EPSG()
	from := repo.Code(srcCode)
	if from == nil {
		return nil, fmt.Errorf("geo: unsupported source CRS %q", sourceCRS)
	}
	to := repo.Code(dstCode)
	if to == nil {
		return nil, fmt.Errorf("geo: unsupported target CRS %q", targetCRS)
	}

	t.fn = wgs84.Transform(from, to)
	return t, nil
}

// Identity reports whether the transformer is a no-op.
func (t *Transformer) Identity() bool { return t.identity }

// Transform reprojects one point. Z passes through untouched.
func (t *Transformer) Transform(x, y, z float64) (float64, float64, float64) {
	if t.identity {
		return x, y, z
	}
	tx, ty, _ := t.fn(x, y, z)
	return tx, ty, z
}

// TransformCoord reprojects a 2- or 3-component coordinate slice, returning
// a new slice of the same length.
func (t *Transformer) TransformCoord(coord []float64) []float64 {
	if len(coord) < 2 {
		return coord
	}
	z := 0.0
	if len(coord) > 2 {
		z = coord[2]
	}
	x, y, z := t.Transform(coord[0], coord[1], z)
	out := []float64{x, y}
	if len(coord) > 2 {
		out = append(out, z)
	}
	return out
}

// ParseEPSG extracts the numeric code from an "EPSG:nnnn" identifier. A bare
// number is accepted too.
func ParseEPSG(crs string) (int, error) {
	s := strings.TrimSpace(crs)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		if !strings.EqualFold(s[:i], "EPSG") {
			return 0, fmt.Errorf("geo: unsupported CRS authority in %q", crs)
		}
		s = s[i+1:]
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("geo: invalid CRS identifier %q", crs)
	}
	return code, nil
}

// Round rounds v to the given number of decimal places. Used by every export
// adapter on final output coordinates — after reprojection, never before.
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

// RoundCoord rounds every component of a coordinate in place-free fashion.
func RoundCoord(coord []float64, places int) []float64 {
	out := make([]float64, len(coord))
	for i, v := range coord {
		out[i] = Round(v, places)
	}
	return out
}
