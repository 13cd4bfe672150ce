// Package drawing models a parsed CAD drawing document: the data contract
// between the external CAD-geometry library and this pipeline.
//
// Low-level DWG/DXF grammar parsing is out of scope here — an external
// converter and parser produce a Document; everything downstream (ingest,
// export) consumes it. Entities are a tagged variant over the primitive
// kinds the pipeline understands plus Insert (block references, used only
// for north-arrow rotation detection) and Unknown for everything else.
package drawing

// Point is a 3-D coordinate in drawing units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Layer is one entry of the drawing's layer table.
type Layer struct {
	Name     string `json:"name"`
	Color    int    `json:"color"`
	On       bool   `json:"on"`
	Frozen   bool   `json:"frozen"`
	Linetype string `json:"linetype"`
}

// GeoData is the drawing-level geodetic reference object, when present.
type GeoData struct {
	CoordinateSystem string `json:"coordinate_system"`
}

// Document is one parsed drawing: entities, header variables, layer table.
type Document struct {
	// Version is the drawing format tag (e.g. "AC1032"). Opaque.
	Version string
	// Header holds drawing header variables ($INSUNITS, $UCSXDIR, ...).
	Header map[string]any
	// Layers is the layer table in file order.
	Layers []Layer
	// GeoData is the geodetic reference object, nil if absent.
	GeoData *GeoData
	// Entities is the modelspace entity sequence in file order.
	Entities []Entity
}

// Entity is one drawing primitive. Concrete types: Line, Polyline,
// LWPolyline, Circle, Arc, Insert, Unknown.
type Entity interface {
	Handle() string
	Layer() string
}

// Ref carries the fields every entity has.
type Ref struct {
	H string // entity handle, opaque and stable
	L string // layer name, case-preserving
}

func (r Ref) Handle() string { return r.H }
func (r Ref) Layer() string  { return r.L }

// Line is a straight segment between two 3-D endpoints.
type Line struct {
	Ref
	Start Point
	End   Point
}

// Polyline is a 3-D polyline with explicit vertices.
type Polyline struct {
	Ref
	Vertices []Point
	Closed   bool
}

// LWPolyline is a lightweight 2-D polyline; vertices have no elevation.
type LWPolyline struct {
	Ref
	Vertices [][2]float64
	Closed   bool
}

// Circle is a full circle given by center and radius.
type Circle struct {
	Ref
	Center Point
	Radius float64
}

// Arc is a circular arc given by center, radius and an angle range in degrees.
type Arc struct {
	Ref
	Center     Point
	Radius     float64
	StartAngle float64
	EndAngle   float64
}

// Insert is a block reference. The pipeline only inspects its name and
// rotation (north-arrow detection); its geometry is not expanded.
type Insert struct {
	Ref
	Name     string
	Rotation float64 // degrees
}

// Unknown is any primitive kind the pipeline does not extract. It is kept in
// the entity stream so counts stay honest, but yields no normalized record.
type Unknown struct {
	Ref
	Type string
}

// HeaderString reads a header variable as a string. Returns "" and false when
// the variable is absent or not string-valued.
func (d *Document) HeaderString(name string) (string, bool) {
	v, ok := d.Header[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// HeaderInt reads a header variable as an integer, tolerating the float64
// representation JSON decoding produces.
func (d *Document) HeaderInt(name string) (int, bool) {
	switch v := d.Header[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// HeaderVector reads a header variable as a 2-D direction vector. Accepts a
// Point, a [2]float64 or the []any form from JSON.
func (d *Document) HeaderVector(name string) (x, y float64, ok bool) {
	switch v := d.Header[name].(type) {
	case Point:
		return v.X, v.Y, true
	case [2]float64:
		return v[0], v[1], true
	case []float64:
		if len(v) >= 2 {
			return v[0], v[1], true
		}
	case []any:
		if len(v) >= 2 {
			xf, xok := v[0].(float64)
			yf, yok := v[1].(float64)
			if xok && yok {
				return xf, yf, true
			}
		}
	}
	return 0, 0, false
}
