package drawing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSON interchange codec for Document. The external CAD toolchain (batch
// converter + geometry parser) emits drawings in this representation; tests
// build documents directly. Entity records carry a "type" discriminator.

type jsonDocument struct {
	Version  string         `json:"version"`
	Header   map[string]any `json:"header"`
	Layers   []Layer        `json:"layers"`
	GeoData  *GeoData       `json:"geodata,omitempty"`
	Entities []jsonEntity   `json:"entities"`
}

type jsonEntity struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
	Layer  string `json:"layer"`

	Start      *Point       `json:"start,omitempty"`
	End        *Point       `json:"end,omitempty"`
	Vertices   []Point      `json:"vertices,omitempty"`
	Vertices2D [][2]float64 `json:"vertices_2d,omitempty"`
	Closed     bool         `json:"closed,omitempty"`
	Center     *Point       `json:"center,omitempty"`
	Radius     float64      `json:"radius,omitempty"`
	StartAngle float64      `json:"start_angle,omitempty"`
	EndAngle   float64      `json:"end_angle,omitempty"`
	Name       string       `json:"name,omitempty"`
	Rotation   float64      `json:"rotation,omitempty"`
}

// Decode reads a JSON interchange document.
func Decode(r io.Reader) (*Document, error) {
	var jd jsonDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&jd); err != nil {
		return nil, fmt.Errorf("decode drawing: %w", err)
	}

	doc := &Document{
		Version: jd.Version,
		Header:  jd.Header,
		Layers:  jd.Layers,
		GeoData: jd.GeoData,
	}
	if doc.Header == nil {
		doc.Header = map[string]any{}
	}
	for _, je := range jd.Entities {
		doc.Entities = append(doc.Entities, je.entity())
	}
	return doc, nil
}

// Load reads a JSON interchange document from a file.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open drawing %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

func (je jsonEntity) entity() Entity {
	ref := Ref{H: je.Handle, L: je.Layer}
	pt := func(p *Point) Point {
		if p == nil {
			return Point{}
		}
		return *p
	}
	switch je.Type {
	case "LINE":
		return &Line{Ref: ref, Start: pt(je.Start), End: pt(je.End)}
	case "POLYLINE":
		return &Polyline{Ref: ref, Vertices: je.Vertices, Closed: je.Closed}
	case "LWPOLYLINE":
		return &LWPolyline{Ref: ref, Vertices: je.Vertices2D, Closed: je.Closed}
	case "CIRCLE":
		return &Circle{Ref: ref, Center: pt(je.Center), Radius: je.Radius}
	case "ARC":
		return &Arc{Ref: ref, Center: pt(je.Center), Radius: je.Radius,
			StartAngle: je.StartAngle, EndAngle: je.EndAngle}
	case "INSERT":
		return &Insert{Ref: ref, Name: je.Name, Rotation: je.Rotation}
	default:
		return &Unknown{Ref: ref, Type: je.Type}
	}
}
