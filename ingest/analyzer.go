// Package ingest normalizes parsed drawing entities into uniform geometric
// records, detects missing georeferencing/depth/label metadata, and assigns
// a best-guess utility type per entity from layer naming.
//
// The run order is fixed: normalization, then classification, then the
// missing-fields summary — label presence is classification's output.
//
// Usage:
//
//	an := ingest.New(ingest.Config{})
//	res := an.Analyze(doc, "site_plan.dxf")
//	fmt.Println(res.Summary.MissingFields, len(res.Entities))
package ingest

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/pipevision/pipevision/drawing"
)

// DepthEpsilon is the smallest |z| (drawing units) that counts as real depth
// information. Values at exactly the epsilon do not count.
const DepthEpsilon = 0.001

// RotationEpsilon is the smallest rotation magnitude (degrees) accepted from
// the UCS X-direction header.
const RotationEpsilon = 0.1

// northArrowTokens are block-name substrings that identify a north arrow
// insertion (case-insensitive).
var northArrowTokens = []string{"NORTH", "NORTHARROW", "N_ARROW", "NORTH_ARROW"}

// crsHeaderVars are probed in order when the drawing has no geodata object.
var crsHeaderVars = []string{"$PROJECTNAME", "$PROJCRS", "$COORDINATE_SYSTEM"}

// unitNames maps the $INSUNITS drawing-scale code to a unit name. Unknown
// codes map to "unknown", never an error.
var unitNames = map[int]string{
	0: "unitless",
	1: "inches",
	2: "feet",
	3: "miles",
	4: "millimeters",
	5: "centimeters",
	6: "meters",
	7: "kilometers",
}

// Config configures an Analyzer.
type Config struct {
	// Logger for per-entity warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Analyzer runs normalization and classification over parsed drawings.
type Analyzer struct {
	logger *slog.Logger
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{logger: cfg.Logger}
}

// Analyze normalizes all entities of doc, classifies them by layer name, and
// computes the drawing summary. A nil document is a whole-file failure;
// individual malformed entities are skipped with a warning.
func (a *Analyzer) Analyze(doc *drawing.Document, filename string) *Result {
	res := &Result{Filename: filename}
	if doc == nil {
		res.Errors = append(res.Errors, "no drawing document")
		return res
	}

	res.Summary.Version = doc.Version
	res.Summary.Units = detectUnits(doc)
	res.Summary.Layers = doc.Layers

	for _, ent := range doc.Entities {
		ne, err := normalizeEntity(ent)
		if err != nil {
			a.logger.Warn("skipping malformed entity",
				"handle", ent.Handle(), "layer", ent.Layer(), "error", err)
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("entity %s: %v", ent.Handle(), err))
			continue
		}
		if ne == nil {
			continue // unsupported kind, silently skipped
		}
		res.Entities = append(res.Entities, ne)
	}

	res.Summary.Bounds = computeBounds(res.Entities)
	res.Summary.HasCRS, res.Summary.DetectedCRS = detectCRS(doc)
	res.Summary.HasDepth = anyDepth(res.Entities)
	res.Summary.HasRotation, res.Summary.RotationDegrees = detectRotation(doc)

	Classify(res.Entities, doc.Layers)

	res.Summary.MissingFields = missingFields(res)
	res.Success = true
	return res
}

// normalizeEntity maps one drawing entity to a normalized record. Returns
// (nil, nil) for unsupported kinds and an error for malformed geometry.
func normalizeEntity(ent drawing.Entity) (*NormalizedEntity, error) {
	ne := &NormalizedEntity{
		Handle: ent.Handle(),
		Layer:  ent.Layer(),
	}

	switch e := ent.(type) {
	case *drawing.Line:
		ne.Kind = KindLine
		ne.Points = []drawing.Point{e.Start, e.End}

	case *drawing.Polyline:
		if len(e.Vertices) == 0 {
			return nil, fmt.Errorf("polyline has no vertices")
		}
		ne.Kind = KindPolyline
		ne.Points = append(ne.Points, e.Vertices...)
		ne.Properties = map[string]any{"closed": e.Closed}

	case *drawing.LWPolyline:
		if len(e.Vertices) == 0 {
			return nil, fmt.Errorf("lwpolyline has no vertices")
		}
		ne.Kind = KindPolyline
		for _, v := range e.Vertices {
			ne.Points = append(ne.Points, drawing.Point{X: v[0], Y: v[1]})
		}
		ne.Properties = map[string]any{"closed": e.Closed}

	case *drawing.Circle:
		if e.Radius < 0 {
			return nil, fmt.Errorf("circle has negative radius %g", e.Radius)
		}
		ne.Kind = KindCircle
		ne.Points = []drawing.Point{e.Center}
		ne.Properties = map[string]any{"radius": e.Radius}

	case *drawing.Arc:
		if e.Radius < 0 {
			return nil, fmt.Errorf("arc has negative radius %g", e.Radius)
		}
		ne.Kind = KindArc
		ne.Points = []drawing.Point{e.Center}
		ne.Properties = map[string]any{
			"radius":      e.Radius,
			"start_angle": e.StartAngle,
			"end_angle":   e.EndAngle,
		}

	default:
		// Insert, Unknown and anything else yield no record.
		return nil, nil
	}

	for _, p := range ne.Points {
		if p.Z != 0 {
			ne.DepthValues = append(ne.DepthValues, p.Z)
		}
	}
	for _, z := range ne.DepthValues {
		if math.Abs(z) > DepthEpsilon {
			ne.HasDepth = true
			break
		}
	}
	return ne, nil
}

// computeBounds folds the min/max (x, y) over all entity points. Nil when
// there are no points at all.
func computeBounds(entities []*NormalizedEntity) *Bounds {
	var b *Bounds
	for _, e := range entities {
		for _, p := range e.Points {
			if b == nil {
				b = &Bounds{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
				continue
			}
			b.MinX = math.Min(b.MinX, p.X)
			b.MinY = math.Min(b.MinY, p.Y)
			b.MaxX = math.Max(b.MaxX, p.X)
			b.MaxY = math.Max(b.MaxY, p.Y)
		}
	}
	return b
}

func detectUnits(doc *drawing.Document) string {
	code, ok := doc.HeaderInt("$INSUNITS")
	if !ok {
		code = 0
	}
	if name, ok := unitNames[code]; ok {
		return name
	}
	return "unknown"
}

// detectCRS tries the drawing-level geodata object first, then the known
// header variables in order. First hit wins.
func detectCRS(doc *drawing.Document) (bool, string) {
	if doc.GeoData != nil && doc.GeoData.CoordinateSystem != "" {
		return true, doc.GeoData.CoordinateSystem
	}
	for _, name := range crsHeaderVars {
		if s, ok := doc.HeaderString(name); ok {
			return true, s
		}
	}
	return false, ""
}

// detectRotation tries the UCS X-direction header vector first (converted to
// degrees via atan2, accepted above RotationEpsilon), then the first block
// insertion whose name contains a north-arrow token.
func detectRotation(doc *drawing.Document) (bool, float64) {
	if x, y, ok := doc.HeaderVector("$UCSXDIR"); ok {
		deg := math.Atan2(y, x) * 180 / math.Pi
		if math.Abs(deg) > RotationEpsilon {
			return true, deg
		}
	}
	for _, ent := range doc.Entities {
		ins, ok := ent.(*drawing.Insert)
		if !ok {
			continue
		}
		name := strings.ToUpper(ins.Name)
		for _, token := range northArrowTokens {
			if strings.Contains(name, token) {
				return true, ins.Rotation
			}
		}
	}
	return false, 0
}

func anyDepth(entities []*NormalizedEntity) bool {
	for _, e := range entities {
		if e.HasDepth {
			return true
		}
	}
	return false
}

// missingFields lists the metadata categories requiring user confirmation,
// in fixed order. Must run after classification: the labels check reads
// suggested types.
func missingFields(res *Result) []string {
	missing := []string{}
	if !res.Summary.HasDepth {
		missing = append(missing, "depth")
	}
	if !res.Summary.HasCRS {
		missing = append(missing, "crs")
	}
	if !res.Summary.HasRotation {
		missing = append(missing, "rotation")
	}
	if res.ClassifiedCount() == 0 {
		missing = append(missing, "labels")
	}
	return missing
}
