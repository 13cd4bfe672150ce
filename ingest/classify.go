package ingest

import (
	"strings"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/drawing"
)

// keywordEntry pairs a utility type with the layer-name keywords that
// suggest it.
type keywordEntry struct {
	Type     asset.Type
	Keywords []string
}

// typeKeywords is an ordered table: the first entry whose keyword matches a
// layer name wins, so table order is the explicit tie-break. Storm precedes
// sewer on purpose — drainage layers routinely carry the generic "SS"/"SD"
// abbreviations, and a name like "STORM_DRAIN_SS" must resolve to storm.
var typeKeywords = []keywordEntry{
	{asset.TypeStorm, []string{"storm", "drain", "sd", "stm", "drainage"}},
	{asset.TypeSewer, []string{"sewer", "san", "sanitary", "ss", "swr"}},
	{asset.TypePotable, []string{"water", "potable", "wtr", "wm", "domestic"}},
	{asset.TypeGas, []string{"gas", "natural", "ng", "fuel"}},
	{asset.TypeElectric, []string{"electric", "elec", "power", "hv", "lv", "mv"}},
	{asset.TypeTelecom, []string{"telecom", "telephone", "tel", "comm", "cable"}},
	{asset.TypeFiber, []string{"fiber", "fibre", "fo", "optical"}},
}

// Classify assigns a suggested utility type to every entity whose layer name
// matches the keyword table (case-insensitive substring match). The result
// is an advisory heuristic — user-correctable, never authoritative. Entities
// on unmatched layers stay unclassified.
func Classify(entities []*NormalizedEntity, layers []drawing.Layer) {
	layerTypes := make(map[string]asset.Type, len(layers))
	for _, layer := range layers {
		if t, ok := classifyLayerName(layer.Name); ok {
			layerTypes[layer.Name] = t
		}
	}
	for _, e := range entities {
		if t, ok := layerTypes[e.Layer]; ok {
			e.SuggestedType = t
		}
	}
}

// classifyLayerName returns the first matching type in table order.
func classifyLayerName(name string) (asset.Type, bool) {
	upper := strings.ToUpper(name)
	for _, entry := range typeKeywords {
		for _, kw := range entry.Keywords {
			if strings.Contains(upper, strings.ToUpper(kw)) {
				return entry.Type, true
			}
		}
	}
	return "", false
}
