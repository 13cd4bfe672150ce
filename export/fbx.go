package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pipevision/pipevision/asset"
	"github.com/pipevision/pipevision/convert"
	"github.com/pipevision/pipevision/solid"
)

// fbxSections is the circumferential resolution used by the Blender script.
const fbxSections = 16

// FBX is the external-tool-mediated mesh adapter. It serializes the asset
// set to a data file and has headless Blender build and export the scene.
// Degradation chain: Blender missing, timed out, or exiting nonzero falls
// back to the direct solid build; when solids exist they are written as OBJ
// under an alternate extension and the export still succeeds with a
// degraded-format warning. Only a fully empty solid set fails.
type FBX struct {
	Options Options
	Blender *convert.Blender
	Logger  *slog.Logger
}

// NewFBX creates the adapter.
func NewFBX(opts Options, blender *convert.Blender, logger *slog.Logger) *FBX {
	if logger == nil {
		logger = slog.Default()
	}
	if blender == nil {
		blender = &convert.Blender{}
	}
	return &FBX{Options: opts, Blender: blender, Logger: logger}
}

func (f *FBX) Format() string { return "fbx" }

// fbxAsset is the per-asset record serialized for the generation script.
type fbxAsset struct {
	Coordinates [][]float64 `json:"coordinates"`
	Type        string      `json:"type"`
	Color       string      `json:"color"`
	Diameter    float64     `json:"diameter"`
	DepthStart  float64     `json:"depth_start"`
	DepthEnd    float64     `json:"depth_end"`
	Label       string      `json:"label"`
}

// Export runs the tool chain.
func (f *FBX) Export(ctx context.Context, assets []*asset.Asset, outputPath string) (Result, error) {
	err := f.exportWithBlender(ctx, assets, outputPath)
	if err == nil {
		return Result{Path: outputPath}, nil
	}
	// The caller gave up; don't degrade, report.
	if ctx.Err() != nil {
		return Result{}, err
	}
	f.Logger.Warn("blender export failed, falling back to direct solid build", "error", err)
	return f.exportFallback(assets, outputPath)
}

func (f *FBX) exportWithBlender(ctx context.Context, assets []*asset.Asset, outputPath string) error {
	if !f.Blender.Available() {
		return convert.ErrToolNotFound
	}

	records := make([]fbxAsset, 0, len(assets))
	for i, a := range assets {
		coords := a.CoordinateList()
		if len(coords) == 0 {
			continue
		}
		typ := a.Type
		if typ == "" {
			typ = asset.TypeUnknown
		}
		label := a.Label
		if label == "" {
			label = fmt.Sprintf("pipe_%d", i)
		}
		records = append(records, fbxAsset{
			Coordinates: coords,
			Type:        string(typ),
			Color:       a.DisplayColor(),
			Diameter:    f.Options.diameter(a),
			DepthStart:  f.Options.depthStart(a),
			DepthEnd:    f.Options.depthEnd(a),
			Label:       label,
		})
	}
	if len(records) == 0 {
		return errors.New("fbx export: no assets with geometry")
	}

	payload, err := json.Marshal(map[string]any{
		"assets": records,
		"options": map[string]any{
			"default_depth":    f.Options.DefaultDepth,
			"default_diameter": f.Options.DefaultDiameter,
			"sections":         fbxSections,
		},
	})
	if err != nil {
		return fmt.Errorf("fbx export: marshal: %w", err)
	}

	dataFile, err := writeTemp("pv_fbx_*.json", payload)
	if err != nil {
		return err
	}
	defer os.Remove(dataFile)
	scriptFile, err := writeTemp("pv_fbx_*.py", []byte(blenderPipeScript))
	if err != nil {
		return err
	}
	defer os.Remove(scriptFile)

	if err := ensureParent(outputPath); err != nil {
		return err
	}
	if err := f.Blender.RunScript(ctx, scriptFile, dataFile, outputPath); err != nil {
		return err
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("fbx export: blender produced no output")
	}

	f.Logger.Info("exported fbx", "assets", len(records), "path", outputPath)
	return nil
}

// exportFallback builds the solids directly and writes the degraded OBJ.
func (f *FBX) exportFallback(assets []*asset.Asset, outputPath string) (Result, error) {
	combined := buildSolid(assets, f.Options, solid.DefaultSections, f.Logger)
	if combined.Empty() {
		return Result{}, fmt.Errorf("fbx export: no solids generated from %d assets", len(assets))
	}

	objPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".obj"
	if err := writeOBJ(combined, objPath); err != nil {
		return Result{}, err
	}
	f.Logger.Warn("fbx unavailable, exported degraded obj instead", "path", objPath)
	return Result{Path: objPath, Degraded: true}, nil
}

func writeTemp(pattern string, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("fbx export: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fbx export: temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fbx export: temp file: %w", err)
	}
	return tmp.Name(), nil
}
