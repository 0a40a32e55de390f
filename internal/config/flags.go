package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

var (
	flagConfig            = flag.String("config", "", "Path to config file")
	flagDebug             = flag.Bool("debug", false, "Enable debug logging")
	flagRenderWidth       = flag.Int("render-width", 0, "Render width in pixels")
	flagRenderHeight      = flag.Int("render-height", 0, "Render height in pixels")
	flagCameraName        = flag.String("camera-name", "", "Name of the scene camera")
	flagSensorWidth       = flag.Float64("camera-sensor-width", 0, "Camera sensor width (mm)")
	flagSensorHeight      = flag.Float64("camera-sensor-height", 0, "Camera sensor height (mm)")
	flagFocalLength       = flag.Float64("lens-focal-length", 0, "Lens focal length (mm)")
	flagProjection        = flag.String("lens-projection", "", "Lens projection: rectilinear, fisheye_equisolid or fisheye_equidistant")
	flagCollections       = flag.String("collections", "", "Comma-separated collections to annotate")
	flagCategoryIDs       = flag.String("category-ids", "", "Comma-separated category id per collection")
	flagReference         = flag.String("reference-coordinate-system", "", "Object whose top-left corner is the location origin")
	flagNoMasks           = flag.Bool("no-masks", false, "Do not extract pixel masks")
	flagNoOutlines        = flag.Bool("no-outlines", false, "Do not extract outlines")
	flagIndividualRenders = flag.Bool("individual-renders", false, "Also annotate per-object renders")
	flagVertexCoordinates = flag.Bool("vertex-coordinates", false, "Write the vertex pixels of each object")
	flagOutputDir         = flag.String("annotations-output-dir", "", "Directory for annotation files")
	flagScene             = flag.String("scene", "", "Scene export file")
	flagIndexBuffer       = flag.String("index-buffer", "", "Object index buffer of the full render")
	flagCompleteBuffers   = flag.String("complete-buffers", "", "Directory of per-object index buffers")
	flagWorkers           = flag.Int("workers", 0, "Objects annotated concurrently (0 = one per CPU)")
	flagSaveConfig        = flag.String("save-config", "", "Write the effective config to this path and exit")
	flagSaveUserConfig    = flag.Bool("save-user-config", false, "Write the effective config to the user config directory and exit")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// SaveConfigPath returns the path given with --save-config, if any.
func SaveConfigPath() string {
	return *flagSaveConfig
}

// SaveUserConfig reports whether --save-user-config was given.
func SaveUserConfig() bool {
	return *flagSaveUserConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) error {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagRenderWidth > 0 {
		cfg.Render.Width = *flagRenderWidth
	}
	if *flagRenderHeight > 0 {
		cfg.Render.Height = *flagRenderHeight
	}
	if *flagCameraName != "" {
		cfg.Camera.Name = *flagCameraName
	}
	if *flagSensorWidth > 0 {
		cfg.Camera.SensorWidth = *flagSensorWidth
	}
	if *flagSensorHeight > 0 {
		cfg.Camera.SensorHeight = *flagSensorHeight
	}
	if *flagFocalLength > 0 {
		cfg.Camera.FocalLength = *flagFocalLength
	}
	if *flagProjection != "" {
		cfg.Lens.Projection = *flagProjection
	}
	if *flagCollections != "" {
		cfg.Annotation.Collections = splitList(*flagCollections)
	}
	if *flagCategoryIDs != "" {
		ids, err := parseIDs(*flagCategoryIDs)
		if err != nil {
			return err
		}
		cfg.Annotation.CategoryIDs = ids
	}
	if *flagReference != "" {
		cfg.Annotation.ReferenceObject = *flagReference
	}
	if *flagNoMasks {
		cfg.Annotation.Masks = false
	}
	if *flagNoOutlines {
		cfg.Annotation.Outlines = false
	}
	if *flagIndividualRenders {
		cfg.Annotation.IndividualRenders = true
	}
	if *flagVertexCoordinates {
		cfg.Annotation.VertexCoordinates = true
	}
	if *flagOutputDir != "" {
		cfg.Annotation.OutputDir = *flagOutputDir
	}
	if *flagWorkers > 0 {
		cfg.Annotation.Workers = *flagWorkers
	}
	if *flagScene != "" {
		cfg.Input.Scene = *flagScene
	}
	if *flagIndexBuffer != "" {
		cfg.Input.IndexBuffer = *flagIndexBuffer
	}
	if *flagCompleteBuffers != "" {
		cfg.Input.CompleteBuffers = *flagCompleteBuffers
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int, error) {
	parts := splitList(s)
	ids := make([]int, len(parts))
	for i, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid category id %q: %w", p, err)
		}
		ids[i] = id
	}
	return ids, nil
}
