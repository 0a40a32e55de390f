// Package config handles annotation run configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/Faultbox/poolrig/pkg/camera"
	"github.com/Faultbox/poolrig/pkg/lens"
)

// Config holds all annotation run settings.
type Config struct {
	Render     RenderConfig     `yaml:"render"`
	Camera     CameraConfig     `yaml:"camera"`
	Lens       LensConfig       `yaml:"lens"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Input      InputConfig      `yaml:"input"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RenderConfig holds the output image size.
type RenderConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CameraConfig holds the camera selection and its physical parameters (mm).
type CameraConfig struct {
	Name         string  `yaml:"name"`
	SensorWidth  float64 `yaml:"sensor_width"`
	SensorHeight float64 `yaml:"sensor_height"`
	FocalLength  float64 `yaml:"focal_length"`
}

// LensConfig holds the lens projection model.
type LensConfig struct {
	Projection string `yaml:"projection"`
}

// AnnotationConfig holds what to annotate and where to write it.
type AnnotationConfig struct {
	Collections       []string `yaml:"collections"`
	CategoryIDs       []int    `yaml:"category_ids"`
	ReferenceObject   string   `yaml:"reference_object"` // Object whose top-left corner is the location origin
	Masks             bool     `yaml:"masks"`
	Outlines          bool     `yaml:"outlines"`
	IndividualRenders bool     `yaml:"individual_renders"`
	VertexCoordinates bool     `yaml:"vertex_coordinates"`
	OutputDir         string   `yaml:"output_dir"`
	Workers           int      `yaml:"workers"` // 0 = one per CPU
}

// InputConfig holds the paths of the renderer's exports.
type InputConfig struct {
	Scene           string `yaml:"scene"`
	IndexBuffer     string `yaml:"index_buffer"`
	CompleteBuffers string `yaml:"complete_buffers"` // Directory of <object>.<ext> individual renders
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // console or json
}

// Default returns a Config with the pool-table rig defaults.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Width:  2048,
			Height: 1536,
		},
		Camera: CameraConfig{
			Name:         "Camera",
			SensorWidth:  18.0,
			SensorHeight: 13.5,
			FocalLength:  8.90999984741211,
		},
		Lens: LensConfig{
			Projection: lens.FisheyeEquisolid.String(),
		},
		Annotation: AnnotationConfig{
			Collections: []string{"Balls"},
			CategoryIDs: []int{0},
			Masks:       true,
			Outlines:    true,
			OutputDir:   "~/annotations",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Intrinsics returns the configured camera intrinsics.
func (c *Config) Intrinsics() camera.Intrinsics {
	return camera.Intrinsics{
		SensorWidth:  c.Camera.SensorWidth,
		SensorHeight: c.Camera.SensorHeight,
		FocalLength:  c.Camera.FocalLength,
	}
}

// LensModel returns the configured projection model.
func (c *Config) LensModel() (lens.Model, error) {
	return lens.ParseModel(c.Lens.Projection)
}

// OutputDir returns the annotation output directory with a leading ~
// expanded to the user's home directory.
func (c *Config) OutputDir() string {
	return expandHome(c.Annotation.OutputDir)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error

	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height))
	}
	err = multierr.Append(err, c.Intrinsics().Validate())

	if m, perr := c.LensModel(); perr != nil {
		err = multierr.Append(err, perr)
	} else if !m.Selectable() {
		err = multierr.Append(err, fmt.Errorf("lens projection %q cannot be selected", m))
	}

	a := c.Annotation
	if len(a.Collections) == 0 {
		err = multierr.Append(err, fmt.Errorf("no collections to annotate"))
	}
	if len(a.Collections) != len(a.CategoryIDs) {
		err = multierr.Append(err, fmt.Errorf("%d collections but %d category ids", len(a.Collections), len(a.CategoryIDs)))
	}
	if a.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("workers must not be negative, got %d", a.Workers))
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}

	return err
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
