package segment

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/Faultbox/poolrig/pkg/pixel"
)

// MaskImage draws coords as white pixels on a black width x height image.
// Coordinates outside the image are skipped; row height, produced by the
// renderer's bottom row, is one of them.
func MaskImage(coords []pixel.Coord, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for _, c := range coords {
		if c.Row < 0 || c.Row >= height || c.Col < 0 || c.Col >= width {
			continue
		}
		img.SetGray(c.Col, c.Row, color.Gray{Y: 255})
	}
	return img
}

// SaveMask writes coords as a mask image. The format follows the file
// extension.
func SaveMask(path string, coords []pixel.Coord, width, height int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	if err := imaging.Save(MaskImage(coords, width, height), path); err != nil {
		return fmt.Errorf("saving mask %s: %w", path, err)
	}
	return nil
}
