// Package annotate turns a scene and its rendered index buffers into
// per-object annotation records: category, table location, bounding box,
// vertex pixels, masks and outlines.
package annotate

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"github.com/Faultbox/poolrig/pkg/camera"
	"github.com/Faultbox/poolrig/pkg/lens"
	"github.com/Faultbox/poolrig/pkg/pixel"
)

// ErrNoPixels is returned when a bounding box is requested for no pixels.
var ErrNoPixels = errors.New("no pixels to bound")

// BoundingBox is an axis-aligned pixel rectangle in top-left convention.
// Width and Height count pixels, so a single pixel is 1x1.
type BoundingBox struct {
	MinRow int `yaml:"min_row"`
	MinCol int `yaml:"min_col"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Annotation is the record produced for one object.
//
// Mask and outline fields are nil when they were not extracted; an object
// hidden from the camera has an empty, non-nil mask.
type Annotation struct {
	Name       string        `yaml:"name"`
	CategoryID int           `yaml:"category_id"`
	PassIndex  int32         `yaml:"pass_index"`
	Location   r2.Point      `yaml:"location"`
	BBox       BoundingBox   `yaml:"bbox"`
	Vertices   []pixel.Coord `yaml:"vertices,omitempty"`

	VisibleMask     []pixel.Coord `yaml:"-"`
	VisibleOutline  []pixel.Coord `yaml:"-"`
	CompleteMask    []pixel.Coord `yaml:"-"`
	CompleteOutline []pixel.Coord `yaml:"-"`
}

// VertexPixels projects world-space vertices into the camera's render and
// returns the distinct top-left pixel positions they land on, sorted by
// row then column. Pixels outside the render are kept.
func VertexPixels(cam *camera.Camera, vertices []r3.Vector) ([]pixel.Coord, error) {
	coords := make([]pixel.Coord, 0, len(vertices))
	for _, v := range vertices {
		c, err := cam.PixelOf(v)
		if err != nil {
			return nil, err
		}
		coords = append(coords, c)
	}

	coords = lo.Uniq(coords)
	pixel.SortCoords(coords)
	return coords, nil
}

// ReprojectPixels moves top-left pixel positions of a width x height render
// taken under lens from to where the same rays land under lens to. Each
// pixel is reprojected through its centre. The result is deduplicated and
// sorted like VertexPixels.
func ReprojectPixels(in camera.Intrinsics, coords []pixel.Coord, width, height int, from lens.Model, to lens.Projection) ([]pixel.Coord, error) {
	out := make([]pixel.Coord, 0, len(coords))
	for _, c := range coords {
		pt, err := camera.Reproject(in, camera.PixelCenter(c, width, height), from, to)
		if err != nil {
			return nil, err
		}
		x, y := camera.ToPixel(pt, width, height)
		out = append(out, pixel.FromRenderer(x, y, height))
	}

	out = lo.Uniq(out)
	pixel.SortCoords(out)
	return out, nil
}

// BoundingBoxOf returns the smallest box containing every coordinate.
func BoundingBoxOf(coords []pixel.Coord) (BoundingBox, error) {
	if len(coords) == 0 {
		return BoundingBox{}, ErrNoPixels
	}

	rows := lo.Map(coords, func(c pixel.Coord, _ int) int { return c.Row })
	cols := lo.Map(coords, func(c pixel.Coord, _ int) int { return c.Col })
	minRow, maxRow := lo.Min(rows), lo.Max(rows)
	minCol, maxCol := lo.Min(cols), lo.Max(cols)

	return BoundingBox{
		MinRow: minRow,
		MinCol: minCol,
		Width:  maxCol - minCol + 1,
		Height: maxRow - minRow + 1,
	}, nil
}

// TableLocation returns an object's x/y position with y growing downwards.
// When origin is non-nil the position is first made relative to it.
func TableLocation(location r3.Vector, origin *r2.Point) r2.Point {
	p := r2.Point{X: location.X, Y: location.Y}
	if origin != nil {
		p = pixel.ReOrigin2(p, *origin)
	}
	p.Y = -p.Y
	return p
}

// String formats the box as "row,col WxH".
func (b BoundingBox) String() string {
	return fmt.Sprintf("%d,%d %dx%d", b.MinRow, b.MinCol, b.Width, b.Height)
}
