package camera

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/Faultbox/poolrig/pkg/lens"
	"github.com/Faultbox/poolrig/pkg/pixel"
)

// Project maps a world point to normalized image coordinates under proj.
//
// The result is relative to the bottom-left corner of the image, with (1, 1)
// at the top-right corner. Points outside the field of view fall outside
// [0, 1]; that is a valid result, not an error. The angle from the optical
// axis is taken with asin, so only its magnitude matters.
func Project(in Intrinsics, pose Pose, p r3.Vector, proj lens.Projection) (r2.Point, error) {
	pc := pose.ToCamera(p)

	length := pc.Norm()
	if length == 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return r2.Point{}, fmt.Errorf("projecting %v: %w", p, ErrDegeneratePoint)
	}

	phi := math.Atan2(pc.Y, pc.X)
	l := math.Hypot(pc.X, pc.Y)
	// Rounding can push the ratio a hair above 1 for points in the xy-plane.
	theta := math.Asin(math.Min(l/length, 1))

	r := proj.Radius(in.FocalLength, theta)
	return fromPolar(in, r, phi), nil
}

// ReprojectFisheye takes a normalized point produced under the
// fisheye-equisolid model and returns where the same ray lands under
// target.
func ReprojectFisheye(in Intrinsics, pt r2.Point, target lens.Projection) (r2.Point, error) {
	return Reproject(in, pt, lens.FisheyeEquisolid, target)
}

// Reproject moves a normalized point from one lens model to another without
// touching the scene. Radii the source model cannot produce return
// lens.ErrOutOfDomain.
func Reproject(in Intrinsics, pt r2.Point, from lens.Model, to lens.Projection) (r2.Point, error) {
	r, phi := toPolar(in, pt)

	theta, err := from.Theta(in.FocalLength, r)
	if err != nil {
		return r2.Point{}, fmt.Errorf("reprojecting %v: %w", pt, err)
	}

	return fromPolar(in, to.Radius(in.FocalLength, theta), phi), nil
}

// ToPixel scales a normalized point to the render size and truncates it,
// giving a renderer position (x along the width, y up from the bottom).
func ToPixel(pt r2.Point, width, height int) (x, y int) {
	return int(pt.X * float64(width)), int(pt.Y * float64(height))
}

// toPolar turns a normalized point into a sensor radius and azimuth.
func toPolar(in Intrinsics, pt r2.Point) (r, phi float64) {
	xc := (pt.X - 0.5) * in.SensorWidth
	yc := (pt.Y - 0.5) * in.SensorHeight
	return math.Hypot(xc, yc), math.Atan2(yc, xc)
}

// fromPolar turns a sensor radius and azimuth into a normalized point.
func fromPolar(in Intrinsics, r, phi float64) r2.Point {
	return r2.Point{
		X: r*math.Cos(phi)/in.SensorWidth + 0.5,
		Y: r*math.Sin(phi)/in.SensorHeight + 0.5,
	}
}

// Camera bundles everything needed to turn world points into pixels of a
// specific render.
type Camera struct {
	Intrinsics Intrinsics
	Pose       Pose
	Lens       lens.Projection
	Width      int
	Height     int
}

// New validates the parameters and builds a Camera.
func New(in Intrinsics, pose Pose, proj lens.Projection, width, height int) (*Camera, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if proj == nil {
		return nil, fmt.Errorf("camera: nil lens projection")
	}
	if m, ok := proj.(lens.Model); ok && m.Projection() == nil {
		return nil, fmt.Errorf("camera: %w: %d", lens.ErrUnknownModel, int(m))
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("camera: invalid render size %dx%d", width, height)
	}
	return &Camera{
		Intrinsics: in,
		Pose:       pose,
		Lens:       proj,
		Width:      width,
		Height:     height,
	}, nil
}

// Normalized projects a world point to normalized image coordinates.
func (c *Camera) Normalized(p r3.Vector) (r2.Point, error) {
	return Project(c.Intrinsics, c.Pose, p, c.Lens)
}

// PixelOf projects a world point to a top-left (row, col) pixel position.
// Positions outside the render are returned as is.
func (c *Camera) PixelOf(p r3.Vector) (pixel.Coord, error) {
	pt, err := c.Normalized(p)
	if err != nil {
		return pixel.Coord{}, err
	}
	x, y := ToPixel(pt, c.Width, c.Height)
	return pixel.FromRenderer(x, y, c.Height), nil
}
