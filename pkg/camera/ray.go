package camera

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/Faultbox/poolrig/pkg/lens"
	"github.com/Faultbox/poolrig/pkg/pixel"
)

// Ray represents a ray in world space with origin and direction.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector // Normalized direction
}

// Unproject converts a normalized image point to the world-space ray that
// the given lens model maps onto it. The camera looks down its local -Z
// axis.
func Unproject(in Intrinsics, pose Pose, pt r2.Point, model lens.Model) (Ray, error) {
	r, phi := toPolar(in, pt)

	theta, err := model.Theta(in.FocalLength, r)
	if err != nil {
		return Ray{}, fmt.Errorf("unprojecting %v: %w", pt, err)
	}

	sinT := math.Sin(theta)
	local := r3.Vector{
		X: sinT * math.Cos(phi),
		Y: sinT * math.Sin(phi),
		Z: -math.Cos(theta),
	}

	return Ray{
		Origin:    pose.Location(),
		Direction: pose.World().TransformDirection(local).Normalize(),
	}, nil
}

// PixelCenter returns the normalized image coordinates of the centre of a
// top-left (row, col) pixel.
func PixelCenter(c pixel.Coord, width, height int) r2.Point {
	x, y := pixel.ToRenderer(c, height)
	return r2.Point{
		X: (float64(x) + 0.5) / float64(width),
		Y: (float64(y) + 0.5) / float64(height),
	}
}

// UnprojectPixel is Unproject for the centre of a top-left pixel of the
// camera's render.
func (c *Camera) UnprojectPixel(px pixel.Coord, model lens.Model) (Ray, error) {
	return Unproject(c.Intrinsics, c.Pose, PixelCenter(px, c.Width, c.Height), model)
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Direction.Mul(t))
}

// IntersectPlaneZ intersects the ray with the horizontal plane Z = planeZ.
// ok is false if the ray is parallel to the plane or points away from it.
func (r Ray) IntersectPlaneZ(planeZ float64) (p r3.Vector, ok bool) {
	// Ray: P = Origin + t * Direction
	// Solve: Origin.Z + t * Direction.Z = planeZ
	if math.Abs(r.Direction.Z) < 1e-12 {
		return r3.Vector{}, false
	}

	t := (planeZ - r.Origin.Z) / r.Direction.Z
	if t < 0 {
		return r3.Vector{}, false
	}
	return r.At(t), true
}
