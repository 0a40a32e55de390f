// Package camera projects scene points onto a camera's sensor under a
// configurable lens model, and maps sensor positions back into the scene.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	pmath "github.com/Faultbox/poolrig/pkg/math"
)

// Camera errors.
var (
	ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")
	ErrSingularPose      = errors.New("camera world matrix is not invertible")
	ErrDegeneratePoint   = errors.New("point coincides with the camera origin")
)

// Intrinsics are the physical sensor and lens parameters, in millimetres.
type Intrinsics struct {
	SensorWidth  float64 `yaml:"sensor_width"`
	SensorHeight float64 `yaml:"sensor_height"`
	FocalLength  float64 `yaml:"focal_length"`
}

// Validate reports every non-positive or non-finite field.
func (in Intrinsics) Validate() error {
	var err error
	check := func(name string, v float64) {
		if !(v > 0) || math.IsInf(v, 0) {
			err = multierr.Append(err, fmt.Errorf("%w: %s = %v", ErrInvalidIntrinsics, name, v))
		}
	}
	check("sensor width", in.SensorWidth)
	check("sensor height", in.SensorHeight)
	check("focal length", in.FocalLength)
	return err
}

// Pose is a rigid camera placement. It keeps the world matrix and its
// inverse, which takes world points into camera space.
type Pose struct {
	world   pmath.Mat4
	inverse pmath.Mat4
}

// NewPose builds a pose from the camera's world matrix.
func NewPose(world pmath.Mat4) (Pose, error) {
	inv, ok := world.Inverse()
	if !ok {
		return Pose{}, ErrSingularPose
	}
	return Pose{world: world, inverse: inv}, nil
}

// World returns the camera's world matrix.
func (p Pose) World() pmath.Mat4 { return p.world }

// Location returns the camera position in world space.
func (p Pose) Location() r3.Vector { return p.world.Translation() }

// ToCamera transforms a world point into camera space.
func (p Pose) ToCamera(v r3.Vector) r3.Vector {
	return p.inverse.TransformPoint(v)
}

// ToWorld transforms a camera-space point into world space.
func (p Pose) ToWorld(v r3.Vector) r3.Vector {
	return p.world.TransformPoint(v)
}
