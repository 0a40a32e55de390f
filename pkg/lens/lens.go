// Package lens provides the radius-versus-angle mappings of camera lens
// models and their inverses.
//
// A projection maps the focal length f and the angle theta between a ray
// and the optical axis to the distance r, on the sensor, between the image
// centre and the point where the ray lands. All lengths share the unit of
// the focal length (millimetres for scene cameras).
package lens

import (
	"errors"
	"fmt"
	"math"
)

// Lens errors.
var (
	ErrOutOfDomain  = errors.New("outside lens model domain")
	ErrUnknownModel = errors.New("unknown lens model")
)

// Projection maps a focal length and an incidence angle to an image-plane
// radius.
type Projection interface {
	Radius(focalLength, theta float64) float64
}

// ProjectionFunc adapts a plain function to Projection.
type ProjectionFunc func(focalLength, theta float64) float64

// Radius calls fn(focalLength, theta).
func (fn ProjectionFunc) Radius(focalLength, theta float64) float64 {
	return fn(focalLength, theta)
}

// RectilinearRadius is the perspective mapping f·tan(θ).
func RectilinearRadius(f, theta float64) float64 {
	return f * math.Tan(theta)
}

// EquidistantRadius is the fisheye mapping f·θ.
func EquidistantRadius(f, theta float64) float64 {
	return f * theta
}

// EquisolidRadius is the fisheye mapping 2f·sin(θ/2).
func EquisolidRadius(f, theta float64) float64 {
	return 2.0 * f * math.Sin(theta/2)
}

// StereographicRadius is the fisheye mapping 2f·tan(θ/2).
func StereographicRadius(f, theta float64) float64 {
	return 2.0 * f * math.Tan(theta/2)
}

// OrthogonalRadius is the fisheye mapping f·sin(θ).
func OrthogonalRadius(f, theta float64) float64 {
	return f * math.Sin(theta)
}

// Model identifies a lens mapping.
type Model int

// Lens models.
const (
	Rectilinear Model = iota
	FisheyeEquidistant
	FisheyeEquisolid
	FisheyeStereographic
	FisheyeOrthogonal
)

var modelNames = map[Model]string{
	Rectilinear:          "rectilinear",
	FisheyeEquidistant:   "fisheye_equidistant",
	FisheyeEquisolid:     "fisheye_equisolid",
	FisheyeStereographic: "fisheye_stereographic",
	FisheyeOrthogonal:    "fisheye_orthogonal",
}

// Models returns every known model.
func Models() []Model {
	return []Model{
		Rectilinear,
		FisheyeEquidistant,
		FisheyeEquisolid,
		FisheyeStereographic,
		FisheyeOrthogonal,
	}
}

// String returns the configuration name of the model.
func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(m))
}

// ParseModel returns the model with the given configuration name.
func ParseModel(name string) (Model, error) {
	for m, n := range modelNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Selectable reports whether the model is offered as an annotation preset.
// Stereographic and orthogonal mappings exist but are not presets.
func (m Model) Selectable() bool {
	return m == Rectilinear || m == FisheyeEquisolid || m == FisheyeEquidistant
}

// Projection returns the mapping for the model.
func (m Model) Projection() Projection {
	switch m {
	case Rectilinear:
		return ProjectionFunc(RectilinearRadius)
	case FisheyeEquidistant:
		return ProjectionFunc(EquidistantRadius)
	case FisheyeEquisolid:
		return ProjectionFunc(EquisolidRadius)
	case FisheyeStereographic:
		return ProjectionFunc(StereographicRadius)
	case FisheyeOrthogonal:
		return ProjectionFunc(OrthogonalRadius)
	default:
		return nil
	}
}

// Radius implements Projection so a Model can be passed directly.
func (m Model) Radius(focalLength, theta float64) float64 {
	p := m.Projection()
	if p == nil {
		return math.NaN()
	}
	return p.Radius(focalLength, theta)
}

// MaxTheta returns the upper bound of the model's valid angle domain and
// whether the bound itself is included.
func (m Model) MaxTheta() (maxTheta float64, inclusive bool) {
	switch m {
	case Rectilinear:
		return math.Pi / 2, false
	case FisheyeEquidistant, FisheyeEquisolid:
		return math.Pi, true
	case FisheyeStereographic:
		return math.Pi, false
	case FisheyeOrthogonal:
		return math.Pi / 2, true
	default:
		return 0, false
	}
}

// InDomain reports whether theta lies in the model's valid domain.
func (m Model) InDomain(theta float64) bool {
	if theta < 0 || math.IsNaN(theta) {
		return false
	}
	maxTheta, inclusive := m.MaxTheta()
	if inclusive {
		return theta <= maxTheta
	}
	return theta < maxTheta
}

// Theta recovers the incidence angle that the model maps to radius r.
// Radii the model can never produce return ErrOutOfDomain.
func (m Model) Theta(f, r float64) (float64, error) {
	if f <= 0 {
		return 0, fmt.Errorf("%s: focal length %v: %w", m, f, ErrOutOfDomain)
	}
	if r < 0 || math.IsNaN(r) {
		return 0, fmt.Errorf("%s: radius %v: %w", m, r, ErrOutOfDomain)
	}

	switch m {
	case Rectilinear:
		return math.Atan(r / f), nil
	case FisheyeEquidistant:
		theta := r / f
		if theta > math.Pi {
			return 0, fmt.Errorf("%s: radius %v exceeds %v: %w", m, r, math.Pi*f, ErrOutOfDomain)
		}
		return theta, nil
	case FisheyeEquisolid:
		if r > 2*f {
			return 0, fmt.Errorf("%s: radius %v exceeds %v: %w", m, r, 2*f, ErrOutOfDomain)
		}
		return 2 * math.Asin(r/(2*f)), nil
	case FisheyeStereographic:
		return 2 * math.Atan(r/(2*f)), nil
	case FisheyeOrthogonal:
		if r > f {
			return 0, fmt.Errorf("%s: radius %v exceeds %v: %w", m, r, f, ErrOutOfDomain)
		}
		return math.Asin(r / f), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownModel, int(m))
	}
}
