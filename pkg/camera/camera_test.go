package camera

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"github.com/Faultbox/poolrig/pkg/lens"
	pmath "github.com/Faultbox/poolrig/pkg/math"
	"github.com/Faultbox/poolrig/pkg/pixel"
)

const tol = 1e-9

// testIntrinsics matches the default pool-table rig camera.
var testIntrinsics = Intrinsics{SensorWidth: 18, SensorHeight: 13.5, FocalLength: 8.90999984741211}

func mustPose(t *testing.T, world pmath.Mat4) Pose {
	t.Helper()
	pose, err := NewPose(world)
	if err != nil {
		t.Fatalf("NewPose: %v", err)
	}
	return pose
}

func pointNear(a, b r2.Point, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps
}

func vecNear(a, b r3.Vector, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

// overheadPose places the camera two metres above the table centre, looking
// straight down with image +Y along world +Y.
func overheadPose(t *testing.T) Pose {
	return mustPose(t, pmath.LookAt(r3.Vector{Z: 2}, r3.Vector{}, r3.Vector{Y: 1}))
}

func TestIntrinsicsValidate(t *testing.T) {
	if err := testIntrinsics.Validate(); err != nil {
		t.Fatalf("valid intrinsics: %v", err)
	}

	err := Intrinsics{SensorWidth: 0, SensorHeight: -1, FocalLength: math.NaN()}.Validate()
	if !errors.Is(err, ErrInvalidIntrinsics) {
		t.Fatalf("expected ErrInvalidIntrinsics, got %v", err)
	}
	if n := len(multierr.Errors(err)); n != 3 {
		t.Errorf("expected 3 combined errors, got %d: %v", n, err)
	}
}

func TestNewPoseSingular(t *testing.T) {
	_, err := NewPose(pmath.Scale(r3.Vector{X: 1, Y: 1, Z: 0}))
	if !errors.Is(err, ErrSingularPose) {
		t.Errorf("expected ErrSingularPose, got %v", err)
	}
}

func TestPoseRoundTrip(t *testing.T) {
	world := pmath.Compose(
		r3.Vector{X: 0.4, Y: -1.2, Z: 1.8},
		pmath.QuatFromEuler(r3.Vector{X: 0.9, Y: 0.1, Z: -0.3}),
		r3.Vector{X: 1, Y: 1, Z: 1},
	)
	pose := mustPose(t, world)

	p := r3.Vector{X: 0.3, Y: 0.2, Z: 0.05}
	if back := pose.ToWorld(pose.ToCamera(p)); !vecNear(back, p, tol) {
		t.Errorf("ToWorld(ToCamera(p)) = %v, want %v", back, p)
	}
	if pose.Location() != (r3.Vector{X: 0.4, Y: -1.2, Z: 1.8}) {
		t.Errorf("Location: got %v", pose.Location())
	}
}

func TestProjectOpticalAxis(t *testing.T) {
	pose := mustPose(t, pmath.Identity())
	centre := r2.Point{X: 0.5, Y: 0.5}

	for _, m := range lens.Models() {
		for _, z := range []float64{-3, 4} {
			got, err := Project(testIntrinsics, pose, r3.Vector{Z: z}, m.Projection())
			if err != nil {
				t.Fatalf("%s: %v", m, err)
			}
			if got != centre {
				t.Errorf("%s z=%v: got %v, want %v", m, z, got, centre)
			}
		}
	}
}

func TestProjectKnownValue(t *testing.T) {
	in := Intrinsics{SensorWidth: 20, SensorHeight: 10, FocalLength: 10}
	pose := mustPose(t, pmath.Identity())

	// 45 degrees off-axis along +X: r = f*tan(pi/4) = f = 10.
	got, err := Project(in, pose, r3.Vector{X: 1, Z: -1}, lens.Rectilinear)
	if err != nil {
		t.Fatal(err)
	}
	if !pointNear(got, r2.Point{X: 1.0, Y: 0.5}, tol) {
		t.Errorf("rectilinear: got %v, want (1, 0.5)", got)
	}

	// Same ray along +Y under equidistant: r = 10*pi/4.
	got, err = Project(in, pose, r3.Vector{Y: 1, Z: -1}, lens.FisheyeEquidistant)
	if err != nil {
		t.Fatal(err)
	}
	want := r2.Point{X: 0.5, Y: 10*math.Pi/4/10 + 0.5}
	if !pointNear(got, want, tol) {
		t.Errorf("equidistant: got %v, want %v", got, want)
	}
}

func TestProjectOutOfFrameIsNotAnError(t *testing.T) {
	pose := mustPose(t, pmath.Identity())
	got, err := Project(testIntrinsics, pose, r3.Vector{X: 10, Z: -1}, lens.Rectilinear)
	if err != nil {
		t.Fatalf("out of frame point returned error: %v", err)
	}
	if got.X <= 1 {
		t.Errorf("expected x > 1 for a point far right of the frame, got %v", got)
	}
}

func TestProjectDegeneratePoint(t *testing.T) {
	pose := overheadPose(t)
	_, err := Project(testIntrinsics, pose, r3.Vector{Z: 2}, lens.FisheyeEquisolid)
	if !errors.Is(err, ErrDegeneratePoint) {
		t.Errorf("expected ErrDegeneratePoint, got %v", err)
	}
	_, err = Project(testIntrinsics, pose, r3.Vector{X: math.Inf(1)}, lens.Rectilinear)
	if !errors.Is(err, ErrDegeneratePoint) {
		t.Errorf("expected ErrDegeneratePoint for infinite point, got %v", err)
	}
}

func TestProjectCustomStrategy(t *testing.T) {
	pose := mustPose(t, pmath.Identity())
	var seen float64
	proj := lens.ProjectionFunc(func(f, theta float64) float64 {
		seen = theta
		return 0
	})
	if _, err := Project(testIntrinsics, pose, r3.Vector{X: 1, Z: -1}, proj); err != nil {
		t.Fatal(err)
	}
	if math.Abs(seen-math.Pi/4) > tol {
		t.Errorf("strategy saw theta %v, want pi/4", seen)
	}
}

func TestEquisolidRoundTrip(t *testing.T) {
	pose := overheadPose(t)
	points := []r3.Vector{
		{X: 0.3, Y: -0.2},
		{X: -1.1, Y: 0.6},
		{X: 0.01, Y: 0.02},
		{X: 2.5, Y: 1.5, Z: 0.3},
	}
	for _, p := range points {
		pt, err := Project(testIntrinsics, pose, p, lens.FisheyeEquisolid)
		if err != nil {
			t.Fatal(err)
		}
		back, err := ReprojectFisheye(testIntrinsics, pt, lens.FisheyeEquisolid)
		if err != nil {
			t.Fatalf("ReprojectFisheye(%v): %v", pt, err)
		}
		if !pointNear(back, pt, tol) {
			t.Errorf("point %v: reprojected %v, want %v", p, back, pt)
		}
	}
}

func TestReprojectMatchesDirectProjection(t *testing.T) {
	pose := overheadPose(t)
	for _, target := range []lens.Model{lens.Rectilinear, lens.FisheyeEquidistant, lens.FisheyeStereographic} {
		for _, p := range []r3.Vector{{X: 0.5, Y: 0.25}, {X: -0.8, Y: -0.4}} {
			fish, err := Project(testIntrinsics, pose, p, lens.FisheyeEquisolid)
			if err != nil {
				t.Fatal(err)
			}
			got, err := ReprojectFisheye(testIntrinsics, fish, target)
			if err != nil {
				t.Fatal(err)
			}
			want, err := Project(testIntrinsics, pose, p, target)
			if err != nil {
				t.Fatal(err)
			}
			if !pointNear(got, want, tol) {
				t.Errorf("%s %v: got %v, want %v", target, p, got, want)
			}
		}
	}
}

func TestReprojectFisheyeOutOfDomain(t *testing.T) {
	// x offset of 3 sensor widths is far beyond 2f.
	_, err := ReprojectFisheye(testIntrinsics, r2.Point{X: 3.5, Y: 0.5}, lens.Rectilinear)
	if !errors.Is(err, lens.ErrOutOfDomain) {
		t.Errorf("expected lens.ErrOutOfDomain, got %v", err)
	}
}

func TestToPixel(t *testing.T) {
	tests := []struct {
		name   string
		pt     r2.Point
		wx, wy int
	}{
		{"centre", r2.Point{X: 0.5, Y: 0.5}, 1024, 768},
		{"origin", r2.Point{}, 0, 0},
		{"truncates", r2.Point{X: 0.99999, Y: 0.00099}, 2047, 1},
		{"towards zero", r2.Point{X: -0.0001, Y: -0.0001}, 0, 0},
		{"beyond frame", r2.Point{X: 1.5, Y: -1}, 3072, -1536},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := ToPixel(tt.pt, 2048, 1536)
			if x != tt.wx || y != tt.wy {
				t.Errorf("got (%d,%d), want (%d,%d)", x, y, tt.wx, tt.wy)
			}
		})
	}
}

func TestCameraPixelOf(t *testing.T) {
	cam, err := New(testIntrinsics, overheadPose(t), lens.FisheyeEquisolid, 2048, 1536)
	if err != nil {
		t.Fatal(err)
	}
	// Table centre is on the optical axis.
	got, err := cam.PixelOf(r3.Vector{})
	if err != nil {
		t.Fatal(err)
	}
	if want := (pixel.Coord{Row: 1536 - 1 - 768, Col: 1024}); got != want {
		t.Errorf("PixelOf centre: got %v, want %v", got, want)
	}

	// A point towards world +Y appears higher in the image (smaller row).
	up, err := cam.PixelOf(r3.Vector{Y: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if up.Row >= got.Row {
		t.Errorf("point at +Y should have a smaller row: got %v vs centre %v", up, got)
	}
}

func TestNewCameraValidation(t *testing.T) {
	pose := overheadPose(t)
	if _, err := New(Intrinsics{}, pose, lens.Rectilinear, 10, 10); !errors.Is(err, ErrInvalidIntrinsics) {
		t.Errorf("expected ErrInvalidIntrinsics, got %v", err)
	}
	if _, err := New(testIntrinsics, pose, nil, 10, 10); err == nil {
		t.Error("expected error for nil projection")
	}
	if _, err := New(testIntrinsics, pose, lens.Model(99), 10, 10); !errors.Is(err, lens.ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
	if _, err := New(testIntrinsics, pose, lens.Rectilinear, 0, 10); err == nil {
		t.Error("expected error for zero width")
	}
}
