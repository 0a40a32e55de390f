package annotate

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/Faultbox/poolrig/internal/scene"
	"github.com/Faultbox/poolrig/pkg/camera"
	"github.com/Faultbox/poolrig/pkg/lens"
	pmath "github.com/Faultbox/poolrig/pkg/math"
	"github.com/Faultbox/poolrig/pkg/pixel"
	"github.com/Faultbox/poolrig/pkg/segment"
)

// testScene is an 8x6 render from a camera two metres above the table.
// Under a rectilinear lens Ball.001 lands on pixel (2, 4) and Ball.002 on
// pixel (4, 5).
const testScene = `
render: {width: 8, height: 6}
camera:
  name: Camera
  sensor_width: 18
  sensor_height: 13.5
  focal_length: 8.91
  location: [0, 0, 2]
  rotation_euler: [0, 0, 0]
objects:
  - name: Table
    collection: Furniture
    location: [0, 0, 0]
    dimensions: [2, 1, 0.8]
    vertices: [[0, 0, 0]]
  - name: Ball.001
    collection: Balls
    pass_index: 1
    location: [0, 0, 0]
    vertices: [[0, 0, 0], [0, 0, 0]]
  - name: Ball.002
    collection: Balls
    pass_index: 2
    location: [0.8, -0.6, 0]
    vertices: [[0, 0, 0]]
`

func mustScene(t *testing.T) *scene.Scene {
	t.Helper()
	s, err := scene.Parse([]byte(testScene))
	if err != nil {
		t.Fatalf("scene.Parse: %v", err)
	}
	return s
}

func mustBuffer(t *testing.T, w, h int, labels []int32) *segment.IndexBuffer {
	t.Helper()
	b, err := segment.NewIndexBuffer(w, h, labels)
	if err != nil {
		t.Fatalf("NewIndexBuffer: %v", err)
	}
	return b
}

// visibleBuffer holds a 3x3 block of label 1 and a 2x2 block of label 2.
func visibleBuffer(t *testing.T) *segment.IndexBuffer {
	return mustBuffer(t, 8, 6, []int32{
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 1, 1, 1, 0, 0, 0, 0,
		0, 1, 1, 1, 0, 2, 2, 0,
		0, 1, 1, 1, 0, 2, 2, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
	})
}

func testOptions() Options {
	return Options{
		Collections: []string{"Balls"},
		CategoryIDs: []int{3},
		CameraName:  "Camera",
		Lens:        lens.Rectilinear,
	}
}

func overheadCamera(t *testing.T, w, h int) *camera.Camera {
	t.Helper()
	pose, err := camera.NewPose(pmath.Translate(r3.Vector{Z: 2}))
	if err != nil {
		t.Fatal(err)
	}
	in := camera.Intrinsics{SensorWidth: 18, SensorHeight: 13.5, FocalLength: 8.91}
	cam, err := camera.New(in, pose, lens.FisheyeEquisolid, w, h)
	if err != nil {
		t.Fatal(err)
	}
	return cam
}

func TestBoundingBoxOf(t *testing.T) {
	tests := []struct {
		name   string
		coords []pixel.Coord
		want   BoundingBox
	}{
		{
			name:   "three pixels",
			coords: []pixel.Coord{{Row: 2, Col: 3}, {Row: 4, Col: 3}, {Row: 2, Col: 7}},
			want:   BoundingBox{MinRow: 2, MinCol: 3, Width: 5, Height: 3},
		},
		{
			name:   "single pixel",
			coords: []pixel.Coord{{Row: 9, Col: 1}},
			want:   BoundingBox{MinRow: 9, MinCol: 1, Width: 1, Height: 1},
		},
		{
			name:   "outside the render",
			coords: []pixel.Coord{{Row: -3, Col: 10}, {Row: 1, Col: -2}},
			want:   BoundingBox{MinRow: -3, MinCol: -2, Width: 13, Height: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BoundingBoxOf(tt.coords)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := BoundingBoxOf(nil); !errors.Is(err, ErrNoPixels) {
		t.Errorf("expected ErrNoPixels, got %v", err)
	}
}

func TestVertexPixelsCoincident(t *testing.T) {
	cam := overheadCamera(t, 4, 4)
	v := r3.Vector{}
	got, err := VertexPixels(cam, []r3.Vector{v, v, v})
	if err != nil {
		t.Fatal(err)
	}
	// The optical axis hits renderer pixel (2, 2).
	want := []pixel.Coord{{Row: 1, Col: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	bbox, err := BoundingBoxOf(got)
	if err != nil {
		t.Fatal(err)
	}
	if bbox.Width != 1 || bbox.Height != 1 {
		t.Errorf("expected 1x1 box, got %v", bbox)
	}
}

func TestVertexPixelsSortedAndDistinct(t *testing.T) {
	cam := overheadCamera(t, 64, 48)
	vertices := []r3.Vector{
		{X: 0.3, Y: -0.2}, {X: -0.3, Y: 0.2}, {}, {X: 0.3, Y: -0.2}, {X: 0.1, Y: 0.1},
	}
	got, err := VertexPixels(cam, vertices)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 distinct pixels, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.Row > cur.Row || (prev.Row == cur.Row && prev.Col >= cur.Col) {
			t.Errorf("pixels not sorted at %d: %v", i, got)
		}
	}
}

func TestVertexPixelsDegenerate(t *testing.T) {
	cam := overheadCamera(t, 4, 4)
	_, err := VertexPixels(cam, []r3.Vector{{Z: 2}})
	if !errors.Is(err, camera.ErrDegeneratePoint) {
		t.Errorf("expected ErrDegeneratePoint, got %v", err)
	}
}

func TestTableLocation(t *testing.T) {
	loc := r3.Vector{X: 0.5, Y: 0.25, Z: 0.03}

	if got := TableLocation(loc, nil); got != (r2.Point{X: 0.5, Y: -0.25}) {
		t.Errorf("plain location: got %v", got)
	}

	corner := r2.Point{X: -1, Y: 0.5}
	got := TableLocation(loc, &corner)
	if math.Abs(got.X-1.5) > 1e-12 || math.Abs(got.Y-0.25) > 1e-12 {
		t.Errorf("relative location: got %v, want (1.5, 0.25)", got)
	}
}

func TestRunGeometry(t *testing.T) {
	opts := testOptions()
	opts.VertexCoordinates = true
	opts.ReferenceObject = "Table"

	anns, err := New(opts, zap.NewNop()).Run(context.Background(), mustScene(t), nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(anns) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(anns))
	}

	want := []struct {
		name  string
		pass  int32
		pixel pixel.Coord
		loc   r2.Point
	}{
		{"Ball.001", 1, pixel.Coord{Row: 2, Col: 4}, r2.Point{X: 1, Y: 0.5}},
		{"Ball.002", 2, pixel.Coord{Row: 4, Col: 5}, r2.Point{X: 1.8, Y: 1.1}},
	}
	for i, w := range want {
		a := anns[i]
		if a.Name != w.name || a.PassIndex != w.pass || a.CategoryID != 3 {
			t.Errorf("annotation %d: got %s pass %d category %d", i, a.Name, a.PassIndex, a.CategoryID)
		}
		if diff := cmp.Diff([]pixel.Coord{w.pixel}, a.Vertices); diff != "" {
			t.Errorf("%s vertices (-want +got):\n%s", w.name, diff)
		}
		wantBox := BoundingBox{MinRow: w.pixel.Row, MinCol: w.pixel.Col, Width: 1, Height: 1}
		if a.BBox != wantBox {
			t.Errorf("%s bbox: got %v, want %v", w.name, a.BBox, wantBox)
		}
		if math.Abs(a.Location.X-w.loc.X) > 1e-9 || math.Abs(a.Location.Y-w.loc.Y) > 1e-9 {
			t.Errorf("%s location: got %v, want %v", w.name, a.Location, w.loc)
		}
		if a.VisibleMask != nil || a.VisibleOutline != nil {
			t.Errorf("%s: masks extracted without being requested", w.name)
		}
	}
}

func TestRunWithoutVertexCoordinates(t *testing.T) {
	anns, err := New(testOptions(), nil).Run(context.Background(), mustScene(t), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range anns {
		if a.Vertices != nil {
			t.Errorf("%s: vertices kept without being requested", a.Name)
		}
		if a.BBox.Width != 1 {
			t.Errorf("%s: bbox still expected, got %v", a.Name, a.BBox)
		}
	}
}

func TestRunMasksAndOutlines(t *testing.T) {
	opts := testOptions()
	opts.Masks = true
	opts.Outlines = true
	opts.IndividualRenders = true
	opts.Workers = 1

	visible := visibleBuffer(t)
	complete := map[string]*segment.IndexBuffer{
		"Ball.001": visible,
		"Ball.002": visible,
	}

	anns, err := New(opts, zap.NewNop()).Run(context.Background(), mustScene(t), visible, complete)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, a := range anns {
		if diff := cmp.Diff(visible.VisibleMask(a.PassIndex), a.VisibleMask); diff != "" {
			t.Errorf("%s visible mask (-want +got):\n%s", a.Name, diff)
		}
		if diff := cmp.Diff(visible.Outline(a.PassIndex), a.VisibleOutline); diff != "" {
			t.Errorf("%s visible outline (-want +got):\n%s", a.Name, diff)
		}
		if diff := cmp.Diff(a.VisibleMask, a.CompleteMask); diff != "" {
			t.Errorf("%s complete mask (-visible +complete):\n%s", a.Name, diff)
		}
	}

	if got := len(anns[0].VisibleMask); got != 9 {
		t.Errorf("expected 9 mask pixels for Ball.001, got %d", got)
	}
	// The centre of the 3x3 block is not on the outline.
	if got := len(anns[0].VisibleOutline); got != 8 {
		t.Errorf("expected 8 outline pixels for Ball.001, got %d", got)
	}
}

func TestRunHiddenObjectHasEmptyMask(t *testing.T) {
	opts := testOptions()
	opts.Masks = true

	blank := mustBuffer(t, 8, 6, make([]int32, 48))
	anns, err := New(opts, nil).Run(context.Background(), mustScene(t), blank, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range anns {
		if a.VisibleMask == nil || len(a.VisibleMask) != 0 {
			t.Errorf("%s: expected empty non-nil mask, got %v", a.Name, a.VisibleMask)
		}
	}
}

func TestRunErrors(t *testing.T) {
	withMasks := testOptions()
	withMasks.Masks = true

	wrongCamera := testOptions()
	wrongCamera.CameraName = "Overhead"

	mismatched := testOptions()
	mismatched.CategoryIDs = []int{0, 1}

	unknownCollection := testOptions()
	unknownCollection.Collections = []string{"Cues"}

	unknownReference := testOptions()
	unknownReference.ReferenceObject = "Rack"

	individual := testOptions()
	individual.Masks = true
	individual.IndividualRenders = true

	tests := []struct {
		name     string
		opts     Options
		visible  *segment.IndexBuffer
		complete map[string]*segment.IndexBuffer
		want     error
	}{
		{"size mismatch", withMasks, mustBuffer(t, 4, 4, make([]int32, 16)), nil, segment.ErrDimensionMismatch},
		{"missing buffer", withMasks, nil, nil, nil},
		{"wrong camera", wrongCamera, nil, nil, nil},
		{"pairing", mismatched, nil, nil, nil},
		{"unknown collection", unknownCollection, nil, nil, scene.ErrCollectionNotFound},
		{"unknown reference", unknownReference, nil, nil, scene.ErrObjectNotFound},
		{"missing individual render", individual, visibleBuffer(t), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts, nil).Run(context.Background(), mustScene(t), tt.visible, tt.complete)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testOptions(), nil).Run(ctx, mustScene(t), nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWriteFlatFormat(t *testing.T) {
	dir := t.TempDir()
	a := Annotation{
		Name:       "Ball.001",
		CategoryID: 0,
		Location:   r2.Point{X: 1.5, Y: -0.25},
		BBox:       BoundingBox{MinRow: 2, MinCol: 3, Width: 5, Height: 3},
		Vertices:   []pixel.Coord{{Row: 2, Col: 3}, {Row: 4, Col: 7}},
	}
	if err := WriteFlat(dir, a); err != nil {
		t.Fatalf("WriteFlat: %v", err)
	}

	files := map[string]string{
		"Ball.001_category_id": "0.000000000000000000e+00\n",
		"Ball.001_location":    "1.500000000000000000e+00\n-2.500000000000000000e-01\n",
		"Ball.001_bbox": "2.000000000000000000e+00\n3.000000000000000000e+00\n" +
			"5.000000000000000000e+00\n3.000000000000000000e+00\n",
		"Ball.001_vertices": "2.000000000000000000e+00 3.000000000000000000e+00\n" +
			"4.000000000000000000e+00 7.000000000000000000e+00\n",
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("reading %s: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}
	}

	back, err := ReadFlat(dir, "Ball.001")
	if err != nil {
		t.Fatalf("ReadFlat: %v", err)
	}
	if diff := cmp.Diff(a, back); diff != "" {
		t.Errorf("ReadFlat mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFlatWithoutVertices(t *testing.T) {
	dir := t.TempDir()
	a := Annotation{Name: "Ball.009", CategoryID: 1, BBox: BoundingBox{Width: 1, Height: 1}}
	if err := WriteFlat(dir, a); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Ball.009_vertices")); !os.IsNotExist(err) {
		t.Errorf("expected no vertices file, stat returned %v", err)
	}
	back, err := ReadFlat(dir, "Ball.009")
	if err != nil {
		t.Fatal(err)
	}
	if back.Vertices != nil || back.CategoryID != 1 {
		t.Errorf("unexpected record %+v", back)
	}

	if _, err := ReadFlat(dir, "Ball.010"); err == nil {
		t.Error("expected error for missing records")
	}
}

func TestWriteMasks(t *testing.T) {
	dir := t.TempDir()
	a := Annotation{
		Name:           "Ball.001",
		VisibleMask:    []pixel.Coord{{Row: 1, Col: 1}},
		VisibleOutline: []pixel.Coord{},
	}
	if err := WriteMasks(dir, a, 4, 4); err != nil {
		t.Fatalf("WriteMasks: %v", err)
	}

	for _, name := range []string{"Ball.001_mask_visible.png", "Ball.001_outline_visible.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "Ball.001_mask_complete.png")); !os.IsNotExist(err) {
		t.Error("complete mask written without being extracted")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "manifest.yaml")
	m := Manifest{
		Width:  8,
		Height: 6,
		Lens:   lens.FisheyeEquisolid.String(),
		Annotations: []Annotation{{
			Name:       "Ball.001",
			CategoryID: 2,
			PassIndex:  1,
			Location:   r2.Point{X: 0.5, Y: -0.25},
			BBox:       BoundingBox{MinRow: 1, MinCol: 2, Width: 3, Height: 4},
			Vertices:   []pixel.Coord{{Row: 1, Col: 2}},
		}},
	}
	if err := WriteManifest(path, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if diff := cmp.Diff(m, *got); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestReprojectPixels(t *testing.T) {
	in := camera.Intrinsics{SensorWidth: 18, SensorHeight: 13.5, FocalLength: 8.91}
	coords := []pixel.Coord{{Row: 0, Col: 0}, {Row: 10, Col: 20}, {Row: 47, Col: 63}, {Row: 24, Col: 32}}

	// Same model in and out leaves pixel centres where they are.
	got, err := ReprojectPixels(in, coords, 64, 48, lens.FisheyeEquisolid, lens.FisheyeEquisolid)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]pixel.Coord(nil), coords...)
	pixel.SortCoords(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("identity reprojection (-want +got):\n%s", diff)
	}

	// A fisheye image rectified moves off-centre pixels outwards.
	got, err = ReprojectPixels(in, []pixel.Coord{{Row: 24, Col: 50}}, 64, 48, lens.FisheyeEquisolid, lens.Rectilinear)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Col <= 50 {
		t.Errorf("expected column beyond 50, got %v", got)
	}
}
