// Package scene loads the scene description exported from the 3D modelling
// tool: render size, the camera and every annotatable object with its mesh.
package scene

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/poolrig/pkg/camera"
	pmath "github.com/Faultbox/poolrig/pkg/math"
)

// Lookup errors.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Vec3 is an [x, y, z] triple as written in the export.
type Vec3 [3]float64

// Vector converts v to an r3.Vector.
func (v Vec3) Vector() r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// Scene is a complete scene export.
type Scene struct {
	Render  Render   `yaml:"render"`
	Camera  Camera   `yaml:"camera"`
	Objects []Object `yaml:"objects"`
}

// Render is the output image size in pixels.
type Render struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Camera is the scene camera. The pose comes from MatrixWorld when present,
// otherwise from Location and RotationEuler (XYZ order).
type Camera struct {
	Name          string    `yaml:"name"`
	SensorWidth   float64   `yaml:"sensor_width"`
	SensorHeight  float64   `yaml:"sensor_height"`
	FocalLength   float64   `yaml:"focal_length"`
	Location      Vec3      `yaml:"location"`
	RotationEuler Vec3      `yaml:"rotation_euler"`
	MatrixWorld   []float64 `yaml:"matrix_world,omitempty"`
}

// Object is a mesh object. Vertices are in the object's local space.
type Object struct {
	Name          string    `yaml:"name"`
	Collection    string    `yaml:"collection"`
	PassIndex     int32     `yaml:"pass_index"`
	Location      Vec3      `yaml:"location"`
	RotationEuler Vec3      `yaml:"rotation_euler"`
	Scale         Vec3      `yaml:"scale"`
	Dimensions    Vec3      `yaml:"dimensions"`
	MatrixWorld   []float64 `yaml:"matrix_world,omitempty"`
	Vertices      []Vec3    `yaml:"vertices"`
}

// Load reads and validates a scene export.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scene export. Objects without a scale get
// unit scale.
func Parse(data []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding scene: %w", err)
	}
	for i := range s.Objects {
		if s.Objects[i].Scale == (Vec3{}) {
			s.Objects[i].Scale = Vec3{1, 1, 1}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports every problem with the scene at once.
func (s *Scene) Validate() error {
	var err error
	if s.Render.Width <= 0 || s.Render.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("render size must be positive, got %dx%d", s.Render.Width, s.Render.Height))
	}
	if n := len(s.Camera.MatrixWorld); n != 0 && n != 16 {
		err = multierr.Append(err, fmt.Errorf("camera %q: matrix_world needs 16 values, got %d", s.Camera.Name, n))
	}

	names := make(map[string]bool, len(s.Objects))
	passes := make(map[int32]string, len(s.Objects))
	for i, o := range s.Objects {
		if o.Name == "" {
			err = multierr.Append(err, fmt.Errorf("object %d has no name", i))
			continue
		}
		if names[o.Name] {
			err = multierr.Append(err, fmt.Errorf("duplicate object name %q", o.Name))
		}
		names[o.Name] = true

		if o.PassIndex != 0 {
			if other, ok := passes[o.PassIndex]; ok {
				err = multierr.Append(err, fmt.Errorf("objects %q and %q share pass index %d", other, o.Name, o.PassIndex))
			} else {
				passes[o.PassIndex] = o.Name
			}
		}
		if n := len(o.MatrixWorld); n != 0 && n != 16 {
			err = multierr.Append(err, fmt.Errorf("object %q: matrix_world needs 16 values, got %d", o.Name, n))
		}
	}
	return err
}

// Object returns the object called name.
func (s *Scene) Object(name string) (*Object, error) {
	for i := range s.Objects {
		if s.Objects[i].Name == name {
			return &s.Objects[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrObjectNotFound, name)
}

// Collection returns the objects of a collection in export order.
func (s *Scene) Collection(name string) ([]*Object, error) {
	var objs []*Object
	for i := range s.Objects {
		if s.Objects[i].Collection == name {
			objs = append(objs, &s.Objects[i])
		}
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return objs, nil
}

// Intrinsics returns the sensor and lens parameters stored with the camera.
func (c *Camera) Intrinsics() camera.Intrinsics {
	return camera.Intrinsics{
		SensorWidth:  c.SensorWidth,
		SensorHeight: c.SensorHeight,
		FocalLength:  c.FocalLength,
	}
}

// WorldMatrix returns the camera's world matrix.
func (c *Camera) WorldMatrix() pmath.Mat4 {
	return worldMatrix(c.MatrixWorld, c.Location, c.RotationEuler, Vec3{1, 1, 1})
}

// Pose returns the camera pose.
func (c *Camera) Pose() (camera.Pose, error) {
	pose, err := camera.NewPose(c.WorldMatrix())
	if err != nil {
		return camera.Pose{}, fmt.Errorf("camera %q: %w", c.Name, err)
	}
	return pose, nil
}

// WorldMatrix returns the object's world matrix.
func (o *Object) WorldMatrix() pmath.Mat4 {
	return worldMatrix(o.MatrixWorld, o.Location, o.RotationEuler, o.Scale)
}

// WorldVertices transforms the mesh vertices into world space.
func (o *Object) WorldVertices() []r3.Vector {
	m := o.WorldMatrix()
	out := make([]r3.Vector, len(o.Vertices))
	for i, v := range o.Vertices {
		out[i] = m.TransformPoint(v.Vector())
	}
	return out
}

// TopLeftCorner returns the corner of the object's footprint with the
// smallest x and largest y, which serves as the origin of table coordinates.
func (o *Object) TopLeftCorner() r2.Point {
	return r2.Point{
		X: o.Location[0] - o.Dimensions[0]/2,
		Y: o.Location[1] + o.Dimensions[1]/2,
	}
}

func worldMatrix(rows []float64, loc, rot, scale Vec3) pmath.Mat4 {
	if len(rows) == 16 {
		var m [4][4]float64
		for i, v := range rows {
			m[i/4][i%4] = v
		}
		return pmath.FromRows(m)
	}
	return pmath.Compose(loc.Vector(), pmath.QuatFromEuler(rot.Vector()), scale.Vector())
}
