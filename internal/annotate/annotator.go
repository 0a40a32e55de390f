package annotate

import (
	"context"
	"fmt"
	"runtime"

	"github.com/golang/geo/r2"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/poolrig/internal/scene"
	"github.com/Faultbox/poolrig/pkg/camera"
	"github.com/Faultbox/poolrig/pkg/lens"
	"github.com/Faultbox/poolrig/pkg/pixel"
	"github.com/Faultbox/poolrig/pkg/segment"
)

// Options control what the annotator extracts.
type Options struct {
	// Collections and CategoryIDs are paired by position.
	Collections []string
	CategoryIDs []int

	// ReferenceObject, when set, names the object whose top-left corner
	// becomes the origin of every location.
	ReferenceObject string

	// CameraName must match the scene camera when set.
	CameraName string
	Lens       lens.Model
	// Intrinsics and render size override the scene's when non-zero.
	Intrinsics camera.Intrinsics
	Width      int
	Height     int

	Masks             bool
	Outlines          bool
	IndividualRenders bool
	VertexCoordinates bool

	// Workers bounds concurrent objects; 0 means GOMAXPROCS.
	Workers int
}

// Annotator produces annotations for the objects of a scene.
type Annotator struct {
	opts Options
	log  *zap.Logger
}

// New creates an annotator.
func New(opts Options, log *zap.Logger) *Annotator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Annotator{opts: opts, log: log.Named("annotate")}
}

// target is an object queued for annotation.
type target struct {
	obj        *scene.Object
	categoryID int
}

// Run annotates every object in the configured collections. visible is the
// index buffer of the full render; complete holds the individual render of
// each object keyed by object name. Either may be nil when no masks or
// outlines are requested. Annotations are returned in collection order.
func (a *Annotator) Run(ctx context.Context, sc *scene.Scene, visible *segment.IndexBuffer, complete map[string]*segment.IndexBuffer) ([]Annotation, error) {
	targets, err := a.targets(sc)
	if err != nil {
		return nil, err
	}

	cam, err := a.camera(sc)
	if err != nil {
		return nil, err
	}

	origin, err := a.origin(sc)
	if err != nil {
		return nil, err
	}

	wantPixels := a.opts.Masks || a.opts.Outlines
	var visibleOutlines map[int32][]pixel.Coord
	if wantPixels {
		if visible == nil {
			return nil, fmt.Errorf("masks or outlines requested without an index buffer")
		}
		if err := visible.CheckSize(cam.Width, cam.Height); err != nil {
			return nil, fmt.Errorf("visible index buffer: %w", err)
		}
		if a.opts.Outlines {
			visibleOutlines = visible.Outlines()
		}
	}

	a.log.Info("annotating scene",
		zap.Int("objects", len(targets)),
		zap.Stringer("lens", a.opts.Lens),
		zap.Int("width", cam.Width),
		zap.Int("height", cam.Height))

	workers := a.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Annotation, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			ann, err := a.annotate(cam, t, origin)
			if err != nil {
				return fmt.Errorf("object %q: %w", t.obj.Name, err)
			}

			if wantPixels {
				if err := a.attachPixels(&ann, visible, visibleOutlines, complete, cam); err != nil {
					return fmt.Errorf("object %q: %w", t.obj.Name, err)
				}
			}

			a.log.Debug("annotated object",
				zap.String("object", ann.Name),
				zap.Int("category_id", ann.CategoryID),
				zap.Stringer("bbox", ann.BBox),
				zap.Int("vertex_pixels", len(ann.Vertices)))

			results[i] = ann
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// targets pairs the objects of each collection with its category id.
func (a *Annotator) targets(sc *scene.Scene) ([]target, error) {
	if len(a.opts.Collections) != len(a.opts.CategoryIDs) {
		return nil, fmt.Errorf("%d collections but %d category ids", len(a.opts.Collections), len(a.opts.CategoryIDs))
	}

	var targets []target
	for _, pair := range lo.Zip2(a.opts.Collections, a.opts.CategoryIDs) {
		objs, err := sc.Collection(pair.A)
		if err != nil {
			return nil, err
		}
		for _, o := range objs {
			targets = append(targets, target{obj: o, categoryID: pair.B})
		}
	}
	return targets, nil
}

// camera builds the projection camera from the scene and the overrides.
func (a *Annotator) camera(sc *scene.Scene) (*camera.Camera, error) {
	if a.opts.CameraName != "" && a.opts.CameraName != sc.Camera.Name {
		return nil, fmt.Errorf("camera %q not found, scene camera is %q", a.opts.CameraName, sc.Camera.Name)
	}

	in := sc.Camera.Intrinsics()
	if a.opts.Intrinsics != (camera.Intrinsics{}) {
		in = a.opts.Intrinsics
	}

	width, height := sc.Render.Width, sc.Render.Height
	if a.opts.Width > 0 && a.opts.Height > 0 {
		width, height = a.opts.Width, a.opts.Height
	}

	pose, err := sc.Camera.Pose()
	if err != nil {
		return nil, err
	}
	return camera.New(in, pose, a.opts.Lens, width, height)
}

// origin returns the reference object's top-left corner, or nil.
func (a *Annotator) origin(sc *scene.Scene) (*r2.Point, error) {
	if a.opts.ReferenceObject == "" {
		return nil, nil
	}
	ref, err := sc.Object(a.opts.ReferenceObject)
	if err != nil {
		return nil, fmt.Errorf("reference object: %w", err)
	}
	corner := ref.TopLeftCorner()
	return &corner, nil
}

// annotate computes the geometric part of an annotation.
func (a *Annotator) annotate(cam *camera.Camera, t target, origin *r2.Point) (Annotation, error) {
	vertices, err := VertexPixels(cam, t.obj.WorldVertices())
	if err != nil {
		return Annotation{}, err
	}
	bbox, err := BoundingBoxOf(vertices)
	if err != nil {
		return Annotation{}, err
	}

	ann := Annotation{
		Name:       t.obj.Name,
		CategoryID: t.categoryID,
		PassIndex:  t.obj.PassIndex,
		Location:   TableLocation(t.obj.Location.Vector(), origin),
		BBox:       bbox,
	}
	if a.opts.VertexCoordinates {
		ann.Vertices = vertices
	}
	return ann, nil
}

// attachPixels fills the mask and outline fields of ann.
func (a *Annotator) attachPixels(ann *Annotation, visible *segment.IndexBuffer, outlines map[int32][]pixel.Coord, complete map[string]*segment.IndexBuffer, cam *camera.Camera) error {
	if a.opts.Masks {
		ann.VisibleMask = nonNil(visible.VisibleMask(ann.PassIndex))
	}
	if a.opts.Outlines {
		ann.VisibleOutline = nonNil(outlines[ann.PassIndex])
	}

	if !a.opts.IndividualRenders {
		return nil
	}
	buf, ok := complete[ann.Name]
	if !ok || buf == nil {
		return fmt.Errorf("no individual render")
	}
	if err := buf.CheckSize(cam.Width, cam.Height); err != nil {
		return fmt.Errorf("individual render: %w", err)
	}
	if a.opts.Masks {
		ann.CompleteMask = nonNil(buf.VisibleMask(ann.PassIndex))
	}
	if a.opts.Outlines {
		ann.CompleteOutline = nonNil(buf.Outline(ann.PassIndex))
	}
	return nil
}

func nonNil(c []pixel.Coord) []pixel.Coord {
	if c == nil {
		return []pixel.Coord{}
	}
	return c
}
