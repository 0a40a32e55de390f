// lenstool is a CLI utility for lens projections of a scene camera.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/golang/geo/r3"

	"github.com/Faultbox/poolrig/internal/annotate"
	"github.com/Faultbox/poolrig/internal/config"
	"github.com/Faultbox/poolrig/internal/scene"
	"github.com/Faultbox/poolrig/pkg/camera"
	"github.com/Faultbox/poolrig/pkg/lens"
	"github.com/Faultbox/poolrig/pkg/pixel"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "lenses", "ls":
		cmdLenses()
	case "project":
		cmdProject(args)
	case "reproject":
		cmdReproject(args)
	case "unproject":
		cmdUnproject(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`lenstool - lens projection utility

Usage:
  lenstool <command> [options]

Commands:
  lenses                                      List lens models and their domains
  project -scene <s.yaml> x y z               Project a world point to a pixel
  reproject -from <m> -to <m> <dir> <object>  Move an object's vertex pixels to another lens
  unproject -scene <s.yaml> -plane z row col  Find the table point seen at a pixel

Examples:
  lenstool lenses
  lenstool project -scene scene.yaml -lens rectilinear 0.5 0.25 0.03
  lenstool reproject -to rectilinear ~/annotations Ball.001
  lenstool unproject -scene scene.yaml -plane 0.03 512 1024`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func cmdLenses() {
	fmt.Printf("%-22s %-14s %s\n", "MODEL", "MAX THETA", "PRESET")
	for _, m := range lens.Models() {
		maxTheta, inclusive := m.MaxTheta()
		bound := "<"
		if inclusive {
			bound = "<="
		}
		preset := ""
		if m.Selectable() {
			preset = "yes"
		}
		fmt.Printf("%-22s %-2s %7.2f deg  %s\n", m, bound, maxTheta*180/math.Pi, preset)
	}
}

// sceneCamera loads a scene and builds its camera under the named lens.
func sceneCamera(path, model string) (*camera.Camera, lens.Model) {
	if path == "" {
		fail("no scene given (-scene)")
	}
	m, err := lens.ParseModel(model)
	if err != nil {
		fail("%v", err)
	}
	sc, err := scene.Load(path)
	if err != nil {
		fail("%v", err)
	}
	pose, err := sc.Camera.Pose()
	if err != nil {
		fail("%v", err)
	}
	cam, err := camera.New(sc.Camera.Intrinsics(), pose, m, sc.Render.Width, sc.Render.Height)
	if err != nil {
		fail("%v", err)
	}
	return cam, m
}

func parseFloats(args []string) []float64 {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			fail("invalid number %q", a)
		}
		out[i] = v
	}
	return out
}

func cmdProject(args []string) {
	fs := flag.NewFlagSet("project", flag.ExitOnError)
	scenePath := fs.String("scene", "", "Scene export file")
	model := fs.String("lens", config.Default().Lens.Projection, "Lens model")
	fs.Parse(args)

	if fs.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "Usage: lenstool project -scene <s.yaml> [-lens m] x y z")
		os.Exit(1)
	}
	xyz := parseFloats(fs.Args())
	p := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}

	cam, _ := sceneCamera(*scenePath, *model)
	pt, err := cam.Normalized(p)
	if err != nil {
		fail("%v", err)
	}
	px, err := cam.PixelOf(p)
	if err != nil {
		fail("%v", err)
	}

	inside := px.Row >= 0 && px.Row < cam.Height && px.Col >= 0 && px.Col < cam.Width
	fmt.Printf("Normalized: %.6f %.6f\n", pt.X, pt.Y)
	fmt.Printf("Pixel:      row %d col %d", px.Row, px.Col)
	if !inside {
		fmt.Print(" (outside the render)")
	}
	fmt.Println()
}

func cmdReproject(args []string) {
	defaults := config.Default()

	fs := flag.NewFlagSet("reproject", flag.ExitOnError)
	from := fs.String("from", defaults.Lens.Projection, "Lens model the pixels were produced with")
	to := fs.String("to", lens.Rectilinear.String(), "Target lens model")
	width := fs.Int("width", defaults.Render.Width, "Render width")
	height := fs.Int("height", defaults.Render.Height, "Render height")
	sensorW := fs.Float64("sensor-width", defaults.Camera.SensorWidth, "Sensor width (mm)")
	sensorH := fs.Float64("sensor-height", defaults.Camera.SensorHeight, "Sensor height (mm)")
	focal := fs.Float64("focal-length", defaults.Camera.FocalLength, "Focal length (mm)")
	write := fs.Bool("w", false, "Overwrite the vertex and bbox records")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: lenstool reproject [-from m] [-to m] [-w] <annotations dir> <object>")
		os.Exit(1)
	}
	dir, name := fs.Arg(0), fs.Arg(1)

	fromModel, err := lens.ParseModel(*from)
	if err != nil {
		fail("%v", err)
	}
	toModel, err := lens.ParseModel(*to)
	if err != nil {
		fail("%v", err)
	}
	in := camera.Intrinsics{SensorWidth: *sensorW, SensorHeight: *sensorH, FocalLength: *focal}
	if err := in.Validate(); err != nil {
		fail("%v", err)
	}

	a, err := annotate.ReadFlat(dir, name)
	if err != nil {
		fail("%v", err)
	}
	if len(a.Vertices) == 0 {
		fail("%s has no vertex records; annotate with -vertex-coordinates", name)
	}

	moved, err := annotate.ReprojectPixels(in, a.Vertices, *width, *height, fromModel, toModel)
	if err != nil {
		fail("%v", err)
	}
	bbox, err := annotate.BoundingBoxOf(moved)
	if err != nil {
		fail("%v", err)
	}

	fmt.Printf("%s: %d vertex pixels, bbox %v -> %v\n", name, len(moved), a.BBox, bbox)
	if !*write {
		for _, c := range moved {
			fmt.Printf("%d %d\n", c.Row, c.Col)
		}
		return
	}

	a.Vertices, a.BBox = moved, bbox
	if err := annotate.WriteFlat(dir, a); err != nil {
		fail("%v", err)
	}
}

func cmdUnproject(args []string) {
	fs := flag.NewFlagSet("unproject", flag.ExitOnError)
	scenePath := fs.String("scene", "", "Scene export file")
	model := fs.String("lens", config.Default().Lens.Projection, "Lens model")
	plane := fs.Float64("plane", 0, "Height of the horizontal plane to intersect")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: lenstool unproject -scene <s.yaml> [-lens m] [-plane z] row col")
		os.Exit(1)
	}
	rc := parseFloats(fs.Args())

	cam, m := sceneCamera(*scenePath, *model)
	ray, err := cam.UnprojectPixel(pixel.Coord{Row: int(rc[0]), Col: int(rc[1])}, m)
	if err != nil {
		fail("%v", err)
	}

	p, ok := ray.IntersectPlaneZ(*plane)
	fmt.Printf("Ray:   origin %.4f %.4f %.4f  direction %.4f %.4f %.4f\n",
		ray.Origin.X, ray.Origin.Y, ray.Origin.Z,
		ray.Direction.X, ray.Direction.Y, ray.Direction.Z)
	if !ok {
		fmt.Printf("Point: the ray never reaches z = %v\n", *plane)
		return
	}
	fmt.Printf("Point: %.4f %.4f %.4f\n", p.X, p.Y, p.Z)
}
