package annotate

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/poolrig/pkg/pixel"
	"github.com/Faultbox/poolrig/pkg/segment"
)

// Flat record suffixes, appended to the object name.
const (
	SuffixCategoryID = "_category_id"
	SuffixLocation   = "_location"
	SuffixBBox       = "_bbox"
	SuffixVertices   = "_vertices"
)

// numberFormat matches the numeric text files consumed by the training
// pipeline.
const numberFormat = "%.18e"

// WriteFlat writes the numeric records of a into dir, one file per field.
// One-dimensional records hold one number per line; vertices hold one
// "row col" pair per line and are written only when present.
func WriteFlat(dir string, a Annotation) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating annotations dir: %w", err)
	}

	base := filepath.Join(dir, a.Name)
	err := writeRows(base+SuffixCategoryID, [][]float64{{float64(a.CategoryID)}})
	err = multierr.Append(err, writeRows(base+SuffixLocation, [][]float64{{a.Location.X}, {a.Location.Y}}))
	err = multierr.Append(err, writeRows(base+SuffixBBox, [][]float64{
		{float64(a.BBox.MinRow)},
		{float64(a.BBox.MinCol)},
		{float64(a.BBox.Width)},
		{float64(a.BBox.Height)},
	}))
	if len(a.Vertices) > 0 {
		rows := make([][]float64, len(a.Vertices))
		for i, v := range a.Vertices {
			rows[i] = []float64{float64(v.Row), float64(v.Col)}
		}
		err = multierr.Append(err, writeRows(base+SuffixVertices, rows))
	}
	return err
}

func writeRows(path string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				w.WriteByte(' ')
			}
			fmt.Fprintf(w, numberFormat, v)
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFlat reads back the records WriteFlat wrote for name. A missing
// vertices file leaves Vertices nil.
func ReadFlat(dir, name string) (Annotation, error) {
	base := filepath.Join(dir, name)
	a := Annotation{Name: name}

	cat, err := readRows(base + SuffixCategoryID)
	if err != nil {
		return a, err
	}
	loc, err := readRows(base + SuffixLocation)
	if err != nil {
		return a, err
	}
	bbox, err := readRows(base + SuffixBBox)
	if err != nil {
		return a, err
	}
	if len(cat) != 1 || len(loc) != 2 || len(bbox) != 4 {
		return a, fmt.Errorf("annotation %q: unexpected record lengths %d/%d/%d", name, len(cat), len(loc), len(bbox))
	}

	a.CategoryID = int(cat[0][0])
	a.Location = r2.Point{X: loc[0][0], Y: loc[1][0]}
	a.BBox = BoundingBox{
		MinRow: int(bbox[0][0]),
		MinCol: int(bbox[1][0]),
		Width:  int(bbox[2][0]),
		Height: int(bbox[3][0]),
	}

	verts, err := readRows(base + SuffixVertices)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return a, nil
	case err != nil:
		return a, err
	}
	a.Vertices = make([]pixel.Coord, 0, len(verts))
	for i, v := range verts {
		if len(v) != 2 {
			return a, fmt.Errorf("annotation %q: vertex line %d has %d values", name, i+1, len(v))
		}
		a.Vertices = append(a.Vertices, pixel.Coord{Row: int(math.Round(v[0])), Col: int(math.Round(v[1]))})
	}
	return a, nil
}

func readRows(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for i, s := range fields {
			if row[i], err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

// MaskFile returns the image file name for an object's mask or outline.
// kind is "mask" or "outline"; variant is "visible" or "complete".
func MaskFile(name, kind, variant string) string {
	return fmt.Sprintf("%s_%s_%s.png", name, kind, variant)
}

// WriteMasks writes every extracted mask and outline of a as a width x
// height PNG in dir.
func WriteMasks(dir string, a Annotation, width, height int) error {
	images := []struct {
		kind, variant string
		coords        []pixel.Coord
	}{
		{"mask", "visible", a.VisibleMask},
		{"outline", "visible", a.VisibleOutline},
		{"mask", "complete", a.CompleteMask},
		{"outline", "complete", a.CompleteOutline},
	}

	var err error
	for _, img := range images {
		if img.coords == nil {
			continue
		}
		path := filepath.Join(dir, MaskFile(a.Name, img.kind, img.variant))
		err = multierr.Append(err, segment.SaveMask(path, img.coords, width, height))
	}
	return err
}

// Manifest indexes every annotation of a run.
type Manifest struct {
	Width       int          `yaml:"width"`
	Height      int          `yaml:"height"`
	Lens        string       `yaml:"lens"`
	Annotations []Annotation `yaml:"annotations"`
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadManifest reads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &m, nil
}
