// Package segment decodes per-pixel object index buffers written by the
// renderer and extracts per-object masks and outlines from them.
package segment

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/poolrig/pkg/pixel"
)

// Buffer errors.
var (
	ErrDimensionMismatch        = errors.New("index buffer dimensions do not match")
	ErrInvalidBufferMagic       = errors.New("invalid index buffer magic: expected 'PIDX'")
	ErrUnsupportedBufferVersion = errors.New("unsupported index buffer version")
	ErrTruncatedBuffer          = errors.New("truncated index buffer data")
	ErrBufferTooLarge           = errors.New("index buffer dimensions too large")
)

// IndexBuffer is a dense grid of object labels, one per pixel.
//
// Labels are stored row by row in the order the renderer emits them, which
// starts at the bottom edge of the image. The buffer must not be modified
// while masks or outlines are being extracted from it.
type IndexBuffer struct {
	Width  int
	Height int
	Labels []int32
}

// NewIndexBuffer wraps labels as a width x height buffer.
func NewIndexBuffer(width, height int, labels []int32) (*IndexBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrDimensionMismatch, width, height)
	}
	if len(labels) != width*height {
		return nil, fmt.Errorf("%w: %dx%d needs %d labels, got %d",
			ErrDimensionMismatch, width, height, width*height, len(labels))
	}
	return &IndexBuffer{Width: width, Height: height, Labels: labels}, nil
}

// CheckSize returns ErrDimensionMismatch unless the buffer is width x height.
func (b *IndexBuffer) CheckSize(width, height int) error {
	if b.Width != width || b.Height != height {
		return fmt.Errorf("%w: buffer is %dx%d, render is %dx%d",
			ErrDimensionMismatch, b.Width, b.Height, width, height)
	}
	return nil
}

// At returns the label at (row, col). It panics if the position is outside
// the buffer.
func (b *IndexBuffer) At(row, col int) int32 {
	if row < 0 || row >= b.Height || col < 0 || col >= b.Width {
		panic(fmt.Sprintf("segment: position (%d,%d) outside %dx%d buffer", row, col, b.Width, b.Height))
	}
	return b.Labels[row*b.Width+col]
}

// Distinct returns the labels present, in ascending order.
func (b *IndexBuffer) Distinct() []int32 {
	seen := make(map[int32]struct{})
	for _, l := range b.Labels {
		seen[l] = struct{}{}
	}
	out := make([]int32, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VisibleMask returns every pixel carrying label. Rows are mirrored with
// height-row to move from the renderer's vertical order to the caller's.
func (b *IndexBuffer) VisibleMask(label int32) []pixel.Coord {
	var mask []pixel.Coord
	for row := 0; row < b.Height; row++ {
		base := row * b.Width
		for col := 0; col < b.Width; col++ {
			if b.Labels[base+col] == label {
				mask = append(mask, pixel.Coord{Row: pixel.FlipRow(row, b.Height), Col: col})
			}
		}
	}
	return mask
}

// OutlineMap marks every interior pixel whose up, down, left or right
// neighbour carries a different label. Pixels on the one-pixel border are
// never marked. The result is indexed like Labels.
func (b *IndexBuffer) OutlineMap() []bool {
	marks := make([]bool, len(b.Labels))
	if b.Height < 3 || b.Width < 3 {
		return marks
	}

	workers := runtime.GOMAXPROCS(0)
	band := (b.Height - 2 + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 1; start < b.Height-1; start += band {
		start := start
		end := min(start+band, b.Height-1)
		g.Go(func() error {
			b.markRows(marks, start, end)
			return nil
		})
	}
	_ = g.Wait()

	return marks
}

// markRows fills marks for interior rows [start, end).
func (b *IndexBuffer) markRows(marks []bool, start, end int) {
	w := b.Width
	for row := start; row < end; row++ {
		for col := 1; col < w-1; col++ {
			i := row*w + col
			v := b.Labels[i]
			if b.Labels[i-1] != v || b.Labels[i-w] != v ||
				b.Labels[i+1] != v || b.Labels[i+w] != v {
				marks[i] = true
			}
		}
	}
}

// Outline returns the outline pixels of label, rows mirrored as in
// VisibleMask.
func (b *IndexBuffer) Outline(label int32) []pixel.Coord {
	return b.outlineOf(b.OutlineMap(), label)
}

// Outlines returns the outline of every label from a single scan.
func (b *IndexBuffer) Outlines() map[int32][]pixel.Coord {
	marks := b.OutlineMap()
	out := make(map[int32][]pixel.Coord)
	for i, marked := range marks {
		if !marked {
			continue
		}
		row, col := i/b.Width, i%b.Width
		l := b.Labels[i]
		out[l] = append(out[l], pixel.Coord{Row: pixel.FlipRow(row, b.Height), Col: col})
	}
	return out
}

func (b *IndexBuffer) outlineOf(marks []bool, label int32) []pixel.Coord {
	var outline []pixel.Coord
	for i, marked := range marks {
		if marked && b.Labels[i] == label {
			row, col := i/b.Width, i%b.Width
			outline = append(outline, pixel.Coord{Row: pixel.FlipRow(row, b.Height), Col: col})
		}
	}
	return outline
}
