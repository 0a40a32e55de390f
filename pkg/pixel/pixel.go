// Package pixel converts between image coordinate conventions.
//
// Two conventions are in use. The renderer addresses pixels from the
// bottom-left corner of the image, with the first component running along
// the image width. Array-style image consumers address pixels from the
// top-left corner as (row, col).
package pixel

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Coord is an integer pixel position in one of the two conventions.
type Coord struct {
	Row int
	Col int
}

// BottomLeftToTopLeft converts a bottom-left origin position to the
// top-left convention. The axes are swapped and the vertical axis is
// mirrored: (row, col) becomes (col, height-1-row).
func BottomLeftToTopLeft(row, col, height int) Coord {
	return Coord{Row: col, Col: (height - 1) - row}
}

// TopLeftToBottomLeft is the exact inverse of BottomLeftToTopLeft.
func TopLeftToBottomLeft(row, col, height int) Coord {
	return Coord{Row: (height - 1) - col, Col: row}
}

// FromRenderer converts a renderer position (x along the width, y up from
// the bottom edge) to a top-left (row, col) array position.
func FromRenderer(x, y, height int) Coord {
	return Coord{Row: (height - 1) - y, Col: x}
}

// ToRenderer is the inverse of FromRenderer and returns (x, y).
func ToRenderer(c Coord, height int) (x, y int) {
	return c.Col, (height - 1) - c.Row
}

// FlipRow mirrors a row index coming from the renderer's index buffer.
// The result is height-row, not height-1-row.
func FlipRow(row, height int) int {
	return height - row
}

// ReOrigin expresses point relative to origin instead of the world origin.
func ReOrigin(point, origin r3.Vector) r3.Vector {
	return point.Sub(origin)
}

// ReOrigin2 is ReOrigin for planar points.
func ReOrigin2(point, origin r2.Point) r2.Point {
	return point.Sub(origin)
}

// SortCoords orders coordinates by row, then column.
func SortCoords(coords []Coord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Row != coords[j].Row {
			return coords[i].Row < coords[j].Row
		}
		return coords[i].Col < coords[j].Col
	})
}
