package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/png" // register PNG decoder
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// RawVersion represents the raw dump format version.
type RawVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RawVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// rawHeaderSize is magic(4) + version(2) + width(4) + height(4) + channels(1).
const rawHeaderSize = 15

// MaxRawDimension caps the width and height a raw dump may declare.
const MaxRawDimension = 1 << 15

// ParseRaw decodes a raw index buffer dump.
//
// Layout (little-endian):
//
//	"PIDX"            magic
//	uint8, uint8      version minor, major (1.0)
//	uint32, uint32    width, height
//	uint8             channels per pixel
//	float32...        width*height*channels samples, renderer row order
//
// The first channel of each pixel holds the object label.
func ParseRaw(data []byte) (*IndexBuffer, error) {
	if len(data) < rawHeaderSize {
		return nil, ErrTruncatedBuffer
	}
	if string(data[:4]) != "PIDX" {
		return nil, ErrInvalidBufferMagic
	}

	version := RawVersion{Minor: data[4], Major: data[5]}
	if version.Major != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBufferVersion, version)
	}

	r := bytes.NewReader(data[6:])
	var width, height uint32
	if err := binary.Read(r, binary.LittleEndian, &width); err != nil {
		return nil, fmt.Errorf("reading width: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &height); err != nil {
		return nil, fmt.Errorf("reading height: %w", err)
	}
	channels, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading channels: %w", err)
	}
	if width == 0 || height == 0 || channels == 0 {
		return nil, fmt.Errorf("%w: %dx%d with %d channels", ErrDimensionMismatch, width, height, channels)
	}

	if width > MaxRawDimension || height > MaxRawDimension {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrBufferTooLarge, width, height, MaxRawDimension)
	}

	need := uint64(width) * uint64(height) * uint64(channels) * 4
	body := data[rawHeaderSize:]
	if uint64(len(body)) < need {
		return nil, fmt.Errorf("%w: need %d bytes of samples, got %d", ErrTruncatedBuffer, need, len(body))
	}

	pixels := int(width) * int(height)
	stride := int(channels) * 4

	labels := make([]int32, pixels)
	for i := range labels {
		bits := binary.LittleEndian.Uint32(body[i*stride:])
		labels[i] = int32(math.Round(float64(math.Float32frombits(bits))))
	}

	return NewIndexBuffer(int(width), int(height), labels)
}

// FromImage reads labels from a grey or colour image. Grey images use their
// grey value; colour images use the red channel, as the renderer writes the
// index into every channel. 16-bit images keep their full range.
//
// Images are stored top row first, so rows are reversed into renderer order.
func FromImage(img image.Image) (*IndexBuffer, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	labels := make([]int32, w*h)

	wide := is16Bit(img)
	for y := 0; y < h; y++ {
		row := (h - 1 - y) * w
		for x := 0; x < w; x++ {
			labels[row+x] = labelAt(img, bounds.Min.X+x, bounds.Min.Y+y, wide)
		}
	}

	return NewIndexBuffer(w, h, labels)
}

func is16Bit(img image.Image) bool {
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return true
	}
	return false
}

func labelAt(img image.Image, x, y int, wide bool) int32 {
	switch im := img.(type) {
	case *image.Gray16:
		return int32(im.Gray16At(x, y).Y)
	case *image.Gray:
		return int32(im.GrayAt(x, y).Y)
	}
	r, _, _, _ := img.At(x, y).RGBA()
	if wide {
		return int32(r)
	}
	return int32(r >> 8)
}

// Load reads an index buffer from a raw dump (.pidx) or an image
// (.png, .tif, .tiff).
func Load(path string) (*IndexBuffer, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pidx":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		buf, err := ParseRaw(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return buf, nil

	case ".png", ".tif", ".tiff":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return FromImage(img)

	default:
		return nil, fmt.Errorf("unsupported index buffer format %q", ext)
	}
}
