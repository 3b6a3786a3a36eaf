package mask

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/basemap"
)

// Mask constants.
const (
	// RadiusScale is the mask radius as a fraction of the shorter canvas side.
	RadiusScale = 0.25
	// FeatherScale is the soft edge width as a fraction of the radius.
	FeatherScale = 0.55
	// Alpha is the tint alpha outside the reveal.
	Alpha = 0.85

	IntensityNormal  = 1.0
	IntensityWarping = 0.3
)

// FallbackColor is the tint used when an overlay has no valid color.
const FallbackColor = "#00f6ff"

// Cursor is a position in mask backing pixels with the origin at the
// bottom-left corner.
type Cursor struct {
	X, Y float64
}

// CursorFromViewport maps a pointer position over the map container to mask
// pixels of a w×h backing store, flipping the vertical axis. A degenerate
// container maps to the origin.
func CursorFromViewport(pt basemap.Point, container basemap.Size, w, h float64) Cursor {
	if container.W <= 0 || container.H <= 0 {
		return Cursor{}
	}
	return Cursor{
		X: pt.X / container.W * w,
		Y: h - pt.Y/container.H*h,
	}
}

// Params is the full uniform state of one mask frame.
type Params struct {
	Width, Height float64
	Cursor        Cursor
	Color         planetmap.RGBA
	Radius        float64
	Feather       float64
	Intensity     float64
}

// Derive computes frame parameters for a width×height canvas. Radius and
// feather follow the canvas size; the color alpha is forced to Alpha.
func Derive(width, height float64, cursor Cursor, color planetmap.RGBA, intensity float64) Params {
	radius := RadiusScale * math.Min(width, height)
	return Params{
		Width:     width,
		Height:    height,
		Cursor:    cursor,
		Color:     color.WithAlpha(Alpha),
		Radius:    radius,
		Feather:   FeatherScale * radius,
		Intensity: intensity,
	}
}

// Uniform buffer layout (std140-compatible, 48 bytes):
//
//	resolution vec2<f32>  offset 0
//	cursor     vec2<f32>  offset 8
//	color      vec4<f32>  offset 16
//	radius     f32        offset 32
//	feather    f32        offset 36
//	intensity  f32        offset 40
//	_pad       f32        offset 44
const (
	offResolution = 0
	offCursor     = 8
	offColor      = 16
	offRadius     = 32
	offFeather    = 36
	offIntensity  = 40
	uniformSize   = 48
)

func putF32(b []byte, off int, v float64) {
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(float32(v)))
}

// bytes encodes p in the uniform buffer layout.
func (p Params) bytes() []byte {
	b := make([]byte, uniformSize)
	putF32(b, offResolution, p.Width)
	putF32(b, offResolution+4, p.Height)
	putF32(b, offCursor, p.Cursor.X)
	putF32(b, offCursor+4, p.Cursor.Y)
	for i, c := range p.Color.Vec4() {
		binary.LittleEndian.PutUint32(b[offColor+4*i:], math.Float32bits(c))
	}
	putF32(b, offRadius, p.Radius)
	putF32(b, offFeather, p.Feather)
	putF32(b, offIntensity, p.Intensity)
	return b
}

// Coverage evaluates the fragment function on the CPU for the framebuffer
// position (x, y), measured from the top-left corner. It returns the
// output alpha.
func Coverage(p Params, x, y float64) float64 {
	d := math.Hypot(x-p.Cursor.X, (p.Height-y)-p.Cursor.Y)
	return smoothstep(p.Radius-p.Feather, p.Radius, d) * p.Color.A * p.Intensity
}

func smoothstep(e0, e1, x float64) float64 {
	if e0 == e1 {
		if x < e0 {
			return 0
		}
		return 1
	}
	t := math.Max(0, math.Min(1, (x-e0)/(e1-e0)))
	return t * t * (3 - 2*t)
}

// Rasterize renders the mask alpha on the CPU, sampling pixel centers.
func Rasterize(p Params) *image.Alpha {
	w, h := int(p.Width), int(p.Height)
	img := image.NewAlpha(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := Coverage(p, float64(x)+0.5, float64(y)+0.5)
			img.Pix[y*img.Stride+x] = uint8(math.Round(a * 255))
		}
	}
	return img
}
