package tile

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/planetmap"
)

const pngPrefix = "data:image/png;base64,"

var background = color.NRGBA{R: 0x05, G: 0x05, B: 0x10, A: 0xff}

// regular is the parsed Go Regular font, loaded on first use.
var regular = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// faces caches one face per text size. font.Face is not safe for concurrent
// use, so faces are guarded by facesMu while drawing.
var (
	facesMu sync.Mutex
	faces   = map[float64]font.Face{}
)

func faceFor(size float64) (font.Face, error) {
	if f, ok := faces[size]; ok {
		return f, nil
	}
	ft, err := regular()
	if err != nil {
		return nil, err
	}
	f, err := opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	faces[size] = f
	return f, nil
}

// Render rasterizes the tile: a dark backdrop, a radial glow and a
// horizontal scan band in the overlay color, then three centered text lines.
func Render(c Content) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, Size, Size))
	tint := planetmap.HexOr(c.Color, planetmap.Hex(DefaultColor))

	const (
		center     = Size / 2.0
		glowRadius = 0.7 * Size
	)
	for y := 0; y < Size; y++ {
		fy := float64(y) + 0.5
		// scan: 0 at the edges, 0.3 at mid height, drawn at 0.65 opacity.
		scan := 0.3 * (1 - math.Abs(fy-center)/center) * 0.65
		for x := 0; x < Size; x++ {
			fx := float64(x) + 0.5
			d := math.Hypot(fx-center, fy-center) / glowRadius
			glow := 0.0
			if d < 1 {
				glow = 0.85 * (1 - d) * 0.8
			}
			r, g, b := over(tint, glow, float64(background.R)/255, float64(background.G)/255, float64(background.B)/255)
			r, g, b = over(tint, scan, r, g, b)
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(math.Round(r * 255)),
				G: uint8(math.Round(g * 255)),
				B: uint8(math.Round(b * 255)),
				A: 0xff,
			})
		}
	}

	facesMu.Lock()
	defer facesMu.Unlock()
	for i, text := range [3]string{c.Planet, c.Overlay, c.Date} {
		l := lines[i]
		face, err := faceFor(l.size)
		if err != nil {
			planetmap.Logger().Warn("tile: font unavailable, text skipped", "error", err)
			break
		}
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: uint8(math.Round(l.opacity * 255))}),
			Face: face,
		}
		adv := d.MeasureString(text)
		d.Dot = fixed.Point26_6{
			X: (fixed.I(Size) - adv) / 2,
			Y: fixed.I(Size * l.yPct / 100),
		}
		d.DrawString(text)
	}
	return img
}

// over composites src at alpha a over an opaque destination.
func over(src planetmap.RGBA, a, r, g, b float64) (float64, float64, float64) {
	return src.R*a + r*(1-a), src.G*a + g*(1-a), src.B*a + b*(1-a)
}

// PNG encodes the rendered tile.
func PNG(c Content) ([]byte, error) {
	var b bytes.Buffer
	if err := png.Encode(&b, Render(c)); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func pngDataURL(c Content) string {
	data, err := PNG(c)
	if err != nil {
		planetmap.Logger().Warn("tile: png encode failed, falling back to svg", "error", err)
		return svgDataURL(c)
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(data)
}
