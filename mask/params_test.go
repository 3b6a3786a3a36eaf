package mask

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/basemap"
)

func TestCursorFromViewport(t *testing.T) {
	tests := []struct {
		name      string
		pt        basemap.Point
		container basemap.Size
		w, h      float64
		want      Cursor
	}{
		{"top-left", basemap.Point{X: 0, Y: 0}, basemap.Size{W: 400, H: 300}, 800, 600, Cursor{X: 0, Y: 600}},
		{"bottom-right", basemap.Point{X: 400, Y: 300}, basemap.Size{W: 400, H: 300}, 800, 600, Cursor{X: 800, Y: 0}},
		{"center", basemap.Point{X: 200, Y: 150}, basemap.Size{W: 400, H: 300}, 800, 600, Cursor{X: 400, Y: 300}},
		{"degenerate", basemap.Point{X: 5, Y: 5}, basemap.Size{}, 800, 600, Cursor{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CursorFromViewport(tt.pt, tt.container, tt.w, tt.h); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDerive(t *testing.T) {
	p := Derive(800, 600, Cursor{}, planetmap.RGB(1, 0, 0), IntensityWarping)
	if p.Radius != 150 {
		t.Errorf("Radius = %v, want 150", p.Radius)
	}
	if math.Abs(p.Feather-82.5) > 1e-9 {
		t.Errorf("Feather = %v, want 82.5", p.Feather)
	}
	if p.Color.A != Alpha {
		t.Errorf("alpha = %v, want %v", p.Color.A, Alpha)
	}
	if p.Intensity != IntensityWarping {
		t.Errorf("Intensity = %v", p.Intensity)
	}
}

func TestParamsBytesLayout(t *testing.T) {
	p := Derive(800, 600, Cursor{X: 12, Y: 34}, planetmap.RGB(0.25, 0.5, 1), 1)
	b := p.bytes()
	if len(b) != uniformSize {
		t.Fatalf("len = %d, want %d", len(b), uniformSize)
	}
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
	}
	checks := []struct {
		name string
		off  int
		want float32
	}{
		{"width", offResolution, 800},
		{"height", offResolution + 4, 600},
		{"cursor.x", offCursor, 12},
		{"cursor.y", offCursor + 4, 34},
		{"color.g", offColor + 4, 0.5},
		{"color.a", offColor + 12, float32(p.Color.A)},
		{"radius", offRadius, 150},
		{"intensity", offIntensity, 1},
	}
	for _, c := range checks {
		if got := f(c.off); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCoverage(t *testing.T) {
	p := Derive(100, 100, Cursor{X: 50, Y: 50}, planetmap.RGB(1, 1, 1), 1)

	if got := Coverage(p, 50, 50); got != 0 {
		t.Errorf("coverage at cursor = %v, want 0", got)
	}
	if got := Coverage(p, 0, 0); math.Abs(got-Alpha) > 1e-9 {
		t.Errorf("coverage at corner = %v, want %v", got, Alpha)
	}
	mid := Coverage(p, 50+p.Radius-p.Feather/2, 50)
	if mid <= 0 || mid >= Alpha {
		t.Errorf("coverage in feather band = %v, want between 0 and %v", mid, Alpha)
	}

	warp := Derive(100, 100, Cursor{X: 50, Y: 50}, planetmap.RGB(1, 1, 1), IntensityWarping)
	if got := Coverage(warp, 0, 0); math.Abs(got-Alpha*IntensityWarping) > 1e-9 {
		t.Errorf("warping coverage = %v", got)
	}
}

func TestCoverageFlipsVertically(t *testing.T) {
	// Cursor near the bottom in mask space is near the last framebuffer row.
	p := Derive(100, 100, Cursor{X: 50, Y: 5}, planetmap.RGB(1, 1, 1), 1)
	if Coverage(p, 50, 95) != 0 {
		t.Error("bottom row should be revealed")
	}
	if Coverage(p, 50, 5) == 0 {
		t.Error("top row should be tinted")
	}
}

func TestRasterize(t *testing.T) {
	p := Derive(40, 20, Cursor{X: 20, Y: 10}, planetmap.RGB(1, 1, 1), 1)
	img := Rasterize(p)
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Fatalf("bounds = %v", b)
	}
	if img.AlphaAt(20, 10).A != 0 {
		t.Errorf("center alpha = %d, want 0", img.AlphaAt(20, 10).A)
	}
	if img.AlphaAt(0, 0).A == 0 {
		t.Error("corner should be tinted")
	}
}
