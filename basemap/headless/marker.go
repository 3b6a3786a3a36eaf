package headless

import (
	"math"
	"slices"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/gogpu/planetmap/basemap"
)

// HitRadius is the pick tolerance of MarkerAt, in container pixels.
const HitRadius = 12.0

// Marker is a marker held by an Engine.
type Marker struct {
	engine   *Engine
	element  string
	at       basemap.LngLat
	mercator geom.XY
	onClick  func()
	visible  bool
	removed  bool
}

// AddMarker implements basemap.Map. New markers are visible.
func (e *Engine) AddMarker(opts basemap.MarkerOptions) basemap.Marker {
	m := &Marker{
		engine:   e,
		element:  opts.Element,
		at:       opts.At,
		mercator: mercator(opts.At),
		onClick:  opts.OnClick,
		visible:  true,
	}
	e.mu.Lock()
	e.markers = append(e.markers, m)
	e.record("add-marker %s", opts.Element)
	e.mu.Unlock()
	return m
}

// Markers returns the markers currently attached, in insertion order.
func (e *Engine) Markers() []*Marker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.markers)
}

// Element returns the marker's element label.
func (m *Marker) Element() string { return m.element }

// LngLat implements basemap.Marker.
func (m *Marker) LngLat() basemap.LngLat { return m.at }

// SetVisible implements basemap.Marker.
func (m *Marker) SetVisible(v bool) {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	m.visible = v
}

// Visible implements basemap.Marker.
func (m *Marker) Visible() bool {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	return m.visible
}

// Removed reports whether Remove has been called.
func (m *Marker) Removed() bool {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	return m.removed
}

// Remove implements basemap.Marker.
func (m *Marker) Remove() {
	e := m.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if m.removed {
		return
	}
	m.removed = true
	e.markers = slices.DeleteFunc(e.markers, func(o *Marker) bool { return o == m })
	e.record("remove-marker %s", m.element)
}

// Click activates the marker as a user click would.
func (m *Marker) Click() {
	if m.onClick != nil && !m.Removed() {
		m.onClick()
	}
}

// MarkerAt returns the visible marker closest to container pixel p, if one
// lies within HitRadius. On equal distance the marker added last, which is
// drawn on top, wins.
func (e *Engine) MarkerAt(p basemap.Point) (*Marker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.X < 0 || p.Y < 0 || p.X > e.size.W || p.Y > e.size.H {
		return nil, false
	}
	at := e.world(p)
	r := HitRadius * metersPerPixel(e.zoom)
	pick, err := geom.NewEnvelope([]geom.XY{
		{X: at.X - r, Y: at.Y - r},
		{X: at.X + r, Y: at.Y + r},
	})
	if err != nil {
		return nil, false
	}

	var best *Marker
	bestDist := r
	for _, m := range e.markers {
		if !m.visible || !pick.Contains(m.mercator) {
			continue
		}
		if d := m.mercator.Sub(at).Length(); d <= bestDist {
			best, bestDist = m, d
		}
	}
	return best, best != nil
}

// ClickAt clicks the marker under container pixel p and reports whether one
// was hit.
func (e *Engine) ClickAt(p basemap.Point) bool {
	m, ok := e.MarkerAt(p)
	if ok {
		m.Click()
	}
	return ok
}

// Project returns the container pixel position of ll for the current camera.
func (e *Engine) Project(ll basemap.LngLat) basemap.Point {
	w := mercator(ll)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.screen(w)
}

// Unproject returns the geographic position under container pixel p.
func (e *Engine) Unproject(p basemap.Point) basemap.LngLat {
	e.mu.Lock()
	w := e.world(p)
	e.mu.Unlock()
	lon, lat, _ := fromMercator(w.X, w.Y, 0)
	return basemap.LngLat{X: lon, Y: lat}
}

// world maps a container pixel to EPSG:3857 meters. The caller holds e.mu.
func (e *Engine) world(p basemap.Point) geom.XY {
	c := mercator(e.center)
	offset := geom.XY{X: p.X - e.size.W/2, Y: e.size.H/2 - p.Y}
	return c.Add(offset.Scale(metersPerPixel(e.zoom)))
}

// screen maps EPSG:3857 meters to a container pixel. The caller holds e.mu.
func (e *Engine) screen(w geom.XY) basemap.Point {
	d := w.Sub(mercator(e.center)).Scale(1 / metersPerPixel(e.zoom))
	return basemap.Point{X: e.size.W/2 + d.X, Y: e.size.H/2 - d.Y}
}

func mercator(ll basemap.LngLat) geom.XY {
	x, y, _ := toMercator(ll.X, ll.Y, 0)
	return geom.XY{X: x, Y: y}
}

func metersPerPixel(zoom float64) float64 {
	return earthCircumference / (TileSize * math.Exp2(zoom))
}
