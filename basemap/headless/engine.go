// Package headless is an in-memory basemap.Map.
//
// It keeps sources, layers and markers in plain maps, projects marker
// positions to Web Mercator, and lets callers fire the events a real engine
// would raise: style load, pointer moves, zoom and resize. It backs the tests
// and the planetview service.
package headless

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/wroge/wgs84"

	"github.com/gogpu/planetmap/basemap"
)

// TileSize is the pixel size of one Web Mercator tile at zoom 0.
const TileSize = 512

// earthCircumference is the Web Mercator world width in meters.
const earthCircumference = 2 * math.Pi * 6378137

var (
	toMercator   = wgs84.EPSG().Transform(4326, 3857)
	fromMercator = wgs84.EPSG().Transform(3857, 4326)
)

// Option configures an Engine.
type Option func(*Engine)

// WithSize sets the initial container size.
func WithSize(w, h float64) Option {
	return func(e *Engine) {
		e.size = basemap.Size{W: w, H: h}
	}
}

// WithZoom sets the initial zoom.
func WithZoom(z float64) Option {
	return func(e *Engine) {
		e.zoom = z
	}
}

// WithCenter sets the initial camera center.
func WithCenter(c basemap.LngLat) Option {
	return func(e *Engine) {
		e.center = c
	}
}

// Loaded makes the engine start in the loaded state.
func Loaded() Option {
	return func(e *Engine) {
		e.loaded = true
	}
}

type layer struct {
	basemap.RasterLayer
	paint map[string]any
}

// Engine is an in-memory map. It is safe for concurrent use; callbacks run
// on the goroutine that fired the event, outside the engine lock.
type Engine struct {
	mu      sync.Mutex
	loaded  bool
	zoom    float64
	center  basemap.LngLat
	size    basemap.Size
	sources map[string]basemap.RasterSource
	layers  []*layer
	markers []*Marker
	journal []string
	flights []basemap.FlyToOptions

	nextSub  int
	onLoad   map[int]func()
	onMove   map[int]func(basemap.Point)
	onZoom   map[int]func(float64)
	onResize map[int]func(basemap.Size)
}

// New creates an unloaded 800×600 engine at zoom 1.
func New(opts ...Option) *Engine {
	e := &Engine{
		zoom:     1,
		size:     basemap.Size{W: 800, H: 600},
		sources:  make(map[string]basemap.RasterSource),
		onLoad:   make(map[int]func()),
		onMove:   make(map[int]func(basemap.Point)),
		onZoom:   make(map[int]func(float64)),
		onResize: make(map[int]func(basemap.Size)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func subscribe[F any](e *Engine, m map[int]F, fn F) basemap.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	m[id] = fn
	return basemap.SubscriptionFunc(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(m, id)
	})
}

// snapshot returns the registered callbacks in subscription order.
func snapshot[F any](e *Engine, m map[int]F) []F {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

func (e *Engine) record(format string, args ...any) {
	e.journal = append(e.journal, fmt.Sprintf(format, args...))
}

// Loaded implements basemap.Map.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// OnLoad implements basemap.Map.
func (e *Engine) OnLoad(fn func()) basemap.Subscription { return subscribe(e, e.onLoad, fn) }

// OnMouseMove implements basemap.Map.
func (e *Engine) OnMouseMove(fn func(basemap.Point)) basemap.Subscription {
	return subscribe(e, e.onMove, fn)
}

// OnZoom implements basemap.Map.
func (e *Engine) OnZoom(fn func(float64)) basemap.Subscription { return subscribe(e, e.onZoom, fn) }

// OnResize implements basemap.Map.
func (e *Engine) OnResize(fn func(basemap.Size)) basemap.Subscription {
	return subscribe(e, e.onResize, fn)
}

// Zoom implements basemap.Map.
func (e *Engine) Zoom() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.zoom
}

// Center returns the camera center.
func (e *Engine) Center() basemap.LngLat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.center
}

// CanvasSize implements basemap.Map.
func (e *Engine) CanvasSize() basemap.Size {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// HasSource implements basemap.Map.
func (e *Engine) HasSource(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sources[id]
	return ok
}

// Source returns the source registered under id.
func (e *Engine) Source(id string) (basemap.RasterSource, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	src, ok := e.sources[id]
	return src, ok
}

// AddSource implements basemap.Map.
func (e *Engine) AddSource(id string, src basemap.RasterSource) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[id]; ok {
		return fmt.Errorf("source %q: %w", id, basemap.ErrExists)
	}
	src.Tiles = slices.Clone(src.Tiles)
	e.sources[id] = src
	e.record("add-source %s", id)
	return nil
}

// RemoveSource implements basemap.Map.
func (e *Engine) RemoveSource(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[id]; !ok {
		return fmt.Errorf("source %q: %w", id, basemap.ErrNotFound)
	}
	for _, l := range e.layers {
		if l.Source == id {
			return fmt.Errorf("source %q used by layer %q: %w", id, l.ID, basemap.ErrInUse)
		}
	}
	delete(e.sources, id)
	e.record("remove-source %s", id)
	return nil
}

func (e *Engine) layerIndex(id string) int {
	return slices.IndexFunc(e.layers, func(l *layer) bool { return l.ID == id })
}

// HasLayer implements basemap.Map.
func (e *Engine) HasLayer(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layerIndex(id) >= 0
}

// AddLayer implements basemap.Map.
func (e *Engine) AddLayer(l basemap.RasterLayer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.layerIndex(l.ID) >= 0 {
		return fmt.Errorf("layer %q: %w", l.ID, basemap.ErrExists)
	}
	if _, ok := e.sources[l.Source]; !ok {
		return fmt.Errorf("layer %q source %q: %w", l.ID, l.Source, basemap.ErrNotFound)
	}
	paint := make(map[string]any, len(l.Paint))
	for k, v := range l.Paint {
		paint[k] = v
	}
	e.layers = append(e.layers, &layer{RasterLayer: l, paint: paint})
	e.record("add-layer %s", l.ID)
	return nil
}

// RemoveLayer implements basemap.Map.
func (e *Engine) RemoveLayer(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.layerIndex(id)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", id, basemap.ErrNotFound)
	}
	e.layers = slices.Delete(e.layers, i, i+1)
	e.record("remove-layer %s", id)
	return nil
}

// SetPaintProperty implements basemap.Map.
func (e *Engine) SetPaintProperty(layerID, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.layerIndex(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", layerID, basemap.ErrNotFound)
	}
	e.layers[i].paint[name] = value
	e.record("paint %s %s=%v", layerID, name, value)
	return nil
}

// Paint returns a paint property of a layer.
func (e *Engine) Paint(layerID, name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.layerIndex(layerID)
	if i < 0 {
		return nil, false
	}
	v, ok := e.layers[i].paint[name]
	return v, ok
}

// Layers returns the layer ids, bottom to top.
func (e *Engine) Layers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.layers))
	for i, l := range e.layers {
		ids[i] = l.ID
	}
	return ids
}

// Journal returns the mutations applied so far, oldest first.
func (e *Engine) Journal() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.journal)
}

// FlyTo implements basemap.Map. The camera jumps to the target at once; a
// zoom change raises zoom events.
func (e *Engine) FlyTo(opts basemap.FlyToOptions) {
	e.mu.Lock()
	e.flights = append(e.flights, opts)
	e.center = opts.Center
	changed := opts.Zoom != e.zoom
	e.zoom = opts.Zoom
	e.mu.Unlock()

	if changed {
		e.emitZoom(opts.Zoom)
	}
}

// Flights returns every FlyTo request, oldest first.
func (e *Engine) Flights() []basemap.FlyToOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.flights)
}

// Load marks the style loaded and raises a load event. Engines raise load
// again after a style swap, so calling Load twice is allowed.
func (e *Engine) Load() {
	e.mu.Lock()
	e.loaded = true
	e.mu.Unlock()
	for _, fn := range snapshot(e, e.onLoad) {
		fn()
	}
}

// MoveMouse raises a pointer move at p.
func (e *Engine) MoveMouse(p basemap.Point) {
	for _, fn := range snapshot(e, e.onMove) {
		fn(p)
	}
}

// SetZoom changes the zoom and raises a zoom event.
func (e *Engine) SetZoom(z float64) {
	e.mu.Lock()
	e.zoom = z
	e.mu.Unlock()
	e.emitZoom(z)
}

func (e *Engine) emitZoom(z float64) {
	for _, fn := range snapshot(e, e.onZoom) {
		fn(z)
	}
}

// Resize changes the container size and raises a resize event.
func (e *Engine) Resize(s basemap.Size) {
	e.mu.Lock()
	e.size = s
	e.mu.Unlock()
	for _, fn := range snapshot(e, e.onResize) {
		fn(s)
	}
}
