// Package basemap defines the map engine surface the overlay pipeline drives.
//
// A Map is an imperative, stateful engine handle. It is not safe for
// concurrent use: every call, and every event callback, happens on the
// goroutine that owns the view (see package frame).
package basemap

import (
	"errors"

	"github.com/peterstace/simplefeatures/geom"
)

// Sentinel errors returned by Map implementations.
var (
	ErrNotFound = errors.New("basemap: not found")
	ErrExists   = errors.New("basemap: already exists")
	ErrInUse    = errors.New("basemap: source in use")
)

// LngLat is a geographic position; X is longitude and Y latitude, in degrees.
type LngLat = geom.XY

// Point is a position in map container pixels, origin at the top-left.
type Point struct {
	X, Y float64
}

// Size is a width and height in pixels.
type Size struct {
	W, H float64
}

// RasterSource describes a raster tile source.
type RasterSource struct {
	Tiles    []string
	TileSize int
}

// RasterLayer draws a raster source.
type RasterLayer struct {
	ID     string
	Source string
	Paint  map[string]any
}

// Paint property names used for raster layers.
const (
	RasterOpacity      = "raster-opacity"
	RasterFadeDuration = "raster-fade-duration"
)

// FlyToOptions controls an animated camera move.
type FlyToOptions struct {
	Center LngLat
	Zoom   float64
	Speed  float64
}

// MarkerOptions configures a new marker.
type MarkerOptions struct {
	// Element is an opaque label for the marker's visual, usually the POI id.
	Element string
	At      LngLat
	// OnClick is invoked when the marker is activated.
	OnClick func()
}

// Marker is a positioned element attached to a map.
type Marker interface {
	LngLat() LngLat
	SetVisible(visible bool)
	Visible() bool
	// Remove detaches the marker. Removing twice is harmless.
	Remove()
}

// Subscription is returned by event registrations.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }

// Map is the engine handle.
type Map interface {
	// Loaded reports whether the style has finished loading.
	Loaded() bool
	// OnLoad registers fn for every load event.
	OnLoad(fn func()) Subscription
	// OnMouseMove registers fn for pointer moves in container pixels.
	OnMouseMove(fn func(Point)) Subscription
	// OnZoom registers fn for zoom changes.
	OnZoom(fn func(zoom float64)) Subscription
	// OnResize registers fn for container resizes.
	OnResize(fn func(Size)) Subscription

	Zoom() float64
	// CanvasSize returns the container size in CSS pixels.
	CanvasSize() Size

	HasSource(id string) bool
	// AddSource returns ErrExists if id is taken.
	AddSource(id string, src RasterSource) error
	// RemoveSource returns ErrNotFound if id is absent and ErrInUse while a
	// layer still draws it.
	RemoveSource(id string) error

	HasLayer(id string) bool
	AddLayer(layer RasterLayer) error
	RemoveLayer(id string) error
	SetPaintProperty(layerID, name string, value any) error

	FlyTo(opts FlyToOptions)
	AddMarker(opts MarkerOptions) Marker
}

// IgnoreNotFound returns nil for ErrNotFound and err otherwise.
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
