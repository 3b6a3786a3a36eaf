// Package layer keeps the overlay raster layer of a map in sync with the
// active tile reference.
//
// The Controller owns one source and one layer under fixed ids. Every tile
// change is a full teardown and rebuild; nothing is patched in place. While
// the map style is still loading, the desired tile is remembered and flushed
// once on the first load event.
package layer

import (
	"errors"
	"fmt"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/basemap"
)

// Fixed ids of the overlay source and layer. No other component may add or
// remove map objects under these ids.
const (
	SourceID = "planet-overlay-source"
	LayerID  = "planet-overlay-layer"
)

// TileSize is the pixel size of overlay tiles.
const TileSize = 512

// Layer opacities.
const (
	OpacityNormal  = 0.85
	OpacityWarping = 0.35
)

// State is the installation state of the overlay.
type State struct {
	Installed bool
	// URL is the installed tile reference; empty when not installed.
	URL string
}

// Option configures a Controller.
type Option func(*Controller)

// WithInstallHook registers fn to run after each successful install.
func WithInstallHook(fn func(ref string)) Option {
	return func(c *Controller) {
		c.onInstall = fn
	}
}

// WithRemoveHook registers fn to run after an installed overlay is removed.
func WithRemoveHook(fn func()) Option {
	return func(c *Controller) {
		c.onRemove = fn
	}
}

// WithWarp sets the initial warp state.
func WithWarp(warping bool) Option {
	return func(c *Controller) {
		c.warping = warping
	}
}

// Controller manages the overlay source and layer. It is not safe for
// concurrent use; call it from the goroutine that owns the map.
type Controller struct {
	m         basemap.Map
	desired   string
	warping   bool
	ready     bool
	closed    bool
	state     State
	loadSub   basemap.Subscription
	onInstall func(string)
	onRemove  func()
}

// New attaches a Controller to m. If the style has not loaded yet, installs
// wait for the first load event.
func New(m basemap.Map, opts ...Option) *Controller {
	c := &Controller{m: m}
	for _, opt := range opts {
		opt(c)
	}
	if m.Loaded() {
		c.ready = true
	} else {
		c.loadSub = m.OnLoad(c.handleLoad)
	}
	return c
}

func (c *Controller) handleLoad() {
	if c.ready || c.closed {
		return
	}
	c.ready = true
	c.unsubscribe()
	if err := c.sync(); err != nil {
		planetmap.Logger().Warn("layer: deferred install failed", "error", err)
	}
}

func (c *Controller) unsubscribe() {
	if c.loadSub != nil {
		c.loadSub.Unsubscribe()
		c.loadSub = nil
	}
}

// Ready reports whether the map has loaded.
func (c *Controller) Ready() bool { return c.ready }

// State returns the current installation state.
func (c *Controller) State() State { return c.state }

// SetTile sets the tile reference to display. An empty ref removes the
// overlay. Setting the installed ref again does nothing; after a failed
// install the same ref is retried.
func (c *Controller) SetTile(ref string) error {
	if c.closed {
		return nil
	}
	if ref == c.desired && (!c.ready || c.current()) {
		return nil
	}
	c.desired = ref
	if !c.ready {
		return nil
	}
	return c.sync()
}

// SetWarp switches between the normal and warping opacity. The paint
// property is only pushed when the layer exists.
func (c *Controller) SetWarp(warping bool) error {
	c.warping = warping
	if c.closed || !c.m.HasLayer(LayerID) {
		return nil
	}
	if err := c.m.SetPaintProperty(LayerID, basemap.RasterOpacity, c.opacity()); err != nil {
		return fmt.Errorf("layer: set opacity: %w", basemap.IgnoreNotFound(err))
	}
	return nil
}

func (c *Controller) opacity() float64 {
	if c.warping {
		return OpacityWarping
	}
	return OpacityNormal
}

// Close removes the overlay and stops listening for load events. Close is
// idempotent.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.unsubscribe()
	return c.teardown()
}

// current reports whether the map shows the desired ref.
func (c *Controller) current() bool {
	if c.desired == "" {
		return !c.state.Installed
	}
	return c.state.Installed && c.state.URL == c.desired
}

func (c *Controller) sync() error {
	if err := c.teardown(); err != nil {
		return err
	}
	if c.desired == "" {
		return nil
	}
	return c.install(c.desired)
}

// teardown removes layer then source. Absence counts as removed.
func (c *Controller) teardown() error {
	was := c.state.Installed
	errLayer := basemap.IgnoreNotFound(c.m.RemoveLayer(LayerID))
	errSource := basemap.IgnoreNotFound(c.m.RemoveSource(SourceID))
	if err := errors.Join(errLayer, errSource); err != nil {
		return fmt.Errorf("layer: remove overlay: %w", err)
	}
	c.state = State{}
	if was && c.onRemove != nil {
		c.onRemove()
	}
	return nil
}

func (c *Controller) install(ref string) error {
	src := basemap.RasterSource{Tiles: []string{ref}, TileSize: TileSize}
	if err := c.m.AddSource(SourceID, src); err != nil {
		return fmt.Errorf("layer: add source: %w", err)
	}
	err := c.m.AddLayer(basemap.RasterLayer{
		ID:     LayerID,
		Source: SourceID,
		Paint: map[string]any{
			basemap.RasterOpacity:      c.opacity(),
			basemap.RasterFadeDuration: 0,
		},
	})
	if err != nil {
		_ = basemap.IgnoreNotFound(c.m.RemoveSource(SourceID))
		return fmt.Errorf("layer: add layer: %w", err)
	}
	c.state = State{Installed: true, URL: ref}
	if c.onInstall != nil {
		c.onInstall(ref)
	}
	return nil
}
