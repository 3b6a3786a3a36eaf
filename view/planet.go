// Package view wires the overlay pipeline to one planet's map.
//
// A Planet stores only the user's selection (overlay id, time, POI id, warp
// flag) plus the data it fetched. Everything shown (active overlay, snapped
// time, tile reference, active POI) is recomputed from those on every change
// by the pure functions in this package.
//
// All methods must be called on the loop goroutine. From elsewhere, wrap
// calls in frame.Loop.Do.
package view

import (
	"context"
	"math"
	"time"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/basemap"
	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/frame"
	"github.com/gogpu/planetmap/layer"
	"github.com/gogpu/planetmap/marker"
	"github.com/gogpu/planetmap/mask"
	"github.com/gogpu/planetmap/tile"
	"github.com/gogpu/planetmap/timeline"
)

// Camera settings for flying to a POI.
const (
	FlyMinZoom = 3.5
	FlySpeed   = 0.7
)

// Loop runs tasks and frame callbacks on the view goroutine.
type Loop interface {
	Post(fn func())
	frame.Scheduler
}

// Option configures a Planet.
type Option func(*Planet)

// WithMask gives the view a mask program. The view takes ownership and
// destroys it on Close. A nil program means no mask.
func WithMask(p *mask.Program) Option {
	return func(v *Planet) {
		v.mask = p
	}
}

// WithNotifier sets the receiver of user-visible notifications.
func WithNotifier(fn Notifier) Option {
	return func(v *Planet) {
		v.notify = fn
	}
}

// WithDevicePixelRatio sets the ratio between mask pixels and container
// pixels. The default is 1.
func WithDevicePixelRatio(dpr float64) Option {
	return func(v *Planet) {
		if dpr > 0 {
			v.dpr = dpr
		}
	}
}

// WithInitialTime sets the stored time before any overlay is known. The
// default is the current time.
func WithInitialTime(t time.Time) Option {
	return func(v *Planet) {
		v.storedTime = t
	}
}

// WithExecutor sets how fetches are started. The default runs each fetch on
// its own goroutine.
func WithExecutor(exec func(task func())) Option {
	return func(v *Planet) {
		v.exec = exec
	}
}

// WithLayerOptions passes options to the overlay layer controller.
func WithLayerOptions(opts ...layer.Option) Option {
	return func(v *Planet) {
		v.layerOpts = append(v.layerOpts, opts...)
	}
}

// Planet is the interactive map view of one planet.
type Planet struct {
	planetID string
	loop     Loop
	m        basemap.Map
	src      catalog.Source
	resolver *tile.Resolver

	mask   *mask.Program
	notify Notifier
	dpr    float64
	exec   func(func())

	layerOpts []layer.Option

	ctx     context.Context
	cancel  context.CancelFunc
	layer   *layer.Controller
	markers *marker.Set
	subs    []basemap.Subscription

	// Stored selection.
	selectedOverlayID string
	selectedPOIID     string
	storedTime        time.Time
	warping           bool
	focus             Focus

	// Fetched data.
	overlays        []catalog.Overlay
	overlaysLoading bool
	pois            []catalog.POI
	missions        []catalog.Mission

	// Identity of the last derived values, for change detection.
	lastOverlayID string
	lastPOIID     string
	tileRef       string

	listeners    map[int]func(State)
	nextListener int
	closed       bool
}

// New builds the view for planetID and starts fetching its overlays and
// POIs. ctx bounds the fetches; Close cancels them as well.
func New(ctx context.Context, planetID string, loop Loop, m basemap.Map, src catalog.Source, resolver *tile.Resolver, opts ...Option) *Planet {
	v := &Planet{
		planetID:        planetID,
		loop:            loop,
		m:               m,
		src:             src,
		resolver:        resolver,
		dpr:             1,
		exec:            func(task func()) { go task() },
		storedTime:      time.Now(),
		overlaysLoading: true,
		listeners:       make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.ctx, v.cancel = context.WithCancel(ctx)

	v.layer = layer.New(m, append(v.layerOpts, layer.WithWarp(v.warping))...)
	v.markers = marker.New(m, v.SelectPOI)
	v.subs = append(v.subs,
		m.OnMouseMove(v.handleMouseMove),
		m.OnResize(v.handleResize),
	)

	if v.mask != nil {
		v.handleResize(m.CanvasSize())
		v.mask.SetIntensity(mask.IntensityNormal)
		v.mask.Start(loop)
	}

	v.fetchOverlays()
	v.fetchPOIs()
	v.recompute()
	return v
}

func (v *Planet) warn(msg string, err error) {
	planetmap.Logger().Warn(msg, "planet", v.planetID, "error", err)
}

func (v *Planet) notifyError(msg string) {
	if v.notify != nil {
		v.notify(Notification{Level: "error", Message: msg})
	}
}

func (v *Planet) fetchOverlays() {
	ctx, src, id := v.ctx, v.src, v.planetID
	v.exec(func() {
		overlays, err := src.Overlays(ctx, id)
		v.loop.Post(func() { v.overlaysLoaded(overlays, err) })
	})
}

func (v *Planet) overlaysLoaded(overlays []catalog.Overlay, err error) {
	if v.closed {
		return
	}
	v.overlaysLoading = false
	if err != nil {
		v.warn("view: overlays unavailable", err)
		v.notifyError("Failed to load overlays: " + err.Error())
		v.recompute()
		return
	}
	v.overlays = overlays
	if v.selectedOverlayID == "" && len(overlays) > 0 {
		v.selectedOverlayID = overlays[0].ID
	}
	v.recompute()
}

func (v *Planet) fetchPOIs() {
	ctx, src, id := v.ctx, v.src, v.planetID
	v.exec(func() {
		pois, err := src.POIs(ctx, id)
		v.loop.Post(func() { v.poisLoaded(pois, err) })
	})
}

func (v *Planet) poisLoaded(pois []catalog.POI, err error) {
	if v.closed {
		return
	}
	if err != nil {
		v.warn("view: points of interest unavailable", err)
		v.notifyError("Failed to load points of interest: " + err.Error())
		return
	}
	v.pois = pois
	v.markers.Update(pois)
	v.recompute()
}

func (v *Planet) fetchMissions(poi catalog.POI) {
	if len(poi.Missions) == 0 {
		return
	}
	ctx, src, ids, poiID := v.ctx, v.src, poi.Missions, poi.ID
	v.exec(func() {
		missions, err := src.Missions(ctx, ids)
		v.loop.Post(func() { v.missionsLoaded(poiID, missions, err) })
	})
}

func (v *Planet) missionsLoaded(poiID string, missions []catalog.Mission, err error) {
	// Results for a POI that is no longer active are dropped.
	if v.closed || poiID != v.lastPOIID {
		return
	}
	if err != nil {
		v.warn("view: missions unavailable", err)
		v.notifyError("Failed to load missions: " + err.Error())
		return
	}
	v.missions = missions
	v.publish()
}

// recompute derives the displayed state from the stored selection and the
// fetched data, and pushes it to the map, the mask and subscribers.
func (v *Planet) recompute() {
	active, ok := ActiveOverlay(v.overlays, v.selectedOverlayID)
	ref := ""
	if ok {
		steps := timeline.ParseSteps(active.TimeSteps)
		if active.ID != v.lastOverlayID {
			v.lastOverlayID = active.ID
			v.storedTime, _ = timeline.Reconcile(v.storedTime, steps, active.DefaultTime)
			if v.mask != nil {
				v.mask.SetColor(planetmap.HexOr(active.Color, planetmap.Hex(mask.FallbackColor)))
			}
		}
		at := timeline.Nearest(steps, v.storedTime)
		ref = v.resolver.Resolve(v.planetID, active.ID, timeline.Format(at))
	} else {
		v.lastOverlayID = ""
	}
	v.tileRef = ref
	if err := v.layer.SetTile(ref); err != nil {
		v.warn("view: overlay layer update failed", err)
	}

	poi, ok := ActivePOI(v.pois, v.selectedPOIID)
	poiID := ""
	if ok {
		poiID = poi.ID
	}
	if poiID != v.lastPOIID {
		v.lastPOIID = poiID
		v.missions = nil
		if ok {
			v.m.FlyTo(basemap.FlyToOptions{
				Center: basemap.LngLat{X: poi.Lon(), Y: poi.Lat()},
				Zoom:   math.Max(v.m.Zoom(), FlyMinZoom),
				Speed:  FlySpeed,
			})
			v.fetchMissions(poi)
		}
	}

	v.publish()
}

func (v *Planet) handleMouseMove(pt basemap.Point) {
	if v.mask == nil {
		return
	}
	w, h := v.mask.Size()
	v.mask.SetCursor(mask.CursorFromViewport(pt, v.m.CanvasSize(), float64(w), float64(h)))
}

func (v *Planet) handleResize(s basemap.Size) {
	if v.mask == nil {
		return
	}
	if err := v.mask.Resize(s.W, s.H, v.dpr); err != nil {
		v.warn("view: mask resize failed", err)
	}
}

// SetOverlay selects an overlay by id. Unknown ids resolve to the first
// overlay. An empty id is ignored.
func (v *Planet) SetOverlay(id string) {
	if v.closed || id == "" {
		return
	}
	v.selectedOverlayID = id
	v.recompute()
}

// CycleOverlay selects the overlay after the active one.
func (v *Planet) CycleOverlay() bool {
	if v.closed {
		return false
	}
	next, ok := NextOverlay(v.overlays, v.lastOverlayID)
	if !ok {
		return false
	}
	v.selectedOverlayID = next
	v.focus = FocusOverlayToggle
	v.recompute()
	return true
}

// SetTime stores t; the displayed time is the nearest step.
func (v *Planet) SetTime(t time.Time) {
	if v.closed {
		return
	}
	v.storedTime = t
	v.recompute()
}

// SelectPOI selects a POI by id.
func (v *Planet) SelectPOI(id string) {
	if v.closed {
		return
	}
	v.selectedPOIID = id
	v.recompute()
}

// ClearPOI clears the POI selection.
func (v *Planet) ClearPOI() { v.SelectPOI("") }

// SetWarp switches warp mode, dimming the overlay layer and the mask.
func (v *Planet) SetWarp(warping bool) {
	if v.closed {
		return
	}
	v.warping = warping
	if err := v.layer.SetWarp(warping); err != nil {
		v.warn("view: overlay opacity update failed", err)
	}
	if v.mask != nil {
		intensity := mask.IntensityNormal
		if warping {
			intensity = mask.IntensityWarping
		}
		v.mask.SetIntensity(intensity)
	}
	v.publish()
}

// ToggleWarp flips warp mode.
func (v *Planet) ToggleWarp() { v.SetWarp(!v.warping) }

// HandleKey applies a keyboard shortcut and reports whether key was used:
// "o" cycles overlays, "t" focuses the time slider and "Escape" clears the
// POI selection.
func (v *Planet) HandleKey(key string) bool {
	switch key {
	case "o", "O":
		return v.CycleOverlay()
	case "t", "T":
		if len(v.overlays) == 0 {
			return false
		}
		v.focus = FocusTimeSlider
		v.publish()
		return true
	case "Escape":
		v.ClearPOI()
		return true
	}
	return false
}

// Snapshot returns the current state.
func (v *Planet) Snapshot() State {
	s := State{
		PlanetID:        v.planetID,
		Overlays:        v.overlays,
		OverlaysLoading: v.overlaysLoading,
		ActiveOverlayID: v.lastOverlayID,
		POIs:            v.pois,
		ActivePOIID:     v.lastPOIID,
		Missions:        v.missions,
		TileRef:         v.tileRef,
		Layer:           v.layer.State(),
		Warping:         v.warping,
		MaskAvailable:   v.mask != nil,
		Focus:           v.focus,
		ActiveTime:      v.storedTime,
	}
	if active, ok := ActiveOverlay(v.overlays, v.selectedOverlayID); ok {
		steps := timeline.ParseSteps(active.TimeSteps)
		s.ActiveTime = timeline.Nearest(steps, v.storedTime)
		s.TimeMin, s.TimeMax = timeline.Bounds(steps, time.Now())
		s.SliderDisabled = timeline.SliderDisabled(steps)
	} else {
		s.SliderDisabled = true
	}
	if v.mask != nil {
		s.Cursor = v.mask.Cursor()
	}
	return s.clone()
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function unregisters it.
func (v *Planet) Subscribe(fn func(State)) (cancel func()) {
	id := v.nextListener
	v.nextListener++
	v.listeners[id] = fn
	return func() { delete(v.listeners, id) }
}

func (v *Planet) publish() {
	if len(v.listeners) == 0 {
		return
	}
	s := v.Snapshot()
	for _, fn := range v.listeners {
		fn(s)
	}
}

// Close stops the mask, removes markers and the overlay layer, cancels
// pending fetches and drops subscribers. Close is idempotent.
func (v *Planet) Close() {
	if v.closed {
		return
	}
	v.closed = true
	v.cancel()
	for _, s := range v.subs {
		s.Unsubscribe()
	}
	v.subs = nil
	if v.mask != nil {
		v.mask.Destroy()
	}
	v.markers.Close()
	if err := v.layer.Close(); err != nil {
		v.warn("view: overlay layer removal failed", err)
	}
	clear(v.listeners)
}
