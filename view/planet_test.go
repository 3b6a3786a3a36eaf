package view

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/basemap"
	"github.com/gogpu/planetmap/basemap/headless"
	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/frame"
	"github.com/gogpu/planetmap/layer"
	"github.com/gogpu/planetmap/mask"
	"github.com/gogpu/planetmap/tile"
)

var epoch = time.UnixMilli(0).UTC()

func ms(n int64) time.Time { return time.UnixMilli(n).UTC() }

type fakeSource struct {
	overlays    []catalog.Overlay
	pois        []catalog.POI
	missions    []catalog.Mission
	overlaysErr error
	poisErr     error
	missionsErr error

	missionCalls [][]string
}

func (f *fakeSource) Planets(context.Context) ([]catalog.PlanetSummary, error) { return nil, nil }

func (f *fakeSource) Planet(context.Context, string) (catalog.PlanetDetail, error) {
	return catalog.PlanetDetail{}, catalog.ErrUnknownPlanet
}

func (f *fakeSource) Overlays(context.Context, string) ([]catalog.Overlay, error) {
	return f.overlays, f.overlaysErr
}

func (f *fakeSource) POIs(context.Context, string) ([]catalog.POI, error) {
	return f.pois, f.poisErr
}

func (f *fakeSource) Missions(_ context.Context, ids []string) ([]catalog.Mission, error) {
	f.missionCalls = append(f.missionCalls, ids)
	if f.missionsErr != nil {
		return nil, f.missionsErr
	}
	var out []catalog.Mission
	for _, m := range f.missions {
		if slices.Contains(ids, m.ID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func testSource() *fakeSource {
	return &fakeSource{
		overlays: []catalog.Overlay{
			{
				ID:          "base",
				Label:       "Base",
				Kind:        catalog.KindRaster,
				Color:       "#ffb347",
				TimeSteps:   []string{"2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z"},
				DefaultTime: "2024-01-01T00:00:00Z",
			},
			{
				ID:          "alt",
				Label:       "Alt",
				Kind:        catalog.KindHeat,
				TimeSteps:   []string{"1970-01-01T00:00:01Z", "1970-01-01T00:00:09Z"},
				DefaultTime: "1970-01-01T00:00:09Z",
			},
		},
		pois: []catalog.POI{
			{ID: "olympus", Name: "Olympus Mons", Coordinates: [2]float64{-133.8, 18.65}, Missions: []string{"m1"}},
			{ID: "gale", Name: "Gale Crater", Coordinates: [2]float64{137.4, -5.4}, Missions: []string{"m2"}},
			{ID: "hellas", Name: "Hellas Planitia", Coordinates: [2]float64{70, -42.4}},
		},
		missions: []catalog.Mission{
			{ID: "m1", Name: "Mariner 9"},
			{ID: "m2", Name: "Curiosity"},
		},
	}
}

type harness struct {
	t      *testing.T
	engine *headless.Engine
	loop   *frame.Loop
	src    *fakeSource
	view   *Planet
	notes  []Notification
}

func newHarness(t *testing.T, src *fakeSource, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		engine: headless.New(headless.Loaded(), headless.WithZoom(2)),
		loop:   frame.New(),
		src:    src,
	}
	opts = append([]Option{
		WithExecutor(func(task func()) { task() }),
		WithNotifier(func(n Notification) { h.notes = append(h.notes, n) }),
		WithInitialTime(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)),
	}, opts...)
	h.view = New(context.Background(), "mars", h.loop, h.engine, src, tile.NewResolver(nil), opts...)
	t.Cleanup(h.view.Close)
	h.settle()
	return h
}

// settle delivers posted fetch results.
func (h *harness) settle() {
	h.t.Helper()
	h.loop.Tick(time.Now())
}

func (h *harness) installedTile() string {
	h.t.Helper()
	src, ok := h.engine.Source(layer.SourceID)
	if !ok {
		h.t.Fatal("overlay source not installed")
	}
	return src.Tiles[0]
}

func TestInitialSelection(t *testing.T) {
	h := newHarness(t, testSource())
	s := h.view.Snapshot()

	if s.ActiveOverlayID != "base" {
		t.Errorf("active overlay = %q, want base", s.ActiveOverlayID)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !s.ActiveTime.Equal(want) {
		t.Errorf("active time = %v, want %v", s.ActiveTime, want)
	}
	if s.OverlaysLoading {
		t.Error("still loading after fetch")
	}
	if s.SliderDisabled {
		t.Error("slider disabled with two steps")
	}
	if !s.TimeMin.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || !s.TimeMax.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("bounds = %v..%v", s.TimeMin, s.TimeMax)
	}

	want := tile.NewResolver(nil).Resolve("mars", "base", "2024-01-01T00:00:00.000Z")
	if s.TileRef != want {
		t.Errorf("tile ref = %q, want %q", s.TileRef, want)
	}
	if got := h.installedTile(); got != want {
		t.Errorf("installed tile = %q, want %q", got, want)
	}
	if !s.Layer.Installed || s.Layer.URL != want {
		t.Errorf("layer state = %+v", s.Layer)
	}
	if len(h.engine.Markers()) != 3 {
		t.Errorf("markers = %d, want 3", len(h.engine.Markers()))
	}
	if len(h.notes) != 0 {
		t.Errorf("unexpected notifications: %v", h.notes)
	}
}

func TestTimeSnapsToNearestStep(t *testing.T) {
	h := newHarness(t, testSource())

	h.view.SetOverlay("alt")
	if got := h.view.Snapshot().ActiveTime; !got.Equal(ms(9000)) {
		t.Fatalf("after overlay change time = %v, want default 9s", got)
	}

	tests := []struct {
		set  time.Time
		want time.Time
	}{
		{ms(5000), ms(1000)},
		{ms(5001), ms(9000)},
		{epoch, ms(1000)},
		{ms(1_000_000), ms(9000)},
	}
	for _, tt := range tests {
		h.view.SetTime(tt.set)
		if got := h.view.Snapshot().ActiveTime; !got.Equal(tt.want) {
			t.Errorf("SetTime(%v): active = %v, want %v", tt.set, got, tt.want)
		}
	}

	h.view.SetTime(ms(5000))
	want := tile.NewResolver(nil).Resolve("mars", "alt", "1970-01-01T00:00:01.000Z")
	if got := h.installedTile(); got != want {
		t.Errorf("installed tile = %q, want %q", got, want)
	}
}

func TestOverlayChangeKeepsExactStep(t *testing.T) {
	src := testSource()
	src.overlays[1].TimeSteps = append(src.overlays[1].TimeSteps, "2024-02-01T00:00:00Z")
	h := newHarness(t, src)

	h.view.SetTime(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	h.view.SetOverlay("alt")
	if got := h.view.Snapshot().ActiveTime; !got.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("shared step replaced: %v", got)
	}

	h.view.SetTime(ms(1000))
	h.view.SetOverlay("base")
	if got := h.view.Snapshot().ActiveTime; !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time not reset to default: %v", got)
	}
}

func TestTimeChangeDoesNotReconcile(t *testing.T) {
	h := newHarness(t, testSource())

	h.view.SetTime(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	if got := h.view.Snapshot().ActiveTime; !got.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("active time = %v, want nearest step 2024-02-01", got)
	}
	if got := h.view.storedTime; !got.Equal(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("stored time = %v, want the raw value", got)
	}
}

func TestUnknownOverlayFallsBackToFirst(t *testing.T) {
	h := newHarness(t, testSource())
	h.view.SetOverlay("alt")
	h.view.SetOverlay("nope")
	if got := h.view.Snapshot().ActiveOverlayID; got != "base" {
		t.Errorf("active overlay = %q, want base", got)
	}
}

func TestKeyboardShortcuts(t *testing.T) {
	h := newHarness(t, testSource())

	if !h.view.HandleKey("o") {
		t.Fatal("o not handled")
	}
	s := h.view.Snapshot()
	if s.ActiveOverlayID != "alt" || s.Focus != FocusOverlayToggle {
		t.Errorf("after o: overlay %q focus %q", s.ActiveOverlayID, s.Focus)
	}
	h.view.HandleKey("O")
	if got := h.view.Snapshot().ActiveOverlayID; got != "base" {
		t.Errorf("cycle did not wrap: %q", got)
	}

	if !h.view.HandleKey("t") || h.view.Snapshot().Focus != FocusTimeSlider {
		t.Error("t did not focus the time slider")
	}

	h.view.SelectPOI("hellas")
	if !h.view.HandleKey("Escape") || h.view.Snapshot().ActivePOIID != "" {
		t.Error("Escape did not clear the POI")
	}

	if h.view.HandleKey("x") {
		t.Error("unbound key reported handled")
	}
}

func TestShortcutsWithoutOverlays(t *testing.T) {
	src := testSource()
	src.overlays = nil
	h := newHarness(t, src)

	if h.view.HandleKey("o") || h.view.HandleKey("t") {
		t.Error("overlay shortcuts handled with no overlays")
	}
	if !h.view.HandleKey("Escape") {
		t.Error("Escape not handled")
	}
	s := h.view.Snapshot()
	if s.TileRef != "" || !s.SliderDisabled {
		t.Errorf("empty state = %+v", s)
	}
	if h.engine.HasSource(layer.SourceID) {
		t.Error("overlay installed without overlays")
	}
}

func TestSelectPOIFliesAndFetchesMissions(t *testing.T) {
	h := newHarness(t, testSource())

	h.view.SelectPOI("olympus")
	h.settle()

	flights := h.engine.Flights()
	if len(flights) != 1 {
		t.Fatalf("flights = %d, want 1", len(flights))
	}
	want := basemap.FlyToOptions{Center: basemap.LngLat{X: -133.8, Y: 18.65}, Zoom: FlyMinZoom, Speed: FlySpeed}
	if flights[0] != want {
		t.Errorf("flight = %+v, want %+v", flights[0], want)
	}

	s := h.view.Snapshot()
	if s.ActivePOIID != "olympus" {
		t.Errorf("active POI = %q", s.ActivePOIID)
	}
	if len(s.Missions) != 1 || s.Missions[0].ID != "m1" {
		t.Errorf("missions = %+v", s.Missions)
	}

	// Reselecting the active POI does not fly again.
	h.view.SelectPOI("olympus")
	if len(h.engine.Flights()) != 1 {
		t.Error("reselect flew again")
	}

	// A deeper zoom is kept.
	h.engine.SetZoom(6)
	h.view.SelectPOI("gale")
	if got := h.engine.Flights()[1].Zoom; got != 6 {
		t.Errorf("zoom = %v, want 6", got)
	}
}

func TestPOIWithoutMissionsSkipsFetch(t *testing.T) {
	src := testSource()
	h := newHarness(t, src)

	h.view.SelectPOI("hellas")
	h.settle()
	if len(src.missionCalls) != 0 {
		t.Errorf("missions fetched: %v", src.missionCalls)
	}
}

func TestStaleMissionsDropped(t *testing.T) {
	src := testSource()
	h := newHarness(t, src)

	// Both results are queued before the loop delivers either.
	h.view.SelectPOI("olympus")
	h.view.SelectPOI("gale")
	h.settle()

	s := h.view.Snapshot()
	if len(s.Missions) != 1 || s.Missions[0].ID != "m2" {
		t.Errorf("missions = %+v, want only m2", s.Missions)
	}
	if len(src.missionCalls) != 2 {
		t.Errorf("mission calls = %v", src.missionCalls)
	}
}

func TestMarkerClickSelects(t *testing.T) {
	h := newHarness(t, testSource())
	for _, m := range h.engine.Markers() {
		if m.Element() == "gale" {
			m.Click()
		}
	}
	if got := h.view.Snapshot().ActivePOIID; got != "gale" {
		t.Errorf("active POI = %q, want gale", got)
	}
}

func TestFetchErrorsNotify(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*fakeSource)
		want string
	}{
		{"overlays", func(f *fakeSource) { f.overlaysErr = errors.New("boom") }, "Failed to load overlays: boom"},
		{"pois", func(f *fakeSource) { f.poisErr = errors.New("boom") }, "Failed to load points of interest: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testSource()
			tt.mod(src)
			h := newHarness(t, src)
			if len(h.notes) != 1 || h.notes[0].Message != tt.want || h.notes[0].Level != "error" {
				t.Errorf("notifications = %+v, want %q", h.notes, tt.want)
			}
			if h.view.Snapshot().OverlaysLoading {
				t.Error("still loading after failure")
			}
		})
	}

	t.Run("missions", func(t *testing.T) {
		src := testSource()
		src.missionsErr = errors.New("boom")
		h := newHarness(t, src)
		h.view.SelectPOI("olympus")
		h.settle()
		if len(h.notes) != 1 || h.notes[0].Message != "Failed to load missions: boom" {
			t.Errorf("notifications = %+v", h.notes)
		}
		if h.view.Snapshot().ActivePOIID != "olympus" {
			t.Error("selection lost on mission failure")
		}
	})
}

func TestOverlayFailureKeepsPOIs(t *testing.T) {
	src := testSource()
	src.overlaysErr = errors.New("boom")
	h := newHarness(t, src)

	s := h.view.Snapshot()
	if len(s.POIs) != 3 || len(h.engine.Markers()) != 3 {
		t.Errorf("POIs = %d, markers = %d", len(s.POIs), len(h.engine.Markers()))
	}
	if s.TileRef != "" || h.engine.HasSource(layer.SourceID) {
		t.Error("overlay installed after failed fetch")
	}
}

func TestWarpTogglesOpacity(t *testing.T) {
	h := newHarness(t, testSource())

	opacity := func() any {
		t.Helper()
		v, ok := h.engine.Paint(layer.LayerID, basemap.RasterOpacity)
		if !ok {
			t.Fatal("opacity unset")
		}
		return v
	}
	if got := opacity(); got != layer.OpacityNormal {
		t.Errorf("opacity = %v, want %v", got, layer.OpacityNormal)
	}
	h.view.ToggleWarp()
	if got := opacity(); got != layer.OpacityWarping {
		t.Errorf("warping opacity = %v, want %v", got, layer.OpacityWarping)
	}
	if !h.view.Snapshot().Warping {
		t.Error("Warping not reported")
	}

	// The tile stays put while warping.
	before := h.installedTile()
	h.view.ToggleWarp()
	if h.installedTile() != before || opacity() != layer.OpacityNormal {
		t.Error("warp off did not restore the layer")
	}
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, testSource())

	var got []State
	cancel := h.view.Subscribe(func(s State) { got = append(got, s) })
	h.view.SetOverlay("alt")
	if len(got) != 1 || got[0].ActiveOverlayID != "alt" {
		t.Fatalf("published = %+v", got)
	}

	got[0].Overlays[0].ID = "mutated"
	if h.view.Snapshot().Overlays[0].ID != "base" {
		t.Error("snapshot shares overlay storage")
	}

	cancel()
	h.view.SetOverlay("base")
	if len(got) != 1 {
		t.Errorf("published after cancel: %d", len(got))
	}
}

func TestDeferredUntilMapLoads(t *testing.T) {
	e := headless.New()
	loop := frame.New()
	v := New(context.Background(), "mars", loop, e, testSource(), tile.NewResolver(nil),
		WithExecutor(func(task func()) { task() }))
	t.Cleanup(v.Close)
	loop.Tick(time.Now())

	if e.HasSource(layer.SourceID) {
		t.Fatal("installed before load")
	}
	e.Load()
	src, ok := e.Source(layer.SourceID)
	if !ok || src.Tiles[0] != v.Snapshot().TileRef {
		t.Errorf("after load: source %+v, ok %v", src, ok)
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, testSource())
	h.view.Close()

	if h.engine.HasSource(layer.SourceID) || h.engine.HasLayer(layer.LayerID) {
		t.Error("overlay left on the map")
	}
	for _, m := range h.engine.Markers() {
		if !m.Removed() {
			t.Errorf("marker %s not removed", m.Element())
		}
	}

	h.view.SetOverlay("alt")
	h.view.SelectPOI("gale")
	if len(h.engine.Flights()) != 0 {
		t.Error("closed view still flies")
	}
	h.view.Close()
}

func newMask(t *testing.T) *mask.Program {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	p, err := mask.New(openDev.Device, openDev.Queue)
	if err != nil {
		t.Fatalf("mask.New() error: %v", err)
	}
	return p
}

func TestMaskFollowsView(t *testing.T) {
	m := newMask(t)
	h := newHarness(t, testSource(), WithMask(m), WithDevicePixelRatio(2))

	if w, hgt := m.Size(); w != 1600 || hgt != 1200 {
		t.Errorf("mask size = %dx%d, want 1600x1200", w, hgt)
	}
	if !m.Running() {
		t.Error("mask loop not started")
	}

	wantColor := planetmap.Hex("#ffb347")
	if c := m.Params().Color; c.R != wantColor.R || c.G != wantColor.G || c.B != wantColor.B {
		t.Errorf("mask color = %+v, want %+v", c, wantColor)
	}
	h.view.SetOverlay("alt")
	fallback := planetmap.Hex(mask.FallbackColor)
	if c := m.Params().Color; c.R != fallback.R || c.G != fallback.G || c.B != fallback.B {
		t.Errorf("fallback color = %+v, want %+v", c, fallback)
	}

	h.engine.MoveMouse(basemap.Point{X: 200, Y: 150})
	if got := h.view.Snapshot().Cursor; got != (mask.Cursor{X: 400, Y: 900}) {
		t.Errorf("cursor = %+v, want {400 900}", got)
	}

	h.view.SetWarp(true)
	if got := m.Params().Intensity; got != mask.IntensityWarping {
		t.Errorf("intensity = %v, want %v", got, mask.IntensityWarping)
	}

	h.engine.Resize(basemap.Size{W: 400, H: 300})
	if w, hgt := m.Size(); w != 800 || hgt != 600 {
		t.Errorf("resized mask = %dx%d, want 800x600", w, hgt)
	}

	before := m.Frames()
	h.loop.Tick(time.Now())
	if m.Frames() <= before {
		t.Error("no frame rendered on tick")
	}

	h.view.Close()
	if m.Running() {
		t.Error("mask still running after Close")
	}
}

func TestLayerHooks(t *testing.T) {
	var installs []string
	removals := 0
	h := newHarness(t, testSource(), WithLayerOptions(
		layer.WithInstallHook(func(ref string) { installs = append(installs, ref) }),
		layer.WithRemoveHook(func() { removals++ }),
	))

	h.view.SetOverlay("alt")
	h.view.Close()

	if len(installs) != 2 {
		t.Errorf("installs = %d, want 2", len(installs))
	}
	if installs[len(installs)-1] != h.view.tileRef {
		t.Error("last install is not the current tile")
	}
	if removals < 1 {
		t.Errorf("removals = %d, want at least 1", removals)
	}
}
