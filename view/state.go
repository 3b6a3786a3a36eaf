package view

import (
	"slices"
	"time"

	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/layer"
	"github.com/gogpu/planetmap/mask"
)

// Focus names the control that keyboard focus moved to.
type Focus string

// Focus targets.
const (
	FocusNone          Focus = ""
	FocusOverlayToggle Focus = "overlay-toggle"
	FocusTimeSlider    Focus = "time-slider"
)

// State is a snapshot of the view, safe to hand to other goroutines.
type State struct {
	PlanetID string

	Overlays        []catalog.Overlay
	OverlaysLoading bool
	ActiveOverlayID string

	ActiveTime     time.Time
	TimeMin        time.Time
	TimeMax        time.Time
	SliderDisabled bool

	POIs        []catalog.POI
	ActivePOIID string
	Missions    []catalog.Mission

	TileRef string
	Layer   layer.State
	Warping bool

	MaskAvailable bool
	Cursor        mask.Cursor
	Focus         Focus
}

// ActiveOverlay returns the active overlay record, if any.
func (s State) ActiveOverlay() (catalog.Overlay, bool) {
	if s.ActiveOverlayID == "" {
		return catalog.Overlay{}, false
	}
	return ActiveOverlay(s.Overlays, s.ActiveOverlayID)
}

// ActivePOI returns the active POI record, if any.
func (s State) ActivePOI() (catalog.POI, bool) {
	return ActivePOI(s.POIs, s.ActivePOIID)
}

func (s State) clone() State {
	s.Overlays = slices.Clone(s.Overlays)
	for i := range s.Overlays {
		s.Overlays[i].TimeSteps = slices.Clone(s.Overlays[i].TimeSteps)
	}
	s.POIs = slices.Clone(s.POIs)
	s.Missions = slices.Clone(s.Missions)
	return s
}

// Notification is a transient, user-visible message.
type Notification struct {
	Level   string
	Message string
}

// Notifier receives notifications.
type Notifier func(Notification)
