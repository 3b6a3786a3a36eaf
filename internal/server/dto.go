package server

import (
	"time"

	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/view"
)

// StateDTO is the wire form of view.State. Times are milliseconds since the
// Unix epoch.
type StateDTO struct {
	PlanetID        string            `json:"planetId"`
	Overlays        []catalog.Overlay `json:"overlays"`
	OverlaysLoading bool              `json:"overlaysLoading"`
	ActiveOverlayID string            `json:"activeOverlayId,omitempty"`
	ActiveTime      int64             `json:"activeTime"`
	TimeMin         int64             `json:"timeMin"`
	TimeMax         int64             `json:"timeMax"`
	SliderDisabled  bool              `json:"sliderDisabled"`
	POIs            []catalog.POI     `json:"pois"`
	ActivePOIID     string            `json:"activePoiId,omitempty"`
	Missions        []catalog.Mission `json:"missions"`
	TileRef         string            `json:"tileRef,omitempty"`
	LayerInstalled  bool              `json:"layerInstalled"`
	Warping         bool              `json:"warping"`
	MaskAvailable   bool              `json:"maskAvailable"`
	Cursor          [2]float64        `json:"cursor"`
	Focus           string            `json:"focus,omitempty"`
}

// NewStateDTO converts a view snapshot.
func NewStateDTO(s view.State) StateDTO {
	return StateDTO{
		PlanetID:        s.PlanetID,
		Overlays:        nonNil(s.Overlays),
		OverlaysLoading: s.OverlaysLoading,
		ActiveOverlayID: s.ActiveOverlayID,
		ActiveTime:      millis(s.ActiveTime),
		TimeMin:         millis(s.TimeMin),
		TimeMax:         millis(s.TimeMax),
		SliderDisabled:  s.SliderDisabled,
		POIs:            nonNil(s.POIs),
		ActivePOIID:     s.ActivePOIID,
		Missions:        nonNil(s.Missions),
		TileRef:         s.TileRef,
		LayerInstalled:  s.Layer.Installed,
		Warping:         s.Warping,
		MaskAvailable:   s.MaskAvailable,
		Cursor:          [2]float64{s.Cursor.X, s.Cursor.Y},
		Focus:           string(s.Focus),
	}
}

// NotificationDTO is the wire form of view.Notification.
type NotificationDTO struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type overlayRequest struct {
	ID string `json:"id"`
}

type timeRequest struct {
	Time int64 `json:"time"`
}

type poiRequest struct {
	ID string `json:"id"`
}

type warpRequest struct {
	Warping *bool `json:"warping"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type keyResponse struct {
	Handled bool     `json:"handled"`
	State   StateDTO `json:"state"`
}

type clickResponse struct {
	Hit   bool     `json:"hit"`
	State StateDTO `json:"state"`
}

type pointerRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type zoomRequest struct {
	Zoom float64 `json:"zoom"`
}

type resizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
