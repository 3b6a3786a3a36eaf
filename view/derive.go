package view

import (
	"time"

	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/timeline"
)

// ActiveOverlay resolves the stored selection against overlays. An empty or
// unknown id falls back to the first overlay; ok is false only when
// overlays is empty.
func ActiveOverlay(overlays []catalog.Overlay, selectedID string) (catalog.Overlay, bool) {
	if len(overlays) == 0 {
		return catalog.Overlay{}, false
	}
	for _, o := range overlays {
		if o.ID == selectedID {
			return o, true
		}
	}
	return overlays[0], true
}

// ActivePOI finds the selected POI. There is no fallback.
func ActivePOI(pois []catalog.POI, selectedID string) (catalog.POI, bool) {
	if selectedID == "" {
		return catalog.POI{}, false
	}
	for _, p := range pois {
		if p.ID == selectedID {
			return p, true
		}
	}
	return catalog.POI{}, false
}

// ActiveTime snaps stored onto the steps of overlay.
func ActiveTime(overlay catalog.Overlay, stored time.Time) time.Time {
	return timeline.Nearest(timeline.ParseSteps(overlay.TimeSteps), stored)
}

// NextOverlay returns the id following currentID, wrapping around. An
// unknown current id yields the first overlay.
func NextOverlay(overlays []catalog.Overlay, currentID string) (string, bool) {
	if len(overlays) == 0 {
		return "", false
	}
	idx := -1
	for i, o := range overlays {
		if o.ID == currentID {
			idx = i
			break
		}
	}
	return overlays[(idx+1)%len(overlays)].ID, true
}
