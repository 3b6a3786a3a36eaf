// Package marker keeps one map marker per point of interest.
package marker

import (
	"github.com/gogpu/planetmap/basemap"
	"github.com/gogpu/planetmap/catalog"
)

type entry struct {
	poi    catalog.POI
	marker basemap.Marker
}

// Set reconciles map markers against POI lists, keyed by POI id. Markers of
// POIs that persist across updates are kept, not recreated.
//
// Set is not safe for concurrent use.
type Set struct {
	m        basemap.Map
	onSelect func(id string)
	entries  map[string]*entry
	zoomSub  basemap.Subscription
}

// New creates an empty Set on m. onSelect, if non-nil, is called with the
// POI id when a marker is activated.
func New(m basemap.Map, onSelect func(id string)) *Set {
	s := &Set{
		m:        m,
		onSelect: onSelect,
		entries:  make(map[string]*entry),
	}
	s.zoomSub = m.OnZoom(s.gate)
	return s
}

// Update reconciles the markers with pois and reapplies zoom gating.
func (s *Set) Update(pois []catalog.POI) {
	next := make(map[string]catalog.POI, len(pois))
	for _, p := range pois {
		next[p.ID] = p
	}

	for id, e := range s.entries {
		if _, ok := next[id]; !ok {
			e.marker.Remove()
			delete(s.entries, id)
		}
	}

	for _, p := range pois {
		if e, ok := s.entries[p.ID]; ok {
			e.poi = p
			continue
		}
		id := p.ID
		s.entries[id] = &entry{
			poi: p,
			marker: s.m.AddMarker(basemap.MarkerOptions{
				Element: id,
				At:      basemap.LngLat{X: p.Lon(), Y: p.Lat()},
				OnClick: func() { s.selected(id) },
			}),
		}
	}

	s.gate(s.m.Zoom())
}

func (s *Set) selected(id string) {
	if s.onSelect != nil {
		s.onSelect(id)
	}
}

// gate shows markers whose minimum zoom is at or below zoom.
func (s *Set) gate(zoom float64) {
	for _, e := range s.entries {
		e.marker.SetVisible(zoom >= e.poi.MinZoom)
	}
}

// Marker returns the marker of a POI.
func (s *Set) Marker(id string) (basemap.Marker, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.marker, true
}

// Len returns the number of tracked markers.
func (s *Set) Len() int { return len(s.entries) }

// Close removes every marker and stops zoom gating.
func (s *Set) Close() {
	if s.zoomSub != nil {
		s.zoomSub.Unsubscribe()
		s.zoomSub = nil
	}
	for id, e := range s.entries {
		e.marker.Remove()
		delete(s.entries, id)
	}
}
