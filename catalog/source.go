// Package catalog provides the planet data consumed by the map view:
// overlays, points of interest, missions and planet descriptions.
//
// A Source is asynchronous from the caller's point of view: every call may
// block on I/O and may fail as a whole. Store is the standard Source. It reads
// JSON indexes through a Loader, memoizes each index after its first
// successful load and hands out copies.
package catalog

import (
	"context"
	"errors"
)

// Index file names read by Store.
const (
	SummariesFile = "planet-summaries.json"
	DetailsFile   = "planet-details.json"
	OverlaysFile  = "overlays.json"
	POIsFile      = "pois.json"
	MissionsFile  = "missions.json"
)

// ErrUnknownPlanet is returned by Planet for ids missing from the detail index.
var ErrUnknownPlanet = errors.New("catalog: unknown planet")

// Source is the data-fetching collaborator of the map view.
type Source interface {
	Planets(ctx context.Context) ([]PlanetSummary, error)
	Planet(ctx context.Context, planetID string) (PlanetDetail, error)
	Overlays(ctx context.Context, planetID string) ([]Overlay, error)
	POIs(ctx context.Context, planetID string) ([]POI, error)
	Missions(ctx context.Context, ids []string) ([]Mission, error)
}
