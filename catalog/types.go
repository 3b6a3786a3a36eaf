package catalog

// OverlayKind is the rendering family of an overlay.
type OverlayKind string

// Overlay kinds.
const (
	KindRaster OverlayKind = "raster"
	KindVector OverlayKind = "vector"
	KindHeat   OverlayKind = "heat"
)

// MissionStatus is the lifecycle stage of a mission.
type MissionStatus string

// Mission statuses.
const (
	StatusPlanned   MissionStatus = "planned"
	StatusActive    MissionStatus = "active"
	StatusCompleted MissionStatus = "completed"
)

// Overlay describes one time-indexed data layer of a planet.
// Values returned by a Source are copies; callers may keep them.
type Overlay struct {
	ID          string      `json:"id" validate:"required"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Kind        OverlayKind `json:"kind" validate:"oneof=raster vector heat"`
	Color       string      `json:"color" validate:"omitempty,hexcolor"`
	TimeSteps   []string    `json:"timeSteps" validate:"min=1,timesteps"`
	DefaultTime string      `json:"defaultTime" validate:"omitempty,isotime"`
}

// POI is a named point of interest on a planet surface.
type POI struct {
	ID          string     `json:"id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description"`
	Coordinates [2]float64 `json:"coordinates"`
	Images      []string   `json:"images"`
	MinZoom     float64    `json:"minZoom" validate:"gte=0"`
	OverlayIDs  []string   `json:"overlayIds"`
	Missions    []string   `json:"missions"`
}

// Lon returns the POI longitude in degrees.
func (p POI) Lon() float64 { return p.Coordinates[0] }

// Lat returns the POI latitude in degrees.
func (p POI) Lat() float64 { return p.Coordinates[1] }

// Mission is a reference to a spacecraft mission.
type Mission struct {
	ID      string        `json:"id" validate:"required"`
	Name    string        `json:"name" validate:"required"`
	Agency  string        `json:"agency"`
	Year    int           `json:"year"`
	Status  MissionStatus `json:"status" validate:"omitempty,oneof=planned active completed"`
	Summary string        `json:"summary"`
}

// PlanetSummary is the short description shown in planet pickers.
type PlanetSummary struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Age         string   `json:"age"`
	Headline    string   `json:"headline"`
	Missions    []string `json:"missions"`
	AccentColor string   `json:"accentColor" validate:"omitempty,hexcolor"`
}

// PlanetDetail extends PlanetSummary with physical facts.
type PlanetDetail struct {
	PlanetSummary
	Description       string   `json:"description"`
	Highlights        []string `json:"highlights"`
	OrbitalPeriodDays float64  `json:"orbitalPeriodDays"`
	RotationHours     float64  `json:"rotationHours"`
	Gravity           string   `json:"gravity"`
}

func (o Overlay) clone() Overlay {
	o.TimeSteps = cloneStrings(o.TimeSteps)
	return o
}

func (p POI) clone() POI {
	p.Images = cloneStrings(p.Images)
	p.OverlayIDs = cloneStrings(p.OverlayIDs)
	p.Missions = cloneStrings(p.Missions)
	return p
}

func (s PlanetSummary) clone() PlanetSummary {
	s.Missions = cloneStrings(s.Missions)
	return s
}

func (d PlanetDetail) clone() PlanetDetail {
	d.PlanetSummary = d.PlanetSummary.clone()
	d.Highlights = cloneStrings(d.Highlights)
	return d
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
