package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/gogpu/planetmap"
	"github.com/gogpu/planetmap/timeline"
)

// LoadObserver is notified after every index load attempt.
type LoadObserver func(name string, elapsed time.Duration, err error)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLoadObserver registers fn to be called after each index load.
func WithLoadObserver(fn LoadObserver) StoreOption {
	return func(s *Store) {
		s.observe = fn
	}
}

// Store is a memoizing Source backed by JSON indexes.
//
// Each index is loaded at most once successfully; failed loads are not
// cached, so the next call tries again. The overlays of a planet are cached
// on first use and served to CachedOverlay, which tile resolution relies on.
//
// Store is safe for concurrent use.
type Store struct {
	loader   Loader
	validate *validator.Validate
	observe  LoadObserver

	summaries index[[]PlanetSummary]
	details   index[map[string]PlanetDetail]
	overlays  index[map[string][]Overlay]
	pois      index[map[string][]POI]
	missions  index[map[string]Mission]

	cacheMu      sync.RWMutex
	overlayCache map[string][]Overlay
}

// index holds one lazily loaded JSON document.
type index[T any] struct {
	mu     sync.Mutex
	loaded bool
	val    T
}

// NewStore creates a Store reading through loader.
func NewStore(loader Loader, opts ...StoreOption) *Store {
	s := &Store{
		loader:       loader,
		validate:     newValidator(),
		overlayCache: make(map[string][]Overlay),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load returns the memoized value of ix, loading and decoding name on first use.
func load[T any](ctx context.Context, s *Store, ix *index[T], name string) (T, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.loaded {
		return ix.val, nil
	}

	start := time.Now()
	val, err := decode[T](ctx, s.loader, name)
	if s.observe != nil {
		s.observe(name, time.Since(start), err)
	}
	if err != nil {
		return val, err
	}
	ix.val = val
	ix.loaded = true
	return val, nil
}

func decode[T any](ctx context.Context, loader Loader, name string) (T, error) {
	var val T
	data, err := loader.Load(ctx, name)
	if err != nil {
		return val, fmt.Errorf("failed to load %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &val); err != nil {
		return val, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return val, nil
}

// newValidator returns a validator that also knows the timestamp tags used
// by Overlay: isotime (parses as ISO-8601) and timesteps (every entry parses
// and the times strictly increase).
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("isotime", func(fl validator.FieldLevel) bool {
		_, ok := timeline.Parse(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("timesteps", func(fl validator.FieldLevel) bool {
		steps, ok := fl.Field().Interface().([]string)
		return ok && timeline.Ascending(steps)
	})
	return v
}

// valid reports whether v passes struct validation, logging the reason if not.
func (s *Store) valid(kind, id string, v any) bool {
	if err := s.validate.Struct(v); err != nil {
		planetmap.Logger().Warn("catalog: dropping invalid record",
			"kind", kind, "id", id, "error", err)
		return false
	}
	return true
}

// Planets returns all planet summaries.
func (s *Store) Planets(ctx context.Context) ([]PlanetSummary, error) {
	summaries, err := load(ctx, s, &s.summaries, SummariesFile)
	if err != nil {
		return nil, err
	}
	out := make([]PlanetSummary, 0, len(summaries))
	for _, sum := range summaries {
		if s.valid("planet", sum.ID, sum) {
			out = append(out, sum.clone())
		}
	}
	return out, nil
}

// Planet returns the detail record of planetID.
func (s *Store) Planet(ctx context.Context, planetID string) (PlanetDetail, error) {
	details, err := load(ctx, s, &s.details, DetailsFile)
	if err != nil {
		return PlanetDetail{}, err
	}
	d, ok := details[planetID]
	if !ok {
		return PlanetDetail{}, fmt.Errorf("%w: %s", ErrUnknownPlanet, planetID)
	}
	return d.clone(), nil
}

// Overlays returns the overlays of planetID, in declared order.
// Unknown planets have no overlays.
func (s *Store) Overlays(ctx context.Context, planetID string) ([]Overlay, error) {
	all, err := load(ctx, s, &s.overlays, OverlaysFile)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	cached, ok := s.overlayCache[planetID]
	if !ok {
		cached = make([]Overlay, 0, len(all[planetID]))
		for _, o := range all[planetID] {
			if s.valid("overlay", o.ID, o) {
				cached = append(cached, o.clone())
			}
		}
		s.overlayCache[planetID] = cached
	}
	s.cacheMu.Unlock()

	out := make([]Overlay, len(cached))
	for i, o := range cached {
		out[i] = o.clone()
	}
	return out, nil
}

// CachedOverlay returns overlay metadata remembered from an earlier Overlays
// call. It never performs I/O.
func (s *Store) CachedOverlay(planetID, overlayID string) (Overlay, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	for _, o := range s.overlayCache[planetID] {
		if o.ID == overlayID {
			return o.clone(), true
		}
	}
	return Overlay{}, false
}

// POIs returns the points of interest of planetID.
func (s *Store) POIs(ctx context.Context, planetID string) ([]POI, error) {
	all, err := load(ctx, s, &s.pois, POIsFile)
	if err != nil {
		return nil, err
	}
	out := make([]POI, 0, len(all[planetID]))
	for _, p := range all[planetID] {
		if s.valid("poi", p.ID, p) {
			out = append(out, p.clone())
		}
	}
	return out, nil
}

// Missions returns the missions named by ids, in the order given.
// Unknown ids are skipped.
func (s *Store) Missions(ctx context.Context, ids []string) ([]Mission, error) {
	all, err := load(ctx, s, &s.missions, MissionsFile)
	if err != nil {
		return nil, err
	}
	out := make([]Mission, 0, len(ids))
	for _, id := range ids {
		if m, ok := all[id]; ok && s.valid("mission", id, m) {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ Source = (*Store)(nil)
