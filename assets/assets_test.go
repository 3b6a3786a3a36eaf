package assets_test

import (
	"context"
	"testing"

	"github.com/gogpu/planetmap/assets"
	"github.com/gogpu/planetmap/catalog"
)

func TestEmbeddedCatalogLoads(t *testing.T) {
	s := catalog.NewStore(catalog.DirLoader(assets.Catalog()))
	ctx := context.Background()

	planets, err := s.Planets(ctx)
	if err != nil {
		t.Fatalf("Planets() error: %v", err)
	}
	if len(planets) != 3 {
		t.Fatalf("len(Planets()) = %d, want 3", len(planets))
	}

	for _, p := range planets {
		overlays, err := s.Overlays(ctx, p.ID)
		if err != nil {
			t.Fatalf("Overlays(%s) error: %v", p.ID, err)
		}
		if len(overlays) == 0 {
			t.Errorf("planet %s has no valid overlays", p.ID)
		}
		pois, err := s.POIs(ctx, p.ID)
		if err != nil {
			t.Fatalf("POIs(%s) error: %v", p.ID, err)
		}
		for _, poi := range pois {
			missions, err := s.Missions(ctx, poi.Missions)
			if err != nil {
				t.Fatal(err)
			}
			if len(missions) != len(poi.Missions) {
				t.Errorf("poi %s references unknown missions", poi.ID)
			}
		}
	}
}
