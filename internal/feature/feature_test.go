package feature

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmfacilities/internal/mapping"
)

func testClassifier(t *testing.T, maxArea float64) *Classifier {
	t.Helper()
	m, err := mapping.Parse([]byte(`{
		"shop": {"*": ["shop"], "bakery": ["shop_daily"]},
		"amenity": {"restaurant": ["dining"]},
		"landuse": {"retail": ["shop"]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	return NewClassifier(m, mapping.NewLabelSpace(m), maxArea)
}

func box(size float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{0, 0}, {size, 0}, {size, size}, {0, size}, {0, 0}}}}
}

func TestKeep(t *testing.T) {
	c := testClassifier(t, 1e6)

	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{"building without mapping", osm.Tags{{Key: "building", Value: "yes"}}, true},
		{"wildcard match", osm.Tags{{Key: "shop", Value: "florist"}}, true},
		{"exact match", osm.Tags{{Key: "amenity", Value: "restaurant"}}, true},
		{"unmatched value", osm.Tags{{Key: "amenity", Value: "bench"}}, false},
		{"unknown key", osm.Tags{{Key: "highway", Value: "primary"}}, false},
		{"no tags", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Keep(tt.tags); got != tt.want {
				t.Errorf("Keep() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		typ  osm.Type
		tags osm.Tags
		want Category
	}{
		{osm.TypeNode, osm.Tags{{Key: "landuse", Value: "retail"}}, POI},
		{osm.TypeWay, osm.Tags{{Key: "landuse", Value: "retail"}}, Landuse},
		{osm.TypeRelation, osm.Tags{{Key: "landuse", Value: "forest"}}, Landuse},
		{osm.TypeWay, osm.Tags{{Key: "building", Value: "yes"}}, Container},
		{osm.TypeWay, osm.Tags{{Key: "shop", Value: "bakery"}}, Container},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+tt.want.String(), func(t *testing.T) {
			if got := Categorize(tt.typ, tt.tags); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	c := testClassifier(t, 1000)

	f, err := c.Classify(osm.TypeNode, 42, osm.Tags{{Key: "shop", Value: "bakery"}}, box(1))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if f.ID != "n42" || f.Category != POI {
		t.Errorf("got id %q category %v", f.ID, f.Category)
	}
	if got := f.Labels(c.Labels()); !reflect.DeepEqual(got, []string{"shop", "shop_daily"}) {
		t.Errorf("Labels() = %v", got)
	}

	if _, err := c.Classify(osm.TypeWay, 7, osm.Tags{{Key: "building", Value: "yes"}}, box(40)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}

	// Landuse is not subject to the container ceiling
	lu, err := c.Classify(osm.TypeWay, 8, osm.Tags{{Key: "landuse", Value: "retail"}}, box(40))
	if err != nil {
		t.Fatalf("landuse Classify() error = %v", err)
	}
	if lu.Category != Landuse || lu.Area() != 1600 {
		t.Errorf("landuse feature category %v area %f", lu.Category, lu.Area())
	}

	b, err := c.Classify(osm.TypeWay, 9, osm.Tags{{Key: "building", Value: "yes"}}, box(10))
	if err != nil {
		t.Fatal(err)
	}
	if !b.Empty() {
		t.Error("plain building should have no labels")
	}
}

func TestAssignConcurrent(t *testing.T) {
	f := New(osm.TypeWay, 1, Container, box(10), bitset.New(64))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.Assign(bitset.New(64).Set(uint(i)))
		}(i)
	}
	wg.Wait()

	if got := f.Bits().Count(); got != 64 {
		t.Errorf("Count() = %d, want 64", got)
	}
}

func TestBuckets(t *testing.T) {
	var b Buckets
	b.Add(New(osm.TypeNode, 2, POI, box(1), nil))
	b.Add(New(osm.TypeWay, 3, Container, box(1), nil))
	b.Add(New(osm.TypeNode, 1, POI, box(1), nil))
	b.Add(New(osm.TypeWay, 4, Landuse, box(1), nil))
	b.Sort()

	if len(b.POI) != 2 || b.POI[0].ID != "n1" {
		t.Errorf("POI bucket not sorted: %v", b.POI)
	}
	all := b.All()
	ids := make([]string, len(all))
	for i, f := range all {
		ids[i] = f.ID
	}
	if !reflect.DeepEqual(ids, []string{"w3", "w4", "n1", "n2"}) {
		t.Errorf("All() = %v", ids)
	}
}
