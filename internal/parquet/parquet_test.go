package parquet

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmfacilities/internal/feature"
	"github.com/wegman-software/osmfacilities/internal/mapping"
)

func TestFeatureRoundTrip(t *testing.T) {
	ls := mapping.LabelSpaceOf([]string{"dining", "shop", "work"})
	path := filepath.Join(t.TempDir(), "features.parquet")

	w, err := NewFeatureWriter(path, ls, 25832, 2)
	if err != nil {
		t.Fatalf("NewFeatureWriter() error = %v", err)
	}

	square := orb.MultiPolygon{{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}}
	building := feature.New(osm.TypeWay, 7, feature.Container, square, bitset.New(3).Set(1).Set(2))
	empty := feature.New(osm.TypeWay, 8, feature.Container, square, bitset.New(3))
	poi := feature.New(osm.TypeNode, 9, feature.POI, square, bitset.New(3).Set(0))

	for _, f := range []*feature.Feature{building, empty, poi} {
		if _, err := w.Write(f); err != nil {
			t.Fatalf("Write(%s) error = %v", f.ID, err)
		}
	}
	if w.Written() != 2 {
		t.Errorf("Written() = %d, want 2", w.Written())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records, labels, err := ReadFeatures(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFeatures() error = %v", err)
	}
	if !reflect.DeepEqual(labels, []string{"dining", "shop", "work"}) {
		t.Errorf("labels = %v", labels)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	got := records[0]
	if got.ID != "w7" || got.OSMType != "way" || got.OSMID != 7 || got.Category != feature.Container {
		t.Errorf("record = %+v", got)
	}
	if !reflect.DeepEqual(got.Labels, []string{"shop", "work"}) {
		t.Errorf("labels = %v", got.Labels)
	}
	if !reflect.DeepEqual(got.Geometry, square) {
		t.Errorf("geometry = %v", got.Geometry)
	}
	if records[1].ID != "n9" || !reflect.DeepEqual(records[1].Labels, []string{"dining"}) {
		t.Errorf("record = %+v", records[1])
	}
}

func TestReadFeaturesUnknownCategory(t *testing.T) {
	ls := mapping.LabelSpaceOf([]string{"shop"})
	path := filepath.Join(t.TempDir(), "features.parquet")

	w, err := NewFeatureWriter(path, ls, 25832, 10)
	if err != nil {
		t.Fatal(err)
	}
	square := orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}}
	if _, err := w.Write(feature.New(osm.TypeWay, 3, feature.Category(7), square, bitset.New(1).Set(0))); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	_, _, err = ReadFeatures(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "unknown category") {
		t.Errorf("ReadFeatures() error = %v, want unknown category", err)
	}
}

func TestFeatureSchemaCollision(t *testing.T) {
	if _, err := FeatureSchema(mapping.LabelSpaceOf([]string{"category"})); err == nil {
		t.Error("expected collision error")
	}
}
