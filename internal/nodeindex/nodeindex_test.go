package nodeindex

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

func near(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) < 1e-7 && math.Abs(a[1]-b[1]) < 1e-7
}

func TestIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	mm, err := NewMmapIndex(path, 1024)
	if err != nil {
		t.Fatalf("NewMmapIndex() error = %v", err)
	}
	defer mm.Close()

	for name, ix := range map[string]Index{"map": NewMapIndex(), "mmap": mm} {
		t.Run(name, func(t *testing.T) {
			points := map[osm.NodeID]orb.Point{
				1:   {11.5761, 48.1371},
				2:   {0, 0},
				700: {-179.9999999, -89.9999999},
				900: {179.9999999, 89.9999999},
			}
			for id, p := range points {
				ix.Put(id, p)
			}
			for id, want := range points {
				got, ok := ix.Get(id)
				if !ok {
					t.Errorf("Get(%d) missing", id)
					continue
				}
				if !near(got, want) {
					t.Errorf("Get(%d) = %v, want %v", id, got, want)
				}
			}
			if _, ok := ix.Get(3); ok {
				t.Error("Get(3) should be missing")
			}
		})
	}
}

func TestMmapReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	w, err := NewMmapIndex(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	w.Put(5, orb.Point{8.5, 47.25})
	w.Put(64, orb.Point{1, 1}) // out of range
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenMmapIndex(path)
	if err != nil {
		t.Fatalf("OpenMmapIndex() error = %v", err)
	}
	defer r.Close()

	if p, ok := r.Get(5); !ok || !near(p, orb.Point{8.5, 47.25}) {
		t.Errorf("Get(5) = %v, %v", p, ok)
	}
	if _, ok := r.Get(64); ok {
		t.Error("out of range id should be missing")
	}
}
