package feature

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmfacilities/internal/geometry"
	"github.com/wegman-software/osmfacilities/internal/mapping"
)

// Category is the bucket a kept entity is sorted into
type Category uint8

const (
	POI Category = iota
	Landuse
	Container
)

func (c Category) String() string {
	switch c {
	case POI:
		return "poi"
	case Landuse:
		return "landuse"
	case Container:
		return "container"
	default:
		return fmt.Sprintf("category(%d)", c)
	}
}

// ParseCategory is the inverse of Category.String
func ParseCategory(s string) (Category, error) {
	switch s {
	case "poi":
		return POI, nil
	case "landuse":
		return Landuse, nil
	case "container":
		return Container, nil
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// Feature is a classified geometry. The geometry never changes after
// construction; the label bits only grow through Assign.
type Feature struct {
	ID       string
	Type     osm.Type
	OSMID    int64
	Category Category
	Geometry orb.MultiPolygon

	area  float64
	bound orb.Bound

	mu   sync.Mutex
	bits *bitset.BitSet
}

// New creates a feature, caching its area and envelope
func New(typ osm.Type, osmID int64, cat Category, geom orb.MultiPolygon, bits *bitset.BitSet) *Feature {
	if bits == nil {
		bits = bitset.New(0)
	}
	return &Feature{
		ID:       FormatID(typ, osmID),
		Type:     typ,
		OSMID:    osmID,
		Category: cat,
		Geometry: geom,
		area:     geometry.Area(geom),
		bound:    geom.Bound(),
		bits:     bits,
	}
}

// FormatID renders the feature id, e.g. "w123"
func FormatID(typ osm.Type, osmID int64) string {
	prefix := "x"
	if len(typ) > 0 {
		prefix = string(typ[0])
	}
	return fmt.Sprintf("%s%d", prefix, osmID)
}

// Area returns the cached planar area
func (f *Feature) Area() float64 {
	return f.area
}

// Bound returns the cached envelope
func (f *Feature) Bound() orb.Bound {
	return f.bound
}

// Assign ORs other into the feature's labels
func (f *Feature) Assign(other *bitset.BitSet) {
	f.mu.Lock()
	f.bits.InPlaceUnion(other)
	f.mu.Unlock()
}

// Bits returns a snapshot of the label bits
func (f *Feature) Bits() *bitset.BitSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits.Clone()
}

// Empty reports whether no label is set
func (f *Feature) Empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits.None()
}

// Labels returns the names of the set labels in index order
func (f *Feature) Labels(ls *mapping.LabelSpace) []string {
	b := f.Bits()
	var out []string
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		if int(i) < ls.Len() {
			out = append(out, ls.Name(int(i)))
		}
	}
	return out
}

// Buckets collects features by category. Add is safe for concurrent use.
type Buckets struct {
	mu         sync.Mutex
	POI        []*Feature
	Landuse    []*Feature
	Containers []*Feature
}

// Add appends f to the bucket of its category
func (b *Buckets) Add(f *Feature) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch f.Category {
	case POI:
		b.POI = append(b.POI, f)
	case Landuse:
		b.Landuse = append(b.Landuse, f)
	default:
		b.Containers = append(b.Containers, f)
	}
}

// Sort orders every bucket by feature id so downstream output is stable
func (b *Buckets) Sort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range [][]*Feature{b.POI, b.Landuse, b.Containers} {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
}

// All returns containers, landuse and poi features in that order
func (b *Buckets) All() []*Feature {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Feature, 0, len(b.Containers)+len(b.Landuse)+len(b.POI))
	out = append(out, b.Containers...)
	out = append(out, b.Landuse...)
	out = append(out, b.POI...)
	return out
}
