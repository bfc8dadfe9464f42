package feature

import (
	"errors"

	"github.com/bits-and-blooms/bitset"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmfacilities/internal/mapping"
)

// Reserved tag keys
const (
	BuildingKey = "building"
	LanduseKey  = "landuse"
)

// ErrTooLarge is returned for containers at or above the area ceiling
var ErrTooLarge = errors.New("container area above ceiling")

// Classifier decides which entities are kept and which labels they carry
type Classifier struct {
	mapping mapping.Mapping
	labels  *mapping.LabelSpace
	maxArea float64
}

// NewClassifier creates a classifier. Containers with area >= maxArea are rejected.
func NewClassifier(m mapping.Mapping, ls *mapping.LabelSpace, maxArea float64) *Classifier {
	return &Classifier{mapping: m, labels: ls, maxArea: maxArea}
}

// Labels returns the label space bit indices refer to
func (c *Classifier) Labels() *mapping.LabelSpace {
	return c.labels
}

// Keep reports whether an entity with these tags is of interest.
// Buildings are always kept.
func (c *Classifier) Keep(tags osm.Tags) bool {
	for _, t := range tags {
		if t.Key == BuildingKey {
			return true
		}
	}
	for _, t := range tags {
		if c.mapping.Matches(t.Key, t.Value) {
			return true
		}
	}
	return false
}

// Bits unions the labels of every tag
func (c *Classifier) Bits(tags osm.Tags) *bitset.BitSet {
	bits := bitset.New(uint(c.labels.Len()))
	for _, t := range tags {
		for _, l := range c.mapping.LabelsOf(t.Key, t.Value) {
			if i, ok := c.labels.Index(l); ok {
				bits.Set(uint(i))
			}
		}
	}
	return bits
}

// Categorize sorts a kept entity into its bucket
func Categorize(typ osm.Type, tags osm.Tags) Category {
	if typ == osm.TypeNode {
		return POI
	}
	for _, t := range tags {
		if t.Key == LanduseKey {
			return Landuse
		}
	}
	return Container
}

// Classify builds the feature for a kept entity and its geometry
func (c *Classifier) Classify(typ osm.Type, osmID int64, tags osm.Tags, geom orb.MultiPolygon) (*Feature, error) {
	cat := Categorize(typ, tags)
	f := New(typ, osmID, cat, geom, c.Bits(tags))
	if cat == Container && f.Area() >= c.maxArea {
		return nil, ErrTooLarge
	}
	return f, nil
}
