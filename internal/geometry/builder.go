package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmfacilities/internal/config"
)

// Per-entity build failures. None of them are fatal for a run.
var (
	ErrMemberNotFound    = errors.New("member not found")
	ErrUnrecognizedShape = errors.New("unrecognized geometry shape")
	ErrTransform         = errors.New("coordinate transform failed")
	ErrOutsideBBox       = errors.New("outside bounding box")
)

// DefaultSegments is the number of segments used to approximate a buffered point
const DefaultSegments = 32

// Resolver supplies coordinates and way members for entity assembly.
// Node coordinates are in the input CRS as (lon, lat).
type Resolver interface {
	Node(id osm.NodeID) (orb.Point, bool)
	Way(id osm.WayID) ([]osm.NodeID, bool)
}

// Projector transforms a coordinate from the input CRS into the target CRS
type Projector interface {
	Project(p orb.Point) (orb.Point, error)
}

// Builder turns OSM entities into multipolygons in the target CRS
type Builder struct {
	resolver Resolver
	proj     Projector
	radius   float64
	segments int
	bbox     *config.BBox
}

// NewBuilder creates a builder buffering nodes to disks of the given radius
func NewBuilder(resolver Resolver, proj Projector, radius float64) *Builder {
	return &Builder{
		resolver: resolver,
		proj:     proj,
		radius:   radius,
		segments: DefaultSegments,
	}
}

// WithBBox restricts building to entities touching bbox (input CRS)
func (b *Builder) WithBBox(bbox *config.BBox) *Builder {
	b.bbox = bbox
	return b
}

// Build dispatches on the entity type
func (b *Builder) Build(obj osm.Object) (orb.MultiPolygon, error) {
	switch o := obj.(type) {
	case *osm.Node:
		return b.BuildNode(o)
	case *osm.Way:
		return b.BuildWay(o)
	case *osm.Relation:
		return b.BuildRelation(o)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnrecognizedShape, obj)
	}
}

// BuildNode buffers the projected node into a disk
func (b *Builder) BuildNode(n *osm.Node) (orb.MultiPolygon, error) {
	if b.bbox != nil && !b.bbox.Contains(n.Lat, n.Lon) {
		return nil, ErrOutsideBBox
	}
	p, err := b.project(orb.Point{n.Lon, n.Lat})
	if err != nil {
		return nil, err
	}
	return orb.MultiPolygon{BufferPoint(p, b.radius, b.segments)}, nil
}

// BuildWay closes a way into a polygon. Open ways are rejected.
func (b *Builder) BuildWay(w *osm.Way) (orb.MultiPolygon, error) {
	ids := make([]osm.NodeID, len(w.Nodes))
	for i, wn := range w.Nodes {
		ids[i] = wn.ID
	}

	ring, err := b.resolveNodes(ids)
	if err != nil {
		return nil, fmt.Errorf("way %d: %w", w.ID, err)
	}
	if len(ring) < 4 || !ring.Closed() {
		return nil, fmt.Errorf("way %d: %w", w.ID, ErrUnrecognizedShape)
	}
	if !b.ringInBBox(ring) {
		return nil, ErrOutsideBBox
	}

	if err := b.projectRing(ring); err != nil {
		return nil, fmt.Errorf("way %d: %w", w.ID, err)
	}
	return orb.MultiPolygon{orb.Polygon{ring}}, nil
}

// BuildRelation assembles a relation from its member ways. Any relation
// type is tried; members with role inner become holes, every other way
// member is outer linework.
func (b *Builder) BuildRelation(r *osm.Relation) (orb.MultiPolygon, error) {
	if !HasWayMembers(r) {
		return nil, fmt.Errorf("relation %d: %w", r.ID, ErrUnrecognizedShape)
	}

	var outer, inner []orb.LineString
	for _, m := range r.Members {
		if m.Type != osm.TypeWay {
			continue
		}
		nodes, ok := b.resolver.Way(osm.WayID(m.Ref))
		if !ok {
			return nil, fmt.Errorf("relation %d way %d: %w", r.ID, m.Ref, ErrMemberNotFound)
		}
		line, err := b.resolveNodes(nodes)
		if err != nil {
			return nil, fmt.Errorf("relation %d way %d: %w", r.ID, m.Ref, err)
		}
		if m.Role == "inner" {
			inner = append(inner, orb.LineString(line))
		} else {
			outer = append(outer, orb.LineString(line))
		}
	}

	mp := AssembleMultiPolygon(outer, inner)
	if len(mp) == 0 {
		return nil, fmt.Errorf("relation %d: %w", r.ID, ErrUnrecognizedShape)
	}

	if b.bbox != nil {
		in := false
		for _, poly := range mp {
			if b.ringInBBox(poly[0]) {
				in = true
				break
			}
		}
		if !in {
			return nil, ErrOutsideBBox
		}
	}

	for _, poly := range mp {
		for _, ring := range poly {
			if err := b.projectRing(ring); err != nil {
				return nil, fmt.Errorf("relation %d: %w", r.ID, err)
			}
		}
	}
	return mp, nil
}

// HasWayMembers reports whether r has any way member to assemble rings from
func HasWayMembers(r *osm.Relation) bool {
	for _, m := range r.Members {
		if m.Type == osm.TypeWay {
			return true
		}
	}
	return false
}

func (b *Builder) resolveNodes(ids []osm.NodeID) (orb.Ring, error) {
	ring := make(orb.Ring, 0, len(ids))
	for _, id := range ids {
		p, ok := b.resolver.Node(id)
		if !ok {
			return nil, fmt.Errorf("node %d: %w", id, ErrMemberNotFound)
		}
		ring = append(ring, p)
	}
	return ring, nil
}

func (b *Builder) ringInBBox(ring orb.Ring) bool {
	if b.bbox == nil {
		return true
	}
	for _, p := range ring {
		if b.bbox.Contains(p[1], p[0]) {
			return true
		}
	}
	return false
}

func (b *Builder) projectRing(ring orb.Ring) error {
	for i, p := range ring {
		q, err := b.project(p)
		if err != nil {
			return err
		}
		ring[i] = q
	}
	return nil
}

func (b *Builder) project(p orb.Point) (orb.Point, error) {
	if b.proj == nil {
		return p, nil
	}
	q, err := b.proj.Project(p)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %v", ErrTransform, err)
	}
	if math.IsNaN(q[0]) || math.IsNaN(q[1]) || math.IsInf(q[0], 0) || math.IsInf(q[1], 0) {
		return orb.Point{}, fmt.Errorf("%w: non-finite result for %v", ErrTransform, p)
	}
	return q, nil
}

// BufferPoint approximates a disk of the given radius around p
func BufferPoint(p orb.Point, radius float64, segments int) orb.Polygon {
	if segments < 4 {
		segments = 4
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, orb.Point{p[0] + radius*math.Cos(a), p[1] + radius*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
