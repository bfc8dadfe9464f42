package nodeindex

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// Index stores node coordinates as (lon, lat) by id
type Index interface {
	Put(id osm.NodeID, p orb.Point)
	Get(id osm.NodeID) (orb.Point, bool)
	Close() error
}

// MapIndex is an in-memory index for small extracts
type MapIndex struct {
	mu    sync.RWMutex
	nodes map[osm.NodeID]orb.Point
}

// NewMapIndex creates an empty in-memory index
func NewMapIndex() *MapIndex {
	return &MapIndex{nodes: make(map[osm.NodeID]orb.Point)}
}

func (m *MapIndex) Put(id osm.NodeID, p orb.Point) {
	m.mu.Lock()
	m.nodes[id] = p
	m.mu.Unlock()
}

func (m *MapIndex) Get(id osm.NodeID) (orb.Point, bool) {
	m.mu.RLock()
	p, ok := m.nodes[id]
	m.mu.RUnlock()
	return p, ok
}

// Len returns the number of stored nodes
func (m *MapIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

func (m *MapIndex) Close() error { return nil }

// Open returns a flat-file index when path is set, otherwise an in-memory one
func Open(path string) (Index, error) {
	if path == "" {
		return NewMapIndex(), nil
	}
	return NewMmapIndex(path, DefaultMaxNodeID)
}
