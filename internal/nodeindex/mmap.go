package nodeindex

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

const (
	// Each node entry: lon (uint32) + lat (uint32) = 8 bytes
	// Fixed-point value * 1e7, biased so that an all-zero entry means "unset"
	entrySize = 8
	scale     = 1e7
	bias      = 2_000_000_000
	// Default address space: 16B node ids, sparse on disk
	DefaultMaxNodeID = 16_000_000_000
)

// MmapIndex is a memory-mapped node coordinate index.
// Node coordinates are stored at offset = nodeID * 8, which gives O(1)
// lookup for any node ID.
type MmapIndex struct {
	file     *os.File
	data     mmap.MMap
	size     int64
	maxID    int64
	writable bool
}

// NewMmapIndex creates a new sparse mmap index for node ids below maxID
func NewMmapIndex(path string, maxID int64) (*MmapIndex, error) {
	if maxID <= 0 {
		maxID = DefaultMaxNodeID
	}
	size := maxID * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create mmap file: %w", err)
	}

	// Truncate to full size (creates sparse file on Linux)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to truncate file: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MmapIndex{
		file:     f,
		data:     data,
		size:     size,
		maxID:    maxID,
		writable: true,
	}, nil
}

// OpenMmapIndex opens an existing mmap index for reading
func OpenMmapIndex(path string) (*MmapIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("empty mmap file: %s", path)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDONLY, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}

	return &MmapIndex{
		file:  f,
		data:  data,
		size:  size,
		maxID: size / entrySize,
	}, nil
}

// Put stores a node's coordinates. Out of range ids are ignored.
func (m *MmapIndex) Put(id osm.NodeID, p orb.Point) {
	if !m.writable || id < 0 || int64(id) >= m.maxID {
		return
	}
	offset := int64(id) * entrySize
	binary.LittleEndian.PutUint32(m.data[offset:], encode(p[0]))
	binary.LittleEndian.PutUint32(m.data[offset+4:], encode(p[1]))
}

// Get retrieves a node's coordinates as (lon, lat)
func (m *MmapIndex) Get(id osm.NodeID) (orb.Point, bool) {
	if id < 0 || int64(id) >= m.maxID {
		return orb.Point{}, false
	}
	offset := int64(id) * entrySize
	lon := binary.LittleEndian.Uint32(m.data[offset:])
	lat := binary.LittleEndian.Uint32(m.data[offset+4:])
	if lon == 0 && lat == 0 {
		return orb.Point{}, false
	}
	return orb.Point{decode(lon), decode(lat)}, true
}

// Sync flushes changes to disk
func (m *MmapIndex) Sync() error {
	if !m.writable {
		return nil
	}
	return m.data.Flush()
}

// Close unmaps and closes the file
func (m *MmapIndex) Close() error {
	if err := m.data.Unmap(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}

func encode(v float64) uint32 {
	return uint32(int64(math.Round(v*scale)) + bias)
}

func decode(v uint32) float64 {
	return float64(int64(v)-bias) / scale
}
