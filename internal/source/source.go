package source

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/geometry"
	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/nodeindex"
)

// Stats holds scan statistics
type Stats struct {
	Nodes     int64
	Ways      int64
	Relations int64
	BytesRead int64
}

// Source reads an OSM file in two passes and resolves node coordinates
// and way members for geometry building
type Source struct {
	path    string
	procs   int
	nodes   nodeindex.Index
	members map[osm.WayID]struct{}

	waysMu sync.RWMutex
	ways   map[osm.WayID][]osm.NodeID

	nodeCount, wayCount, relCount atomic.Int64
	bytes                         int64
}

var _ geometry.Resolver = (*Source)(nil)

// New creates a source for path storing coordinates in nodes
func New(path string, nodes nodeindex.Index, procs int) *Source {
	if procs <= 0 {
		procs = runtime.NumCPU()
	}
	return &Source{
		path:    path,
		procs:   procs,
		nodes:   nodes,
		members: make(map[osm.WayID]struct{}),
		ways:    make(map[osm.WayID][]osm.NodeID),
	}
}

// IsPBF reports whether path names a PBF file
func IsPBF(path string) bool {
	return strings.HasSuffix(path, ".pbf")
}

// open returns a scanner for the file, chosen by extension
func (s *Source) open(ctx context.Context) (osm.Scanner, func() error, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	if info, err := f.Stat(); err == nil {
		s.bytes = info.Size()
	}

	if IsPBF(s.path) {
		sc := osmpbf.New(ctx, f, s.procs)
		return sc, func() error { sc.Close(); return f.Close() }, nil
	}

	var r io.Reader = f
	var gz *gzip.Reader
	if strings.HasSuffix(s.path, ".gz") {
		gz, err = gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to open gzip input: %w", err)
		}
		r = gz
	}
	sc := osmxml.New(ctx, r)
	return sc, func() error {
		sc.Close()
		if gz != nil {
			gz.Close()
		}
		return f.Close()
	}, nil
}

// IndexNodes is pass 1: it stores every node coordinate and records which
// ways are members of tagged relations
func (s *Source) IndexNodes(ctx context.Context) error {
	log := logger.Named(logger.StageSource)
	start := time.Now()

	scanner, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	if sc, ok := scanner.(*osmpbf.Scanner); ok {
		sc.SkipWays = true
	}

	stop := s.progress(ctx, "Node indexing progress")
	defer stop()

	var nodes int64
	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			s.nodes.Put(o.ID, orb.Point{o.Lon, o.Lat})
			nodes++
			s.nodeCount.Store(nodes)
		case *osm.Relation:
			if len(o.Tags) == 0 {
				continue
			}
			for _, m := range o.Members {
				if m.Type == osm.TypeWay {
					s.members[osm.WayID(m.Ref)] = struct{}{}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to scan nodes: %w", err)
	}

	log.Info("Pass 1 complete",
		zap.Int64("nodes", nodes),
		zap.Int("relation_member_ways", len(s.members)),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}

// Stream is pass 2: it hands every tagged node, way and relation to fn in
// file order. Member ways are cached before fn sees them, so a relation
// can resolve every way that precedes it.
func (s *Source) Stream(ctx context.Context, fn func(osm.Object) error) error {
	log := logger.Named(logger.StageSource)
	start := time.Now()

	scanner, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	stop := s.progress(ctx, "Entity scan progress")
	defer stop()

	s.wayCount.Store(0)
	s.relCount.Store(0)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := scanner.Object()
		switch o := obj.(type) {
		case *osm.Node:
			if len(o.Tags) == 0 {
				continue
			}
		case *osm.Way:
			s.wayCount.Add(1)
			if _, ok := s.members[o.ID]; ok {
				s.cacheWay(o)
			}
			if len(o.Tags) == 0 {
				continue
			}
		case *osm.Relation:
			s.relCount.Add(1)
			if len(o.Tags) == 0 {
				continue
			}
		default:
			continue
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to scan entities: %w", err)
	}

	log.Info("Pass 2 complete",
		zap.Int64("ways", s.wayCount.Load()),
		zap.Int64("relations", s.relCount.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}

func (s *Source) cacheWay(w *osm.Way) {
	ids := make([]osm.NodeID, len(w.Nodes))
	for i, wn := range w.Nodes {
		ids[i] = wn.ID
	}
	s.waysMu.Lock()
	s.ways[w.ID] = ids
	s.waysMu.Unlock()
}

// Node returns the stored coordinate of a node as (lon, lat)
func (s *Source) Node(id osm.NodeID) (orb.Point, bool) {
	return s.nodes.Get(id)
}

// Way returns the cached node list of a relation member way
func (s *Source) Way(id osm.WayID) ([]osm.NodeID, bool) {
	s.waysMu.RLock()
	defer s.waysMu.RUnlock()
	ids, ok := s.ways[id]
	return ids, ok
}

// Stats returns the scan statistics so far
func (s *Source) Stats() Stats {
	return Stats{
		Nodes:     s.nodeCount.Load(),
		Ways:      s.wayCount.Load(),
		Relations: s.relCount.Load(),
		BytesRead: s.bytes,
	}
}

func (s *Source) progress(ctx context.Context, msg string) func() {
	log := logger.Named(logger.StageSource)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Debug(msg,
					zap.Int64("nodes", s.nodeCount.Load()),
					zap.Int64("ways", s.wayCount.Load()),
					zap.Int64("relations", s.relCount.Load()))
			}
		}
	}()
	return cancel
}
