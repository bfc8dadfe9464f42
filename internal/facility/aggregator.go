package facility

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/network"
)

// ErrEmptyAggregate marks an aggregate finalized without any coordinate
var ErrEmptyAggregate = errors.New("aggregate without coordinates")

// LinkQuery finds the nearest eligible link for a coordinate
type LinkQuery interface {
	Nearest(p orb.Point) (link *network.Link, dist float64, ok bool)
}

// Polygon is one tagged geometry to be mapped onto the network
type Polygon struct {
	ID       string
	Geometry orb.MultiPolygon
	Labels   []string
}

// Facility is the finalized aggregate of one link
type Facility struct {
	ID         string
	LinkID     string
	Coord      orb.Point
	Activities []string
	SourceIDs  []string
}

// Stats summarizes an aggregation run
type Stats struct {
	Polygons  int64
	Mapped    int64
	Dropped   int64 // every sample hit an ignored link type
	Unmatched int64 // no link found at all
	Fallbacks int64 // centroid used as the only sample
	Links     int
	Duration  time.Duration
}

// Aggregate collects the polygons mapped to one link
type Aggregate struct {
	LinkID string

	mu         sync.Mutex
	ids        map[string]struct{}
	activities map[string]struct{}
	coords     []orb.Point
}

func newAggregate(linkID string) *Aggregate {
	return &Aggregate{
		LinkID:     linkID,
		ids:        make(map[string]struct{}),
		activities: make(map[string]struct{}),
	}
}

// Add merges one polygon. Repeated ids are stored once.
func (a *Aggregate) Add(id string, activities []string, coord orb.Point) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids[id] = struct{}{}
	for _, act := range activities {
		a.activities[act] = struct{}{}
	}
	a.coords = append(a.coords, coord)
}

// Aggregator maps polygons onto their main link and aggregates per link
type Aggregator struct {
	sampler   PointSampler
	query     LinkQuery
	ignored   map[string]struct{}
	precision int
	workers   int
	log       *zap.Logger

	aggregates sync.Map // link id -> *Aggregate

	polygons, mapped, dropped, unmatched, fallbacks atomic.Int64
}

// NewAggregator creates an aggregator. Samples snapping to a link whose
// type is in ignoredTypes are discarded.
func NewAggregator(sampler PointSampler, query LinkQuery, ignoredTypes []string, precision, workers int) *Aggregator {
	ignored := make(map[string]struct{}, len(ignoredTypes))
	for _, t := range ignoredTypes {
		ignored[t] = struct{}{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Aggregator{
		sampler:   sampler,
		query:     query,
		ignored:   ignored,
		precision: precision,
		workers:   workers,
		log:       logger.Named(logger.StageFacilities),
	}
}

// Run processes all polygons in parallel
func (a *Aggregator) Run(ctx context.Context, polygons []Polygon) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i := range polygons {
		p := &polygons[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a.Process(*p)
			return nil
		})
	}
	return g.Wait()
}

// Process samples one polygon, selects its main link and merges it into
// that link's aggregate. Returns false when the polygon was dropped.
func (a *Aggregator) Process(p Polygon) (string, bool) {
	a.polygons.Add(1)

	samples, fallback := a.sampler.Sample(p.ID, p.Geometry)
	if fallback {
		a.fallbacks.Add(1)
	}

	links := make([]string, len(samples))
	counts := make(map[string]int)
	found := false
	for i, s := range samples {
		link, _, ok := a.query.Nearest(s)
		if !ok {
			continue
		}
		found = true
		if a.isIgnored(link.Type) {
			continue
		}
		links[i] = link.ID
		counts[link.ID]++
	}

	if len(counts) == 0 {
		if found {
			a.dropped.Add(1)
		} else {
			a.unmatched.Add(1)
		}
		a.log.Debug("Polygon dropped", zap.String("id", p.ID), zap.Bool("link_found", found))
		return "", false
	}

	main := MainLink(counts)

	// First sample in draw order that snapped to the main link
	var coord orb.Point
	for i, l := range links {
		if l == main {
			coord = samples[i]
			break
		}
	}

	a.Add(main, p.ID, Activities(p.Labels), coord)
	a.mapped.Add(1)
	return main, true
}

// Add merges a polygon result into the aggregate of linkID
func (a *Aggregator) Add(linkID, id string, activities []string, coord orb.Point) {
	v, _ := a.aggregates.LoadOrStore(linkID, newAggregate(linkID))
	v.(*Aggregate).Add(id, activities, coord)
}

// Finalize builds one facility per link, ordered by link id. Aggregates
// without coordinates are reported as ErrEmptyAggregate and skipped; the
// remaining facilities are still returned.
func (a *Aggregator) Finalize() ([]Facility, error) {
	var aggs []*Aggregate
	a.aggregates.Range(func(_, v any) bool {
		aggs = append(aggs, v.(*Aggregate))
		return true
	})
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].LinkID < aggs[j].LinkID })

	var errs []error
	facilities := make([]Facility, 0, len(aggs))
	for _, agg := range aggs {
		agg.mu.Lock()
		n := len(agg.coords)
		var sx, sy float64
		for _, c := range agg.coords {
			sx += c[0]
			sy += c[1]
		}
		ids := sortedKeys(agg.ids)
		acts := sortedKeys(agg.activities)
		agg.mu.Unlock()

		if n == 0 {
			errs = append(errs, fmt.Errorf("link %s: %w", agg.LinkID, ErrEmptyAggregate))
			continue
		}

		facilities = append(facilities, Facility{
			ID:         strings.Join(ids, "_"),
			LinkID:     agg.LinkID,
			Coord:      orb.Point{Round(sx/float64(n), a.precision), Round(sy/float64(n), a.precision)},
			Activities: acts,
			SourceIDs:  ids,
		})
	}

	return facilities, errors.Join(errs...)
}

// Stats returns the counters of the run so far
func (a *Aggregator) Stats() Stats {
	links := 0
	a.aggregates.Range(func(_, _ any) bool {
		links++
		return true
	})
	return Stats{
		Polygons:  a.polygons.Load(),
		Mapped:    a.mapped.Load(),
		Dropped:   a.dropped.Load(),
		Unmatched: a.unmatched.Load(),
		Fallbacks: a.fallbacks.Load(),
		Links:     links,
	}
}

func (a *Aggregator) isIgnored(linkType string) bool {
	if _, ok := a.ignored[linkType]; ok {
		return true
	}
	if t, found := strings.CutPrefix(linkType, "highway."); found {
		_, ok := a.ignored[t]
		return ok
	}
	return false
}

// MainLink picks the link with the most samples. Counts are ordered by
// (count, link id) ascending and the last entry wins, so ties go to the
// greatest link id.
func MainLink(counts map[string]int) string {
	type entry struct {
		id    string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for id, c := range counts {
		entries = append(entries, entry{id, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count < entries[j].count
		}
		return entries[i].id < entries[j].id
	})
	return entries[len(entries)-1].id
}
