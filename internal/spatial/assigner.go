package spatial

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmfacilities/internal/feature"
	"github.com/wegman-software/osmfacilities/internal/geometry"
	"github.com/wegman-software/osmfacilities/internal/logger"
)

// PassStats summarizes one assignment pass
type PassStats struct {
	Name      string
	Input     int
	Used      int
	Remaining int
	Merges    int64
	Fallbacks int64 // precise tests replaced by boundary tests
	Duration  time.Duration
}

// Assigner merges the labels of small features into overlapping containers
type Assigner struct {
	index         *Index
	maxAssignArea float64
	workers       int
	log           *zap.Logger
}

// NewAssigner creates an assigner. Containers with area >= maxAssignArea
// never receive labels.
func NewAssigner(index *Index, maxAssignArea float64, workers int) *Assigner {
	if workers < 1 {
		workers = 1
	}
	return &Assigner{
		index:         index,
		maxAssignArea: maxAssignArea,
		workers:       workers,
		log:           logger.Named(logger.StageAssign),
	}
}

// Run performs the landuse pass followed by the poi pass and returns the
// features of each list that matched no container
func (a *Assigner) Run(ctx context.Context, landuse, poi []*feature.Feature) ([]*feature.Feature, []*feature.Feature, []PassStats, error) {
	landuseLeft, luStats, err := a.Pass(ctx, "landuse", landuse)
	if err != nil {
		return nil, nil, nil, err
	}
	poiLeft, poiStats, err := a.Pass(ctx, "poi", poi)
	if err != nil {
		return nil, nil, nil, err
	}
	return landuseLeft, poiLeft, []PassStats{luStats, poiStats}, nil
}

// Pass ORs every feature of small into each qualifying container it
// intersects. The result holds the unmatched features in their original order.
func (a *Assigner) Pass(ctx context.Context, name string, small []*feature.Feature) ([]*feature.Feature, PassStats, error) {
	start := time.Now()
	stats := PassStats{Name: name, Input: len(small)}
	used := make([]bool, len(small))

	var merges, fallbacks atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	chunk := chunkSize(len(small), a.workers)
	for lo := 0; lo < len(small); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(small))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, fb := a.assign(small[i])
				if m > 0 {
					used[i] = true
					merges.Add(int64(m))
				}
				fallbacks.Add(int64(fb))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	remaining := make([]*feature.Feature, 0, len(small))
	for i, f := range small {
		if used[i] {
			stats.Used++
		} else {
			remaining = append(remaining, f)
		}
	}

	stats.Remaining = len(remaining)
	stats.Merges = merges.Load()
	stats.Fallbacks = fallbacks.Load()
	stats.Duration = time.Since(start)

	a.log.Info("Assignment pass complete",
		zap.String("pass", name),
		zap.Int("input", stats.Input),
		zap.Int("merged", stats.Used),
		zap.Int("remaining", stats.Remaining),
		zap.Int64("merges", stats.Merges),
		zap.Int64("boundary_fallbacks", stats.Fallbacks),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)),
	)

	return remaining, stats, nil
}

// assign merges f into its containers, returning merges and boundary fallbacks
func (a *Assigner) assign(f *feature.Feature) (merges, fallbacks int) {
	bits := f.Bits()
	for _, c := range a.index.Query(f.Bound()) {
		if c.Area() >= a.maxAssignArea {
			continue
		}

		hit, err := geometry.Intersects(f.Geometry, c.Geometry)
		if err != nil {
			hit = geometry.BoundaryIntersects(f.Geometry, c.Geometry)
			fallbacks++
		}

		if hit {
			c.Assign(bits)
			merges++
		}
	}
	return merges, fallbacks
}

func chunkSize(n, workers int) int {
	size := n / (workers * 4)
	if size < 64 {
		size = 64
	}
	return size
}
