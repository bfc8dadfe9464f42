package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/config"
	"github.com/wegman-software/osmfacilities/internal/facility"
	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/metrics"
	"github.com/wegman-software/osmfacilities/internal/network"
	"github.com/wegman-software/osmfacilities/internal/parquet"
)

// FacilitiesName is the name attribute of the written facilities document
const FacilitiesName = "osm facilities"

// FacilityResult is the outcome of a facility generation run
type FacilityResult struct {
	Stats      FacilityStats
	Facilities []facility.Facility
}

// Generator maps stored features onto the network and writes facilities
type Generator struct {
	cfg       *config.Config
	log       *zap.Logger
	collector *metrics.Collector
}

// NewGenerator creates a facility generator
func NewGenerator(cfg *config.Config) *Generator {
	return &Generator{cfg: cfg, log: logger.Named(logger.StageFacilities)}
}

// WithMetrics reports the current stage and its counters to c
func (g *Generator) WithMetrics(c *metrics.Collector) *Generator {
	g.collector = c
	return g
}

// Run reads the feature store and generates facilities from it
func (g *Generator) Run(ctx context.Context) (*FacilityResult, error) {
	path := g.cfg.FeaturesPath()
	records, labels, err := parquet.ReadFeatures(ctx, path)
	if err != nil {
		return nil, err
	}
	g.log.Info("Feature store loaded",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Strings("label_columns", labels))
	return g.Generate(ctx, records)
}

// Generate aggregates records per nearest link and writes the facilities
// file. Empty aggregates are reported through the returned error after
// all valid facilities have been written.
func (g *Generator) Generate(ctx context.Context, records []parquet.FeatureRecord) (*FacilityResult, error) {
	start := time.Now()

	net, err := network.Load(g.cfg.NetworkFile)
	if err != nil {
		return nil, err
	}
	eligible := net.FilterModes(g.cfg.NetworkMode)
	idx := network.NewIndex(eligible)
	g.log.Info("Network loaded",
		zap.String("path", g.cfg.NetworkFile),
		zap.Int("links", net.Len()),
		zap.String("mode", g.cfg.NetworkMode),
		zap.Int("eligible_links", eligible.Len()),
		zap.Strings("ignored_types", g.cfg.IgnoredLinkTypes))

	sampler := facility.NewSampler(g.cfg.SamplePoints, g.cfg.Precision, g.cfg.Seed)
	agg := facility.NewAggregator(sampler, idx, g.cfg.IgnoredLinkTypes, g.cfg.Precision, g.cfg.Workers)

	if g.collector != nil {
		g.collector.SetStage("facilities", func() []zap.Field {
			st := agg.Stats()
			return []zap.Field{zap.Int64("polygons", st.Polygons), zap.Int("links", st.Links)}
		})
	}

	polygons := make([]facility.Polygon, len(records))
	for i, r := range records {
		polygons[i] = facility.Polygon{ID: r.ID, Geometry: r.Geometry, Labels: r.Labels}
	}
	if err := agg.Run(ctx, polygons); err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	facilities, defects := agg.Finalize()
	if err := facility.WriteFile(g.cfg.FacilitiesPath(), FacilitiesName, facilities); err != nil {
		return nil, err
	}
	g.log.Info("Facilities written", zap.String("path", g.cfg.FacilitiesPath()), zap.Int("facilities", len(facilities)))

	stats := FacilityStats{
		Records:    len(records),
		Links:      eligible.Len(),
		Aggregate:  agg.Stats(),
		Facilities: len(facilities),
		Defects:    countJoined(defects),
		Duration:   time.Since(start),
	}
	if defects != nil {
		g.log.Error("Empty facility aggregates", zap.Int("count", stats.Defects), zap.Error(defects))
	}
	stats.Log(g.log)

	return &FacilityResult{Stats: stats, Facilities: facilities}, defects
}

// countJoined returns the number of errors combined by errors.Join
func countJoined(err error) int {
	if err == nil {
		return 0
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return len(j.Unwrap())
	}
	return 1
}

// IsDefect reports whether err only carries aggregation defects, in which
// case the facilities were still written
func IsDefect(err error) bool {
	return errors.Is(err, facility.ErrEmptyAggregate)
}
