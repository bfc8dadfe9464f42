package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmfacilities/internal/config"
	"github.com/wegman-software/osmfacilities/internal/feature"
	"github.com/wegman-software/osmfacilities/internal/geometry"
	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/mapping"
	"github.com/wegman-software/osmfacilities/internal/metrics"
	"github.com/wegman-software/osmfacilities/internal/nodeindex"
	"github.com/wegman-software/osmfacilities/internal/parquet"
	"github.com/wegman-software/osmfacilities/internal/proj"
	"github.com/wegman-software/osmfacilities/internal/source"
	"github.com/wegman-software/osmfacilities/internal/spatial"
)

// ExtractResult is the outcome of a feature extraction run
type ExtractResult struct {
	Stats  ExtractStats
	Labels *mapping.LabelSpace
	// Features holds every written feature: containers, then surviving
	// landuse, then surviving poi
	Features []*feature.Feature
}

// Extractor classifies OSM entities, folds small features into containers
// and writes the feature store
type Extractor struct {
	cfg        *config.Config
	mapping    mapping.Mapping
	labels     *mapping.LabelSpace
	classifier *feature.Classifier
	proj       *proj.Transformer
	srid       int
	log        *zap.Logger
	collector  *metrics.Collector
}

// NewExtractor loads the mapping and prepares the reprojection.
// Configuration errors are returned before any input is read.
func NewExtractor(cfg *config.Config) (*Extractor, error) {
	m, err := mapping.Load(cfg.MappingFile)
	if err != nil {
		return nil, err
	}
	tr, err := proj.Parse(cfg.SourceCRS, cfg.TargetCRS)
	if err != nil {
		return nil, fmt.Errorf("invalid projection: %w", err)
	}
	ls := mapping.NewLabelSpace(m)
	if _, err := parquet.FeatureSchema(ls); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}

	return &Extractor{
		cfg:        cfg,
		mapping:    m,
		labels:     ls,
		classifier: feature.NewClassifier(m, ls, cfg.MaxArea),
		proj:       tr,
		srid:       tr.TargetSRID,
		log:        logger.Named(logger.StageExtract),
	}, nil
}

// Labels returns the label space of the loaded mapping
func (e *Extractor) Labels() *mapping.LabelSpace {
	return e.labels
}

// Run executes the extraction: two-pass scan, parallel classification,
// assignment passes and the feature store write
func (e *Extractor) Run(ctx context.Context) (*ExtractResult, error) {
	start := time.Now()
	e.log.Info("Starting feature extraction",
		zap.String("input", e.cfg.InputFile),
		zap.Strings("tag_keys", e.mapping.Keys()),
		zap.Int("labels", e.labels.Len()),
		zap.Strings("label_columns", e.labels.Names()),
		zap.String("crs", e.cfg.TargetCRS),
		zap.Int("workers", e.cfg.Workers))

	nodes, err := nodeindex.Open(e.cfg.FlatNodesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open node index: %w", err)
	}
	defer nodes.Close()

	src := source.New(e.cfg.InputFile, nodes, e.cfg.Workers)
	if err := src.IndexNodes(ctx); err != nil {
		return nil, err
	}

	buckets, cnt, err := e.classify(ctx, src)
	if err != nil {
		return nil, err
	}
	buckets.Sort()

	idx := spatial.NewIndex(buckets.Containers)
	e.log.Info("Container index built", zap.Int("containers", idx.Size()))

	e.setStage("assign", nil)
	assigner := spatial.NewAssigner(idx, e.cfg.MaxAssignArea, e.cfg.Workers)
	landuse, poi, passes, err := assigner.Run(ctx, buckets.Landuse, buckets.POI)
	if err != nil {
		return nil, fmt.Errorf("assignment failed: %w", err)
	}

	stats := cnt.snapshot()
	stats.Source = src.Stats()
	stats.Passes = passes
	stats.Surviving = map[string]int{
		"container": len(buckets.Containers),
		"landuse":   len(landuse),
		"poi":       len(poi),
	}

	survivors := make([]*feature.Feature, 0, len(buckets.Containers)+len(landuse)+len(poi))
	survivors = append(survivors, buckets.Containers...)
	survivors = append(survivors, landuse...)
	survivors = append(survivors, poi...)

	e.setStage("write", nil)
	written, err := e.write(survivors)
	if err != nil {
		return nil, err
	}
	stats.Written = int64(len(written))
	stats.Empty = int64(len(survivors) - len(written))
	stats.Duration = time.Since(start)
	stats.Log(e.log)

	return &ExtractResult{Stats: stats, Labels: e.labels, Features: written}, nil
}

// classify streams pass 2 into a worker pool building and classifying
// every kept entity
func (e *Extractor) classify(ctx context.Context, src *source.Source) (*feature.Buckets, *counters, error) {
	builder := geometry.NewBuilder(src, e.proj, e.cfg.POIBuffer)
	if e.cfg.BBox != nil && e.cfg.BBox.IsSet {
		builder.WithBBox(e.cfg.BBox)
	}

	buckets := &feature.Buckets{}
	cnt := newCounters()
	objects := make(chan osm.Object, 4*e.cfg.BatchSize)

	e.setStage("classify", func() []zap.Field {
		return []zap.Field{
			zap.Int64("scanned", cnt.scanned.Load()),
			zap.Int64("containers", cnt.kept[feature.Container].Load()),
			zap.Int64("landuse", cnt.kept[feature.Landuse].Load()),
			zap.Int64("poi", cnt.kept[feature.POI].Load()),
		}
	})
	stop := progressTicker(ctx, e.log, 10*time.Second, "Classification progress", func() []zap.Field {
		return []zap.Field{
			zap.Int64("scanned", cnt.scanned.Load()),
			zap.Int64("kept", cnt.kept[0].Load()+cnt.kept[1].Load()+cnt.kept[2].Load()),
		}
	})
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for obj := range objects {
				e.process(obj, builder, buckets, cnt)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(objects)
		return src.Stream(gctx, func(obj osm.Object) error {
			select {
			case objects <- obj:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("classification failed: %w", err)
	}
	return buckets, cnt, nil
}

// process handles one entity. Failures are counted, never returned.
func (e *Extractor) process(obj osm.Object, builder *geometry.Builder, buckets *feature.Buckets, cnt *counters) {
	cnt.scanned.Add(1)

	typ, id, tags := describe(obj)
	if !e.classifier.Keep(tags) {
		cnt.skipped.Add(1)
		return
	}
	cat := feature.Categorize(typ, tags)

	geom, err := builder.Build(obj)
	if err != nil {
		cnt.ignore(cat, err)
		e.log.Debug("Entity ignored", zap.String("id", feature.FormatID(typ, id)), zap.Error(err))
		return
	}

	f, err := e.classifier.Classify(typ, id, tags, geom)
	if err != nil {
		cnt.ignore(cat, err)
		return
	}
	cnt.kept[cat].Add(1)
	buckets.Add(f)
}

func describe(obj osm.Object) (osm.Type, int64, osm.Tags) {
	switch o := obj.(type) {
	case *osm.Node:
		return osm.TypeNode, int64(o.ID), o.Tags
	case *osm.Way:
		return osm.TypeWay, int64(o.ID), o.Tags
	case *osm.Relation:
		return osm.TypeRelation, int64(o.ID), o.Tags
	}
	return "", 0, nil
}

// write stores every labelled feature and returns those written
func (e *Extractor) write(features []*feature.Feature) ([]*feature.Feature, error) {
	path := e.cfg.FeaturesPath()
	w, err := parquet.NewFeatureWriter(path, e.labels, e.srid, e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature store: %w", err)
	}

	written := make([]*feature.Feature, 0, len(features))
	for _, f := range features {
		ok, err := w.Write(f)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to write feature %s: %w", f.ID, err)
		}
		if ok {
			written = append(written, f)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close feature store: %w", err)
	}
	e.log.Info("Feature store written", zap.String("path", path), zap.Int64("records", w.Written()))
	return written, nil
}

// Records converts written features into feature store rows
func (r *ExtractResult) Records() []parquet.FeatureRecord {
	out := make([]parquet.FeatureRecord, len(r.Features))
	for i, f := range r.Features {
		out[i] = parquet.FeatureRecord{
			ID:       f.ID,
			OSMType:  string(f.Type),
			OSMID:    f.OSMID,
			Category: f.Category,
			Geometry: f.Geometry,
			Labels:   f.Labels(r.Labels),
		}
	}
	return out
}

// WithMetrics reports the current stage and its counters to c
func (e *Extractor) WithMetrics(c *metrics.Collector) *Extractor {
	e.collector = c
	return e
}

func (e *Extractor) setStage(stage string, fields metrics.Reporter) {
	if e.collector != nil {
		e.collector.SetStage(stage, fields)
	}
}
