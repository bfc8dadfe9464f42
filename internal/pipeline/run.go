package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/config"
	"github.com/wegman-software/osmfacilities/internal/loader"
	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/metrics"
	"github.com/wegman-software/osmfacilities/internal/parquet"
	"github.com/wegman-software/osmfacilities/internal/proj"
)

// StartMetrics starts the system metrics collector when an interval is
// configured. The returned function stops it.
func StartMetrics(ctx context.Context, cfg *config.Config) (*metrics.Collector, func()) {
	if cfg.MetricsInterval <= 0 {
		return nil, func() {}
	}
	log := logger.Named(logger.StageMetrics)
	ctx, cancel := context.WithCancel(ctx)
	c := metrics.NewCollector(cfg.MetricsInterval, log)
	go c.Start(ctx)
	log.Info("System metrics collection started", zap.Duration("interval", cfg.MetricsInterval))
	return c, cancel
}

// RunExtract executes feature extraction and the optional PostGIS load
func RunExtract(ctx context.Context, cfg *config.Config) (*ExtractResult, error) {
	collector, stop := StartMetrics(ctx, cfg)
	defer stop()

	ex, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	res, err := ex.WithMetrics(collector).Run(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.DBLoad {
		if err := loadFeatures(ctx, cfg, res.Records()); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// RunFacilities generates facilities from an existing feature store
func RunFacilities(ctx context.Context, cfg *config.Config) (*FacilityResult, error) {
	collector, stop := StartMetrics(ctx, cfg)
	defer stop()

	res, err := NewGenerator(cfg).WithMetrics(collector).Run(ctx)
	if err != nil && !IsDefect(err) {
		return nil, err
	}
	return res, loadFacilitiesIfEnabled(ctx, cfg, res, err)
}

// Run executes extraction and facility generation back to back
func Run(ctx context.Context, cfg *config.Config) (*ExtractResult, *FacilityResult, error) {
	collector, stop := StartMetrics(ctx, cfg)
	defer stop()

	ex, err := NewExtractor(cfg)
	if err != nil {
		return nil, nil, err
	}
	extracted, err := ex.WithMetrics(collector).Run(ctx)
	if err != nil {
		return nil, nil, err
	}
	records := extracted.Records()
	if cfg.DBLoad {
		if err := loadFeatures(ctx, cfg, records); err != nil {
			return nil, nil, err
		}
	}

	res, err := NewGenerator(cfg).WithMetrics(collector).Generate(ctx, records)
	if err != nil && !IsDefect(err) {
		return extracted, nil, err
	}
	return extracted, res, loadFacilitiesIfEnabled(ctx, cfg, res, err)
}

// loadFacilitiesIfEnabled loads facilities into PostGIS and keeps any
// aggregation defect reported by the generator
func loadFacilitiesIfEnabled(ctx context.Context, cfg *config.Config, res *FacilityResult, defects error) error {
	if !cfg.DBLoad {
		return defects
	}
	l, err := openLoader(ctx, cfg)
	if err != nil {
		return errors.Join(defects, err)
	}
	defer l.Close()
	if _, err := l.LoadFacilities(ctx, res.Facilities); err != nil {
		return errors.Join(defects, fmt.Errorf("failed to load facilities: %w", err))
	}
	return defects
}

func loadFeatures(ctx context.Context, cfg *config.Config, records []parquet.FeatureRecord) error {
	l, err := openLoader(ctx, cfg)
	if err != nil {
		return err
	}
	defer l.Close()
	if _, err := l.LoadFeatures(ctx, records); err != nil {
		return fmt.Errorf("failed to load features: %w", err)
	}
	return nil
}

func openLoader(ctx context.Context, cfg *config.Config) (*loader.Loader, error) {
	srid, err := proj.ParseSRID(cfg.TargetCRS)
	if err != nil {
		return nil, err
	}
	l, err := loader.NewLoader(ctx, cfg, srid)
	if err != nil {
		return nil, err
	}
	if err := l.Prepare(ctx); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}
