package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/config"
	"github.com/wegman-software/osmfacilities/internal/facility"
	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/parquet"
	"github.com/wegman-software/osmfacilities/internal/wkb"
)

// Table names inside the configured schema
const (
	FeaturesTable   = "facility_features"
	FacilitiesTable = "facilities"
)

// Loader loads features and facilities into PostGIS
type Loader struct {
	cfg          *config.Config
	pool         *pgxpool.Pool
	srid         int
	dropExisting bool
}

// NewLoader connects to PostgreSQL. srid is the SRID of all geometries.
func NewLoader(ctx context.Context, cfg *config.Config, srid int) (*Loader, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(max(cfg.Workers, 2))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Loader{
		cfg:          cfg,
		pool:         pool,
		srid:         srid,
		dropExisting: cfg.DropExisting,
	}, nil
}

// Close closes connections
func (l *Loader) Close() error {
	l.pool.Close()
	return nil
}

// Prepare ensures the PostGIS extension and the target schema exist
func (l *Loader) Prepare(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if l.cfg.DBSchema != "public" {
		if _, err := l.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{l.cfg.DBSchema}.Sanitize())); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// LoadFeatures copies feature records into the features table
func (l *Loader) LoadFeatures(ctx context.Context, records []parquet.FeatureRecord) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	table := pgx.Identifier{l.cfg.DBSchema, FeaturesTable}
	ddl := fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			osm_type TEXT NOT NULL,
			osm_id BIGINT NOT NULL,
			category TEXT NOT NULL,
			labels TEXT[] NOT NULL,
			geom GEOMETRY(MultiPolygon, %d)
		)`, table.Sanitize(), l.srid)

	enc := wkb.NewEncoder(1024, l.srid)
	rows := make(chan []any, 10000)
	go func() {
		defer close(rows)
		for _, r := range records {
			geom := append([]byte(nil), enc.EncodeMultiPolygon(r.Geometry)...)
			labels := r.Labels
			if labels == nil {
				labels = []string{}
			}
			select {
			case rows <- []any{r.ID, r.OSMType, r.OSMID, r.Category.String(), labels, geom}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return l.copyTable(ctx, table, ddl,
		[]string{"id", "osm_type", "osm_id", "category", "labels", "geom_wkb"},
		"id TEXT, osm_type TEXT, osm_id BIGINT, category TEXT, labels TEXT[], geom_wkb BYTEA",
		"id, osm_type, osm_id, category, labels, ST_Multi(ST_GeomFromEWKB(geom_wkb))",
		"id, osm_type, osm_id, category, labels, geom",
		&rowSource{rows: rows})
}

// LoadFacilities copies facilities into the facilities table
func (l *Loader) LoadFacilities(ctx context.Context, facilities []facility.Facility) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	table := pgx.Identifier{l.cfg.DBSchema, FacilitiesTable}
	ddl := fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			link_id TEXT NOT NULL,
			activities TEXT[] NOT NULL,
			source_ids TEXT[] NOT NULL,
			geom GEOMETRY(Point, %d)
		)`, table.Sanitize(), l.srid)

	enc := wkb.NewEncoder(32, l.srid)
	rows := make(chan []any, 10000)
	go func() {
		defer close(rows)
		for _, f := range facilities {
			geom := append([]byte(nil), enc.EncodePoint(f.Coord)...)
			select {
			case rows <- []any{f.ID, f.LinkID, f.Activities, f.SourceIDs, geom}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return l.copyTable(ctx, table, ddl,
		[]string{"id", "link_id", "activities", "source_ids", "geom_wkb"},
		"id TEXT, link_id TEXT, activities TEXT[], source_ids TEXT[], geom_wkb BYTEA",
		"id, link_id, activities, source_ids, ST_GeomFromEWKB(geom_wkb)",
		"id, link_id, activities, source_ids, geom",
		&rowSource{rows: rows})
}

// copyTable creates the target table, COPYs rows into a temp table and
// inserts them with geometry conversion, then indexes the target
func (l *Loader) copyTable(ctx context.Context, table pgx.Identifier, ddl string,
	copyColumns []string, tempColumns, selectExpr, insertColumns string, src pgx.CopyFromSource) (int64, error) {
	log := logger.Named(logger.StageLoader)
	start := time.Now()
	name := table.Sanitize()

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if l.dropExisting {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name)); err != nil {
			return 0, fmt.Errorf("failed to drop table: %w", err)
		}
	}
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}
	if !l.dropExisting {
		if _, err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE %s", name)); err != nil {
			return 0, fmt.Errorf("failed to truncate table: %w", err)
		}
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tempTable := "osmfac_load_tmp"
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"DROP TABLE IF EXISTS %s; CREATE TEMP TABLE %s (%s) ON COMMIT DROP",
		tempTable, tempTable, tempColumns)); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	count, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, copyColumns, src)
	if err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		name, insertColumns, selectExpr, tempTable)); err != nil {
		return 0, fmt.Errorf("failed to insert from temp table: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", name)); err != nil {
		log.Warn("Failed to set table logged", zap.String("table", name), zap.Error(err))
	}
	if err := l.createIndexes(ctx, conn.Conn(), table); err != nil {
		return 0, err
	}

	log.Info("Table loaded",
		zap.String("table", name),
		zap.Int64("rows", count),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return count, nil
}

func (l *Loader) createIndexes(ctx context.Context, conn *pgx.Conn, table pgx.Identifier) error {
	short := table[len(table)-1]
	idx := pgx.Identifier{short + "_geom_idx"}.Sanitize()
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
		idx, table.Sanitize())); err != nil {
		return fmt.Errorf("failed to create spatial index: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("ANALYZE %s", table.Sanitize())); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}
	return nil
}

// rowSource implements pgx.CopyFromSource for streaming rows
type rowSource struct {
	rows    <-chan []any
	current []any
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]any, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
