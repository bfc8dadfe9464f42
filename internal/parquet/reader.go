package parquet

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"

	"github.com/wegman-software/osmfacilities/internal/feature"
	"github.com/wegman-software/osmfacilities/internal/wkb"
)

// FeatureRecord is one row of the feature store
type FeatureRecord struct {
	ID       string
	OSMType  string
	OSMID    int64
	Category feature.Category
	Geometry orb.MultiPolygon
	Labels   []string
}

// ReadFeatures loads every record of a feature file. Labels are decoded
// from the boolean columns by name; the returned names are the label
// columns in file order. An unknown category fails the read.
func ReadFeatures(ctx context.Context, path string) ([]FeatureRecord, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer f.Close()

	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(memory.DefaultAllocator),
		pqarrow.ArrowReadProperties{BatchSize: 4096}, memory.DefaultAllocator)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read feature table: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	cols := make(map[string]int, len(fixedFields))
	for _, ff := range fixedFields {
		idx := schema.FieldIndices(ff.Name)
		if len(idx) == 0 {
			return nil, nil, fmt.Errorf("feature file %s lacks column %q", path, ff.Name)
		}
		cols[ff.Name] = idx[0]
	}

	var labelCols []int
	var labelNames []string
	for i, field := range schema.Fields() {
		if !isFixedColumn(field.Name) && field.Type.ID() == arrow.BOOL {
			labelCols = append(labelCols, i)
			labelNames = append(labelNames, field.Name)
		}
	}

	records := make([]FeatureRecord, 0, tbl.NumRows())
	tr := array.NewTableReader(tbl, 4096)
	defer tr.Release()

	for tr.Next() {
		rec := tr.Record()
		ids := rec.Column(cols[ColID]).(*array.String)
		types := rec.Column(cols[ColOSMType]).(*array.String)
		osmIDs := rec.Column(cols[ColOSMID]).(*array.Int64)
		cats := rec.Column(cols[ColCategory]).(*array.String)
		geoms := rec.Column(cols[ColGeometry]).(*array.Binary)

		for row := 0; row < int(rec.NumRows()); row++ {
			mp, _, err := wkb.DecodeMultiPolygon(geoms.Value(row))
			if err != nil {
				return nil, nil, fmt.Errorf("record %s: %w", ids.Value(row), err)
			}
			cat, err := feature.ParseCategory(cats.Value(row))
			if err != nil {
				return nil, nil, fmt.Errorf("record %s: %w", ids.Value(row), err)
			}
			r := FeatureRecord{
				ID:       ids.Value(row),
				OSMType:  types.Value(row),
				OSMID:    osmIDs.Value(row),
				Category: cat,
				Geometry: mp,
			}
			for j, c := range labelCols {
				if rec.Column(c).(*array.Boolean).Value(row) {
					r.Labels = append(r.Labels, labelNames[j])
				}
			}
			records = append(records, r)
		}
	}
	return records, labelNames, nil
}
