package parquet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/osmfacilities/internal/feature"
	"github.com/wegman-software/osmfacilities/internal/mapping"
	"github.com/wegman-software/osmfacilities/internal/wkb"
)

// Fixed columns preceding the label columns
const (
	ColID       = "id"
	ColOSMType  = "osm_type"
	ColOSMID    = "osm_id"
	ColCategory = "category"
	ColGeometry = "geom_wkb"
)

var fixedFields = []arrow.Field{
	{Name: ColID, Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: ColOSMType, Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: ColOSMID, Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: ColCategory, Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: ColGeometry, Type: arrow.BinaryTypes.Binary, Nullable: false},
}

// FeatureSchema returns the table schema for a label space
func FeatureSchema(ls *mapping.LabelSpace) (*arrow.Schema, error) {
	fields := append([]arrow.Field(nil), fixedFields...)
	for _, name := range ls.Names() {
		if isFixedColumn(name) {
			return nil, fmt.Errorf("label %q collides with a fixed column", name)
		}
		fields = append(fields, arrow.Field{Name: name, Type: arrow.FixedWidthTypes.Boolean, Nullable: false})
	}
	return arrow.NewSchema(fields, nil), nil
}

func isFixedColumn(name string) bool {
	for _, f := range fixedFields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FeatureWriter writes classified features with WKB geometry to Parquet
type FeatureWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	encoder   *wkb.Encoder
	labels    *mapping.LabelSpace
	batchSize int
	count     int
	written   int64
}

// NewFeatureWriter creates a new feature Parquet writer
func NewFeatureWriter(path string, ls *mapping.LabelSpace, srid, batchSize int) (*FeatureWriter, error) {
	schema, err := FeatureSchema(ls)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 10000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create feature file: %w", err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &FeatureWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		encoder:   wkb.NewEncoder(1024, srid),
		labels:    ls,
		batchSize: batchSize,
	}, nil
}

// Write appends a feature. Features without labels are skipped and
// reported with false.
func (w *FeatureWriter) Write(f *feature.Feature) (bool, error) {
	bits := f.Bits()
	if bits.None() {
		return false, nil
	}

	w.builder.Field(0).(*array.StringBuilder).Append(f.ID)
	w.builder.Field(1).(*array.StringBuilder).Append(string(f.Type))
	w.builder.Field(2).(*array.Int64Builder).Append(f.OSMID)
	w.builder.Field(3).(*array.StringBuilder).Append(f.Category.String())
	w.builder.Field(4).(*array.BinaryBuilder).Append(w.encoder.EncodeMultiPolygon(f.Geometry))
	for i := 0; i < w.labels.Len(); i++ {
		w.builder.Field(len(fixedFields) + i).(*array.BooleanBuilder).Append(bits.Test(uint(i)))
	}

	w.written++
	w.count++
	if w.count >= w.batchSize {
		return true, w.flush()
	}
	return true, nil
}

// Written returns the number of records written so far
func (w *FeatureWriter) Written() int64 {
	return w.written
}

func (w *FeatureWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	if err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return nil
}

// Close flushes the last batch and closes the file
func (w *FeatureWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	// The writer may already have closed the sink
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
