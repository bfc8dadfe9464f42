package pipeline

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmfacilities/internal/facility"
	"github.com/wegman-software/osmfacilities/internal/feature"
	"github.com/wegman-software/osmfacilities/internal/geometry"
	"github.com/wegman-software/osmfacilities/internal/source"
	"github.com/wegman-software/osmfacilities/internal/spatial"
)

// Reasons an entity is ignored
const (
	ReasonMemberNotFound = "member_not_found"
	ReasonShape          = "unrecognized_shape"
	ReasonTransform      = "transform_failed"
	ReasonOutsideBBox    = "outside_bbox"
	ReasonTooLarge       = "too_large"
	ReasonOther          = "other"
)

var reasons = []string{ReasonMemberNotFound, ReasonShape, ReasonTransform, ReasonOutsideBBox, ReasonTooLarge, ReasonOther}

// reasonOf maps a per-entity error to its summary bucket
func reasonOf(err error) string {
	switch {
	case errors.Is(err, geometry.ErrMemberNotFound):
		return ReasonMemberNotFound
	case errors.Is(err, geometry.ErrUnrecognizedShape):
		return ReasonShape
	case errors.Is(err, geometry.ErrTransform):
		return ReasonTransform
	case errors.Is(err, geometry.ErrOutsideBBox):
		return ReasonOutsideBBox
	case errors.Is(err, feature.ErrTooLarge):
		return ReasonTooLarge
	default:
		return ReasonOther
	}
}

// counters is the per-run accumulator shared by extraction workers
type counters struct {
	scanned   atomic.Int64
	skipped   atomic.Int64 // no building tag and no mapping match
	kept      [3]atomic.Int64
	ignored   map[string]*atomic.Int64
	ignoredBy [3]atomic.Int64
}

func newCounters() *counters {
	c := &counters{ignored: make(map[string]*atomic.Int64, len(reasons))}
	for _, r := range reasons {
		c.ignored[r] = new(atomic.Int64)
	}
	return c
}

func (c *counters) ignore(cat feature.Category, err error) {
	c.ignored[reasonOf(err)].Add(1)
	c.ignoredBy[cat].Add(1)
}

// CategoryStats counts kept and ignored entities of one category
type CategoryStats struct {
	Kept    int64
	Ignored int64
}

// ExtractStats summarizes a feature extraction run
type ExtractStats struct {
	Source     source.Stats
	Scanned    int64
	Skipped    int64
	Categories map[string]CategoryStats
	Ignored    map[string]int64
	Passes     []spatial.PassStats
	Surviving  map[string]int // features per bucket after assignment
	Written    int64
	Empty      int64 // features without labels, not written
	Duration   time.Duration
}

func (c *counters) snapshot() ExtractStats {
	st := ExtractStats{
		Scanned:    c.scanned.Load(),
		Skipped:    c.skipped.Load(),
		Categories: make(map[string]CategoryStats, 3),
		Ignored:    make(map[string]int64, len(reasons)),
	}
	for _, cat := range []feature.Category{feature.POI, feature.Landuse, feature.Container} {
		st.Categories[cat.String()] = CategoryStats{Kept: c.kept[cat].Load(), Ignored: c.ignoredBy[cat].Load()}
	}
	for r, n := range c.ignored {
		st.Ignored[r] = n.Load()
	}
	return st
}

// Log writes the end-of-run summary
func (s *ExtractStats) Log(log *zap.Logger) {
	fields := []zap.Field{
		zap.Int64("nodes", s.Source.Nodes),
		zap.Int64("ways", s.Source.Ways),
		zap.Int64("relations", s.Source.Relations),
		zap.String("input_size", FormatBytes(s.Source.BytesRead)),
		zap.Int64("scanned", s.Scanned),
		zap.Int64("skipped", s.Skipped),
	}
	for _, cat := range []string{"poi", "landuse", "container"} {
		c := s.Categories[cat]
		fields = append(fields,
			zap.Int64(cat+"_kept", c.Kept),
			zap.Int64(cat+"_ignored", c.Ignored))
	}
	log.Info("Classification summary", fields...)

	reasonFields := make([]zap.Field, 0, len(reasons))
	for _, r := range reasons {
		reasonFields = append(reasonFields, zap.Int64(r, s.Ignored[r]))
	}
	log.Info("Ignored entities", reasonFields...)

	for _, p := range s.Passes {
		log.Info("Assignment summary",
			zap.String("pass", p.Name),
			zap.Int("input", p.Input),
			zap.Int("merged", p.Used),
			zap.Int("surviving", p.Remaining),
			zap.Int64("merges", p.Merges),
			zap.Int64("boundary_fallbacks", p.Fallbacks))
	}

	log.Info("Feature extraction complete",
		zap.Int("containers", s.Surviving["container"]),
		zap.Int("landuse", s.Surviving["landuse"]),
		zap.Int("poi", s.Surviving["poi"]),
		zap.Int64("records_written", s.Written),
		zap.Int64("unlabelled", s.Empty),
		zap.String("rate", FormatThroughput(rate(s.Scanned, s.Duration))),
		zap.Duration("duration", s.Duration.Round(time.Millisecond)))
}

// FacilityStats summarizes a facility generation run
type FacilityStats struct {
	Records    int
	Links      int // links after the mode filter
	Aggregate  facility.Stats
	Facilities int
	Defects    int
	Duration   time.Duration
}

// Log writes the end-of-run summary
func (s *FacilityStats) Log(log *zap.Logger) {
	log.Info("Facility generation complete",
		zap.Int("records", s.Records),
		zap.Int("eligible_links", s.Links),
		zap.Int64("polygons", s.Aggregate.Polygons),
		zap.Int64("mapped", s.Aggregate.Mapped),
		zap.Int64("dropped", s.Aggregate.Dropped),
		zap.Int64("unmatched", s.Aggregate.Unmatched),
		zap.Int64("centroid_fallbacks", s.Aggregate.Fallbacks),
		zap.Int("facilities", s.Facilities),
		zap.Int("defects", s.Defects),
		zap.Duration("duration", s.Duration.Round(time.Millisecond)))
}
