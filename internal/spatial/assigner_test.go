package spatial

import (
	"context"
	"reflect"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wegman-software/osmfacilities/internal/feature"
	"github.com/wegman-software/osmfacilities/internal/geometry"
	"github.com/wegman-software/osmfacilities/internal/logger"
	"github.com/wegman-software/osmfacilities/internal/mapping"
)

func rect(x0, y0, x1, y1 float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}}
}

func withBits(n int, set ...uint) *bitset.BitSet {
	b := bitset.New(uint(n))
	for _, i := range set {
		b.Set(i)
	}
	return b
}

func TestBakeryScenario(t *testing.T) {
	m, err := mapping.Parse([]byte(`{"shop": {"bakery": ["shop_daily"]}}`))
	if err != nil {
		t.Fatal(err)
	}
	ls := mapping.NewLabelSpace(m)
	cls := feature.NewClassifier(m, ls, 50_000_000)
	builder := geometry.NewBuilder(nil, nil, 6)

	node := &osm.Node{ID: 1, Lon: 5, Lat: 5, Tags: osm.Tags{{Key: "shop", Value: "bakery"}}}
	if !cls.Keep(node.Tags) {
		t.Fatal("bakery should be kept")
	}
	geom, err := builder.Build(node)
	if err != nil {
		t.Fatal(err)
	}
	poi, err := cls.Classify(osm.TypeNode, int64(node.ID), node.Tags, geom)
	if err != nil {
		t.Fatal(err)
	}
	if got := poi.Labels(ls); !reflect.DeepEqual(got, []string{"shop_daily"}) {
		t.Fatalf("poi labels = %v", got)
	}

	buildingTags := osm.Tags{{Key: "building", Value: "yes"}}
	building, err := cls.Classify(osm.TypeWay, 10, buildingTags, rect(0, 0, 20, 10))
	if err != nil {
		t.Fatal(err)
	}
	if building.Area() != 200 {
		t.Fatalf("building area = %f", building.Area())
	}

	a := NewAssigner(NewIndex([]*feature.Feature{building}), 50_000, 2)
	luLeft, poiLeft, stats, err := a.Run(context.Background(), nil, []*feature.Feature{poi})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := building.Labels(ls); !reflect.DeepEqual(got, []string{"shop_daily"}) {
		t.Errorf("building labels = %v, want [shop_daily]", got)
	}
	if len(poiLeft) != 0 || len(luLeft) != 0 {
		t.Errorf("expected empty buckets, got poi=%d landuse=%d", len(poiLeft), len(luLeft))
	}
	if stats[1].Used != 1 || stats[1].Merges != 1 {
		t.Errorf("poi pass stats = %+v", stats[1])
	}
}

func TestPassCommutative(t *testing.T) {
	build := func() ([]*feature.Feature, []*feature.Feature, []*feature.Feature) {
		containers := []*feature.Feature{
			feature.New(osm.TypeWay, 1, feature.Container, rect(0, 0, 10, 10), withBits(4)),
			feature.New(osm.TypeWay, 2, feature.Container, rect(10, 0, 20, 10), withBits(4, 3)),
			feature.New(osm.TypeWay, 3, feature.Container, rect(50, 50, 60, 60), withBits(4)),
		}
		landuse := []*feature.Feature{
			feature.New(osm.TypeWay, 10, feature.Landuse, rect(-5, -5, 15, 5), withBits(4, 0)),
			feature.New(osm.TypeWay, 11, feature.Landuse, rect(100, 100, 110, 110), withBits(4, 1)),
		}
		poi := []*feature.Feature{
			feature.New(osm.TypeNode, 20, feature.POI, rect(8, 8, 12, 9), withBits(4, 2)),
			feature.New(osm.TypeNode, 21, feature.POI, rect(55, 55, 56, 56), withBits(4, 1)),
			feature.New(osm.TypeNode, 22, feature.POI, rect(200, 200, 201, 201), withBits(4, 0)),
		}
		return containers, landuse, poi
	}

	ctx := context.Background()

	c1, lu1, poi1 := build()
	a1 := NewAssigner(NewIndex(c1), 50_000, 3)
	if _, _, err := a1.Pass(ctx, "landuse", lu1); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a1.Pass(ctx, "poi", poi1); err != nil {
		t.Fatal(err)
	}

	c2, lu2, poi2 := build()
	a2 := NewAssigner(NewIndex(c2), 50_000, 1)
	if _, _, err := a2.Pass(ctx, "poi", poi2); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a2.Pass(ctx, "landuse", lu2); err != nil {
		t.Fatal(err)
	}

	for i := range c1 {
		if !c1[i].Bits().Equal(c2[i].Bits()) {
			t.Errorf("container %s: %v vs %v", c1[i].ID, c1[i].Bits(), c2[i].Bits())
		}
	}

	want := []*bitset.BitSet{withBits(4, 0, 2), withBits(4, 0, 2, 3), withBits(4, 1)}
	for i, w := range want {
		if !c1[i].Bits().Equal(w) {
			t.Errorf("container %s bits = %v, want %v", c1[i].ID, c1[i].Bits(), w)
		}
	}
}

func TestNoDoubleCounting(t *testing.T) {
	containers := []*feature.Feature{
		feature.New(osm.TypeWay, 1, feature.Container, rect(0, 0, 10, 10), withBits(2)),
		feature.New(osm.TypeWay, 2, feature.Container, rect(5, 0, 15, 10), withBits(2)),
	}
	var poi []*feature.Feature
	for i := 0; i < 200; i++ {
		x := float64(i % 20)
		poi = append(poi, feature.New(osm.TypeNode, int64(i), feature.POI, rect(x, 4, x+0.5, 4.5), withBits(2, 0)))
	}
	outside := feature.New(osm.TypeNode, 999, feature.POI, rect(40, 40, 41, 41), withBits(2, 1))
	poi = append(poi, outside)

	a := NewAssigner(NewIndex(containers), 50_000, 4)
	left, stats, err := a.Pass(context.Background(), "poi", poi)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Used+stats.Remaining != stats.Input {
		t.Errorf("used %d + remaining %d != input %d", stats.Used, stats.Remaining, stats.Input)
	}
	if stats.Used > len(poi) {
		t.Errorf("used %d exceeds input %d", stats.Used, len(poi))
	}

	found := false
	for _, f := range left {
		if f == outside {
			found = true
		}
	}
	if !found {
		t.Error("feature without containers must remain in its bucket")
	}

	// Survivors keep their original relative order
	for i := 1; i < len(left); i++ {
		if left[i-1].OSMID > left[i].OSMID {
			t.Errorf("survivor order broken at %d", i)
		}
	}

	// A poi spanning both containers is broadcast to both
	if stats.Merges <= int64(stats.Used) {
		t.Errorf("expected broadcast merges, merges=%d used=%d", stats.Merges, stats.Used)
	}
}

func TestAssignableAreaCeiling(t *testing.T) {
	huge := feature.New(osm.TypeWay, 1, feature.Container, rect(0, 0, 1000, 1000), withBits(2))
	small := feature.New(osm.TypeWay, 2, feature.Container, rect(0, 0, 10, 10), withBits(2))
	lu := feature.New(osm.TypeWay, 3, feature.Landuse, rect(0, 0, 1000, 1000), withBits(2, 1))

	a := NewAssigner(NewIndex([]*feature.Feature{huge, small}), 50_000, 2)
	if _, _, err := a.Pass(context.Background(), "landuse", []*feature.Feature{lu}); err != nil {
		t.Fatal(err)
	}

	if !huge.Empty() {
		t.Error("container above the assignable ceiling received a merge")
	}
	if !small.Bits().Test(1) {
		t.Error("small container should have received the label")
	}

	exact := feature.New(osm.TypeWay, 4, feature.Container, rect(0, 0, 10, 10), withBits(2))
	a = NewAssigner(NewIndex([]*feature.Feature{exact}), 100, 1)
	left, _, _ := a.Pass(context.Background(), "landuse", []*feature.Feature{lu})
	if !exact.Empty() || len(left) != 1 {
		t.Error("container with area equal to the ceiling must not receive merges")
	}
}

func TestBoundaryFallback(t *testing.T) {
	unclosed := orb.MultiPolygon{{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}}
	broken := feature.New(osm.TypeWay, 1, feature.Container, unclosed, withBits(2))

	edge := feature.New(osm.TypeNode, 2, feature.POI, rect(9, 4, 11, 6), withBits(2, 0))
	inside := feature.New(osm.TypeNode, 3, feature.POI, rect(4.5, 1, 5.5, 2), withBits(2, 1))

	core, logs := observer.New(zapcore.InfoLevel)
	defer logger.Replace(zap.New(core))()

	a := NewAssigner(NewIndex([]*feature.Feature{broken}), 50_000, 1)
	left, stats, err := a.Pass(context.Background(), "poi", []*feature.Feature{edge, inside})
	if err != nil {
		t.Fatal(err)
	}

	if stats.Fallbacks != 2 {
		t.Errorf("fallbacks = %d, want 2", stats.Fallbacks)
	}
	if !broken.Bits().Test(0) || broken.Bits().Test(1) {
		t.Errorf("unexpected container bits %v", broken.Bits())
	}
	if len(left) != 1 || left[0] != inside {
		t.Errorf("expected only the interior feature to remain")
	}

	entries := logs.FilterMessage("Assignment pass complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one summary log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["remaining"]; got != int64(1) {
		t.Errorf("logged remaining = %v", got)
	}
}

func TestSelfCrossingContainer(t *testing.T) {
	spike := orb.MultiPolygon{{{
		{0, 0}, {200, 0}, {200, 100}, {100, 100}, {110, 105},
		{110, 95}, {90, 100}, {0, 100}, {0, 0},
	}}}
	container := feature.New(osm.TypeWay, 1, feature.Container, spike, withBits(2))
	poi := feature.New(osm.TypeNode, 2, feature.POI, rect(40, 40, 46, 46), withBits(2, 1))

	a := NewAssigner(NewIndex([]*feature.Feature{container}), 50_000, 1)
	left, stats, err := a.Pass(context.Background(), "poi", []*feature.Feature{poi})
	if err != nil {
		t.Fatal(err)
	}

	if !container.Bits().Test(1) {
		t.Error("container with a small self-crossing should receive the label")
	}
	if len(left) != 0 {
		t.Errorf("expected the feature to be merged, %d remaining", len(left))
	}
	if stats.Fallbacks != 0 {
		t.Errorf("fallbacks = %d, want 0", stats.Fallbacks)
	}
}
