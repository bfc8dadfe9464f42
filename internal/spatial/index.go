package spatial

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/wegman-software/osmfacilities/internal/feature"
)

// Node fan-out of the container tree
const (
	minChildren = 25
	maxChildren = 50
)

// envelopePad widens envelopes so that touching rectangles still intersect
const envelopePad = 1e-6

type indexed struct {
	f    *feature.Feature
	rect rtreego.Rect
}

func (i *indexed) Bounds() rtreego.Rect {
	return i.rect
}

// Index is a read-only R-tree over container envelopes
type Index struct {
	tree *rtreego.Rtree
}

// NewIndex bulk-loads the containers. The slice must not change afterwards.
func NewIndex(containers []*feature.Feature) *Index {
	objs := make([]rtreego.Spatial, 0, len(containers))
	for _, c := range containers {
		objs = append(objs, &indexed{f: c, rect: toRect(c.Bound())})
	}
	return &Index{tree: rtreego.NewTree(2, minChildren, maxChildren, objs...)}
}

// Size returns the number of indexed containers
func (ix *Index) Size() int {
	return ix.tree.Size()
}

// Query returns every container whose envelope intersects b
func (ix *Index) Query(b orb.Bound) []*feature.Feature {
	hits := ix.tree.SearchIntersect(toRect(b))
	out := make([]*feature.Feature, len(hits))
	for i, h := range hits {
		out[i] = h.(*indexed).f
	}
	return out
}

func toRect(b orb.Bound) rtreego.Rect {
	b = b.Pad(envelopePad)
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min[0], b.Min[1]},
		rtreego.Point{b.Max[0], b.Max[1]},
	)
	return r
}
