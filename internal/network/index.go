package network

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const searchPad = 1e-6

type indexedLink struct {
	link *Link
	rect rtreego.Rect
}

func (l *indexedLink) Bounds() rtreego.Rect {
	return l.rect
}

// Index answers exact nearest-link queries
type Index struct {
	tree *rtreego.Rtree
}

// NewIndex bulk-loads the links of n
func NewIndex(n *Network) *Index {
	objs := make([]rtreego.Spatial, 0, n.Len())
	for _, l := range n.Links() {
		b := l.Geometry.Bound().Pad(searchPad)
		rect, _ := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min[0], b.Min[1]},
			rtreego.Point{b.Max[0], b.Max[1]},
		)
		objs = append(objs, &indexedLink{link: l, rect: rect})
	}
	return &Index{tree: rtreego.NewTree(2, 25, 50, objs...)}
}

// Nearest returns the link closest to p by point-to-polyline distance.
// Equal distances resolve to the smallest link id. ok is false for an
// empty index.
func (ix *Index) Nearest(p orb.Point) (link *Link, dist float64, ok bool) {
	if ix.tree.Size() == 0 {
		return nil, 0, false
	}

	// The bounding-box nearest neighbour bounds the true distance from above
	q := rtreego.Point{p[0], p[1]}
	seed := ix.tree.NearestNeighbor(q).(*indexedLink).link
	best := planar.DistanceFrom(seed.Geometry, p)

	link, dist = seed, best
	for _, s := range ix.tree.SearchIntersect(q.ToRect(best + searchPad)) {
		cand := s.(*indexedLink).link
		d := planar.DistanceFrom(cand.Geometry, p)
		if d < dist || (d == dist && cand.ID < link.ID) {
			link, dist = cand, d
		}
	}
	return link, dist, true
}
