package facility

import (
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/paulmach/orb"

	"github.com/wegman-software/osmfacilities/internal/geometry"
)

// PointSampler draws representative points inside a polygon.
// fallback is true when the centroid had to be used.
type PointSampler interface {
	Sample(id string, mp orb.MultiPolygon) (points []orb.Point, fallback bool)
}

// Sampler draws uniform points from the envelope and keeps those inside
// the polygon. The random stream depends only on the seed and the id.
type Sampler struct {
	n         int
	precision int
	seed      uint64
}

// NewSampler creates a sampler keeping up to n points per polygon
func NewSampler(n, precision int, seed uint64) *Sampler {
	return &Sampler{n: n, precision: precision, seed: seed}
}

// Sample returns up to n rounded points inside mp, trying at most 10n
// draws. Without any hit the centroid is returned as the single sample.
func (s *Sampler) Sample(id string, mp orb.MultiPolygon) ([]orb.Point, bool) {
	rng := rand.New(rand.NewPCG(s.seed, hashID(id)))
	region := geometry.NewRegion(mp)
	defer region.Close()

	b := mp.Bound()
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]

	points := make([]orb.Point, 0, s.n)
	for i := 0; i < 10*s.n && len(points) < s.n; i++ {
		p := orb.Point{
			Round(b.Min[0]+w*rng.Float64(), s.precision),
			Round(b.Min[1]+h*rng.Float64(), s.precision),
		}
		if region.Contains(p) {
			points = append(points, p)
		}
	}

	if len(points) == 0 {
		return []orb.Point{geometry.Centroid(mp)}, true
	}
	return points, false
}

func hashID(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

// Round rounds v to the given number of decimal places
func Round(v float64, precision int) float64 {
	scale := math.Pow10(precision)
	return math.Round(v*scale) / scale
}
