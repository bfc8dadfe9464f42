package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// AssembleMultiPolygon joins outer and inner member ways into closed rings
// and assigns each inner ring to the first outer ring containing it.
// Returns nil when no closed outer ring can be formed.
func AssembleMultiPolygon(outerWays, innerWays []orb.LineString) orb.MultiPolygon {
	outerRings := AssembleRings(outerWays)
	if len(outerRings) == 0 {
		return nil
	}
	innerRings := AssembleRings(innerWays)

	mp := make(orb.MultiPolygon, 0, len(outerRings))
	used := make([]bool, len(innerRings))
	for _, outer := range outerRings {
		poly := orb.Polygon{outer}
		for i, inner := range innerRings {
			if !used[i] && ringContainedBy(inner, outer) {
				poly = append(poly, inner)
				used[i] = true
			}
		}
		mp = append(mp, poly)
	}
	return mp
}

// AssembleRings connects way segments end to end, reversing segments where
// needed. Only fully closed rings are returned.
func AssembleRings(ways []orb.LineString) []orb.Ring {
	var rings []orb.Ring
	used := make([]bool, len(ways))

	for start := range ways {
		if used[start] || len(ways[start]) < 2 {
			continue
		}

		ring := append(orb.Ring(nil), ways[start]...)
		used[start] = true

		for !ring.Closed() || len(ring) < 4 {
			end := ring[len(ring)-1]
			found := false

			for i, w := range ways {
				if used[i] || len(w) < 2 {
					continue
				}
				if w[0] == end {
					ring = append(ring, w[1:]...)
					used[i] = true
					found = true
					break
				}
				if w[len(w)-1] == end {
					for j := len(w) - 2; j >= 0; j-- {
						ring = append(ring, w[j])
					}
					used[i] = true
					found = true
					break
				}
			}

			if !found {
				break
			}
		}

		if len(ring) >= 4 && ring.Closed() {
			rings = append(rings, ring)
		}
	}

	return rings
}

// ringContainedBy tests the first vertex of inner against outer
func ringContainedBy(inner, outer orb.Ring) bool {
	if len(inner) == 0 || len(outer) < 4 {
		return false
	}
	return planar.RingContains(outer, inner[0])
}
