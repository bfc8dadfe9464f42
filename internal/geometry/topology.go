package geometry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geos"

	"github.com/wegman-software/osmfacilities/internal/wkb"
)

// ErrInvalidTopology is returned by precise predicates when GEOS cannot
// build or relate a geometry. Callers fall back to boundary tests.
var ErrInvalidTopology = errors.New("invalid topology")

const boundaryTolerance = 1e-9

// GEOS contexts are not safe for concurrent use; each call borrows one
var contexts = sync.Pool{
	New: func() any { return geos.NewContext() },
}

// protect turns a GEOS panic into ErrInvalidTopology
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidTopology, r)
		}
	}()
	return fn()
}

func withContext(fn func(c *geos.Context) error) error {
	c := contexts.Get().(*geos.Context)
	defer contexts.Put(c)
	return protect(func() error { return fn(c) })
}

// Intersects reports whether a and b share any point. A GEOS failure on
// either geometry is returned as ErrInvalidTopology.
func Intersects(a, b orb.MultiPolygon) (bool, error) {
	if !a.Bound().Intersects(b.Bound()) {
		return false, nil
	}

	var hit bool
	err := withContext(func(c *geos.Context) error {
		ga, err := polygonGeom(c, a)
		if err != nil {
			return err
		}
		defer ga.Destroy()
		gb, err := polygonGeom(c, b)
		if err != nil {
			return err
		}
		defer gb.Destroy()

		hit = ga.Intersects(gb)
		return nil
	})
	return hit, err
}

// BoundaryIntersects reports whether the boundary of a touches the
// boundary of b
func BoundaryIntersects(a, b orb.MultiPolygon) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	var hit bool
	err := withContext(func(c *geos.Context) error {
		la, err := boundaryGeom(c, a)
		if err != nil {
			return err
		}
		defer la.Destroy()
		lb, err := boundaryGeom(c, b)
		if err != nil {
			return err
		}
		defer lb.Destroy()

		hit = la.Intersects(lb)
		return nil
	})
	return err == nil && hit
}

// Region answers repeated point queries against one multipolygon. It
// holds a GEOS context until Close.
type Region struct {
	c        *geos.Context
	area     *geos.Geom // nil when GEOS could not build the polygon
	boundary *geos.Geom
}

// NewRegion prepares mp for point queries
func NewRegion(mp orb.MultiPolygon) *Region {
	r := &Region{c: contexts.Get().(*geos.Context)}
	protect(func() error {
		g, err := polygonGeom(r.c, mp)
		if err != nil {
			return err
		}
		r.area = g
		return nil
	})
	protect(func() error {
		g, err := boundaryGeom(r.c, mp)
		if err != nil {
			return err
		}
		r.boundary = g
		return nil
	})
	return r
}

// Contains reports whether p lies inside the region, boundary included.
// When the precise test fails only points on the boundary count.
func (r *Region) Contains(p orb.Point) bool {
	var in bool
	err := protect(func() error {
		if r.area == nil {
			return ErrInvalidTopology
		}
		pt := r.c.NewPoint([]float64{p[0], p[1]})
		defer pt.Destroy()
		in = r.area.Intersects(pt)
		return nil
	})
	if err != nil {
		return r.OnBoundary(p)
	}
	return in
}

// OnBoundary reports whether p lies within tolerance of a ring
func (r *Region) OnBoundary(p orb.Point) bool {
	var on bool
	err := protect(func() error {
		if r.boundary == nil {
			return ErrInvalidTopology
		}
		pt := r.c.NewPoint([]float64{p[0], p[1]})
		defer pt.Destroy()
		on = r.boundary.Distance(pt) <= boundaryTolerance
		return nil
	})
	return err == nil && on
}

// Close releases the GEOS geometries and context
func (r *Region) Close() {
	if r.area != nil {
		r.area.Destroy()
	}
	if r.boundary != nil {
		r.boundary.Destroy()
	}
	contexts.Put(r.c)
}

// Area returns the planar area of mp, holes excluded
func Area(mp orb.MultiPolygon) float64 {
	return planar.Area(mp)
}

// Centroid returns the area-weighted centroid of mp
func Centroid(mp orb.MultiPolygon) orb.Point {
	c, _ := planar.CentroidArea(mp)
	return c
}

func polygonGeom(c *geos.Context, mp orb.MultiPolygon) (*geos.Geom, error) {
	data := wkb.NewEncoder(0, 0).EncodeMultiPolygon(mp)
	if data == nil {
		return nil, fmt.Errorf("%w: empty geometry", ErrInvalidTopology)
	}
	g, err := c.NewGeomFromWKB(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopology, err)
	}
	return g, nil
}

// boundaryGeom returns the GEOS boundary of mp. Polygons GEOS refuses to
// build are reduced to the linework of their rings.
func boundaryGeom(c *geos.Context, mp orb.MultiPolygon) (*geos.Geom, error) {
	if g, err := polygonGeom(c, mp); err == nil {
		defer g.Destroy()
		return g.Boundary(), nil
	}

	var lines orb.MultiLineString
	for _, poly := range mp {
		for _, ring := range poly {
			if len(ring) >= 2 {
				lines = append(lines, orb.LineString(ring))
			}
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no linework", ErrInvalidTopology)
	}
	g, err := c.NewGeomFromWKB(wkb.NewEncoder(0, 0).EncodeMultiLineString(lines))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopology, err)
	}
	return g, nil
}
