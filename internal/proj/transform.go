package proj

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

// SRID constants for common projections
const (
	SRID4326  = 4326  // WGS84 (lon/lat)
	SRID3857  = 3857  // Web Mercator
	SRID25832 = 25832 // ETRS89 / UTM zone 32N
	SRID25833 = 25833 // ETRS89 / UTM zone 33N
)

// definitions maps supported SRIDs to proj4 strings
var definitions = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	2056:  "+proj=somerc +lat_0=46.95240555555556 +lon_0=7.439583333333333 +k_0=1 +x_0=2600000 +y_0=1200000 +ellps=bessel +towgs84=674.374,15.056,405.346,0,0,0,0 +units=m +no_defs",
	25832: "+proj=utm +zone=32 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	25833: "+proj=utm +zone=33 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	31468: "+proj=tmerc +lat_0=0 +lon_0=12 +k=1 +x_0=4500000 +y_0=0 +ellps=bessel +towgs84=598.1,73.7,418.2,0.202,0.045,-2.455,6.7 +units=m +no_defs",
	32632: "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs",
	32633: "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs",
}

// Transformer handles coordinate transformations between projections
type Transformer struct {
	SourceSRID int
	TargetSRID int

	fn proj.Transformer
}

// NewTransformer creates a transformer from source to target SRID
func NewTransformer(sourceSRID, targetSRID int) (*Transformer, error) {
	t := &Transformer{SourceSRID: sourceSRID, TargetSRID: targetSRID}
	if !t.NeedsTransform() {
		return t, nil
	}
	// 4326 -> 3857 has a closed form
	if sourceSRID == SRID4326 && targetSRID == SRID3857 {
		return t, nil
	}

	src, err := spatialReference(sourceSRID)
	if err != nil {
		return nil, err
	}
	dst, err := spatialReference(targetSRID)
	if err != nil {
		return nil, err
	}
	fn, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create transform %d -> %d: %w", sourceSRID, targetSRID, err)
	}
	t.fn = fn
	return t, nil
}

// Parse creates a transformer from two projection strings such as "EPSG:4326"
func Parse(source, target string) (*Transformer, error) {
	src, err := ParseSRID(source)
	if err != nil {
		return nil, err
	}
	dst, err := ParseSRID(target)
	if err != nil {
		return nil, err
	}
	return NewTransformer(src, dst)
}

func spatialReference(srid int) (*proj.SR, error) {
	def, ok := definitions[srid]
	if !ok {
		return nil, fmt.Errorf("unsupported SRID: %d", srid)
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("failed to parse definition of SRID %d: %w", srid, err)
	}
	return sr, nil
}

// Transform converts a coordinate from source to target projection.
// Geographic input is (lon, lat) in degrees.
func (t *Transformer) Transform(x, y float64) (float64, float64, error) {
	if !t.NeedsTransform() {
		return x, y, nil
	}
	if t.fn == nil {
		x, y = lonLatToWebMercator(x, y)
		return x, y, nil
	}
	return t.fn(x, y)
}

// Project transforms a single point
func (t *Transformer) Project(p orb.Point) (orb.Point, error) {
	x, y, err := t.Transform(p[0], p[1])
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{x, y}, nil
}

// NeedsTransform returns true if transformation is required
func (t *Transformer) NeedsTransform() bool {
	return t.SourceSRID != t.TargetSRID
}

// Web Mercator constants
const (
	// Semi-major axis of WGS84 ellipsoid in meters
	earthRadius = 6378137.0
	// Maximum extent of Web Mercator
	maxExtent = 20037508.342789244
)

// lonLatToWebMercator converts WGS84 (lon, lat) to Web Mercator (x, y)
func lonLatToWebMercator(lon, lat float64) (x, y float64) {
	// Clamp latitude to avoid infinity at poles
	if lat > 85.06 {
		lat = 85.06
	} else if lat < -85.06 {
		lat = -85.06
	}

	x = lon * maxExtent / 180.0

	// y = R * ln(tan(π/4 + φ/2))
	latRad := lat * math.Pi / 180.0
	y = math.Log(math.Tan(math.Pi/4.0+latRad/2.0)) * earthRadius

	return x, y
}

// ParseSRID parses a projection string to SRID.
// Accepts "25832" and "EPSG:25832" for every registered SRID.
func ParseSRID(s string) (int, error) {
	code := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "EPSG:")
	srid, err := strconv.Atoi(code)
	if err != nil {
		return 0, fmt.Errorf("invalid projection: %s", s)
	}
	if _, ok := definitions[srid]; !ok {
		return 0, fmt.Errorf("unsupported projection: %s (supported: %s)", s, strings.Join(Supported(), ", "))
	}
	return srid, nil
}

// Supported lists the registered SRIDs in ascending order
func Supported() []string {
	codes := []int{2056, 3857, 4326, 25832, 25833, 31468, 32632, 32633}
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = strconv.Itoa(c)
	}
	return out
}
