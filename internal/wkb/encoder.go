package wkb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPoint           = 1
	wkbLineString      = 2
	wkbPolygon         = 3
	wkbMultiLineString = 5
	wkbMultiPolygon    = 6

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// ErrNotMultiPolygon is returned when decoded bytes hold another geometry type
var ErrNotMultiPolygon = errors.New("geometry is not a (multi)polygon")

// Encoder encodes geometries to WKB format.
// Uses little-endian byte order and includes SRID (EWKB format).
// The returned slices alias the encoder buffer until the next call.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates a new WKB encoder with pre-allocated buffer
func NewEncoder(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// Reset clears the buffer for reuse
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded WKB bytes
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// EncodePoint encodes a point as EWKB with SRID
func (e *Encoder) EncodePoint(p orb.Point) []byte {
	e.Reset()
	// 1 (byte order) + 4 (type+srid flag) + 4 (srid) + 16 (2 doubles)
	e.ensureCapacity(25)
	e.header(wkbPoint)
	e.appendPoint(p)
	return e.buf
}

// EncodeMultiLineString encodes linework as EWKB with SRID.
// Embedded linestrings carry no SRID.
func (e *Encoder) EncodeMultiLineString(mls orb.MultiLineString) []byte {
	e.Reset()
	totalPoints := 0
	for _, ls := range mls {
		totalPoints += len(ls)
	}
	e.ensureCapacity(13 + len(mls)*9 + totalPoints*16)

	e.header(wkbMultiLineString)
	e.appendUint32(uint32(len(mls)))
	for _, ls := range mls {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbLineString)
		e.appendUint32(uint32(len(ls)))
		for _, p := range ls {
			e.appendPoint(p)
		}
	}
	return e.buf
}

// EncodeMultiPolygon encodes a multipolygon as EWKB with SRID.
// Embedded polygons carry no SRID.
func (e *Encoder) EncodeMultiPolygon(mp orb.MultiPolygon) []byte {
	e.Reset()
	if len(mp) == 0 {
		return nil
	}

	totalPoints, totalRings := 0, 0
	for _, poly := range mp {
		totalRings += len(poly)
		for _, ring := range poly {
			totalPoints += len(ring)
		}
	}
	// Header: 1 + 4 + 4 + 4 (num polys)
	// Per polygon: 1 + 4 + 4 (num rings) + rings*4 + points*16
	e.ensureCapacity(13 + len(mp)*9 + totalRings*4 + totalPoints*16)

	e.header(wkbMultiPolygon)
	e.appendUint32(uint32(len(mp)))

	for _, poly := range mp {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbPolygon)
		e.appendUint32(uint32(len(poly)))
		for _, ring := range poly {
			e.appendUint32(uint32(len(ring)))
			for _, p := range ring {
				e.appendPoint(p)
			}
		}
	}

	return e.buf
}

// DecodeMultiPolygon parses (E)WKB bytes holding a polygon or multipolygon
func DecodeMultiPolygon(data []byte) (orb.MultiPolygon, int, error) {
	g, srid, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode wkb: %w", err)
	}
	switch geom := g.(type) {
	case orb.MultiPolygon:
		return geom, srid, nil
	case orb.Polygon:
		return orb.MultiPolygon{geom}, srid, nil
	default:
		return nil, srid, fmt.Errorf("%w: %s", ErrNotMultiPolygon, g.GeoJSONType())
	}
}

func (e *Encoder) header(geomType uint32) {
	e.buf = append(e.buf, 0x01)
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) ensureCapacity(n int) {
	if cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
}

func (e *Encoder) appendPoint(p orb.Point) {
	e.appendFloat64(p[0])
	e.appendFloat64(p[1])
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
