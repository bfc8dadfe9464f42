package network

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ReadGeoJSON reads links from a FeatureCollection of LineString features.
// The link id is taken from the feature id or the "id" property; "type",
// "modes" (comma separated string or array), "from" and "to" are optional.
func ReadGeoJSON(data []byte) (*Network, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse network GeoJSON: %w", err)
	}

	links := make([]*Link, 0, len(fc.Features))
	for i, f := range fc.Features {
		ls, ok := f.Geometry.(orb.LineString)
		if !ok || len(ls) < 2 {
			return nil, fmt.Errorf("feature %d: expected LineString, got %T", i, f.Geometry)
		}

		id := stringOf(f.ID)
		if id == "" {
			id = stringOf(f.Properties["id"])
		}
		if id == "" {
			return nil, fmt.Errorf("feature %d: missing link id", i)
		}

		links = append(links, &Link{
			ID:        id,
			From:      stringOf(f.Properties["from"]),
			To:        stringOf(f.Properties["to"]),
			Geometry:  ls,
			Length:    floatOf(f.Properties["length"]),
			Freespeed: floatOf(f.Properties["freespeed"]),
			Capacity:  floatOf(f.Properties["capacity"]),
			Lanes:     floatOf(f.Properties["permlanes"]),
			Modes:     modesOf(f.Properties["modes"]),
			Type:      stringOf(f.Properties["type"]),
		})
	}

	return New(links), nil
}

func stringOf(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func floatOf(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}

func modesOf(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return splitModes(t)
	case []interface{}:
		modes := make([]string, 0, len(t))
		for _, m := range t {
			if s := stringOf(m); s != "" {
				modes = append(modes, s)
			}
		}
		return modes
	}
	return nil
}
