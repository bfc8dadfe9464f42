package network

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/paulmach/orb"
)

// Link is a directed network segment
type Link struct {
	ID        string
	From      string
	To        string
	Geometry  orb.LineString
	Length    float64
	Freespeed float64
	Capacity  float64
	Lanes     float64
	Modes     []string
	Type      string
}

// AllowsMode reports whether the link carries the given transport mode
func (l *Link) AllowsMode(mode string) bool {
	return slices.Contains(l.Modes, mode)
}

// Network is an immutable collection of links
type Network struct {
	links []*Link
	byID  map[string]*Link
}

// New creates a network. A link whose id is already present is ignored.
func New(links []*Link) *Network {
	n := &Network{byID: make(map[string]*Link, len(links))}
	for _, l := range links {
		if _, dup := n.byID[l.ID]; dup {
			continue
		}
		n.links = append(n.links, l)
		n.byID[l.ID] = l
	}
	return n
}

// Links returns all links in load order
func (n *Network) Links() []*Link {
	return n.links
}

// Len returns the number of links
func (n *Network) Len() int {
	return len(n.links)
}

// Link looks up a link by id
func (n *Network) Link(id string) (*Link, bool) {
	l, ok := n.byID[id]
	return l, ok
}

// FilterModes returns the sub-network of links allowing mode
func (n *Network) FilterModes(mode string) *Network {
	var kept []*Link
	for _, l := range n.links {
		if l.AllowsMode(mode) {
			kept = append(kept, l)
		}
	}
	return New(kept)
}

// Load reads a network file. GeoJSON is detected by extension, anything
// else is parsed as MATSim network XML. A .gz suffix is decompressed.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open network: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	if strings.HasSuffix(name, ".geojson") || strings.HasSuffix(name, ".json") {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read network: %w", err)
		}
		return ReadGeoJSON(data)
	}
	return ReadXML(r)
}

func splitModes(s string) []string {
	var modes []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modes = append(modes, m)
		}
	}
	return modes
}
