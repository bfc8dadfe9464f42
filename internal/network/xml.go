package network

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
)

type xmlNode struct {
	ID string  `xml:"id,attr"`
	X  float64 `xml:"x,attr"`
	Y  float64 `xml:"y,attr"`
}

type xmlAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlLink struct {
	ID         string         `xml:"id,attr"`
	From       string         `xml:"from,attr"`
	To         string         `xml:"to,attr"`
	Length     float64        `xml:"length,attr"`
	Freespeed  float64        `xml:"freespeed,attr"`
	Capacity   float64        `xml:"capacity,attr"`
	Permlanes  float64        `xml:"permlanes,attr"`
	Modes      string         `xml:"modes,attr"`
	Type       string         `xml:"type,attr"`
	Attributes []xmlAttribute `xml:"attributes>attribute"`
}

// ReadXML streams a MATSim network file. Nodes must precede the links
// referencing them. The link type comes from the type attribute or from a
// nested <attribute name="type">.
func ReadXML(r io.Reader) (*Network, error) {
	dec := xml.NewDecoder(r)
	nodes := make(map[string]orb.Point)
	var links []*Link

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse network XML: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "node":
			var n xmlNode
			if err := dec.DecodeElement(&n, &se); err != nil {
				return nil, fmt.Errorf("failed to decode node: %w", err)
			}
			nodes[n.ID] = orb.Point{n.X, n.Y}

		case "link":
			var l xmlLink
			if err := dec.DecodeElement(&l, &se); err != nil {
				return nil, fmt.Errorf("failed to decode link: %w", err)
			}
			from, ok := nodes[l.From]
			if !ok {
				return nil, fmt.Errorf("link %s: unknown from node %s", l.ID, l.From)
			}
			to, ok := nodes[l.To]
			if !ok {
				return nil, fmt.Errorf("link %s: unknown to node %s", l.ID, l.To)
			}

			linkType := l.Type
			for _, a := range l.Attributes {
				if a.Name == "type" {
					linkType = strings.TrimSpace(a.Value)
				}
			}

			links = append(links, &Link{
				ID:        l.ID,
				From:      l.From,
				To:        l.To,
				Geometry:  orb.LineString{from, to},
				Length:    l.Length,
				Freespeed: l.Freespeed,
				Capacity:  l.Capacity,
				Lanes:     l.Permlanes,
				Modes:     splitModes(l.Modes),
				Type:      linkType,
			})
		}
	}

	return New(links), nil
}
