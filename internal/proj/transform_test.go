package proj

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestParseSRID(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"4326", 4326, false},
		{"EPSG:3857", 3857, false},
		{"epsg:25832", 25832, false},
		{" EPSG:32633 ", 32633, false},
		{"EPSG:9999", 0, true},
		{"mercator", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSRID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSRID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSRID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIdentity(t *testing.T) {
	tr, err := NewTransformer(SRID25832, SRID25832)
	if err != nil {
		t.Fatal(err)
	}
	p, err := tr.Project(orb.Point{691000, 5334000})
	if err != nil || p != (orb.Point{691000, 5334000}) {
		t.Errorf("Project() = %v, %v", p, err)
	}
}

func TestWebMercator(t *testing.T) {
	tr, err := NewTransformer(SRID4326, SRID3857)
	if err != nil {
		t.Fatal(err)
	}
	x, y, err := tr.Transform(180, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-maxExtent) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("Transform(180, 0) = %f, %f", x, y)
	}
}

func TestUTM(t *testing.T) {
	tr, err := Parse("EPSG:4326", "EPSG:25832")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	// Munich, Marienplatz
	p, err := tr.Project(orb.Point{11.5755, 48.1374})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if p[0] < 689000 || p[0] > 694000 || p[1] < 5330000 || p[1] > 5338000 {
		t.Errorf("Project() = %v, want approximately [691600 5334700]", p)
	}
}
