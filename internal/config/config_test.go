package config

import (
	"path/filepath"
	"testing"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantSet bool
		wantErr bool
	}{
		{"empty", "", false, false},
		{"valid", "13.0, 52.3, 13.8, 52.7", true, false},
		{"too few values", "13.0,52.3,13.8", false, true},
		{"not a number", "a,52.3,13.8,52.7", false, true},
		{"inverted lon", "13.8,52.3,13.0,52.7", false, true},
		{"inverted lat", "13.0,52.7,13.8,52.3", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bbox, err := ParseBBox(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if bbox.IsSet != tt.wantSet {
				t.Errorf("IsSet = %v, want %v", bbox.IsSet, tt.wantSet)
			}
		})
	}
}

func TestBBoxContains(t *testing.T) {
	bbox, _ := ParseBBox("13.0,52.3,13.8,52.7")
	if !bbox.Contains(52.5, 13.4) {
		t.Error("Berlin center should be inside")
	}
	if bbox.Contains(48.1, 11.5) {
		t.Error("Munich should be outside")
	}
	unset := &BBox{}
	if !unset.Contains(0, 0) {
		t.Error("unset bbox contains everything")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateExtract(); err == nil {
		t.Error("expected error without input file")
	}

	cfg.InputFile = "berlin.osm.pbf"
	cfg.MappingFile = "mapping.yaml"
	if err := cfg.ValidateExtract(); err != nil {
		t.Errorf("ValidateExtract() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without network file")
	}

	cfg.NetworkFile = "network.xml.gz"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg.SamplePoints = 0
	if err := cfg.ValidateFacilities(); err == nil {
		t.Error("expected error for zero sample points")
	}
}

func TestOutputPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = "out"
	if got := cfg.FeaturesPath(); got != filepath.Join("out", "features.parquet") {
		t.Errorf("FeaturesPath() = %q", got)
	}
	cfg.FacilitiesFile = "/tmp/facilities.xml"
	if got := cfg.FacilitiesPath(); got != "/tmp/facilities.xml" {
		t.Errorf("FacilitiesPath() = %q", got)
	}
}
