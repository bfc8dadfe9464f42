package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	// Validate
	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// DefaultIgnoredLinkTypes are network link types never used as facility links
var DefaultIgnoredLinkTypes = []string{
	"motorway", "trunk", "motorway_link", "trunk_link", "secondary_link", "primary_link",
}

// Config holds the configuration for feature extraction and facility generation
type Config struct {
	// Input settings
	InputFile   string // OSM .pbf or .osm file
	MappingFile string // Tag mapping (YAML or JSON)
	NetworkFile string // Network XML or GeoJSON
	BBox        *BBox  // Geographic bounding box filter (input CRS)

	// Output settings
	OutputDir      string
	FeaturesFile   string // Parquet feature store, relative to OutputDir unless absolute
	FacilitiesFile string // Facilities XML, relative to OutputDir unless absolute

	// Coordinate reference systems
	SourceCRS string
	TargetCRS string

	// Classification and assignment
	POIBuffer     float64 // Buffer radius for point entities, target CRS units
	MaxArea       float64 // Containers at or above this area are discarded
	MaxAssignArea float64 // Containers at or above this area never receive merges

	// Facility generation
	SamplePoints     int
	Seed             uint64
	Precision        int // Decimal places of output coordinates
	NetworkMode      string
	IgnoredLinkTypes []string

	// Database settings
	DBHost       string
	DBPort       int
	DBName       string
	DBUser       string
	DBPassword   string
	DBSchema     string
	DBLoad       bool // Load features and facilities into PostGIS
	DropExisting bool

	// Processing settings
	Workers       int
	BatchSize     int
	FlatNodesFile string // Memory-mapped node store, empty = in memory

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BBox:             &BBox{},
		OutputDir:        "./output",
		FeaturesFile:     "features.parquet",
		FacilitiesFile:   "facilities.xml.gz",
		SourceCRS:        "EPSG:4326",
		TargetCRS:        "EPSG:25832",
		POIBuffer:        6,
		MaxArea:          50_000_000,
		MaxAssignArea:    50_000,
		SamplePoints:     23,
		Seed:             4711,
		Precision:        4,
		NetworkMode:      "car",
		IgnoredLinkTypes: append([]string(nil), DefaultIgnoredLinkTypes...),
		DBHost:           "localhost",
		DBPort:           5432,
		DBName:           "osm",
		DBUser:           "postgres",
		DBSchema:         "public",
		Workers:          runtime.NumCPU(),
		BatchSize:        10000,
		MetricsInterval:  30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// FeaturesPath returns the feature store location
func (c *Config) FeaturesPath() string {
	return c.outputPath(c.FeaturesFile)
}

// FacilitiesPath returns the facilities file location
func (c *Config) FacilitiesPath() string {
	return c.outputPath(c.FacilitiesFile)
}

func (c *Config) outputPath(name string) string {
	if filepath.IsAbs(name) || c.OutputDir == "" {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// ValidateExtract checks the settings used by feature extraction
func (c *Config) ValidateExtract() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.MappingFile == "" {
		return fmt.Errorf("mapping file is required")
	}
	if c.POIBuffer <= 0 {
		return fmt.Errorf("poi buffer must be positive")
	}
	if c.MaxArea <= 0 || c.MaxAssignArea <= 0 {
		return fmt.Errorf("area ceilings must be positive")
	}
	return c.validateCommon()
}

// ValidateFacilities checks the settings used by facility generation
func (c *Config) ValidateFacilities() error {
	if c.NetworkFile == "" {
		return fmt.Errorf("network file is required")
	}
	if c.SamplePoints < 1 {
		return fmt.Errorf("sample points must be at least 1")
	}
	if c.Precision < 0 || c.Precision > 12 {
		return fmt.Errorf("precision must be between 0 and 12")
	}
	if c.NetworkMode == "" {
		return fmt.Errorf("network mode is required")
	}
	return c.validateCommon()
}

// Validate checks the settings of a full run
func (c *Config) Validate() error {
	if err := c.ValidateExtract(); err != nil {
		return err
	}
	return c.ValidateFacilities()
}

func (c *Config) validateCommon() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.SourceCRS == "" || c.TargetCRS == "" {
		return fmt.Errorf("source and target CRS are required")
	}
	return nil
}
