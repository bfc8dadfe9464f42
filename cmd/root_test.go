package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLabelsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	doc := "shop:\n  bakery: [shop_daily]\namenity:\n  school: [edu_prim]\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"labels", "--mapping", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 label lines, got %q", out.String())
	}
	if !strings.Contains(lines[0], "edu_prim") || !strings.Contains(lines[0], "edu_primary") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "shop_daily") || !strings.Contains(lines[1], "shop_other") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestApplyConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "osmfacilities.yaml")
	doc := "workers: 3\nignore-link-types: [motorway, trunk]\nbbox: \"11,48,12,49\"\n"
	if err := os.WriteFile(cfgPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OSMFAC_DB_HOST", "db.example")

	prevCfg, prevFile, prevBBox := *cfg, configFile, bboxStr
	t.Cleanup(func() {
		*cfg = prevCfg
		configFile, bboxStr = prevFile, prevBBox
	})

	configFile = cfgPath
	if err := runCmd.ParseFlags([]string{"--db-port", "6543"}); err != nil {
		t.Fatal(err)
	}
	if err := applyConfig(runCmd); err != nil {
		t.Fatalf("applyConfig() error = %v", err)
	}

	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3 from config file", cfg.Workers)
	}
	if cfg.DBHost != "db.example" {
		t.Errorf("DBHost = %q, want value from environment", cfg.DBHost)
	}
	if cfg.DBPort != 6543 {
		t.Errorf("DBPort = %d, want command line value", cfg.DBPort)
	}
	if strings.Join(cfg.IgnoredLinkTypes, ",") != "motorway,trunk" {
		t.Errorf("IgnoredLinkTypes = %v", cfg.IgnoredLinkTypes)
	}
	if !cfg.BBox.IsSet || cfg.BBox.MinLon != 11 || cfg.BBox.MaxLat != 49 {
		t.Errorf("BBox = %+v", cfg.BBox)
	}
}
