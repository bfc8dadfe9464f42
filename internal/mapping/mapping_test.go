package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleMapping = `{
  "shop": {"*": ["shop"], "bakery": ["shop_daily"], "supermarket": ["shop_daily"]},
  "amenity": {"restaurant": ["dining"], "school": ["edu_prim"]},
  "office": {"*": ["work"]},
  "landuse": {"retail": ["shop"], "commercial": ["work"]}
}`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleMapping))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(m) != 4 {
		t.Errorf("expected 4 keys, got %d", len(m))
	}

	yamlDoc := []byte("shop:\n  \"*\": [shop]\n  bakery: [shop_daily]\n")
	m, err = Parse(yamlDoc)
	if err != nil {
		t.Fatalf("Parse(yaml) error = %v", err)
	}
	if got := m.LabelsOf("shop", "bakery"); !reflect.DeepEqual(got, []string{"shop", "shop_daily"}) {
		t.Errorf("LabelsOf(shop, bakery) = %v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"valid", `{"shop": {"bakery": ["shop_daily"]}}`, nil},
		{"label too long", `{"shop": {"bakery": ["shop_daily_x"]}}`, ErrLabelTooLong},
		{"exactly ten", `{"shop": {"bakery": ["abcdefghij"]}}`, nil},
		{"empty label", `{"shop": {"bakery": [""]}}`, ErrInvalidMapping},
		{"empty key", `{"": {"bakery": ["shop"]}}`, ErrInvalidMapping},
		{"no values", `{"shop": {}}`, ErrInvalidMapping},
		{"empty document", `{}`, ErrInvalidMapping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLabelsOf(t *testing.T) {
	m, err := Parse([]byte(sampleMapping))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key, value string
		want       []string
	}{
		{"shop", "bakery", []string{"shop", "shop_daily"}},
		{"shop", "florist", []string{"shop"}},
		{"amenity", "restaurant", []string{"dining"}},
		{"amenity", "bench", nil},
		{"highway", "primary", nil},
		{"office", "company", []string{"work"}},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got := m.LabelsOf(tt.key, tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LabelsOf(%q, %q) = %v, want %v", tt.key, tt.value, got, tt.want)
			}
			wantMatch := tt.want != nil
			if m.Matches(tt.key, tt.value) != wantMatch {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.key, tt.value, !wantMatch, wantMatch)
			}
		})
	}
}

func TestLabelSpaceDeterministic(t *testing.T) {
	var first []string
	for i := 0; i < 20; i++ {
		m, err := Parse([]byte(sampleMapping))
		if err != nil {
			t.Fatal(err)
		}
		names := NewLabelSpace(m).Names()
		if first == nil {
			first = names
			continue
		}
		if !reflect.DeepEqual(first, names) {
			t.Fatalf("run %d produced %v, first run %v", i, names, first)
		}
	}

	want := []string{"dining", "edu_prim", "shop", "shop_daily", "work"}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("Names() = %v, want %v", first, want)
	}
}

func TestLabelSpaceIndex(t *testing.T) {
	m, _ := Parse([]byte(sampleMapping))
	ls := NewLabelSpace(m)

	if ls.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", ls.Len())
	}
	for i, name := range ls.Names() {
		idx, ok := ls.Index(name)
		if !ok || idx != i {
			t.Errorf("Index(%q) = %d, %v; want %d", name, idx, ok, i)
		}
		if ls.Name(i) != name {
			t.Errorf("Name(%d) = %q, want %q", i, ls.Name(i), name)
		}
	}
	if _, ok := ls.Index("missing"); ok {
		t.Error("Index(missing) should not be found")
	}

	other := LabelSpaceOf([]string{"work", "dining", "shop_daily", "edu_prim", "shop"})
	if !reflect.DeepEqual(other.Names(), ls.Names()) {
		t.Errorf("LabelSpaceOf() = %v, want %v", other.Names(), ls.Names())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	if err := os.WriteFile(path, []byte(sampleMapping), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := m.Keys(); !reflect.DeepEqual(got, []string{"amenity", "landuse", "office", "shop"}) {
		t.Errorf("Keys() = %v", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
