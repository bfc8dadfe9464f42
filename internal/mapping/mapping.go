package mapping

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Wildcard matches any value of a configured tag key
const Wildcard = "*"

// MaxLabelLength is the longest label a sink column can carry
const MaxLabelLength = 10

var (
	// ErrLabelTooLong is returned when a label exceeds MaxLabelLength
	ErrLabelTooLong = errors.New("activity label too long")
	// ErrInvalidMapping is returned for structurally broken mapping documents
	ErrInvalidMapping = errors.New("invalid tag mapping")
)

// Mapping maps tag key -> tag value (or Wildcard) -> activity labels.
// A Mapping is read-only once loaded.
type Mapping map[string]map[string][]string

// Load reads a tag mapping from a YAML or JSON file and validates it
func Load(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a tag mapping document and validates it
func Parse(data []byte) (Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks label lengths and the document structure
func (m Mapping) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: no tag keys configured", ErrInvalidMapping)
	}
	for key, values := range m {
		if key == "" {
			return fmt.Errorf("%w: empty tag key", ErrInvalidMapping)
		}
		if len(values) == 0 {
			return fmt.Errorf("%w: tag key %q has no values", ErrInvalidMapping, key)
		}
		for value, labels := range values {
			for _, label := range labels {
				if label == "" {
					return fmt.Errorf("%w: empty label for %s=%s", ErrInvalidMapping, key, value)
				}
				if len(label) > MaxLabelLength {
					return fmt.Errorf("%w: %q for %s=%s (max %d characters)",
						ErrLabelTooLong, label, key, value, MaxLabelLength)
				}
			}
		}
	}
	return nil
}

// LabelsOf returns the wildcard labels of key unioned with the labels of key=value.
// The result is empty when neither is configured.
func (m Mapping) LabelsOf(key, value string) []string {
	values, ok := m[key]
	if !ok {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(labels []string) {
		for _, l := range labels {
			if _, dup := seen[l]; !dup {
				seen[l] = struct{}{}
				out = append(out, l)
			}
		}
	}
	add(values[Wildcard])
	if value != Wildcard {
		add(values[value])
	}
	return out
}

// Matches reports whether key=value is configured, either exactly or by wildcard
func (m Mapping) Matches(key, value string) bool {
	values, ok := m[key]
	if !ok {
		return false
	}
	if _, ok := values[Wildcard]; ok {
		return true
	}
	_, ok = values[value]
	return ok
}

// Keys returns the configured tag keys in ascending order
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
