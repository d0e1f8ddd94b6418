package config

import (
	"context"
	"fmt"
	"strconv"

	"github.com/campwire/bunkmate/internal/common"
	"github.com/campwire/bunkmate/internal/service"
)

// Snapshot is an immutable, validated view of every configuration value at a
// point in time. Each pipeline and solver run captures one at start so
// concurrent edits never change the semantics of in-flight work.
type Snapshot struct {
	values map[Key]string
	defs   map[Key]Definition
}

// Load reads all persisted values, fills registry defaults for missing keys,
// validates the result, and returns the snapshot. A value of the wrong type
// or outside its bounds is an error here, never a silent default downstream.
func Load(ctx context.Context, storage service.Storage) (*Snapshot, error) {
	stored, err := storage.AllConfigValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	s := &Snapshot{
		values: make(map[Key]string),
		defs:   make(map[Key]Definition),
	}
	for _, def := range Registry() {
		s.defs[def.Key] = def
		if v, ok := stored[def.Key.Path()]; ok {
			s.values[def.Key] = v
		} else {
			s.values[def.Key] = def.Default
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every value against its definition plus the cross-key
// threshold ordering rules.
func (s *Snapshot) Validate() error {
	for key, raw := range s.values {
		def := s.defs[key]
		if err := validateValue(def, raw); err != nil {
			return fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, key.Path(), err)
		}
	}

	// Thresholds form one ordered list: auto-accept above resolve, in both
	// the name resolver and the pipeline outcome tiers.
	pairs := [][2]Key{
		{{"names", "resolution", "auto_threshold"}, {"names", "resolution", "resolve_threshold"}},
		{{"pipeline", "thresholds", "auto_accept"}, {"pipeline", "thresholds", "resolve"}},
	}
	for _, pair := range pairs {
		upper := s.Float(pair[0].Category, pair[0].Subcategory, pair[0].Name)
		lower := s.Float(pair[1].Category, pair[1].Subcategory, pair[1].Name)
		if upper < lower {
			return fmt.Errorf("%w: %s (%.2f) must not be below %s (%.2f)",
				common.ErrInvalidConfig, pair[0].Path(), upper, pair[1].Path(), lower)
		}
	}
	return nil
}

func validateValue(def Definition, raw string) error {
	switch def.Type {
	case TypeBool:
		if _, err := strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("expected bool, got %q", raw)
		}
	case TypeInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("expected int, got %q", raw)
		}
		return checkBounds(def, float64(n))
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("expected float, got %q", raw)
		}
		return checkBounds(def, f)
	case TypeEnum:
		for _, allowed := range def.Enum {
			if raw == allowed {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %v", raw, def.Enum)
	case TypeString:
		// Any string is acceptable.
	}
	return nil
}

func checkBounds(def Definition, v float64) error {
	if def.Min != nil && v < *def.Min {
		return fmt.Errorf("%v is below minimum %v", v, *def.Min)
	}
	if def.Max != nil && v > *def.Max {
		return fmt.Errorf("%v is above maximum %v", v, *def.Max)
	}
	return nil
}

func (s *Snapshot) raw(category, subcategory, name string) string {
	key := Key{category, subcategory, name}
	if v, ok := s.values[key]; ok {
		return v
	}
	// Unregistered key: a programming error, surfaced loudly in tests.
	panic(fmt.Sprintf("config: unregistered key %s", key.Path()))
}

// Float returns a float value. The snapshot was validated at load, so parse
// failures cannot occur here.
func (s *Snapshot) Float(category, subcategory, name string) float64 {
	f, _ := strconv.ParseFloat(s.raw(category, subcategory, name), 64)
	return f
}

// Int returns an int value.
func (s *Snapshot) Int(category, subcategory, name string) int {
	n, _ := strconv.Atoi(s.raw(category, subcategory, name))
	return n
}

// Bool returns a bool value.
func (s *Snapshot) Bool(category, subcategory, name string) bool {
	b, _ := strconv.ParseBool(s.raw(category, subcategory, name))
	return b
}

// String returns a string or enum value.
func (s *Snapshot) String(category, subcategory, name string) string {
	return s.raw(category, subcategory, name)
}

// Set validates and persists one value by dotted path.
func Set(ctx context.Context, storage service.Storage, path, value string) error {
	def, ok := Lookup(path)
	if !ok {
		return fmt.Errorf("%w: unknown key %s", common.ErrInvalidConfig, path)
	}
	if err := validateValue(def, value); err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, path, err)
	}
	return storage.SetConfigValue(ctx, def.Key.Category, def.Key.Subcategory, def.Key.Name, value)
}
