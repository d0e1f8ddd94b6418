// Package config implements the typed configuration store: a fixed registry
// of bounded keys, persisted values, and immutable snapshots captured at the
// start of each pipeline or solver run.
package config

import "fmt"

// ValueType describes how a configuration value is parsed.
type ValueType string

// Value type constants.
const (
	TypeBool   ValueType = "bool"
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeString ValueType = "string"
	TypeEnum   ValueType = "enum"
)

// Key identifies one configuration value.
type Key struct {
	Category    string
	Subcategory string
	Name        string
}

// Path returns the dotted form used in storage and on the CLI.
func (k Key) Path() string {
	return fmt.Sprintf("%s.%s.%s", k.Category, k.Subcategory, k.Name)
}

// Definition is the registry entry for a key: its type, default, bounds,
// and documentation. Every key the application reads appears here; reading
// an unregistered key is a programming error.
type Definition struct {
	Min         *float64
	Max         *float64
	Default     string
	Description string
	Type        ValueType
	Enum        []string
	Key         Key
}

func bound(v float64) *float64 { return &v }

// Registry returns every known configuration key. Numeric sub-weights are
// sample defaults, not business rules; staff tune them per camp.
func Registry() []Definition {
	return []Definition{
		// Name resolution.
		{Key: Key{"names", "resolution", "auto_threshold"}, Type: TypeFloat, Default: "0.9", Min: bound(0), Max: bound(1),
			Description: "minimum top-candidate confidence for automatic resolution"},
		{Key: Key{"names", "resolution", "resolve_threshold"}, Type: TypeFloat, Default: "0.75", Min: bound(0), Max: bound(1),
			Description: "minimum top-candidate confidence worth disambiguating; weaker references report no match"},
		{Key: Key{"names", "resolution", "epsilon"}, Type: TypeFloat, Default: "0.05", Min: bound(0), Max: bound(1),
			Description: "top candidate must beat the runner-up by at least this margin"},
		{Key: Key{"names", "fuzzy", "max_distance"}, Type: TypeInt, Default: "2", Min: bound(0), Max: bound(5),
			Description: "maximum Damerau-Levenshtein distance for a fuzzy name match"},
		{Key: Key{"names", "context", "same_session_boost"}, Type: TypeFloat, Default: "0.1", Min: bound(0), Max: bound(1),
			Description: "confidence boost for candidates enrolled in the requester's session"},
		{Key: Key{"names", "context", "different_session_penalty"}, Type: TypeFloat, Default: "0.15", Min: bound(0), Max: bound(1),
			Description: "confidence penalty for candidates in a different session"},
		{Key: Key{"names", "context", "not_enrolled_penalty"}, Type: TypeFloat, Default: "0.25", Min: bound(0), Max: bound(1),
			Description: "confidence penalty for candidates not currently enrolled"},
		{Key: Key{"names", "graph", "max_hops"}, Type: TypeInt, Default: "3", Min: bound(1), Max: bound(6),
			Description: "relationship-graph search cutoff for the social bonus"},
		{Key: Key{"names", "graph", "max_bonus"}, Type: TypeFloat, Default: "0.15", Min: bound(0), Max: bound(1),
			Description: "cap on the social-graph confidence bonus"},

		// Pipeline confidence combination.
		{Key: Key{"pipeline", "confidence", "name_weight"}, Type: TypeFloat, Default: "0.45", Min: bound(0), Max: bound(1),
			Description: "weight of the name-match score in overall confidence"},
		{Key: Key{"pipeline", "confidence", "extraction_weight"}, Type: TypeFloat, Default: "0.25", Min: bound(0), Max: bound(1),
			Description: "weight of the AI extraction confidence in overall confidence"},
		{Key: Key{"pipeline", "confidence", "context_weight"}, Type: TypeFloat, Default: "0.2", Min: bound(0), Max: bound(1),
			Description: "weight of the contextual (current-year evidence) score"},
		{Key: Key{"pipeline", "confidence", "reciprocal_bonus"}, Type: TypeFloat, Default: "0.1", Min: bound(0), Max: bound(1),
			Description: "bonus when both parties independently requested each other"},
		{Key: Key{"pipeline", "thresholds", "auto_accept"}, Type: TypeFloat, Default: "0.9", Min: bound(0), Max: bound(1),
			Description: "confidence at or above which a request resolves with no review flag"},
		{Key: Key{"pipeline", "thresholds", "resolve"}, Type: TypeFloat, Default: "0.7", Min: bound(0), Max: bound(1),
			Description: "confidence at or above which a request resolves with optional review"},
		{Key: Key{"pipeline", "batch", "size"}, Type: TypeInt, Default: "8", Min: bound(1), Max: bound(64),
			Description: "maximum concurrent AI calls during a pipeline run"},
		{Key: Key{"pipeline", "retry", "max_attempts"}, Type: TypeInt, Default: "3", Min: bound(1), Max: bound(10),
			Description: "retry attempts per AI call before marking the request unresolved"},

		// Solver limits and capacity.
		{Key: Key{"solver", "limits", "time_limit_seconds"}, Type: TypeInt, Default: "60", Min: bound(1), Max: bound(3600),
			Description: "wall-clock budget for one solver run"},
		{Key: Key{"solver", "limits", "seed"}, Type: TypeInt, Default: "1",
			Description: "random seed for deterministic search replay"},
		{Key: Key{"solver", "capacity", "source"}, Type: TypeEnum, Default: "standard", Enum: []string{"standard", "max"},
			Description: "which bunk plan capacity column bounds occupancy"},
		{Key: Key{"solver", "occupancy", "use_all_bunks"}, Type: TypeBool, Default: "false",
			Description: "force every eligible bunk into use when the camper count supports it"},
		{Key: Key{"solver", "occupancy", "under_preferred_mode"}, Type: TypeEnum, Default: "soft", Enum: []string{"hard", "soft"},
			Description: "treatment of occupancy below the preferred minimum"},
		{Key: Key{"solver", "occupancy", "under_preferred_weight"}, Type: TypeFloat, Default: "5", Min: bound(0),
			Description: "penalty per camper short of the preferred minimum"},
		{Key: Key{"solver", "spread", "age_max"}, Type: TypeFloat, Default: "2", Min: bound(0),
			Description: "maximum age spread (years) tolerated in one cabin"},
		{Key: Key{"solver", "spread", "age_mode"}, Type: TypeEnum, Default: "soft", Enum: []string{"hard", "soft"},
			Description: "treatment of the age-spread limit"},
		{Key: Key{"solver", "spread", "age_weight"}, Type: TypeFloat, Default: "10", Min: bound(0),
			Description: "penalty per year of age spread beyond the limit"},
		{Key: Key{"solver", "spread", "grade_max"}, Type: TypeInt, Default: "2", Min: bound(0),
			Description: "maximum grade spread tolerated in one cabin"},
		{Key: Key{"solver", "spread", "grade_mode"}, Type: TypeEnum, Default: "soft", Enum: []string{"hard", "soft"},
			Description: "treatment of the grade-spread limit"},
		{Key: Key{"solver", "spread", "grade_weight"}, Type: TypeFloat, Default: "10", Min: bound(0),
			Description: "penalty per grade of spread beyond the limit"},
		{Key: Key{"solver", "ratio", "grade_max_share"}, Type: TypeFloat, Default: "0.6", Min: bound(0), Max: bound(1),
			Description: "maximum share of one grade in a cabin"},
		{Key: Key{"solver", "ratio", "grade_mode"}, Type: TypeEnum, Default: "soft", Enum: []string{"hard", "soft"},
			Description: "treatment of the grade-ratio limit"},
		{Key: Key{"solver", "ratio", "grade_weight"}, Type: TypeFloat, Default: "8", Min: bound(0),
			Description: "penalty per camper over the grade-ratio limit"},
		{Key: Key{"solver", "level", "regression_mode"}, Type: TypeEnum, Default: "soft", Enum: []string{"hard", "soft"},
			Description: "treatment of returning campers placed below their prior level"},
		{Key: Key{"solver", "level", "regression_weight"}, Type: TypeFloat, Default: "6", Min: bound(0),
			Description: "penalty per level of regression"},

		// Solver objective.
		{Key: Key{"solver", "objective", "zero_satisfaction_penalty"}, Type: TypeFloat, Default: "100", Min: bound(0),
			Description: "penalty for a camper left with no satisfied request"},
		{Key: Key{"solver", "objective", "diminishing_factor"}, Type: TypeFloat, Default: "0.5", Min: bound(0), Max: bound(1),
			Description: "per-rank discount on a camper's 2nd, 3rd+ satisfied request"},
		{Key: Key{"solver", "objective", "ignore_impossible"}, Type: TypeBool, Default: "true",
			Description: "exclude requests for people outside the session from the zero-satisfaction penalty"},
		{Key: Key{"solver", "objective", "fallback_age_preference"}, Type: TypeBool, Default: "true",
			Description: "a satisfied age preference counts against the zero-satisfaction penalty"},
		{Key: Key{"solver", "objective", "multiplier_parent"}, Type: TypeFloat, Default: "1", Min: bound(0),
			Description: "objective multiplier for parent-sourced requests"},
		{Key: Key{"solver", "objective", "multiplier_camper"}, Type: TypeFloat, Default: "1", Min: bound(0),
			Description: "objective multiplier for camper-sourced requests"},
		{Key: Key{"solver", "objective", "multiplier_staff"}, Type: TypeFloat, Default: "1.5", Min: bound(0),
			Description: "objective multiplier for staff-sourced requests"},

		// Scenario management.
		{Key: Key{"scenario", "apply", "delay_seconds"}, Type: TypeInt, Default: "0", Min: bound(0), Max: bound(86400),
			Description: "confirmation delay before a scenario apply reaches production"},
	}
}

// Lookup finds a registry definition by dotted path.
func Lookup(path string) (Definition, bool) {
	for _, def := range Registry() {
		if def.Key.Path() == path {
			return def, true
		}
	}
	return Definition{}, false
}
