// Package solver computes camper-to-bunk assignments for one session/year.
// The decision model is one placement per camper over the session's bunk
// plans, with hard constraints on capacity, eligibility, minimum occupancy,
// and locked groups, and a weighted objective over satisfied requests.
package solver

import (
	"github.com/campwire/bunkmate/internal/config"
)

// ConstraintKind names one constraint in the registry. The set is fixed;
// configuration selects each kind's mode and weight but can never introduce
// behavior by key-name pattern.
type ConstraintKind string

// Constraint kinds. The first five are structurally hard; the rest carry a
// configurable hard|soft mode.
const (
	KindOneBunk         ConstraintKind = "one_bunk"
	KindCapacity        ConstraintKind = "capacity"
	KindEligibility     ConstraintKind = "eligibility"
	KindHardMinimum     ConstraintKind = "hard_minimum"
	KindLockedGroup     ConstraintKind = "locked_group"
	KindUnderPreferred  ConstraintKind = "under_preferred"
	KindAgeSpread       ConstraintKind = "age_spread"
	KindGradeSpread     ConstraintKind = "grade_spread"
	KindGradeRatio      ConstraintKind = "grade_ratio"
	KindLevelRegression ConstraintKind = "level_regression"
)

// Mode selects whether a violation is infeasibility or a penalty.
type Mode string

// Constraint modes.
const (
	ModeHard Mode = "hard"
	ModeSoft Mode = "soft"
)

// Constraint is one registry entry with its typed parameters resolved from
// configuration.
type Constraint struct {
	Kind   ConstraintKind
	Mode   Mode
	Weight float64 // penalty per unit of violation, soft mode only
	Limit  float64 // kind-specific threshold (max spread, max share)
}

// Constraints resolves the full registry against a configuration snapshot.
func Constraints(cfg *config.Snapshot) map[ConstraintKind]Constraint {
	reg := map[ConstraintKind]Constraint{
		KindOneBunk:     {Kind: KindOneBunk, Mode: ModeHard},
		KindCapacity:    {Kind: KindCapacity, Mode: ModeHard},
		KindEligibility: {Kind: KindEligibility, Mode: ModeHard},
		KindHardMinimum: {Kind: KindHardMinimum, Mode: ModeHard},
		KindLockedGroup: {Kind: KindLockedGroup, Mode: ModeHard},
		KindUnderPreferred: {
			Kind:   KindUnderPreferred,
			Mode:   Mode(cfg.String("solver", "occupancy", "under_preferred_mode")),
			Weight: cfg.Float("solver", "occupancy", "under_preferred_weight"),
		},
		KindAgeSpread: {
			Kind:   KindAgeSpread,
			Mode:   Mode(cfg.String("solver", "spread", "age_mode")),
			Weight: cfg.Float("solver", "spread", "age_weight"),
			Limit:  cfg.Float("solver", "spread", "age_max"),
		},
		KindGradeSpread: {
			Kind:   KindGradeSpread,
			Mode:   Mode(cfg.String("solver", "spread", "grade_mode")),
			Weight: cfg.Float("solver", "spread", "grade_weight"),
			Limit:  float64(cfg.Int("solver", "spread", "grade_max")),
		},
		KindGradeRatio: {
			Kind:   KindGradeRatio,
			Mode:   Mode(cfg.String("solver", "ratio", "grade_mode")),
			Weight: cfg.Float("solver", "ratio", "grade_weight"),
			Limit:  cfg.Float("solver", "ratio", "grade_max_share"),
		},
		KindLevelRegression: {
			Kind:   KindLevelRegression,
			Mode:   Mode(cfg.String("solver", "level", "regression_mode")),
			Weight: cfg.Float("solver", "level", "regression_weight"),
		},
	}
	return reg
}
