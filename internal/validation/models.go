package validation

import (
	"slices"

	"lineageforge/internal/claimgraph"
	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

// FlagType names the rule family that raised a flag.
type FlagType string

const (
	FlagLifespanInvalid     FlagType = "lifespan_invalid"
	FlagGenerationalSpacing FlagType = "generational_spacing_invalid"
	FlagTemporalImpossible  FlagType = "temporal_impossible"
	FlagCircularRelation    FlagType = "circular_relationship"
	FlagConflictingClaims   FlagType = "conflicting_claims"
)

// AllFlagTypes lists the rule families in evaluation order.
var AllFlagTypes = []FlagType{
	FlagLifespanInvalid,
	FlagGenerationalSpacing,
	FlagTemporalImpossible,
	FlagCircularRelation,
	FlagConflictingClaims,
}

func (t FlagType) IsValid() bool { return slices.Contains(AllFlagTypes, t) }

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Flag is a validation finding. Flags describe the graph; they never stop a run.
type Flag struct {
	ID        id.FlagID         `json:"flag_id"`
	RunID     id.RunID          `json:"run_id"`
	Type      FlagType          `json:"flag_type"`
	Severity  Severity          `json:"severity"`
	PersonIDs []id.PersonID     `json:"person_ids"`
	ClaimIDs  []id.ClaimID      `json:"claim_ids"`
	Rationale string            `json:"rationale"`
	Details   map[string]string `json:"details,omitempty"`
}

// RuleConfig tunes the rule families.
type RuleConfig struct {
	RunID                    id.RunID               `json:"run_id"`
	LifespanMaxYears         int                    `json:"lifespan_max_years"`
	GenerationalMinYears     int                    `json:"generational_min_years"`
	GenerationalMaxYears     int                    `json:"generational_max_years"`
	Disabled                 []FlagType             `json:"disabled_rules,omitempty"`
	ConflictExemptPredicates []claimgraph.Predicate `json:"conflict_exempt_predicates,omitempty"`
}

const (
	DefaultLifespanMaxYears     = 120
	DefaultGenerationalMinYears = 10
	DefaultGenerationalMaxYears = 60
)

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		LifespanMaxYears:     DefaultLifespanMaxYears,
		GenerationalMinYears: DefaultGenerationalMinYears,
		GenerationalMaxYears: DefaultGenerationalMaxYears,
	}
}

// Validate rejects thresholds that cannot describe a human life.
func (c RuleConfig) Validate() error {
	if c.LifespanMaxYears <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "lifespan_max_years must be positive")
	}
	if c.GenerationalMinYears < 0 || c.GenerationalMaxYears <= c.GenerationalMinYears {
		return dErrors.New(dErrors.CodeInvalidInput, "generational bounds must satisfy 0 <= min < max")
	}
	for _, t := range c.Disabled {
		if !t.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "unknown rule: "+string(t))
		}
	}
	for _, p := range c.ConflictExemptPredicates {
		if !p.IsValid() {
			return dErrors.New(dErrors.CodeInvalidInput, "unknown predicate: "+string(p))
		}
	}
	return nil
}

func (c RuleConfig) enabled(t FlagType) bool { return !slices.Contains(c.Disabled, t) }

// Summary is the run-level count of what validation saw and raised.
type Summary struct {
	PersonsValidated int              `json:"persons_validated"`
	ClaimsExamined   int              `json:"claims_examined"`
	FlagsByType      map[FlagType]int `json:"flags_by_type"`
	Errors           int              `json:"errors"`
	Warnings         int              `json:"warnings"`
}

type Result struct {
	RunID   id.RunID `json:"run_id"`
	Flags   []Flag   `json:"flags"`
	Summary Summary  `json:"summary"`
}
