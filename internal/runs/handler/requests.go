package handler

import (
	"slices"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/resolution"
	"lineageforge/internal/validation"
	dErrors "lineageforge/pkg/domain-errors"
)

// ResolutionRunRequest is the body of POST /runs/resolution. Omitted fields
// fall back to the configured defaults.
type ResolutionRunRequest struct {
	MergeThreshold         *float64 `json:"merge_threshold,omitempty"`
	MinNameTokenOverlap    *int     `json:"min_name_token_overlap,omitempty"`
	MaxCandidatesPerPerson *int     `json:"max_candidates_per_person,omitempty"`
	Workers                *int     `json:"workers,omitempty"`
}

// Validate implements httputil.Validatable. Range checks are left to
// resolution.Options so the HTTP and CLI paths agree.
func (r *ResolutionRunRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// Options overlays the request on defaults.
func (r *ResolutionRunRequest) Options(defaults resolution.Options) resolution.Options {
	opts := defaults
	if r.MergeThreshold != nil {
		opts.Threshold = *r.MergeThreshold
	}
	if r.MinNameTokenOverlap != nil {
		opts.MinNameTokenOverlap = *r.MinNameTokenOverlap
	}
	if r.MaxCandidatesPerPerson != nil {
		opts.MaxCandidatesPerPerson = *r.MaxCandidatesPerPerson
	}
	if r.Workers != nil {
		opts.Workers = *r.Workers
	}
	return opts
}

// ValidationRunRequest is the body of POST /runs/validation.
type ValidationRunRequest struct {
	LifespanMaxYears         *int     `json:"lifespan_max_years,omitempty"`
	GenerationalMinYears     *int     `json:"generational_min_years,omitempty"`
	GenerationalMaxYears     *int     `json:"generational_max_years,omitempty"`
	DisabledRules            []string `json:"disabled_rules,omitempty"`
	ConflictExemptPredicates []string `json:"conflict_exempt_predicates,omitempty"`
}

func (r *ValidationRunRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.DisabledRules) > len(validation.AllFlagTypes) {
		return dErrors.New(dErrors.CodeValidation, "too many disabled_rules")
	}
	for _, rule := range r.DisabledRules {
		if !validation.FlagType(rule).IsValid() {
			return dErrors.New(dErrors.CodeValidation, "unknown rule: "+rule)
		}
	}
	for _, p := range r.ConflictExemptPredicates {
		if !claimgraph.Predicate(p).IsValid() {
			return dErrors.New(dErrors.CodeValidation, "unknown predicate: "+p)
		}
	}
	return nil
}

// RuleConfig overlays the request on defaults. The defaults are shared across
// requests, so their slices are copied before appending.
func (r *ValidationRunRequest) RuleConfig(defaults validation.RuleConfig) validation.RuleConfig {
	cfg := defaults
	cfg.Disabled = slices.Clone(defaults.Disabled)
	cfg.ConflictExemptPredicates = slices.Clone(defaults.ConflictExemptPredicates)
	if r.LifespanMaxYears != nil {
		cfg.LifespanMaxYears = *r.LifespanMaxYears
	}
	if r.GenerationalMinYears != nil {
		cfg.GenerationalMinYears = *r.GenerationalMinYears
	}
	if r.GenerationalMaxYears != nil {
		cfg.GenerationalMaxYears = *r.GenerationalMaxYears
	}
	for _, rule := range r.DisabledRules {
		cfg.Disabled = append(cfg.Disabled, validation.FlagType(rule))
	}
	for _, p := range r.ConflictExemptPredicates {
		cfg.ConflictExemptPredicates = append(cfg.ConflictExemptPredicates, claimgraph.Predicate(p))
	}
	return cfg
}
