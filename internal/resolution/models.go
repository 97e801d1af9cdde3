package resolution

import (
	"math"
	"runtime"
	"time"

	id "lineageforge/pkg/domain"
	dErrors "lineageforge/pkg/domain-errors"
)

// State is a resolution run's lifecycle stage.
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateBlocking    State = "BLOCKING"
	StateScoring     State = "SCORING"
	StateMerging     State = "MERGING"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
)

// Pair is an unordered candidate pair stored with A < B.
type Pair struct {
	A id.PersonID `json:"a"`
	B id.PersonID `json:"b"`
}

// NewPair orders x and y so equal pairs compare equal.
func NewPair(x, y id.PersonID) Pair {
	if y.Less(x) {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

func (p Pair) Less(o Pair) bool {
	if p.A != o.A {
		return p.A.Less(o.A)
	}
	return p.B.Less(o.B)
}

func (p Pair) Has(pid id.PersonID) bool { return p.A == pid || p.B == pid }

// Weights combine the four feature scores into the final score.
type Weights struct {
	Name       float64 `json:"name"`
	Date       float64 `json:"date"`
	Place      float64 `json:"place"`
	Relational float64 `json:"relational"`
}

// DefaultWeights sum to one.
var DefaultWeights = Weights{Name: 0.40, Date: 0.30, Place: 0.20, Relational: 0.10}

// Features are the per-feature similarity scores, each in [0,1].
type Features struct {
	Name       float64 `json:"name"`
	Date       float64 `json:"date"`
	Place      float64 `json:"place"`
	Relational float64 `json:"relational"`
}

// Breakdown is the full scoring record for a pair, kept for audit and preview
// whether or not the pair merges.
type Breakdown struct {
	Pair     Pair     `json:"pair"`
	Features Features `json:"features"`
	Score    float64  `json:"score"`
}

// MergeEvent is the audit record of one executed merge.
type MergeEvent struct {
	ID                      id.MergeID   `json:"merge_id"`
	RunID                   id.RunID     `json:"run_id"`
	SourcePersonID          id.PersonID  `json:"source_person_id"`
	TargetPersonID          id.PersonID  `json:"target_person_id"`
	Score                   float64      `json:"score"`
	Features                Features     `json:"features"`
	Threshold               float64      `json:"threshold"`
	Timestamp               time.Time    `json:"timestamp"`
	Rationale               string       `json:"rationale"`
	Method                  string       `json:"method"`
	PerformedBy             string       `json:"performed_by"`
	ReassignedSubjectClaims []id.ClaimID `json:"reassigned_subject_claims"`
	ReassignedObjectClaims  []id.ClaimID `json:"reassigned_object_claims"`
}

// Summary carries the counts a Run record needs.
type Summary struct {
	PersonsScanned      int `json:"persons_scanned"`
	CandidatesGenerated int `json:"candidates_generated"`
	PairsScored         int `json:"pairs_scored"`
	MergesExecuted      int `json:"merges_executed"`
	BelowThreshold      int `json:"below_threshold"`
	SkippedInactive     int `json:"skipped_inactive"`
	Passes              int `json:"passes"`
}

// Result is everything a resolution run returns to its caller.
type Result struct {
	RunID   id.RunID     `json:"run_id"`
	States  []State      `json:"states"`
	Events  []MergeEvent `json:"merge_events"`
	Scored  []Breakdown  `json:"scored_pairs"`
	Summary Summary      `json:"summary"`
}

// State returns the last state the run reached.
func (r *Result) State() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

func (r *Result) transition(s State) {
	if r.State() != s {
		r.States = append(r.States, s)
	}
}

// Options configure a single resolution run.
type Options struct {
	RunID                  id.RunID `json:"run_id"`
	Threshold              float64  `json:"merge_threshold"`
	MinNameTokenOverlap    int      `json:"min_name_token_overlap"`
	MaxCandidatesPerPerson int      `json:"max_candidates_per_person"`
	Workers                int      `json:"workers"`
}

// Defaults mirror the recognized configuration options.
const (
	DefaultThreshold              = 0.75
	DefaultMinNameTokenOverlap    = 2
	DefaultMaxCandidatesPerPerson = 100
)

func DefaultOptions() Options {
	return Options{
		Threshold:              DefaultThreshold,
		MinNameTokenOverlap:    DefaultMinNameTokenOverlap,
		MaxCandidatesPerPerson: DefaultMaxCandidatesPerPerson,
	}
}

// Validate rejects options a run cannot honour.
func (o Options) Validate() error {
	if math.IsNaN(o.Threshold) || o.Threshold <= 0 || o.Threshold > 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "merge_threshold must be in (0,1]")
	}
	if o.MinNameTokenOverlap < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "min_name_token_overlap must be at least 1")
	}
	if o.MaxCandidatesPerPerson < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "max_candidates_per_person cannot be negative")
	}
	if o.Workers < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "workers cannot be negative")
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}
