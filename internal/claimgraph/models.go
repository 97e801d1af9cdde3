package claimgraph

import (
	"time"

	id "lineageforge/pkg/domain"
)

// OntologyVersion identifies the predicate vocabulary this package accepts.
const OntologyVersion = "0.1.0"

// Predicate is a term from the closed claim vocabulary.
type Predicate string

const (
	// Identity
	PredicateHasName      Predicate = "has_name"
	PredicateHasGivenName Predicate = "has_given_name"
	PredicateHasSurname   Predicate = "has_surname"
	PredicateHasGender    Predicate = "has_gender"

	// Vital events
	PredicateBornOn    Predicate = "born_on"
	PredicateBornAt    Predicate = "born_at"
	PredicateDiedOn    Predicate = "died_on"
	PredicateDiedAt    Predicate = "died_at"
	PredicateMarriedOn Predicate = "married_on"
	PredicateMarriedAt Predicate = "married_at"
	PredicateBuriedAt  Predicate = "buried_at"

	// Relationships
	PredicateParentOf  Predicate = "parent_of"
	PredicateChildOf   Predicate = "child_of"
	PredicateSpouseOf  Predicate = "spouse_of"
	PredicateSiblingOf Predicate = "sibling_of"
	PredicateRelatedTo Predicate = "related_to"
	PredicateSameAs    Predicate = "same_as"

	// Geographic
	PredicateResidedAt    Predicate = "resided_at"
	PredicateMigratedFrom Predicate = "migrated_from"
	PredicateMigratedTo   Predicate = "migrated_to"

	// Occupational
	PredicateOccupation Predicate = "occupation"
)

type predicateKind int

const (
	kindAttribute predicateKind = iota
	kindName
	kindRelational
)

// predicates is the single source of truth for the vocabulary.
var predicates = map[Predicate]predicateKind{
	PredicateHasName:      kindName,
	PredicateHasGivenName: kindName,
	PredicateHasSurname:   kindName,
	PredicateHasGender:    kindAttribute,
	PredicateBornOn:       kindAttribute,
	PredicateBornAt:       kindAttribute,
	PredicateDiedOn:       kindAttribute,
	PredicateDiedAt:       kindAttribute,
	PredicateMarriedOn:    kindAttribute,
	PredicateMarriedAt:    kindAttribute,
	PredicateBuriedAt:     kindAttribute,
	PredicateParentOf:     kindRelational,
	PredicateChildOf:      kindRelational,
	PredicateSpouseOf:     kindRelational,
	PredicateSiblingOf:    kindRelational,
	PredicateRelatedTo:    kindRelational,
	PredicateSameAs:       kindRelational,
	PredicateResidedAt:    kindAttribute,
	PredicateMigratedFrom: kindAttribute,
	PredicateMigratedTo:   kindAttribute,
	PredicateOccupation:   kindAttribute,
}

func (p Predicate) IsValid() bool {
	_, ok := predicates[p]
	return ok
}

// IsNameFamily reports whether claims with this predicate carry a name.
func (p Predicate) IsNameFamily() bool { return predicates[p] == kindName }

// IsRelational reports whether the predicate links two persons (ObjectID).
func (p Predicate) IsRelational() bool { return predicates[p] == kindRelational }

// IsPlaceBearing reports whether the predicate's claims locate an event.
func (p Predicate) IsPlaceBearing() bool {
	switch p {
	case PredicateBornAt, PredicateDiedAt, PredicateMarriedAt, PredicateBuriedAt,
		PredicateResidedAt, PredicateMigratedFrom, PredicateMigratedTo,
		PredicateBornOn, PredicateDiedOn:
		return true
	}
	return false
}

// IsDated reports whether the predicate's literal value is a date.
func (p Predicate) IsDated() bool {
	return p == PredicateBornOn || p == PredicateDiedOn || p == PredicateMarriedOn
}

// ConfidenceLevel is the categorical label stored next to a numeric confidence.
type ConfidenceLevel string

const (
	ConfidenceDefinite    ConfidenceLevel = "definite"
	ConfidenceHigh        ConfidenceLevel = "high"
	ConfidenceModerate    ConfidenceLevel = "moderate"
	ConfidenceLow         ConfidenceLevel = "low"
	ConfidenceSpeculative ConfidenceLevel = "speculative"
)

var confidenceScores = map[ConfidenceLevel]float64{
	ConfidenceDefinite:    1.0,
	ConfidenceHigh:        0.9,
	ConfidenceModerate:    0.65,
	ConfidenceLow:         0.35,
	ConfidenceSpeculative: 0.15,
}

func (l ConfidenceLevel) IsValid() bool {
	_, ok := confidenceScores[l]
	return ok
}

// Score returns the representative numeric confidence for the level.
func (l ConfidenceLevel) Score() float64 { return confidenceScores[l] }

// LevelForScore maps a numeric confidence onto its categorical level.
func LevelForScore(score float64) ConfidenceLevel {
	switch {
	case score >= 1.0:
		return ConfidenceDefinite
	case score >= 0.8:
		return ConfidenceHigh
	case score >= 0.5:
		return ConfidenceModerate
	case score >= 0.2:
		return ConfidenceLow
	default:
		return ConfidenceSpeculative
	}
}

// Person is an identity node. Inactive persons have been merged away and point
// at their survivor through MergedInto.
type Person struct {
	ID         id.PersonID  `json:"person_id"`
	IsActive   bool         `json:"is_active"`
	MergedInto *id.PersonID `json:"merged_into,omitempty"`
}

// Claim is a sourced assertion about a person. Exactly one of ObjectID and
// ObjectValue is set. Only SubjectID and ObjectID ever change after ingestion,
// and only through Snapshot.TransferOwnership.
type Claim struct {
	ID              id.ClaimID      `json:"claim_id"`
	SubjectID       id.PersonID     `json:"subject_id"`
	Predicate       Predicate       `json:"predicate"`
	ObjectID        *id.PersonID    `json:"object_id,omitempty"`
	ObjectValue     *string         `json:"object_value,omitempty"`
	SourceID        id.SourceID     `json:"source_id"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	TimeStart       *time.Time      `json:"time_start,omitempty"`
	TimeEnd         *time.Time      `json:"time_end,omitempty"`
	PlaceID         *id.PlaceID     `json:"place_id,omitempty"`
	PlaceName       string          `json:"place_name,omitempty"`
	Rationale       string          `json:"rationale,omitempty"`
}

// Value returns the literal object value, or "" for relational claims.
func (c Claim) Value() string {
	if c.ObjectValue == nil {
		return ""
	}
	return *c.ObjectValue
}

// Object returns the referenced person for relational claims.
func (c Claim) Object() (id.PersonID, bool) {
	if c.ObjectID == nil {
		return id.PersonID{}, false
	}
	return *c.ObjectID, true
}

// Date returns the date the claim asserts: the parsed literal value for dated
// predicates, otherwise TimeStart.
func (c Claim) Date() (Date, bool) {
	if c.Predicate.IsDated() && c.ObjectValue != nil {
		if d, ok := ParseDate(*c.ObjectValue); ok {
			return d, true
		}
	}
	if c.TimeStart != nil {
		return Date{Time: c.TimeStart.UTC(), Precision: PrecisionDay}, true
	}
	return Date{}, false
}

// PlaceKey identifies the claim's place for comparison: the place id when
// present, else the normalized place name, else a normalized literal for
// *_at predicates.
func (c Claim) PlaceKey() (string, bool) {
	if c.PlaceID != nil && !c.PlaceID.IsNil() {
		return "id:" + c.PlaceID.String(), true
	}
	if name := NormalizePlace(c.PlaceName); name != "" {
		return "name:" + name, true
	}
	if c.Predicate.IsPlaceBearing() && !c.Predicate.IsDated() && c.ObjectValue != nil {
		if name := NormalizePlace(*c.ObjectValue); name != "" {
			return "name:" + name, true
		}
	}
	return "", false
}
