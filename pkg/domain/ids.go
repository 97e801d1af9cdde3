// Package domain holds typed identifiers shared across the resolution and
// validation engines and their collaborators.
//
// Every identifier is a distinct named type over uuid.UUID so a PersonID can
// never be passed where a ClaimID is expected. Construct IDs from external
// input with the Parse* functions; they reject empty, malformed and nil UUIDs.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "lineageforge/pkg/domain-errors"
)

type (
	PersonID uuid.UUID
	ClaimID  uuid.UUID
	SourceID uuid.UUID
	PlaceID  uuid.UUID
	RunID    uuid.UUID
	MergeID  uuid.UUID
	FlagID   uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

// ParsePersonID validates and converts an external person identifier.
func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID("person_id", s)
	return PersonID(u), err
}

func ParseClaimID(s string) (ClaimID, error) {
	u, err := parseUUID("claim_id", s)
	return ClaimID(u), err
}

func ParseSourceID(s string) (SourceID, error) {
	u, err := parseUUID("source_id", s)
	return SourceID(u), err
}

func ParsePlaceID(s string) (PlaceID, error) {
	u, err := parseUUID("place_id", s)
	return PlaceID(u), err
}

func ParseRunID(s string) (RunID, error) {
	u, err := parseUUID("run_id", s)
	return RunID(u), err
}

func NewPersonID() PersonID { return PersonID(uuid.New()) }
func NewClaimID() ClaimID   { return ClaimID(uuid.New()) }
func NewRunID() RunID       { return RunID(uuid.New()) }
func NewMergeID() MergeID   { return MergeID(uuid.New()) }

func (id PersonID) String() string { return uuid.UUID(id).String() }
func (id ClaimID) String() string  { return uuid.UUID(id).String() }
func (id SourceID) String() string { return uuid.UUID(id).String() }
func (id PlaceID) String() string  { return uuid.UUID(id).String() }
func (id RunID) String() string    { return uuid.UUID(id).String() }
func (id MergeID) String() string  { return uuid.UUID(id).String() }
func (id FlagID) String() string   { return uuid.UUID(id).String() }

func (id PersonID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ClaimID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SourceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PlaceID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RunID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Less orders person IDs by canonical string form. All deterministic orderings
// in the engines (pair order, merge survivor, flag order) are built on it.
func (id PersonID) Less(other PersonID) bool { return id.String() < other.String() }

func (id ClaimID) Less(other ClaimID) bool { return id.String() < other.String() }

// MarshalText lets typed IDs round-trip through JSON and YAML as plain strings.
func (id PersonID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ClaimID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id SourceID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id PlaceID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id RunID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id MergeID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id FlagID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *PersonID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ClaimID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SourceID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PlaceID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RunID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MergeID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *FlagID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }

// flagNamespace scopes deterministic flag identifiers.
var flagNamespace = uuid.MustParse("6f1c2b8e-3d4a-5e6f-8a9b-0c1d2e3f4a5b")

// DeterministicFlagID derives a stable FlagID from the parts that identify a
// finding, so re-validating an unchanged graph yields the same identifiers.
func DeterministicFlagID(parts ...string) FlagID {
	return FlagID(uuid.NewSHA1(flagNamespace, []byte(strings.Join(parts, "|"))))
}

var mergeNamespace = uuid.MustParse("0b7e4c2a-91d3-5f48-a6e2-7c3d9f1b2e40")

// DeterministicMergeID derives a stable MergeID for a merge within a run.
func DeterministicMergeID(run RunID, source, target PersonID) MergeID {
	key := run.String() + "|" + source.String() + "|" + target.String()
	return MergeID(uuid.NewSHA1(mergeNamespace, []byte(key)))
}
