package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lineageforge/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParsePersonID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParsePersonID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParsePersonID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParsePersonID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, PersonID(validUUID), id)
	})
}

func TestParseID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE persons;--", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClaimID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPersonID_Less(t *testing.T) {
	low := PersonID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	high := PersonID(uuid.MustParse("00000000-0000-0000-0000-000000000002"))

	assert.True(t, low.Less(high))
	assert.False(t, high.Less(low))
	assert.False(t, low.Less(low))
}

func TestDeterministicFlagID(t *testing.T) {
	a := DeterministicFlagID("circular_relationship", "p1", "p2")
	b := DeterministicFlagID("circular_relationship", "p1", "p2")
	c := DeterministicFlagID("circular_relationship", "p2", "p1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPersonID_TextRoundTrip(t *testing.T) {
	id := NewPersonID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var decoded PersonID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, id, decoded)
}
