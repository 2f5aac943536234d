package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cnpjota/pkg/domain-errors"
)

// TestParseAccountID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
//
// Justification: API keys resolve to account ids at a trust boundary.
func TestParseAccountID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseAccountID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAccountID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.New()
		id, err := ParseAccountID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, AccountID(raw), id)
		assert.Equal(t, raw.String(), id.String())
		assert.False(t, id.IsNil())
	})
}

func TestParseAPIKeyID(t *testing.T) {
	raw := uuid.New()
	id, err := ParseAPIKeyID(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw.String(), id.String())

	_, err = ParseAPIKeyID("cnpj_abc")
	require.Error(t, err)
}

func TestAccountIDJSON(t *testing.T) {
	id := NewAccountID()
	raw, err := json.Marshal(map[string]AccountID{"subject_id": id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"subject_id":"`+id.String()+`"}`, string(raw))

	var decoded struct {
		SubjectID AccountID `json:"subject_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, id, decoded.SubjectID)

	err = json.Unmarshal([]byte(`{"subject_id":"nope"}`), &decoded)
	assert.Error(t, err)
}
