package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "healthpass/pkg/domain-errors"
)

func TestParseOwnerID(t *testing.T) {
	raw := uuid.New()
	id, err := ParseOwnerID(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw.String(), id.String())
	assert.False(t, id.IsNil())
}

func TestParseOwnerIDRejectsEmpty(t *testing.T) {
	_, err := ParseOwnerID("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestParseCredentialIDRejectsMalformed(t *testing.T) {
	_, err := ParseCredentialID("not-a-uuid")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestNewCredentialIDIsUnique(t *testing.T) {
	a := NewCredentialID()
	b := NewCredentialID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsNil())
}

func TestNilUUIDParsesButIsNil(t *testing.T) {
	id, err := ParseOwnerID(uuid.Nil.String())
	require.NoError(t, err)
	assert.True(t, id.IsNil())
}
