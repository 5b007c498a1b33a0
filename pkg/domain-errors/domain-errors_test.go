package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(CodeNotFound, "credential not found")
	require.Error(t, err)
	assert.Equal(t, "credential not found", err.Error())
	assert.True(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(err, CodeInternal))
}

func TestWrapPreservesOriginalCode(t *testing.T) {
	inner := New(CodeInvalidDuration, "duration not in allowed set")
	wrapped := Wrap(inner, CodeInternal, "issue failed")

	// Wrapping a domain error must not launder its code.
	assert.True(t, HasCode(wrapped, CodeInvalidDuration))
	assert.False(t, HasCode(wrapped, CodeInternal))
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrapAssignsCodeToPlainErrors(t *testing.T) {
	inner := fmt.Errorf("pq: connection refused")
	wrapped := Wrap(inner, CodeInternal, "store unavailable")

	assert.True(t, HasCode(wrapped, CodeInternal))
	assert.ErrorIs(t, wrapped, inner)
	assert.Equal(t, "store unavailable", wrapped.Error())
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeConflict, "pin already active")
	b := New(CodeConflict, "different message")
	assert.True(t, errors.Is(a, b))

	c := New(CodeNotFound, "x")
	assert.False(t, errors.Is(a, c))
}

func TestErrorFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeInternal}
	assert.Equal(t, "internal_error", err.Error())
}
