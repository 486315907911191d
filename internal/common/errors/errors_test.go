package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatchesThroughWrapping(t *testing.T) {
	errEnded := Sentinel(ErrCodeGiveawayEnded, "giveaway has ended")
	wrapped := fmt.Errorf("join 12: %w", errEnded)

	assert.True(t, stderrors.Is(wrapped, errEnded))
	assert.False(t, stderrors.Is(wrapped, Sentinel(ErrCodeGiveawayEnded, "other message")))
	assert.Equal(t, ErrCodeGiveawayEnded, CodeOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewDatabaseError("create entry", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "DATABASE_ERROR")
	assert.True(t, err.IsInternal())
	assert.Equal(t, "create entry", err.Details["operation"])
}

func TestAsAppError(t *testing.T) {
	_, ok := AsAppError(nil)
	assert.False(t, ok)

	_, ok = AsAppError(stderrors.New("plain"))
	assert.False(t, ok)

	appErr, ok := AsAppError(fmt.Errorf("outer: %w", Sentinel(ErrCodeConfiguration, "tier 3 role is not configured")))
	require.True(t, ok)
	assert.Equal(t, ErrCodeConfiguration, appErr.Code)
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestClassification(t *testing.T) {
	assert.True(t, New(ErrCodeIneligible, "x").IsEligibility())
	assert.True(t, New(ErrCodeAlreadyJoined, "x").IsEligibility())
	assert.False(t, New(ErrCodeConfiguration, "x").IsEligibility())
	assert.True(t, New(ErrCodeGiveawayNotFound, "x").IsNotFound())
	assert.True(t, NewValidationError("prize", "empty").IsValidation())
}
