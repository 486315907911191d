package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/features/giveaway/service"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "unknown"},
	}
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)), service.ErrMessageNotFound)
	assert.ErrorIs(t, mapError(restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel)), service.ErrMessageNotFound)
	assert.ErrorIs(t, mapError(restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember)), service.ErrMemberNotFound)

	forbidden := restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess)
	err := mapError(forbidden)
	assert.ErrorIs(t, err, forbidden)
	assert.Equal(t, apperrors.ErrCodeDiscordAPI, apperrors.CodeOf(err))

	limited := restError(http.StatusTooManyRequests, 0)
	assert.Equal(t, apperrors.ErrCodeRateLimit, apperrors.CodeOf(mapError(limited)))

	plain := errors.New("dial tcp: timeout")
	assert.Equal(t, plain, mapError(plain))
}

func TestNewClientLimiter(t *testing.T) {
	c := NewClient(nil, 0, 0)
	assert.Equal(t, 1, c.edits.Burst())

	c = NewClient(nil, 2, 4)
	assert.InDelta(t, 2, float64(c.edits.Limit()), 0.001)
}
