package service

import (
	"errors"

	apperrors "community-bot/internal/common/errors"
)

var (
	ErrGiveawayNotFound = apperrors.Sentinel(apperrors.ErrCodeGiveawayNotFound, "giveaway not found")
	ErrGiveawayEnded    = apperrors.Sentinel(apperrors.ErrCodeGiveawayEnded, "giveaway has already ended")
	ErrNotSubscriber    = apperrors.Sentinel(apperrors.ErrCodeIneligible, "member is not a subscriber")
	// ErrSubscriberRolesNotConfigured is a configuration problem an
	// administrator must fix, not an eligibility failure.
	ErrSubscriberRolesNotConfigured = apperrors.Sentinel(apperrors.ErrCodeConfiguration, "subscriber roles are not configured")
	ErrCannotEditEnded              = apperrors.Sentinel(apperrors.ErrCodeConflict, "ended giveaways cannot be edited")
	ErrInvalidChannel               = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid channel or missing permissions")
)

// MessageKey maps a service error to its translation key.
func MessageKey(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrGiveawayNotFound):
		return "giveawayNotFound"
	case errors.Is(err, ErrGiveawayEnded):
		return "giveawayAlreadyEnded"
	case errors.Is(err, ErrNotSubscriber):
		return "giveawayNotSubscriber"
	case errors.Is(err, ErrSubscriberRolesNotConfigured):
		return "giveawaySubNotConfigured"
	case errors.Is(err, ErrCannotEditEnded):
		return "giveawayCannotEditEnded"
	case errors.Is(err, ErrInvalidChannel):
		return "invalidChannelOrPermissions"
	case errors.Is(err, ErrMemberNotFound):
		return "userNotFound"
	}
	return "errorHappen"
}
