package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"community-bot/internal/common/i18n"
	"community-bot/internal/workers"
)

var (
	// ErrMessageNotFound is reported by a Messenger when the channel or the
	// message no longer exists.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMemberNotFound is reported by MemberRoles for users outside the guild.
	ErrMemberNotFound = errors.New("member not found")
	// ErrNotLinked is reported by LinkedAccounts when the user never
	// authorized the bot.
	ErrNotLinked = errors.New("account not linked")
)

// Messenger posts and edits announcement messages.
type Messenger interface {
	SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, edit *discordgo.MessageEdit) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// EditInteractionReply replaces the original response of an interaction.
	EditInteractionReply(ctx context.Context, appID, token, content string, components []discordgo.MessageComponent) error
}

type MemberRoles interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// LinkedAccounts returns the ids of the third-party accounts of platform
// linked to the user's Discord profile.
type LinkedAccounts interface {
	Connections(ctx context.Context, userID, platform string) ([]string, error)
}

type SettingsReader interface {
	Get(key string) string
}

type Translator interface {
	Translate(key string, params i18n.Params, locale string) string
}

type DuePublisher interface {
	Publish(ctx context.Context, ev workers.DueEvent) error
}

// PendingStore keeps join attempts waiting for an external authorization.
type PendingStore interface {
	Put(ctx context.Context, p PendingAuthorization) error
	Take(ctx context.Context, userID string) (*PendingAuthorization, error)
}
