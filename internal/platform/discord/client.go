// Package discord adapts a discordgo session to the messaging and member
// lookups the giveaway service needs.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/common/logger"
	"community-bot/internal/features/giveaway/service"
)

type Client struct {
	session *discordgo.Session
	edits   *rate.Limiter
}

// NewClient shares one edit budget between every giveaway. editsPerSecond
// below or equal to zero disables the limit.
func NewClient(session *discordgo.Session, editsPerSecond float64, burst int) *Client {
	limit := rate.Inf
	if editsPerSecond > 0 {
		limit = rate.Limit(editsPerSecond)
	}
	return &Client{
		session: session,
		edits:   rate.NewLimiter(limit, max(burst, 1)),
	}
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg *discordgo.MessageSend) (string, error) {
	m, err := c.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return m.ID, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, edit *discordgo.MessageEdit) error {
	if err := c.edits.Wait(ctx); err != nil {
		return err
	}
	edit.Channel = channelID
	edit.ID = messageID
	if _, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapError(c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Client) EditInteractionReply(ctx context.Context, appID, token, content string, components []discordgo.MessageComponent) error {
	interaction := &discordgo.Interaction{AppID: appID, Token: token}
	_, err := c.session.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return mapError(err)
}

// MemberRoles reads the roles from the gateway cache and falls back to REST.
func (c *Client) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if c.session.State != nil {
		if m, err := c.session.State.Member(guildID, userID); err == nil {
			return m.Roles, nil
		}
	}
	m, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return m.Roles, nil
}

var (
	_ service.Messenger   = (*Client)(nil)
	_ service.MemberRoles = (*Client)(nil)
)

// mapError turns Discord "unknown resource" answers into service errors
// and classifies other REST failures.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return fmt.Errorf("%w: %v", service.ErrMessageNotFound, err)
		case discordgo.ErrCodeUnknownMember:
			return fmt.Errorf("%w: %v", service.ErrMemberNotFound, err)
		}
	}
	if rest.Response != nil && rest.Response.StatusCode == http.StatusTooManyRequests {
		logger.Warn().Err(err).Msg("Discord rate limit hit")
		return apperrors.Wrap(err, apperrors.ErrCodeRateLimit, "Discord rate limit exceeded")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeDiscordAPI, "Discord API request failed")
}
