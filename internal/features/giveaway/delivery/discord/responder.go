package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// SessionResponder answers interactions through the REST API of a session.
type SessionResponder struct {
	Session *discordgo.Session
}

func (r SessionResponder) Respond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return r.Session.InteractionRespond(i, resp, discordgo.WithContext(ctx))
}

func (r SessionResponder) Original(ctx context.Context, i *discordgo.Interaction) (*discordgo.Message, error) {
	return r.Session.InteractionResponse(i, discordgo.WithContext(ctx))
}

func (r SessionResponder) EditOriginal(ctx context.Context, i *discordgo.Interaction, edit *discordgo.WebhookEdit) error {
	_, err := r.Session.InteractionResponseEdit(i, edit, discordgo.WithContext(ctx))
	return err
}
