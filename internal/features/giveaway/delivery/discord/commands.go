package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"community-bot/internal/common/logger"
	"community-bot/internal/features/settings"
)

const (
	CommandGiveaway = "giveaway"
	CommandConfig   = "config"

	optionID      = "id"
	optionChannel = "channel"
	optionKey     = "key"
	optionValue   = "value"
)

// catalogLocales maps i18n catalog names to Discord locales.
var catalogLocales = map[string]discordgo.Locale{
	"fr": discordgo.French,
	"en": discordgo.EnglishUS,
}

// LocalizedTranslator can list every translation of a key.
type LocalizedTranslator interface {
	All(key string) map[string]string
}

// CommandRegistrar is the subset of the session used to publish commands.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

func localized(tr LocalizedTranslator, key string) *map[discordgo.Locale]string {
	out := map[discordgo.Locale]string{}
	for catalog, msg := range tr.All(key) {
		if loc, ok := catalogLocales[catalog]; ok {
			out[loc] = msg
		}
	}
	return &out
}

func idOption(tr LocalizedTranslator, key string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:                     discordgo.ApplicationCommandOptionString,
		Name:                     optionID,
		Description:              "Giveaway",
		DescriptionLocalizations: *localized(tr, key),
		Required:                 true,
		Autocomplete:             true,
	}
}

func subcommand(tr LocalizedTranslator, name, key string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:                     discordgo.ApplicationCommandOptionSubCommand,
		Name:                     name,
		Description:              name,
		DescriptionLocalizations: *localized(tr, key),
		Options:                  options,
	}
}

// Commands builds the slash commands. Both are restricted to administrators
// by default and unavailable in direct messages.
func Commands(tr LocalizedTranslator) []*discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	dmDisabled := false

	keyChoices := make([]*discordgo.ApplicationCommandOptionChoice, len(settings.Keys))
	for i, k := range settings.Keys {
		keyChoices[i] = &discordgo.ApplicationCommandOptionChoice{Name: k, Value: k}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     CommandGiveaway,
			Description:              "Giveaway",
			DescriptionLocalizations: localized(tr, "giveawaySlashCommand"),
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:                     discordgo.ApplicationCommandOptionSubCommandGroup,
					Name:                     "create",
					Description:              "create",
					DescriptionLocalizations: *localized(tr, "giveawaySlashCommandCreate"),
					Options: []*discordgo.ApplicationCommandOption{
						subcommand(tr, "all", "giveawaySlashCommandCreateAll"),
						subcommand(tr, "sub", "giveawaySlashCommandCreateSub"),
					},
				},
				subcommand(tr, "edit", "giveawaySlashCommandEdit", idOption(tr, "giveawaySlashCommandId")),
				subcommand(tr, "delete", "giveawaySlashCommandDelete", idOption(tr, "giveawaySlashCommandId")),
				subcommand(tr, "roll", "giveawaySlashCommandRoll", idOption(tr, "giveawaySlashCommandId")),
				subcommand(tr, "reroll", "giveawaySlashCommandReroll", idOption(tr, "giveawaySlashCommandId")),
				subcommand(tr, "resend", "giveawaySlashCommandResend",
					idOption(tr, "giveawaySlashCommandId"),
					&discordgo.ApplicationCommandOption{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         optionChannel,
						Description:  "channel",
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
					},
				),
			},
		},
		{
			Name:                     CommandConfig,
			Description:              "Config",
			DescriptionLocalizations: localized(tr, "configSlashCommand"),
			DefaultMemberPermissions: &adminOnly,
			DMPermission:             &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				subcommand(tr, "set", "configSlashCommandSet",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optionKey,
						Description: "key",
						Required:    true,
						Choices:     keyChoices,
					},
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        optionValue,
						Description: "value",
						Required:    true,
					},
				),
				subcommand(tr, "show", "configSlashCommandShow"),
			},
		},
	}
}

// RegisterCommands replaces the application commands of guildID, or the
// global ones when guildID is empty.
func RegisterCommands(ctx context.Context, reg CommandRegistrar, appID, guildID string, tr LocalizedTranslator) error {
	cmds, err := reg.ApplicationCommandBulkOverwrite(appID, guildID, Commands(tr), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	logger.Info().Int("count", len(cmds)).Str("guild_id", guildID).Msg("Slash commands registered")
	return nil
}
