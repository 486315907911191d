package discord

import (
	"github.com/bwmarrin/discordgo"

	"community-bot/internal/features/giveaway/service"
	"community-bot/internal/features/giveaway/wizard"
)

const wizardColor = 0x00AE86

func (r *Router) t(key string, locale string) string {
	return r.tr.Translate(key, nil, locale)
}

// wizardData draws a wizard session as an ephemeral message body.
func (r *Router) wizardData(v wizard.View) *discordgo.InteractionResponseData {
	notSet := r.t("giveawayWizardNotSet", v.Locale)
	fields := make([]*discordgo.MessageEmbedField, 0, len(v.Fields))
	for _, f := range v.Fields {
		value := f.Value
		if !f.Set {
			value = notSet
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   r.t(f.Label, v.Locale),
			Value:  value,
			Inline: true,
		})
	}

	return &discordgo.InteractionResponseData{
		Content: r.t(v.Title, v.Locale),
		Flags:   discordgo.MessageFlagsEphemeral,
		Embeds: []*discordgo.MessageEmbed{{
			Title:  r.t(v.Title, v.Locale),
			Color:  wizardColor,
			Fields: fields,
		}},
		Components: r.wizardComponents(v),
	}
}

func (r *Router) wizardComponents(v wizard.View) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent

	switch v.Input.Kind {
	case wizard.KindModal:
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: v.Input.CustomID,
				Label:    r.t(v.Input.Prompt, v.Locale),
				Style:    discordgo.PrimaryButton,
			},
		}})
	case wizard.KindSelect:
		options := make([]discordgo.SelectMenuOption, len(v.Input.Options))
		for i, o := range v.Input.Options {
			options[i] = discordgo.SelectMenuOption{Label: o, Value: o, Default: o == v.Input.Selected}
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    v.Input.CustomID,
				Placeholder: r.t(v.Input.Prompt, v.Locale),
				Options:     options,
			},
		}})
	case wizard.KindSave:
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: wizard.NavSave,
				Label:    r.t("save", v.Locale),
				Style:    discordgo.SuccessButton,
			},
		}})
	}

	rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: wizard.NavBack,
			Label:    "◀ " + r.t("back", v.Locale),
			Style:    discordgo.SecondaryButton,
			Disabled: v.BackDisabled,
		},
		discordgo.Button{
			CustomID: wizard.NavNext,
			Label:    r.t("next", v.Locale) + " ▶",
			Style:    discordgo.SecondaryButton,
			Disabled: v.NextDisabled,
		},
		discordgo.Button{
			CustomID: wizard.NavCancel,
			Label:    "❌ " + r.t("cancel", v.Locale),
			Style:    discordgo.DangerButton,
		},
	}})
	return rows
}

func (r *Router) modalData(p wizard.ModalPrompt) *discordgo.InteractionResponseData {
	label := r.t(p.Prompt, p.Locale)
	return &discordgo.InteractionResponseData{
		CustomID: p.ModalID,
		Title:    label,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    p.InputID,
					Label:       label,
					Style:       discordgo.TextInputShort,
					Placeholder: p.Placeholder,
					Value:       p.Value,
					MaxLength:   p.MaxLength,
					Required:    true,
				},
			}},
		},
	}
}

// authorizeComponents offers the account linking consent page.
func (r *Router) authorizeComponents(locale string) []discordgo.MessageComponent {
	if r.authorizeURL == "" {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label: r.t("giveawayAuthorizeButton", locale),
				Style: discordgo.LinkButton,
				URL:   r.authorizeURL,
			},
		}},
	}
}

func (r *Router) joinReply(res service.JoinResult, err error, locale string) *discordgo.WebhookEdit {
	content := r.t(service.JoinMessageKey(res, err), locale)
	components := []discordgo.MessageComponent{}
	if err == nil && res.Status == service.JoinStatusAuthorizationNeeded {
		components = r.authorizeComponents(locale)
	}
	return &discordgo.WebhookEdit{Content: &content, Components: &components}
}

// modalValue returns the text of the first input of a submitted modal.
func modalValue(data discordgo.ModalSubmitInteractionData) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if in, ok := inner.(*discordgo.TextInput); ok {
				return in.Value
			}
		}
	}
	return ""
}
