// Package discord routes Discord interactions to the giveaway service.
package discord

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/common/i18n"
	"community-bot/internal/common/logger"
	"community-bot/internal/common/metrics"
	"community-bot/internal/common/validation"
	"community-bot/internal/features/giveaway/service"
	"community-bot/internal/features/giveaway/wizard"
	"community-bot/internal/features/settings"
)

const interactionTimeout = 15 * time.Second

// Responder answers interactions.
type Responder interface {
	Respond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	// Original returns the message created by the first response.
	Original(ctx context.Context, i *discordgo.Interaction) (*discordgo.Message, error)
	EditOriginal(ctx context.Context, i *discordgo.Interaction, edit *discordgo.WebhookEdit) error
}

type Translator interface {
	Translate(key string, params i18n.Params, locale string) string
}

type SettingsStore interface {
	Get(key string) string
	Set(key, value string) error
	SortedKeys() []string
}

type Router struct {
	svc          *service.Service
	settings     SettingsStore
	tr           Translator
	resp         Responder
	authorizeURL string
}

type RouterConfig struct {
	Service    *service.Service
	Settings   SettingsStore
	Translator Translator
	Responder  Responder
	// AuthorizeURL is the consent page offered to subscribers whose
	// accounts cannot be checked. Empty disables the button.
	AuthorizeURL string
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		svc:          cfg.Service,
		settings:     cfg.Settings,
		tr:           cfg.Translator,
		resp:         cfg.Responder,
		authorizeURL: cfg.AuthorizeURL,
	}
}

// OnInteraction is the discordgo handler.
func (r *Router) OnInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	r.HandleInteraction(ctx, ic.Interaction)
}

// HandleInteraction dispatches i by type. Failures are logged, never
// propagated to the gateway loop.
func (r *Router) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Str("interaction_id", i.ID).
				Msg("Recovered from interaction handler panic")
		}
	}()

	var err error
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		metrics.Interactions.WithLabelValues("command").Inc()
		err = r.handleCommand(ctx, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		metrics.Interactions.WithLabelValues("autocomplete").Inc()
		err = r.handleAutocomplete(ctx, i)
	case discordgo.InteractionMessageComponent:
		metrics.Interactions.WithLabelValues("component").Inc()
		err = r.handleComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		metrics.Interactions.WithLabelValues("modal").Inc()
		err = r.handleModal(ctx, i)
	default:
		return
	}
	if err != nil {
		logger.Error().Err(err).
			Str("interaction_id", i.ID).
			Str("user_id", userID(i)).
			Msg("Failed to handle interaction")
	}
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func locale(i *discordgo.Interaction) string {
	return string(i.Locale)
}

func isAdmin(i *discordgo.Interaction) bool {
	if i.Member == nil {
		return false
	}
	return i.Member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0
}

func (r *Router) reply(ctx context.Context, i *discordgo.Interaction, key string, params i18n.Params) error {
	return r.resp.Respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: r.tr.Translate(key, params, locale(i)),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (r *Router) deferEphemeral(ctx context.Context, i *discordgo.Interaction) error {
	return r.resp.Respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (r *Router) editReply(ctx context.Context, i *discordgo.Interaction, key string, params i18n.Params) error {
	content := r.tr.Translate(key, params, locale(i))
	return r.resp.EditOriginal(ctx, i, &discordgo.WebhookEdit{Content: &content})
}

func (r *Router) ack(ctx context.Context, i *discordgo.Interaction) error {
	return r.resp.Respond(ctx, i, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})
}

// errorKey picks the message of a wizard or service failure.
func errorKey(err error) string {
	if key := wizard.MessageKey(err); key != "errorHappen" {
		return key
	}
	return service.MessageKey(err)
}

// replyError answers with the translated failure and logs unexpected ones.
func (r *Router) replyError(ctx context.Context, i *discordgo.Interaction, err error) error {
	key := errorKey(err)
	if key == "errorHappen" {
		logger.Error().
			Err(err).
			Str("interaction_id", i.ID).
			Str("code", string(apperrors.CodeOf(err))).
			Msg("Interaction failed")
	}
	return r.reply(ctx, i, key, nil)
}

// --- commands ---

func (r *Router) handleCommand(ctx context.Context, i *discordgo.Interaction) error {
	if !isAdmin(i) {
		return r.reply(ctx, i, "notAllowed", nil)
	}
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return r.reply(ctx, i, "unknownSubcommand", nil)
	}
	sub := data.Options[0]

	switch data.Name {
	case CommandGiveaway:
		switch sub.Name {
		case "create":
			if len(sub.Options) == 0 {
				return r.reply(ctx, i, "unknownSubcommand", nil)
			}
			return r.cmdCreate(ctx, i, sub.Options[0].Name == "sub")
		case "edit":
			return r.withID(ctx, i, sub, r.cmdEdit)
		case "delete":
			return r.withID(ctx, i, sub, r.cmdDelete)
		case "roll":
			return r.withID(ctx, i, sub, func(ctx context.Context, i *discordgo.Interaction, id int64) error {
				return r.cmdRoll(ctx, i, id, r.svc.Roll)
			})
		case "reroll":
			return r.withID(ctx, i, sub, func(ctx context.Context, i *discordgo.Interaction, id int64) error {
				return r.cmdRoll(ctx, i, id, r.svc.Reroll)
			})
		case "resend":
			channelID := ""
			if opt := findOption(sub.Options, optionChannel); opt != nil {
				channelID = opt.ChannelValue(nil).ID
			}
			return r.withID(ctx, i, sub, func(ctx context.Context, i *discordgo.Interaction, id int64) error {
				return r.cmdResend(ctx, i, id, channelID)
			})
		}
	case CommandConfig:
		switch sub.Name {
		case "set":
			return r.cmdConfigSet(ctx, i, sub)
		case "show":
			return r.cmdConfigShow(ctx, i)
		}
	}
	return r.reply(ctx, i, "unknownSubcommand", nil)
}

func findOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range opts {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func (r *Router) withID(ctx context.Context, i *discordgo.Interaction, sub *discordgo.ApplicationCommandInteractionDataOption,
	fn func(ctx context.Context, i *discordgo.Interaction, id int64) error) error {
	opt := findOption(sub.Options, optionID)
	if opt == nil {
		return r.reply(ctx, i, "giveawayNotFound", nil)
	}
	raw := strings.TrimPrefix(strings.TrimSpace(fmt.Sprint(opt.Value)), "#")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return r.reply(ctx, i, "giveawayNotFound", nil)
	}
	return fn(ctx, i, id)
}

// showWizard answers with a new wizard message and binds the session to it.
func (r *Router) showWizard(ctx context.Context, i *discordgo.Interaction, w *wizard.Wizard, v wizard.View) error {
	if err := r.resp.Respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: r.wizardData(v),
	}); err != nil {
		return err
	}
	msg, err := r.resp.Original(ctx, i)
	if err != nil {
		return fmt.Errorf("fetch wizard message: %w", err)
	}
	r.svc.Wizards().Register(msg.ID, w)
	return nil
}

func (r *Router) cmdCreate(ctx context.Context, i *discordgo.Interaction, subOnly bool) error {
	if subOnly && !r.subscriberRolesConfigured() {
		return r.reply(ctx, i, "giveawaySubNotConfigured", nil)
	}
	w, v := r.svc.NewWizard(userID(i), locale(i), subOnly)
	return r.showWizard(ctx, i, w, v)
}

func (r *Router) subscriberRolesConfigured() bool {
	for _, k := range []string{settings.KeySubscriberRole, settings.KeyTier1Role, settings.KeyTier2Role, settings.KeyTier3Role} {
		if r.settings.Get(k) != "" {
			return true
		}
	}
	return false
}

func (r *Router) cmdEdit(ctx context.Context, i *discordgo.Interaction, id int64) error {
	w, v, err := r.svc.NewEditWizard(ctx, userID(i), locale(i), id)
	if err != nil {
		return r.replyError(ctx, i, err)
	}
	return r.showWizard(ctx, i, w, v)
}

func (r *Router) cmdDelete(ctx context.Context, i *discordgo.Interaction, id int64) error {
	res, err := r.svc.Delete(ctx, id)
	if err != nil {
		return r.replyError(ctx, i, err)
	}
	if !res.MessageDeleted {
		return r.reply(ctx, i, "giveawayDeletedDBOnly", nil)
	}
	return r.reply(ctx, i, "giveawayDeleted", i18n.Params{"prize": res.Prize})
}

func (r *Router) cmdRoll(ctx context.Context, i *discordgo.Interaction, id int64,
	draw func(context.Context, int64) (service.Resolution, error)) error {
	if err := r.deferEphemeral(ctx, i); err != nil {
		return err
	}
	res, err := draw(ctx, id)
	if err != nil {
		key := errorKey(err)
		if key == "errorHappen" {
			logger.Error().Err(err).Int64("giveaway_id", id).Msg("Failed to draw winners")
		}
		return r.editReply(ctx, i, key, nil)
	}

	mentions := make([]string, len(res.Winners))
	for n, w := range res.Winners {
		mentions[n] = service.Mention(w)
	}
	winners := strings.Join(mentions, ", ")
	if winners == "" {
		winners = r.t("giveawayAnnounceNoWinners", locale(i))
	}

	switch res.Outcome {
	case service.OutcomeAlreadyEnded:
		return r.editReply(ctx, i, "giveawayAlreadyEnded", nil)
	case service.OutcomeMessageNotFound:
		return r.editReply(ctx, i, "giveawayRolledMessageNotFound", i18n.Params{"winners": winners})
	}
	return r.editReply(ctx, i, "giveawayRolled", i18n.Params{"winners": winners})
}

func (r *Router) cmdResend(ctx context.Context, i *discordgo.Interaction, id int64, channelID string) error {
	if channelID == "" {
		channelID = i.ChannelID
	}
	if _, err := r.svc.Resend(ctx, id, channelID); err != nil {
		return r.replyError(ctx, i, err)
	}
	return r.reply(ctx, i, "giveawayResent", nil)
}

func (r *Router) cmdConfigSet(ctx context.Context, i *discordgo.Interaction, sub *discordgo.ApplicationCommandInteractionDataOption) error {
	keyOpt, valueOpt := findOption(sub.Options, optionKey), findOption(sub.Options, optionValue)
	if keyOpt == nil || valueOpt == nil {
		return r.reply(ctx, i, "unknownSubcommand", nil)
	}
	key := keyOpt.StringValue()
	if !settings.IsKnown(key) {
		return r.reply(ctx, i, "configUnknownKey", i18n.Params{"key": key})
	}
	value, err := validation.NormalizeSnowflake(valueOpt.StringValue(), key)
	if err != nil {
		return r.reply(ctx, i, "configInvalidValue", i18n.Params{"key": key})
	}
	if err := r.settings.Set(key, value); err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			return r.reply(ctx, i, "configUnknownKey", i18n.Params{"key": key})
		}
		return r.replyError(ctx, i, err)
	}
	logger.Info().Str("key", key).Str("user_id", userID(i)).Msg("Setting updated")
	return r.reply(ctx, i, "configUpdated", i18n.Params{"key": key})
}

func (r *Router) cmdConfigShow(ctx context.Context, i *discordgo.Interaction) error {
	var b strings.Builder
	for _, k := range r.settings.SortedKeys() {
		fmt.Fprintf(&b, "• `%s` = `%s`\n", k, r.settings.Get(k))
	}
	if b.Len() == 0 {
		b.WriteString("—")
	}
	return r.reply(ctx, i, "configShow", i18n.Params{"settings": strings.TrimRight(b.String(), "\n")})
}

func (r *Router) handleAutocomplete(ctx context.Context, i *discordgo.Interaction) error {
	data := i.ApplicationCommandData()
	query := ""
	var walk func(opts []*discordgo.ApplicationCommandInteractionDataOption)
	walk = func(opts []*discordgo.ApplicationCommandInteractionDataOption) {
		for _, o := range opts {
			if o.Focused {
				query = fmt.Sprint(o.Value)
			}
			walk(o.Options)
		}
	}
	walk(data.Options)

	found, err := r.svc.Autocomplete(ctx, query)
	if err != nil {
		return err
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(found))
	for n, c := range found {
		choices[n] = &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: strconv.FormatInt(c.Value, 10)}
	}
	return r.resp.Respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}

// --- components ---

func (r *Router) handleComponent(ctx context.Context, i *discordgo.Interaction) error {
	data := i.MessageComponentData()

	if id, ok := service.ParseJoinButtonID(data.CustomID); ok {
		return r.join(ctx, i, id)
	}
	if i.Message == nil {
		return nil
	}

	messageID := i.Message.ID
	if !r.svc.Wizards().Active(messageID) {
		if !wizard.IsControl(data.CustomID) {
			return r.ack(ctx, i)
		}
		return r.replyError(ctx, i, wizard.ErrNotFound)
	}

	switch {
	case data.CustomID == wizard.NavBack:
		return r.updateWizard(ctx, i)(r.svc.Wizards().Back(messageID, userID(i)))
	case data.CustomID == wizard.NavNext:
		return r.updateWizard(ctx, i)(r.svc.Wizards().Next(messageID, userID(i)))
	case data.CustomID == wizard.NavCancel:
		if err := r.svc.Wizards().Cancel(messageID, userID(i)); err != nil {
			return r.replyError(ctx, i, err)
		}
		return r.finishWizard(ctx, i, "giveawayWizardCancelled")
	case data.CustomID == wizard.NavSave:
		return r.saveWizard(ctx, i, messageID)
	case strings.HasPrefix(data.CustomID, wizard.SelectPrefix):
		if len(data.Values) == 0 {
			return r.ack(ctx, i)
		}
		key := strings.TrimPrefix(data.CustomID, wizard.SelectPrefix)
		return r.updateWizard(ctx, i)(r.svc.Wizards().Submit(messageID, userID(i), key, data.Values[0]))
	}

	prompt, err := r.svc.Wizards().OpenModal(messageID, userID(i), data.CustomID)
	if errors.Is(err, wizard.ErrNotModalPage) {
		return r.ack(ctx, i)
	}
	if err != nil {
		return r.replyError(ctx, i, err)
	}
	return r.resp.Respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: r.modalData(prompt),
	})
}

// updateWizard redraws the wizard message, or reports the failure
// ephemerally and leaves the message as it was.
func (r *Router) updateWizard(ctx context.Context, i *discordgo.Interaction) func(wizard.View, error) error {
	return func(v wizard.View, err error) error {
		if err != nil {
			return r.replyError(ctx, i, err)
		}
		return r.resp.Respond(ctx, i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: r.wizardData(v),
		})
	}
}

func (r *Router) finishWizard(ctx context.Context, i *discordgo.Interaction, key string) error {
	return r.resp.Respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    r.t(key, locale(i)),
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		},
	})
}

func (r *Router) saveWizard(ctx context.Context, i *discordgo.Interaction, messageID string) error {
	_, mode, err := r.svc.SaveWizard(ctx, service.SaveRequest{
		MessageID:     messageID,
		UserID:        userID(i),
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		InteractionID: i.ID,
	})
	if err != nil {
		return r.replyError(ctx, i, err)
	}
	if mode == wizard.ModeEdit {
		return r.finishWizard(ctx, i, "giveawayUpdatedSuccessfully")
	}
	return r.finishWizard(ctx, i, "giveawayCreatedSuccessfully")
}

func (r *Router) join(ctx context.Context, i *discordgo.Interaction, giveawayInteractionID string) error {
	if err := r.deferEphemeral(ctx, i); err != nil {
		return err
	}
	out, err := r.svc.HandleJoin(ctx, service.JoinRequest{
		GiveawayInteractionID: giveawayInteractionID,
		UserID:                userID(i),
		GuildID:               i.GuildID,
		AppID:                 i.AppID,
		Token:                 i.Token,
		Locale:                locale(i),
	})
	if err != nil && errorKey(err) == "errorHappen" {
		logger.Error().Err(err).Str("user_id", userID(i)).Msg("Failed to handle join")
	}
	return r.resp.EditOriginal(ctx, i, r.joinReply(out.Result, err, locale(i)))
}

// --- modals ---

func (r *Router) handleModal(ctx context.Context, i *discordgo.Interaction) error {
	if i.Message == nil {
		return nil
	}
	data := i.ModalSubmitData()
	messageID, err := r.svc.Wizards().Lookup(i.Message.ID, userID(i))
	if err != nil {
		return r.replyError(ctx, i, err)
	}
	return r.updateWizard(ctx, i)(r.svc.Wizards().SubmitModal(messageID, userID(i), data.CustomID, modalValue(data)))
}
