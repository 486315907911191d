package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"community-bot/internal/common/i18n"
	"community-bot/internal/features/giveaway/models"
)

// JoinButtonPrefix starts the custom id of announcement join buttons.
const JoinButtonPrefix = "giveaway_join_"

const (
	colorOpen     = 0x5865F2
	colorFinished = 0x2B2D31
)

func JoinButtonID(interactionID string) string {
	return JoinButtonPrefix + interactionID
}

// ParseJoinButtonID extracts the giveaway interaction id of a join button.
func ParseJoinButtonID(customID string) (string, bool) {
	id, ok := strings.CutPrefix(customID, JoinButtonPrefix)
	return id, ok && id != ""
}

// Renderer draws announcement messages.
type Renderer struct {
	tr     Translator
	locale string
}

func NewRenderer(tr Translator, locale string) *Renderer {
	return &Renderer{tr: tr, locale: locale}
}

func (r *Renderer) t(key string, params i18n.Params) string {
	return r.tr.Translate(key, params, r.locale)
}

func (r *Renderer) openEmbed(g *models.Giveaway, entries int64) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: r.t("giveawayAnnounceEnds", nil), Value: discordTimestamp(g, "F") + " (" + discordTimestamp(g, "R") + ")", Inline: true},
		{Name: r.t("giveawayAnnounceEntries", nil), Value: strconv.FormatInt(entries, 10), Inline: true},
		{Name: r.t("giveawayAnnounceWinners", nil), Value: strconv.Itoa(g.Winners()), Inline: true},
	}
	if g.SubOnly {
		fields = append(fields, &discordgo.MessageEmbedField{Name: r.t("giveawayAnnounceSubOnly", nil), Value: "✅"})
	}
	return &discordgo.MessageEmbed{
		Title:       r.t("giveawayAnnounceTitle", nil),
		Description: r.t("giveawayAnnouncePrize", i18n.Params{"prize": g.Prize}),
		Color:       colorOpen,
		Fields:      fields,
	}
}

func (r *Renderer) joinComponents(g *models.Giveaway) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				CustomID: JoinButtonID(g.InteractionID),
				Label:    r.t("giveawayAnnounceJoinButton", nil),
				Style:    discordgo.PrimaryButton,
			},
		}},
	}
}

func (r *Renderer) finishedEmbed(g *models.Giveaway, entries int64, winners []string) *discordgo.MessageEmbed {
	winnerText := r.t("giveawayAnnounceNoWinners", nil)
	if len(winners) > 0 {
		mentions := make([]string, len(winners))
		for i, id := range winners {
			mentions[i] = Mention(id)
		}
		winnerText = strings.Join(mentions, ", ")
	}
	return &discordgo.MessageEmbed{
		Title:       r.t("giveawayEndedTitle", nil),
		Description: r.t("giveawayAnnouncePrize", i18n.Params{"prize": g.Prize}),
		Color:       colorFinished,
		Fields: []*discordgo.MessageEmbedField{
			{Name: r.t("giveawayAnnounceEntries", nil), Value: strconv.FormatInt(entries, 10), Inline: true},
			{Name: r.t("giveawayAnnounceWinners", nil), Value: winnerText, Inline: true},
			{Name: r.t("giveawayEndedAt", nil), Value: discordTimestamp(g, "F")},
		},
	}
}

// OpenSend is a new announcement accepting entries.
func (r *Renderer) OpenSend(g *models.Giveaway, entries int64) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{r.openEmbed(g, entries)},
		Components: r.joinComponents(g),
	}
}

func (r *Renderer) OpenEdit(g *models.Giveaway, entries int64) *discordgo.MessageEdit {
	embeds := []*discordgo.MessageEmbed{r.openEmbed(g, entries)}
	components := r.joinComponents(g)
	return &discordgo.MessageEdit{Embeds: &embeds, Components: &components}
}

// FinishedSend is a new announcement of a drawn giveaway.
func (r *Renderer) FinishedSend(g *models.Giveaway, entries int64, winners []string) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    winnerPing(winners),
		Embeds:     []*discordgo.MessageEmbed{r.finishedEmbed(g, entries, winners)},
		Components: []discordgo.MessageComponent{},
	}
}

// FinishedEdit turns an announcement into its final state and removes the
// join button.
func (r *Renderer) FinishedEdit(g *models.Giveaway, entries int64, winners []string) *discordgo.MessageEdit {
	embeds := []*discordgo.MessageEmbed{r.finishedEmbed(g, entries, winners)}
	components := []discordgo.MessageComponent{}
	content := winnerPing(winners)
	return &discordgo.MessageEdit{Content: &content, Embeds: &embeds, Components: &components}
}

func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func winnerPing(winners []string) string {
	if len(winners) == 0 {
		return ""
	}
	mentions := make([]string, len(winners))
	for i, id := range winners {
		mentions[i] = Mention(id)
	}
	return "🎉 " + strings.Join(mentions, " ")
}

func discordTimestamp(g *models.Giveaway, style string) string {
	return fmt.Sprintf("<t:%d:%s>", g.EndTime.Unix(), style)
}
