package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/common/i18n"
	"community-bot/internal/common/logger"
	"community-bot/internal/common/metrics"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
	"community-bot/internal/features/giveaway/wizard"
	"community-bot/internal/features/settings"
	"community-bot/internal/workers"
)

const maxAutocompleteChoices = 25

type Config struct {
	DefaultLocale     string
	ThrottleMin       time.Duration
	ThrottleMax       time.Duration
	PendingTTL        time.Duration
	WizardIdleTimeout time.Duration
	ResolveRetryDelay time.Duration
	LinkedPlatform    string
}

type Dependencies struct {
	Repo       repository.GiveawayRepository
	Messenger  Messenger
	Roles      MemberRoles
	Accounts   LinkedAccounts
	Settings   SettingsReader
	Translator Translator
	Pending    PendingStore
	Queue      workers.DueQueue
	Wizards    *wizard.Engine
	Config     Config
}

// Service is the giveaway orchestrator used by the Discord router and the
// OAuth callback.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	repo       repository.GiveawayRepository
	messenger  Messenger
	settings   SettingsReader
	translator Translator
	pending    PendingStore
	queue      workers.DueQueue
	wizards    *wizard.Engine
	cfg        Config
	now        func() time.Time

	Entries   *EntryService
	Scheduler *Scheduler
	Resolver  *Resolver
	Throttler *Throttler
	Renderer  *Renderer
}

func New(d Dependencies) *Service {
	cfg := d.Config
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "fr"
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = time.Minute
	}
	if cfg.ResolveRetryDelay <= 0 {
		cfg.ResolveRetryDelay = 30 * time.Second
	}
	if cfg.LinkedPlatform == "" {
		cfg.LinkedPlatform = "twitch"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		ctx:        ctx,
		cancel:     cancel,
		repo:       d.Repo,
		messenger:  d.Messenger,
		settings:   d.Settings,
		translator: d.Translator,
		pending:    d.Pending,
		queue:      d.Queue,
		wizards:    d.Wizards,
		cfg:        cfg,
		now:        time.Now,
	}

	s.Renderer = NewRenderer(d.Translator, cfg.DefaultLocale)
	s.Throttler = NewThrottler(cfg.ThrottleMin, cfg.ThrottleMax, s.refreshAnnouncement)
	s.Scheduler = NewScheduler(d.Repo, d.Queue)
	s.Resolver = NewResolver(d.Repo, d.Messenger, s.Renderer, s.Scheduler, s.Throttler, cfg.ResolveRetryDelay)
	s.Entries = NewEntryService(d.Repo, d.Roles, d.Accounts, d.Settings, s.Throttler, cfg.LinkedPlatform)
	return s
}

func (s *Service) Wizards() *wizard.Engine { return s.wizards }

// Start restores timers and starts consuming due events.
func (s *Service) Start(ctx context.Context) error {
	logger.Info().Msg("Starting giveaway service")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.queue.Run(s.ctx, s.Resolver.HandleDue); err != nil {
			logger.Error().Err(err).Msg("Due event worker stopped")
		}
	}()

	if s.cfg.WizardIdleTimeout > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := s.wizards.Sweep(s.cfg.WizardIdleTimeout); n > 0 {
						logger.Debug().Int("count", n).Msg("Dropped idle wizards")
					}
				case <-s.ctx.Done():
					return
				}
			}
		}()
	}

	if _, err := s.Scheduler.Sweep(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Service) Stop() {
	logger.Info().Msg("Stopping giveaway service")
	s.Scheduler.Stop()
	s.Throttler.Stop()
	s.cancel()
	s.wg.Wait()
	logger.Info().Msg("Giveaway service stopped")
}

func (s *Service) t(key string, params i18n.Params, locale string) string {
	return s.translator.Translate(key, params, locale)
}

func (s *Service) load(ctx context.Context, id int64) (*models.Giveaway, error) {
	g, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return nil, ErrGiveawayNotFound
	}
	return g, err
}

// NewWizard starts a create session. The caller registers it once the
// setup message exists.
func (s *Service) NewWizard(ownerID, locale string, subOnly bool) (*wizard.Wizard, wizard.View) {
	w := s.wizards.New(ownerID, locale, subOnly)
	return w, s.wizards.Render(w)
}

// NewEditWizard starts a session pre-populated from giveaway id.
func (s *Service) NewEditWizard(ctx context.Context, ownerID, locale string, id int64) (*wizard.Wizard, wizard.View, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, wizard.View{}, err
	}
	if g.Ended {
		return nil, wizard.View{}, ErrCannotEditEnded
	}
	w := s.wizards.NewEdit(ownerID, locale, g)
	return w, s.wizards.Render(w), nil
}

// SaveRequest carries the interaction that pressed the save button.
type SaveRequest struct {
	MessageID     string
	UserID        string
	GuildID       string
	ChannelID     string
	InteractionID string
}

// SaveWizard persists the session of req.MessageID. Validation errors leave
// the session open.
func (s *Service) SaveWizard(ctx context.Context, req SaveRequest) (*models.Giveaway, wizard.Mode, error) {
	draft, err := s.wizards.Finalize(req.MessageID, req.UserID)
	if err != nil {
		return nil, 0, err
	}

	var g *models.Giveaway
	if draft.Mode == wizard.ModeEdit {
		g, err = s.update(ctx, draft)
	} else {
		g, err = s.create(ctx, draft, req)
	}
	if err != nil {
		return nil, draft.Mode, err
	}
	s.wizards.Done(req.MessageID)
	return g, draft.Mode, nil
}

func (s *Service) announceChannel(fallback string) string {
	if ch := s.settings.Get(settings.KeyAnnounceChannel); ch != "" {
		return ch
	}
	return fallback
}

func (s *Service) create(ctx context.Context, d wizard.Draft, req SaveRequest) (*models.Giveaway, error) {
	interactionID := req.InteractionID
	if interactionID == "" {
		interactionID = uuid.NewString()
	}
	g := &models.Giveaway{
		InteractionID: interactionID,
		GuildID:       req.GuildID,
		ChannelID:     s.announceChannel(req.ChannelID),
		Prize:         d.Prize,
		EndTime:       d.EndTime,
		WinnerCount:   d.WinnerCount,
		SubOnly:       d.SubOnly,
		CreatedBy:     d.OwnerID,
	}
	if g.ChannelID == "" {
		return nil, ErrInvalidChannel
	}

	messageID, err := s.messenger.SendMessage(ctx, g.ChannelID, s.Renderer.OpenSend(g, 0))
	if err != nil {
		logger.Error().Err(err).Str("channel_id", g.ChannelID).Msg("Failed to post giveaway announcement")
		return nil, ErrInvalidChannel
	}
	g.MessageID = messageID

	if err := s.repo.Create(ctx, g); err != nil {
		if delErr := s.messenger.DeleteMessage(ctx, g.ChannelID, messageID); delErr != nil {
			logger.Warn().Err(delErr).Str("message_id", messageID).Msg("Failed to remove announcement of unsaved giveaway")
		}
		return nil, fmt.Errorf("failed to save giveaway: %w", err)
	}

	s.Scheduler.Schedule(g)
	logger.Info().
		Int64("giveaway_id", g.ID).
		Str("prize", g.Prize).
		Time("end_time", g.EndTime).
		Bool("sub_only", g.SubOnly).
		Msg("Giveaway created")
	return g, nil
}

func (s *Service) update(ctx context.Context, d wizard.Draft) (*models.Giveaway, error) {
	g, err := s.load(ctx, d.GiveawayID)
	if err != nil {
		return nil, err
	}
	if g.Ended {
		return nil, ErrCannotEditEnded
	}

	g.Prize = d.Prize
	g.EndTime = d.EndTime
	g.WinnerCount = d.WinnerCount
	g.SubOnly = d.SubOnly
	if err := s.repo.Update(ctx, g); err != nil {
		return nil, err
	}

	s.Scheduler.Schedule(g)
	if err := s.refreshAnnouncement(ctx, g.ID); err != nil {
		logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to redraw edited giveaway")
	}
	return g, nil
}

type DeleteResult struct {
	Prize          string
	MessageDeleted bool
}

// Delete removes a giveaway. The announcement is removed on a best-effort
// basis and MessageDeleted reports whether that worked.
func (s *Service) Delete(ctx context.Context, id int64) (DeleteResult, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}

	s.Scheduler.Cancel(id)
	s.Throttler.CancelUpdate(id)

	res := DeleteResult{Prize: g.Prize}
	if g.HasMessage() {
		if err := s.messenger.DeleteMessage(ctx, g.ChannelID, g.MessageID); err != nil {
			if !errors.Is(err, ErrMessageNotFound) {
				logger.Warn().Err(err).Int64("giveaway_id", id).Msg("Failed to delete giveaway message")
			}
		} else {
			res.MessageDeleted = true
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrGiveawayNotFound) {
			return DeleteResult{}, ErrGiveawayNotFound
		}
		return DeleteResult{}, err
	}
	logger.Info().Int64("giveaway_id", id).Bool("message_deleted", res.MessageDeleted).Msg("Giveaway deleted")
	return res, nil
}

// Roll ends an open giveaway now.
func (s *Service) Roll(ctx context.Context, id int64) (Resolution, error) {
	return s.Resolver.Resolve(ctx, id, true)
}

// Reroll draws new winners, whether the giveaway ended or not.
func (s *Service) Reroll(ctx context.Context, id int64) (Resolution, error) {
	return s.Resolver.Resolve(ctx, id, false)
}

// Resend posts a fresh announcement in channelID, or in the current channel
// when empty, and re-arms the timer of open giveaways.
func (s *Service) Resend(ctx context.Context, id int64, channelID string) (*models.Giveaway, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	target := channelID
	if target == "" {
		target = g.ChannelID
	}
	if target == "" {
		target = s.announceChannel("")
	}
	if target == "" {
		return nil, ErrInvalidChannel
	}

	count, err := s.repo.CountEntries(ctx, id)
	if err != nil {
		return nil, err
	}

	var msg *discordgo.MessageSend
	if g.Ended {
		winners, err := s.repo.ListWinners(ctx, id)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(winners))
		for i, w := range winners {
			ids[i] = w.UserID
		}
		msg = s.Renderer.FinishedSend(g, count, ids)
	} else {
		msg = s.Renderer.OpenSend(g, count)
	}

	messageID, err := s.messenger.SendMessage(ctx, target, msg)
	if err != nil {
		logger.Error().Err(err).Str("channel_id", target).Msg("Failed to resend giveaway announcement")
		return nil, ErrInvalidChannel
	}

	oldChannel, oldMessage := g.ChannelID, g.MessageID
	if err := s.repo.SetMessage(ctx, id, target, messageID); err != nil {
		return nil, err
	}
	g.ChannelID, g.MessageID = target, messageID

	if oldMessage != "" && oldMessage != messageID {
		if err := s.messenger.DeleteMessage(ctx, oldChannel, oldMessage); err != nil && !errors.Is(err, ErrMessageNotFound) {
			logger.Warn().Err(err).Str("message_id", oldMessage).Msg("Failed to delete previous announcement")
		}
	}

	if !g.Ended {
		s.Scheduler.Cancel(id)
		s.Scheduler.Schedule(g)
	}
	return g, nil
}

type Choice struct {
	Name  string
	Value int64
}

// Autocomplete lists giveaways whose prize contains query.
func (s *Service) Autocomplete(ctx context.Context, query string) ([]Choice, error) {
	found, err := s.repo.SearchByPrize(ctx, query, maxAutocompleteChoices)
	if err != nil {
		return nil, err
	}
	out := make([]Choice, 0, len(found))
	for _, g := range found {
		name := fmt.Sprintf("#%d %s", g.ID, g.Prize)
		if g.Ended {
			name += " ✓"
		}
		out = append(out, Choice{Name: truncate(name, 100), Value: g.ID})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// JoinRequest is a click on an announcement join button.
type JoinRequest struct {
	GiveawayInteractionID string
	UserID                string
	GuildID               string
	AppID                 string
	Token                 string
	Locale                string
}

type JoinOutcome struct {
	Result   JoinResult
	Giveaway *models.Giveaway
}

// HandleJoin toggles the entry of the clicking user. When an authorization
// is needed the attempt is remembered so the OAuth callback can finish it.
func (s *Service) HandleJoin(ctx context.Context, req JoinRequest) (JoinOutcome, error) {
	g, err := s.repo.GetByInteractionID(ctx, req.GiveawayInteractionID)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return JoinOutcome{}, ErrGiveawayNotFound
	}
	if err != nil {
		return JoinOutcome{}, err
	}

	res, err := s.Entries.Toggle(ctx, g, req.UserID, JoinContext{GuildID: req.GuildID})
	if err != nil {
		return JoinOutcome{Giveaway: g}, err
	}

	if res.Status == JoinStatusAuthorizationNeeded && s.pending != nil {
		p := PendingAuthorization{
			UserID:        req.UserID,
			GuildID:       req.GuildID,
			InteractionID: req.GiveawayInteractionID,
			AppID:         req.AppID,
			Token:         req.Token,
			Locale:        req.Locale,
			ExpiresAt:     s.now().Add(s.cfg.PendingTTL),
		}
		if err := s.pending.Put(ctx, p); err != nil {
			logger.Warn().Err(err).Str("user_id", req.UserID).Msg("Failed to remember pending authorization")
		}
	}
	return JoinOutcome{Result: res, Giveaway: g}, nil
}

// ResumeJoin finishes the join attempt of userID after the account link
// was authorized, and edits the original ephemeral reply with the result.
// It reports whether a pending attempt existed.
func (s *Service) ResumeJoin(ctx context.Context, userID string) (bool, error) {
	if s.pending == nil {
		return false, nil
	}
	p, err := s.pending.Take(ctx, userID)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}

	var key string
	g, err := s.repo.GetByInteractionID(ctx, p.InteractionID)
	switch {
	case errors.Is(err, repository.ErrGiveawayNotFound):
		key = MessageKey(ErrGiveawayNotFound)
	case err != nil:
		return true, err
	default:
		res, joinErr := s.Entries.Join(ctx, g, userID, JoinContext{GuildID: p.GuildID})
		key = JoinMessageKey(res, joinErr)
		if joinErr != nil && !isParticipantError(joinErr) {
			logger.Error().Err(joinErr).Str("user_id", userID).Msg("Failed to resume join")
		}
	}

	content := s.t(key, nil, p.Locale)
	if err := s.messenger.EditInteractionReply(ctx, p.AppID, p.Token, content, []discordgo.MessageComponent{}); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to update join reply")
	}
	return true, nil
}

// JoinMessageKey is the translation key describing a join outcome.
func JoinMessageKey(res JoinResult, err error) string {
	if err != nil {
		return MessageKey(err)
	}
	switch res.Status {
	case JoinStatusJoined:
		return "giveawayEnteredSuccessfully"
	case JoinStatusLeft:
		return "giveawayLeftSuccessfully"
	case JoinStatusAlreadyJoined:
		return "giveawayAlreadyEntered"
	case JoinStatusAuthorizationNeeded:
		if res.Reason == AuthNoLinkedAccount {
			return "giveawayOnlyForSubNeedDiscordTwitchLinking"
		}
		return "giveawayOnlyForSubNeedAuthorizeDiscord"
	}
	return "errorHappen"
}

// isParticipantError reports join failures that are answered to the
// participant rather than logged.
func isParticipantError(err error) bool {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.IsEligibility() || appErr.Code == apperrors.ErrCodeConfiguration
	}
	return errors.Is(err, ErrMemberNotFound)
}

// refreshAnnouncement redraws the live entry count of an open giveaway.
// It holds the resolver lock so a finished announcement is never redrawn
// as open.
func (s *Service) refreshAnnouncement(ctx context.Context, id int64) error {
	unlock := s.Resolver.lock(id)
	defer unlock()

	g, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if g.Ended || !g.HasMessage() {
		return nil
	}

	count, err := s.repo.CountEntries(ctx, id)
	if err != nil {
		return err
	}
	if err := s.messenger.EditMessage(ctx, g.ChannelID, g.MessageID, s.Renderer.OpenEdit(g, count)); err != nil {
		metrics.MessageEdits.WithLabelValues("refresh", "error").Inc()
		return err
	}
	metrics.MessageEdits.WithLabelValues("refresh", "ok").Inc()
	return nil
}
