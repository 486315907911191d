package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"community-bot/internal/common/logger"
	"community-bot/internal/common/metrics"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
	"community-bot/internal/features/settings"
)

type JoinStatus int

const (
	JoinStatusJoined JoinStatus = iota
	JoinStatusAlreadyJoined
	JoinStatusAuthorizationNeeded
	JoinStatusLeft
)

func (s JoinStatus) String() string {
	switch s {
	case JoinStatusJoined:
		return "joined"
	case JoinStatusAlreadyJoined:
		return "already_joined"
	case JoinStatusAuthorizationNeeded:
		return "authorization_needed"
	case JoinStatusLeft:
		return "left"
	}
	return "unknown"
}

// AuthReason tells why an authorization is needed before joining.
type AuthReason int

const (
	// AuthNotAuthorized means the bot holds no token for the user.
	AuthNotAuthorized AuthReason = iota + 1
	// AuthNoLinkedAccount means the token works but no account of the
	// required platform is linked to the Discord profile.
	AuthNoLinkedAccount
)

type JoinResult struct {
	Status  JoinStatus
	Chances int
	Reason  AuthReason
}

type JoinContext struct {
	GuildID string
}

// Refresher schedules a redraw of a giveaway's live entry count.
type Refresher interface {
	RequestUpdate(giveawayID int64)
}

const (
	tier3Chances = 6
	tier2Chances = 3
	baseChances  = 1
)

// EntryService records and withdraws entries.
type EntryService struct {
	repo      repository.GiveawayRepository
	roles     MemberRoles
	accounts  LinkedAccounts
	settings  SettingsReader
	refresher Refresher
	platform  string
}

func NewEntryService(repo repository.GiveawayRepository, roles MemberRoles, accounts LinkedAccounts, settings SettingsReader, refresher Refresher, platform string) *EntryService {
	return &EntryService{
		repo:      repo,
		roles:     roles,
		accounts:  accounts,
		settings:  settings,
		refresher: refresher,
		platform:  platform,
	}
}

// Join enters userID into g. Ineligibility and configuration problems are
// returned as errors; "already joined" and "authorization needed" are
// statuses.
func (s *EntryService) Join(ctx context.Context, g *models.Giveaway, userID string, jc JoinContext) (JoinResult, error) {
	if g.Ended {
		metrics.EntryEvents.WithLabelValues("ended").Inc()
		return JoinResult{}, ErrGiveawayEnded
	}

	if _, err := s.repo.GetEntry(ctx, g.ID, userID); err == nil {
		metrics.EntryEvents.WithLabelValues("already_joined").Inc()
		return JoinResult{Status: JoinStatusAlreadyJoined}, nil
	} else if !errors.Is(err, repository.ErrEntryNotFound) {
		return JoinResult{}, err
	}

	if !g.SubOnly {
		return s.commit(ctx, g, &models.Entry{GiveawayID: g.ID, UserID: userID, Chances: baseChances}, nil)
	}

	guildID := jc.GuildID
	if guildID == "" {
		guildID = g.GuildID
	}
	chances, err := s.ChancesFor(ctx, guildID, userID)
	if err != nil {
		metrics.EntryEvents.WithLabelValues("ineligible").Inc()
		return JoinResult{}, err
	}

	accountIDs, err := s.accounts.Connections(ctx, userID, s.platform)
	if errors.Is(err, ErrNotLinked) {
		metrics.EntryEvents.WithLabelValues("authorization_needed").Inc()
		return JoinResult{Status: JoinStatusAuthorizationNeeded, Chances: chances, Reason: AuthNotAuthorized}, nil
	}
	if err != nil {
		return JoinResult{}, fmt.Errorf("failed to read linked accounts of %s: %w", userID, err)
	}
	if len(accountIDs) == 0 {
		metrics.EntryEvents.WithLabelValues("authorization_needed").Inc()
		return JoinResult{Status: JoinStatusAuthorizationNeeded, Chances: chances, Reason: AuthNoLinkedAccount}, nil
	}

	conns := make([]models.Connection, len(accountIDs))
	for i, id := range accountIDs {
		conns[i] = models.Connection{UserID: userID, Platform: s.platform, PlatformID: id}
	}
	return s.commit(ctx, g, &models.Entry{GiveawayID: g.ID, UserID: userID, Chances: chances}, conns)
}

func (s *EntryService) commit(ctx context.Context, g *models.Giveaway, entry *models.Entry, conns []models.Connection) (JoinResult, error) {
	var (
		orphans []models.Entry
		err     error
	)
	if conns == nil {
		err = s.repo.CreateEntry(ctx, entry)
	} else {
		orphans, err = s.repo.CreateEntryWithConnections(ctx, entry, conns)
	}
	if errors.Is(err, repository.ErrEntryExists) {
		metrics.EntryEvents.WithLabelValues("already_joined").Inc()
		return JoinResult{Status: JoinStatusAlreadyJoined}, nil
	}
	if err != nil {
		metrics.EntryEvents.WithLabelValues("error").Inc()
		return JoinResult{}, err
	}

	metrics.EntryEvents.WithLabelValues("joined").Inc()
	s.refresher.RequestUpdate(g.ID)

	refreshed := map[int64]bool{g.ID: true}
	for _, o := range orphans {
		logger.Info().
			Int64("giveaway_id", o.GiveawayID).
			Str("user_id", o.UserID).
			Msg("Removed entry whose linked account moved to another member")
		if !refreshed[o.GiveawayID] {
			refreshed[o.GiveawayID] = true
			s.refresher.RequestUpdate(o.GiveawayID)
		}
	}
	return JoinResult{Status: JoinStatusJoined, Chances: entry.Chances}, nil
}

// Leave withdraws userID from g. It reports whether an entry existed.
func (s *EntryService) Leave(ctx context.Context, g *models.Giveaway, userID string) (bool, error) {
	removed, err := s.repo.DeleteEntry(ctx, g.ID, userID)
	if err != nil {
		return false, err
	}
	if removed {
		metrics.EntryEvents.WithLabelValues("left").Inc()
		s.refresher.RequestUpdate(g.ID)
	}
	return removed, nil
}

// Toggle withdraws an existing entry or joins otherwise.
func (s *EntryService) Toggle(ctx context.Context, g *models.Giveaway, userID string, jc JoinContext) (JoinResult, error) {
	_, err := s.repo.GetEntry(ctx, g.ID, userID)
	switch {
	case err == nil:
		if g.Ended {
			return JoinResult{}, ErrGiveawayEnded
		}
		if _, err := s.Leave(ctx, g, userID); err != nil {
			return JoinResult{}, err
		}
		return JoinResult{Status: JoinStatusLeft}, nil
	case errors.Is(err, repository.ErrEntryNotFound):
		return s.Join(ctx, g, userID, jc)
	default:
		return JoinResult{}, err
	}
}

// ChancesFor returns the weight of a subscriber. The base subscriber role
// is required and the highest tier held on top of it sets the weight.
func (s *EntryService) ChancesFor(ctx context.Context, guildID, userID string) (int, error) {
	base := s.settings.Get(settings.KeySubscriberRole)
	t1 := s.settings.Get(settings.KeyTier1Role)
	t2 := s.settings.Get(settings.KeyTier2Role)
	t3 := s.settings.Get(settings.KeyTier3Role)
	if base == "" && t1 == "" && t2 == "" && t3 == "" {
		return 0, ErrSubscriberRolesNotConfigured
	}

	roles, err := s.roles.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	has := func(role string) bool {
		return role != "" && slices.Contains(roles, role)
	}

	if !has(base) {
		return 0, ErrNotSubscriber
	}
	switch {
	case has(t3):
		return tier3Chances, nil
	case has(t2):
		return tier2Chances, nil
	}
	return baseChances, nil
}
