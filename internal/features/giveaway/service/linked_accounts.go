package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"community-bot/internal/common/logger"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
	"community-bot/internal/platform/discordoauth"
)

type OAuthClient interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Identity(ctx context.Context, tok *oauth2.Token) (*discordoauth.Identity, *oauth2.Token, error)
	Connections(ctx context.Context, tok *oauth2.Token) ([]discordoauth.Connection, *oauth2.Token, error)
}

// LinkedAccountService reads linked accounts with the tokens members granted
// and keeps refreshed tokens persisted.
type LinkedAccountService struct {
	users repository.LinkedUserRepository
	oauth OAuthClient
}

// Unlinked is used when account linking is not configured: every
// subscriber is reported as not linked.
type Unlinked struct{}

func (Unlinked) Connections(context.Context, string, string) ([]string, error) {
	return nil, ErrNotLinked
}

func NewLinkedAccountService(users repository.LinkedUserRepository, oauth OAuthClient) *LinkedAccountService {
	return &LinkedAccountService{users: users, oauth: oauth}
}

func (s *LinkedAccountService) Connections(ctx context.Context, userID, platform string) ([]string, error) {
	u, err := s.users.GetLinkedUser(ctx, userID)
	if errors.Is(err, repository.ErrLinkedUserNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, err
	}

	tok := tokenOf(u)
	conns, fresh, err := s.oauth.Connections(ctx, tok)
	if fresh != nil && fresh.AccessToken != tok.AccessToken {
		s.persist(ctx, userID, fresh)
	}
	if errors.Is(err, discordoauth.ErrUnauthorized) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connections of %s: %w", userID, err)
	}

	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		if c.Type == platform && !c.Revoked {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// Authorize completes an OAuth callback and returns the id of the member who
// granted access.
func (s *LinkedAccountService) Authorize(ctx context.Context, code string) (string, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	id, tok, err := s.oauth.Identity(ctx, tok)
	if err != nil {
		return "", fmt.Errorf("failed to identify authorizing user: %w", err)
	}
	if err := s.users.UpsertLinkedUser(ctx, userOf(id.ID, tok)); err != nil {
		return "", err
	}
	logger.Info().Str("user_id", id.ID).Msg("Discord account linked")
	return id.ID, nil
}

func (s *LinkedAccountService) persist(ctx context.Context, userID string, tok *oauth2.Token) {
	if err := s.users.UpsertLinkedUser(ctx, userOf(userID, tok)); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to persist refreshed token")
	}
}

func tokenOf(u *models.LinkedUser) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       u.TokenExpiry,
	}
}

func userOf(id string, tok *oauth2.Token) *models.LinkedUser {
	return &models.LinkedUser{
		ID:           id,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry,
	}
}
