package repository

import (
	"context"
	"errors"

	"community-bot/internal/features/giveaway/models"
)

var (
	ErrGiveawayNotFound   = errors.New("giveaway not found")
	ErrEntryExists        = errors.New("entry already exists")
	ErrEntryNotFound      = errors.New("entry not found")
	ErrLinkedUserNotFound = errors.New("linked user not found")
)

// GiveawayRepository persists giveaways, their entries and their winners.
// The (giveaway, user) uniqueness of entries is enforced by the store and
// reported as ErrEntryExists.
type GiveawayRepository interface {
	Create(ctx context.Context, g *models.Giveaway) error
	GetByID(ctx context.Context, id int64) (*models.Giveaway, error)
	GetByInteractionID(ctx context.Context, interactionID string) (*models.Giveaway, error)
	// Update saves prize, end time, winner count and eligibility.
	Update(ctx context.Context, g *models.Giveaway) error
	SetMessage(ctx context.Context, id int64, channelID, messageID string) error
	// Delete removes the giveaway with its entries, connections and winners.
	Delete(ctx context.Context, id int64) error
	ListOpen(ctx context.Context) ([]models.Giveaway, error)
	SearchByPrize(ctx context.Context, query string, limit int) ([]models.Giveaway, error)

	CreateEntry(ctx context.Context, e *models.Entry) error
	// CreateEntryWithConnections commits the entry, moves the given accounts
	// to its user and removes subscriber entries left without any account,
	// all in one transaction. The removed entries are returned.
	CreateEntryWithConnections(ctx context.Context, e *models.Entry, conns []models.Connection) ([]models.Entry, error)
	GetEntry(ctx context.Context, giveawayID int64, userID string) (*models.Entry, error)
	// DeleteEntry reports whether an entry was removed.
	DeleteEntry(ctx context.Context, giveawayID int64, userID string) (bool, error)
	ListEntries(ctx context.Context, giveawayID int64) ([]models.Entry, error)
	CountEntries(ctx context.Context, giveawayID int64) (int64, error)

	// Complete marks the giveaway ended and replaces its winners.
	Complete(ctx context.Context, id int64, winners []string) error
	ListWinners(ctx context.Context, id int64) ([]models.Winner, error)
}

type LinkedUserRepository interface {
	GetLinkedUser(ctx context.Context, id string) (*models.LinkedUser, error)
	UpsertLinkedUser(ctx context.Context, u *models.LinkedUser) error
}
