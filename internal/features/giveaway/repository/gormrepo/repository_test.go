package gormrepo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedGiveaway(t *testing.T, repo repository.GiveawayRepository, prize string, subOnly bool) *models.Giveaway {
	t.Helper()
	g := &models.Giveaway{
		InteractionID: uuid.NewString(),
		GuildID:       "guild",
		ChannelID:     "chan",
		Prize:         prize,
		EndTime:       time.Now().Add(time.Hour),
		WinnerCount:   1,
		SubOnly:       subOnly,
	}
	require.NoError(t, repo.Create(context.Background(), g))
	return g
}

func TestCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewGiveawayRepository(newTestDB(t))

	g := seedGiveaway(t, repo, "Headset", false)
	require.NotZero(t, g.ID)

	byID, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Headset", byID.Prize)
	assert.False(t, byID.HasMessage())

	byInteraction, err := repo.GetByInteractionID(ctx, g.InteractionID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, byInteraction.ID)

	_, err = repo.GetByID(ctx, g.ID+100)
	assert.ErrorIs(t, err, repository.ErrGiveawayNotFound)

	require.NoError(t, repo.SetMessage(ctx, g.ID, "chan2", "msg"))
	byID, err = repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "chan2", byID.ChannelID)
	assert.True(t, byID.HasMessage())
}

func TestUpdateKeepsMessage(t *testing.T) {
	ctx := context.Background()
	repo := NewGiveawayRepository(newTestDB(t))
	g := seedGiveaway(t, repo, "Mouse", false)
	require.NoError(t, repo.SetMessage(ctx, g.ID, "chan", "msg"))

	g.Prize = "Keyboard"
	g.WinnerCount = 3
	g.MessageID = ""
	require.NoError(t, repo.Update(ctx, g))

	got, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", got.Prize)
	assert.Equal(t, 3, got.WinnerCount)
	assert.Equal(t, "msg", got.MessageID)
}

func TestEntryUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewGiveawayRepository(newTestDB(t))
	g := seedGiveaway(t, repo, "Headset", false)

	require.NoError(t, repo.CreateEntry(ctx, &models.Entry{GiveawayID: g.ID, UserID: "u1", Chances: 1}))
	err := repo.CreateEntry(ctx, &models.Entry{GiveawayID: g.ID, UserID: "u1", Chances: 1})
	assert.ErrorIs(t, err, repository.ErrEntryExists)

	n, err := repo.CountEntries(ctx, g.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	removed, err := repo.DeleteEntry(ctx, g.ID, "u1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.DeleteEntry(ctx, g.ID, "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.GetEntry(ctx, g.ID, "u1")
	assert.ErrorIs(t, err, repository.ErrEntryNotFound)
}

func TestCreateEntryWithConnectionsMovesAccount(t *testing.T) {
	ctx := context.Background()
	repo := NewGiveawayRepository(newTestDB(t))
	g := seedGiveaway(t, repo, "Sub prize", true)
	conn := models.Connection{Platform: "twitch", PlatformID: "tw-1"}

	first := &models.Entry{GiveawayID: g.ID, UserID: "alice", Chances: 3}
	orphans, err := repo.CreateEntryWithConnections(ctx, first, []models.Connection{conn})
	require.NoError(t, err)
	assert.Empty(t, orphans)

	// bob now owns the same twitch account, alice's entry loses its backing
	second := &models.Entry{GiveawayID: g.ID, UserID: "bob", Chances: 3}
	orphans, err = repo.CreateEntryWithConnections(ctx, second, []models.Connection{conn})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "alice", orphans[0].UserID)

	entries, err := repo.ListEntries(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].UserID)

	_, err = repo.CreateEntryWithConnections(ctx, &models.Entry{GiveawayID: g.ID, UserID: "bob"}, []models.Connection{conn})
	assert.ErrorIs(t, err, repository.ErrEntryExists)
}

func TestOrphanCleanupIgnoresOpenGiveaways(t *testing.T) {
	ctx := context.Background()
	repo := NewGiveawayRepository(newTestDB(t))
	open := seedGiveaway(t, repo, "Everyone", false)
	sub := seedGiveaway(t, repo, "Subs", true)

	require.NoError(t, repo.CreateEntry(ctx, &models.Entry{GiveawayID: open.ID, UserID: "carol", Chances: 1}))

	orphans, err := repo.CreateEntryWithConnections(ctx,
		&models.Entry{GiveawayID: sub.ID, UserID: "dave", Chances: 1},
		[]models.Connection{{Platform: "twitch", PlatformID: "tw-2"}})
	require.NoError(t, err)
	assert.Empty(t, orphans)

	n, err := repo.CountEntries(ctx, open.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCompleteReplacesWinners(t *testing.T) {
	ctx := context.Background()
	repo := NewGiveawayRepository(newTestDB(t))
	g := seedGiveaway(t, repo, "Headset", false)

	require.NoError(t, repo.Complete(ctx, g.ID, []string{"a", "b"}))
	require.NoError(t, repo.Complete(ctx, g.ID, []string{"c"}))

	got, err := repo.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.Ended)

	winners, err := repo.ListWinners(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, "c", winners[0].UserID)
	assert.Equal(t, 1, winners[0].Position)

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.ErrorIs(t, repo.Complete(ctx, g.ID+1, nil), repository.ErrGiveawayNotFound)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGiveawayRepository(db)
	g := seedGiveaway(t, repo, "Headset", true)

	_, err := repo.CreateEntryWithConnections(ctx,
		&models.Entry{GiveawayID: g.ID, UserID: "alice", Chances: 1},
		[]models.Connection{{Platform: "twitch", PlatformID: "tw-1"}})
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, g.ID, []string{"alice"}))

	require.NoError(t, repo.Delete(ctx, g.ID))
	assert.ErrorIs(t, repo.Delete(ctx, g.ID), repository.ErrGiveawayNotFound)

	var conns int64
	require.NoError(t, db.Model(&models.Connection{}).Count(&conns).Error)
	assert.Zero(t, conns)

	winners, err := repo.ListWinners(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestSearchByPrize(t *testing.T) {
	ctx := context.Background()
	repo := NewGiveawayRepository(newTestDB(t))
	seedGiveaway(t, repo, "Gaming Headset", false)
	seedGiveaway(t, repo, "Mouse", false)
	seedGiveaway(t, repo, "Headset stand", false)

	found, err := repo.SearchByPrize(ctx, "headset", 25)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Headset stand", found[0].Prize)

	all, err := repo.SearchByPrize(ctx, "  ", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLinkedUserUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewLinkedUserRepository(newTestDB(t))

	_, err := repo.GetLinkedUser(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrLinkedUserNotFound)

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.UpsertLinkedUser(ctx, &models.LinkedUser{ID: "alice", AccessToken: "a1", RefreshToken: "r1", TokenExpiry: expiry}))
	require.NoError(t, repo.UpsertLinkedUser(ctx, &models.LinkedUser{ID: "alice", AccessToken: "a2", RefreshToken: "r2", TokenExpiry: expiry}))

	u, err := repo.GetLinkedUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a2", u.AccessToken)
	assert.Equal(t, "r2", u.RefreshToken)
	assert.True(t, u.TokenExpiry.Equal(expiry))
}

func TestStorageFailuresAreDatabaseErrors(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGiveawayRepository(db)
	g := seedGiveaway(t, repo, "Headset", false)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = repo.GetByID(ctx, g.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrGiveawayNotFound)
	assert.Equal(t, apperrors.ErrCodeDatabaseError, apperrors.CodeOf(err))

	_, err = repo.CountEntries(ctx, g.ID)
	assert.Equal(t, apperrors.ErrCodeDatabaseError, apperrors.CodeOf(err))
}
