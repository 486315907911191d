package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
)

type giveawayRepository struct {
	db *gorm.DB
}

func NewGiveawayRepository(db *gorm.DB) repository.GiveawayRepository {
	return &giveawayRepository{db: db}
}

func (r *giveawayRepository) Create(ctx context.Context, g *models.Giveaway) error {
	if err := r.db.WithContext(ctx).Create(g).Error; err != nil {
		return apperrors.NewDatabaseError("create giveaway", err)
	}
	return nil
}

func (r *giveawayRepository) GetByID(ctx context.Context, id int64) (*models.Giveaway, error) {
	var g models.Giveaway
	err := r.db.WithContext(ctx).First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrGiveawayNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(fmt.Sprintf("get giveaway %d", id), err)
	}
	return &g, nil
}

func (r *giveawayRepository) GetByInteractionID(ctx context.Context, interactionID string) (*models.Giveaway, error) {
	var g models.Giveaway
	err := r.db.WithContext(ctx).Where("interaction_id = ?", interactionID).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrGiveawayNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(fmt.Sprintf("get giveaway by interaction %s", interactionID), err)
	}
	return &g, nil
}

func (r *giveawayRepository) Update(ctx context.Context, g *models.Giveaway) error {
	res := r.db.WithContext(ctx).
		Model(&models.Giveaway{ID: g.ID}).
		Select("prize", "end_time", "winner_count", "sub_only").
		Updates(g)
	if res.Error != nil {
		return apperrors.NewDatabaseError(fmt.Sprintf("update giveaway %d", g.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrGiveawayNotFound
	}
	return nil
}

func (r *giveawayRepository) SetMessage(ctx context.Context, id int64, channelID, messageID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Giveaway{ID: id}).
		Updates(map[string]any{"channel_id": channelID, "message_id": messageID})
	if res.Error != nil {
		return apperrors.NewDatabaseError(fmt.Sprintf("set message of giveaway %d", id), res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrGiveawayNotFound
	}
	return nil
}

func (r *giveawayRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entryIDs := tx.Model(&models.Entry{}).Select("id").Where("giveaway_id = ?", id)
		if err := tx.Where("entry_id IN (?)", entryIDs).Delete(&models.Connection{}).Error; err != nil {
			return apperrors.NewDatabaseError("delete connections", err)
		}
		if err := tx.Where("giveaway_id = ?", id).Delete(&models.Entry{}).Error; err != nil {
			return apperrors.NewDatabaseError("delete entries", err)
		}
		if err := tx.Where("giveaway_id = ?", id).Delete(&models.Winner{}).Error; err != nil {
			return apperrors.NewDatabaseError("delete winners", err)
		}
		res := tx.Delete(&models.Giveaway{}, id)
		if res.Error != nil {
			return apperrors.NewDatabaseError(fmt.Sprintf("delete giveaway %d", id), res.Error)
		}
		if res.RowsAffected == 0 {
			return repository.ErrGiveawayNotFound
		}
		return nil
	})
}

func (r *giveawayRepository) ListOpen(ctx context.Context) ([]models.Giveaway, error) {
	var out []models.Giveaway
	if err := r.db.WithContext(ctx).Where("ended = ?", false).Order("end_time").Find(&out).Error; err != nil {
		return nil, apperrors.NewDatabaseError("list open giveaways", err)
	}
	return out, nil
}

func (r *giveawayRepository) SearchByPrize(ctx context.Context, query string, limit int) ([]models.Giveaway, error) {
	var out []models.Giveaway
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where("LOWER(prize) LIKE ?", "%"+strings.ToLower(query)+"%")
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, apperrors.NewDatabaseError("search giveaways", err)
	}
	return out, nil
}

func (r *giveawayRepository) CreateEntry(ctx context.Context, e *models.Entry) error {
	err := r.db.WithContext(ctx).Create(e).Error
	if isDuplicate(err) {
		return repository.ErrEntryExists
	}
	if err != nil {
		return apperrors.NewDatabaseError("create entry", err)
	}
	return nil
}

func (r *giveawayRepository) CreateEntryWithConnections(ctx context.Context, e *models.Entry, conns []models.Connection) ([]models.Entry, error) {
	var orphans []models.Entry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(e).Error; err != nil {
			if isDuplicate(err) {
				return repository.ErrEntryExists
			}
			return apperrors.NewDatabaseError("create entry", err)
		}

		for _, c := range conns {
			// The account now belongs to this user only.
			if err := tx.Where("platform = ? AND platform_id = ? AND user_id <> ?", c.Platform, c.PlatformID, e.UserID).
				Delete(&models.Connection{}).Error; err != nil {
				return apperrors.NewDatabaseError(fmt.Sprintf("release connection %s/%s", c.Platform, c.PlatformID), err)
			}

			row := models.Connection{
				UserID:     e.UserID,
				Platform:   c.Platform,
				PlatformID: c.PlatformID,
				EntryID:    e.ID,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "platform"}, {Name: "platform_id"}, {Name: "entry_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"user_id"}),
			}).Create(&row).Error; err != nil {
				return apperrors.NewDatabaseError(fmt.Sprintf("upsert connection %s/%s", c.Platform, c.PlatformID), err)
			}
		}

		// Subscriber entries of open giveaways must stay backed by an account.
		openSubGiveaways := tx.Model(&models.Giveaway{}).Select("id").Where("sub_only = ? AND ended = ?", true, false)
		backedEntries := tx.Model(&models.Connection{}).Select("entry_id")
		if err := tx.Where("giveaway_id IN (?) AND id NOT IN (?)", openSubGiveaways, backedEntries).
			Find(&orphans).Error; err != nil {
			return apperrors.NewDatabaseError("find orphaned entries", err)
		}
		if len(orphans) == 0 {
			return nil
		}
		ids := make([]int64, len(orphans))
		for i, o := range orphans {
			ids[i] = o.ID
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Entry{}).Error; err != nil {
			return apperrors.NewDatabaseError("delete orphaned entries", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orphans, nil
}

func (r *giveawayRepository) GetEntry(ctx context.Context, giveawayID int64, userID string) (*models.Entry, error) {
	var e models.Entry
	err := r.db.WithContext(ctx).Where("giveaway_id = ? AND user_id = ?", giveawayID, userID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrEntryNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get entry", err)
	}
	return &e, nil
}

func (r *giveawayRepository) DeleteEntry(ctx context.Context, giveawayID int64, userID string) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e models.Entry
		err := tx.Where("giveaway_id = ? AND user_id = ?", giveawayID, userID).First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Where("entry_id = ?", e.ID).Delete(&models.Connection{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Entry{}, e.ID)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, apperrors.NewDatabaseError("delete entry", err)
	}
	return deleted, nil
}

func (r *giveawayRepository) ListEntries(ctx context.Context, giveawayID int64) ([]models.Entry, error) {
	var out []models.Entry
	if err := r.db.WithContext(ctx).Where("giveaway_id = ?", giveawayID).Order("id").Find(&out).Error; err != nil {
		return nil, apperrors.NewDatabaseError("list entries", err)
	}
	return out, nil
}

func (r *giveawayRepository) CountEntries(ctx context.Context, giveawayID int64) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Entry{}).Where("giveaway_id = ?", giveawayID).Count(&n).Error; err != nil {
		return 0, apperrors.NewDatabaseError("count entries", err)
	}
	return n, nil
}

func (r *giveawayRepository) Complete(ctx context.Context, id int64, winners []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Giveaway{ID: id}).Update("ended", true)
		if res.Error != nil {
			return apperrors.NewDatabaseError(fmt.Sprintf("end giveaway %d", id), res.Error)
		}
		if res.RowsAffected == 0 {
			return repository.ErrGiveawayNotFound
		}
		if err := tx.Where("giveaway_id = ?", id).Delete(&models.Winner{}).Error; err != nil {
			return apperrors.NewDatabaseError("clear winners", err)
		}
		if len(winners) == 0 {
			return nil
		}
		rows := make([]models.Winner, len(winners))
		for i, userID := range winners {
			rows[i] = models.Winner{GiveawayID: id, UserID: userID, Position: i + 1}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return apperrors.NewDatabaseError("store winners", err)
		}
		return nil
	})
}

func (r *giveawayRepository) ListWinners(ctx context.Context, id int64) ([]models.Winner, error) {
	var out []models.Winner
	if err := r.db.WithContext(ctx).Where("giveaway_id = ?", id).Order("position").Find(&out).Error; err != nil {
		return nil, apperrors.NewDatabaseError("list winners", err)
	}
	return out, nil
}

// isDuplicate recognises unique violations from drivers without error translation.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
