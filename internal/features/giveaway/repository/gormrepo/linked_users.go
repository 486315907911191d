package gormrepo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
)

type linkedUserRepository struct {
	db *gorm.DB
}

func NewLinkedUserRepository(db *gorm.DB) repository.LinkedUserRepository {
	return &linkedUserRepository{db: db}
}

func (r *linkedUserRepository) GetLinkedUser(ctx context.Context, id string) (*models.LinkedUser, error) {
	var u models.LinkedUser
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrLinkedUserNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(fmt.Sprintf("get linked user %s", id), err)
	}
	return &u, nil
}

func (r *linkedUserRepository) UpsertLinkedUser(ctx context.Context, u *models.LinkedUser) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "token_expiry", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return apperrors.NewDatabaseError(fmt.Sprintf("save linked user %s", u.ID), err)
	}
	return nil
}
