package models

import "time"

// LinkedUser holds the OAuth tokens a member granted so the bot can read
// their linked third-party accounts.
type LinkedUser struct {
	ID           string    `gorm:"primaryKey;size:32" json:"id"`
	AccessToken  string    `gorm:"size:512;not null" json:"-"`
	RefreshToken string    `gorm:"size:512" json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (LinkedUser) TableName() string { return "linked_users" }

// Connection ties a third-party account to the entry it was used for. A
// third-party account can back entries of a single Discord user only.
type Connection struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"size:32;not null;index" json:"user_id"`
	Platform   string    `gorm:"size:32;not null;uniqueIndex:idx_connection_platform_entry" json:"platform"`
	PlatformID string    `gorm:"size:64;not null;uniqueIndex:idx_connection_platform_entry" json:"platform_id"`
	EntryID    int64     `gorm:"not null;uniqueIndex:idx_connection_platform_entry;index" json:"entry_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Connection) TableName() string { return "connections" }

// All lists every persisted model of the feature, for migrations.
func All() []any {
	return []any{&Giveaway{}, &Entry{}, &Winner{}, &LinkedUser{}, &Connection{}}
}
