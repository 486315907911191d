package models

import (
	"time"
)

const (
	MinWinnerCount = 1
	MaxWinnerCount = 100
)

// Giveaway is a scheduled drawing announced in a guild channel.
type Giveaway struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	// InteractionID binds join buttons to the giveaway. It survives resends.
	InteractionID string `gorm:"size:64;not null;uniqueIndex" json:"interaction_id"`
	GuildID       string `gorm:"size:32" json:"guild_id"`
	ChannelID     string `gorm:"size:32" json:"channel_id"`
	// MessageID is empty until the announcement has been posted.
	MessageID   string    `gorm:"size:32" json:"message_id"`
	Prize       string    `gorm:"size:256;not null" json:"prize"`
	EndTime     time.Time `gorm:"not null;index" json:"end_time"`
	WinnerCount int       `gorm:"not null;default:1" json:"winner_count"`
	SubOnly     bool      `gorm:"not null;default:false" json:"sub_only"`
	Ended       bool      `gorm:"not null;default:false;index" json:"ended"`
	CreatedBy   string    `gorm:"size:32" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Giveaway) TableName() string { return "giveaways" }

// HasMessage reports whether the announcement location is known.
func (g *Giveaway) HasMessage() bool {
	return g.ChannelID != "" && g.MessageID != ""
}

// Winners returns the configured winner count clamped to the allowed range.
func (g *Giveaway) Winners() int {
	switch {
	case g.WinnerCount < MinWinnerCount:
		return MinWinnerCount
	case g.WinnerCount > MaxWinnerCount:
		return MaxWinnerCount
	}
	return g.WinnerCount
}

// Entry is one participant's weighted stake in a giveaway.
type Entry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GiveawayID int64     `gorm:"not null;uniqueIndex:idx_entry_giveaway_user" json:"giveaway_id"`
	UserID     string    `gorm:"size:32;not null;uniqueIndex:idx_entry_giveaway_user" json:"user_id"`
	Chances    int       `gorm:"not null;default:1" json:"chances"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Entry) TableName() string { return "giveaway_entries" }

// Winner is one drawn participant. Rows are replaced on every reroll.
type Winner struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GiveawayID int64     `gorm:"not null;index" json:"giveaway_id"`
	UserID     string    `gorm:"size:32;not null" json:"user_id"`
	Position   int       `gorm:"not null" json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Winner) TableName() string { return "giveaway_winners" }
