package model

import (
	"time"

	"github.com/google/uuid"
)

// InlineQuery is one search session. Its ID is the session id threaded through
// continuation tokens.
type InlineQuery struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Query     string    `gorm:"not null" json:"query"`
	Mode      string    `gorm:"not null" json:"mode"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// InlineQueryRequest is one fetched page of a session, kept for analytics.
type InlineQueryRequest struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	InlineQueryID int64         `gorm:"not null;index" json:"inline_query_id"`
	Offset        string        `gorm:"not null" json:"offset"`
	NextOffset    string        `gorm:"not null" json:"next_offset"`
	Duration      time.Duration `gorm:"not null" json:"duration"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
}
