package model

import (
	"time"

	"github.com/google/uuid"
)

// Change records one tagging action. Rows are never rewritten except for the
// Reverted flag and moderation language corrections.
type Change struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            int64     `gorm:"not null;index" json:"user_id"`
	StickerID         string    `gorm:"not null;index:ix_changes_sticker_language,priority:1" json:"sticker_id"`
	IsDefaultLanguage bool      `gorm:"not null;index:ix_changes_sticker_language,priority:2" json:"is_default_language"`
	Reverted          bool      `gorm:"not null;default:false" json:"reverted"`
	ChatID            *int64    `json:"chat_id,omitempty"`
	MessageID         *int64    `json:"message_id,omitempty"`
	AddedTags         []Tag     `gorm:"many2many:change_added_tags;constraint:OnDelete:CASCADE" json:"added_tags"`
	RemovedTags       []Tag     `gorm:"many2many:change_removed_tags;constraint:OnDelete:CASCADE" json:"removed_tags"`
	CreatedAt         time.Time `gorm:"not null;index:ix_changes_sticker_language,priority:3" json:"created_at"`
}

// Empty reports whether the change neither added nor removed a tag.
func (c Change) Empty() bool {
	return len(c.AddedTags) == 0 && len(c.RemovedTags) == 0
}
