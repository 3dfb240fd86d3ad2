package model

import "time"

// Sticker is keyed by Telegram's file_unique_id. FileID is the delivery id and
// may be replaced when Telegram hands out a new one for the same sticker.
type Sticker struct {
	FileUniqueID string    `gorm:"primaryKey" json:"file_unique_id"`
	FileID       string    `gorm:"not null" json:"file_id"`
	Text         *string   `json:"text,omitempty"`
	Animated     bool      `gorm:"not null;default:false" json:"animated"`
	Banned       bool      `gorm:"not null;default:false;index" json:"banned"`
	SetName      string    `gorm:"not null;index" json:"set_name"`
	Tags         []Tag     `gorm:"many2many:sticker_tags;joinForeignKey:StickerID;joinReferences:TagID;constraint:OnDelete:CASCADE" json:"tags,omitempty"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

// StickerTag is the join row between stickers and tags.
type StickerTag struct {
	StickerID string `gorm:"primaryKey"`
	TagID     uint   `gorm:"primaryKey;index"`
}

func (StickerTag) TableName() string { return "sticker_tags" }

// TextOrEmpty returns the recognized text of the sticker.
func (s Sticker) TextOrEmpty() string {
	if s.Text == nil {
		return ""
	}
	return *s.Text
}
