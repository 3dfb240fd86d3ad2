package model

import "time"

// StickerSet is a Telegram sticker pack. A set is created incomplete when it is
// first referenced and flips to Complete once its stickers have been ingested.
type StickerSet struct {
	Name          string    `gorm:"primaryKey" json:"name"`
	Title         string    `gorm:"not null;default:''" json:"title"`
	Banned        bool      `gorm:"not null;default:false" json:"banned"`
	NSFW          bool      `gorm:"column:nsfw;not null;default:false" json:"nsfw"`
	Furry         bool      `gorm:"not null;default:false" json:"furry"`
	International bool      `gorm:"not null;default:false" json:"international"`
	Deluxe        bool      `gorm:"not null;default:false" json:"deluxe"`
	Reviewed      bool      `gorm:"not null;default:false" json:"reviewed"`
	Deleted       bool      `gorm:"not null;default:false" json:"deleted"`
	Complete      bool      `gorm:"not null;default:false" json:"complete"`
	Stickers      []Sticker `gorm:"foreignKey:SetName;references:Name" json:"stickers,omitempty"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}
