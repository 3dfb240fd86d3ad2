package model

import "time"

// StickerUsage counts how often a user picked a sticker from search results.
type StickerUsage struct {
	UserID     int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	StickerID  string    `gorm:"primaryKey" json:"sticker_id"`
	UsageCount int       `gorm:"not null;default:0" json:"usage_count"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}
