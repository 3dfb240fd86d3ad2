package model

import "time"

type User struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username      string    `json:"username"`
	Banned        bool      `gorm:"not null;default:false" json:"banned"`
	Admin         bool      `gorm:"not null;default:false" json:"admin"`
	Authorized    bool      `gorm:"not null;default:false" json:"authorized"`
	International bool      `gorm:"not null;default:false" json:"international"`
	Deluxe        bool      `gorm:"not null;default:false" json:"deluxe"`
	NSFW          bool      `gorm:"column:nsfw;not null;default:false" json:"nsfw"`
	Furry         bool      `gorm:"not null;default:false" json:"furry"`
	Notifications bool      `gorm:"not null" json:"notifications"`
	Reverted      bool      `gorm:"not null;default:false" json:"reverted"`
	Locale        string    `gorm:"not null;default:'en'" json:"locale"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

// DefaultLanguage reports the tag partition the user writes to.
func (u User) DefaultLanguage() bool {
	return !u.International
}
