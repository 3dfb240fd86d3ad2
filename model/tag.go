package model

import "time"

// Tag names are interned per language partition: the same text in the same
// partition is always the same row.
type Tag struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"not null;uniqueIndex:ux_tags_name_language,priority:1" json:"name"`
	IsDefaultLanguage bool      `gorm:"not null;uniqueIndex:ux_tags_name_language,priority:2" json:"is_default_language"`
	Emoji             bool      `gorm:"not null;default:false" json:"emoji"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
}

// TagNames returns the names of tags in order.
func TagNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}
