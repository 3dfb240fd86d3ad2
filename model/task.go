package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskCheckUserTags TaskType = "check_user_tags"
)

// Task groups changes that a moderator has to look at.
type Task struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type      TaskType  `gorm:"not null" json:"type"`
	UserID    *int64    `gorm:"index" json:"user_id,omitempty"`
	Reviewed  bool      `gorm:"not null;default:false" json:"reviewed"`
	Changes   []Change  `gorm:"many2many:task_changes;constraint:OnDelete:CASCADE" json:"changes,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
