package notification

import "time"

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user message, or a system event when UserID is nil.
type Notification struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UserID    *string   `gorm:"column:user_id;index" json:"user_id,omitempty"`
	Code      string    `gorm:"column:code;index" json:"code,omitempty"`
	Title     string    `gorm:"column:title" json:"title"`
	Message   string    `gorm:"column:message" json:"message"`
	Level     Level     `gorm:"column:level;not null;default:info" json:"level"`
	Read      bool      `gorm:"column:read;not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}
