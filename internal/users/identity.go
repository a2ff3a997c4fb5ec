package users

import (
	"strings"
	"time"
)

// Profile records the last known presentation of a directory viewer, keyed by
// the login provider and the provider's subject.
type Profile struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	ViewerID    string    `gorm:"column:viewer_id;size:190;not null;index"`
	Email       string    `gorm:"column:email;size:320"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing viewer profiles.
func (Profile) TableName() string {
	return "viewer_profiles"
}

// Resolved is the canonical viewer behind a session.
type Resolved struct {
	ViewerID    string
	DisplayName string
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
