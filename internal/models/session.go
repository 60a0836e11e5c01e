// Package models defines the GORM models for the transcript archive.
package models

import "time"

// Session record statuses.
const (
	SessionStatusActive     = "active"
	SessionStatusClosed     = "closed"
	SessionStatusSuperseded = "superseded"
)

// SessionRecord is the archive row for one bounded conversational session.
// It exists for operator visibility (dashboard, digests) only; it is never
// read back into a running session's generation context.
type SessionRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Platform       string `gorm:"size:16;not null;index"` // "discord" or "slack"
	ChannelID      string `gorm:"size:128;not null;index"`
	StartedBy      string `gorm:"size:64;not null"`
	Status         string `gorm:"size:16;default:active;index"` // active, closed, superseded
	CollectedCount int
	StartedAt      time.Time `gorm:"index"`
	ClosedAt       *time.Time

	Entries []TranscriptEntry `gorm:"foreignKey:SessionID"`
}

// TranscriptEntry is one archived turn of a session's exchange.
type TranscriptEntry struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID uint   `gorm:"not null;index"`
	Sequence  int    `gorm:"not null"`
	Role      string `gorm:"size:16;not null"` // "user" or "assistant"
	Author    string `gorm:"size:64"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time

	Session SessionRecord `gorm:"foreignKey:SessionID"`
}
