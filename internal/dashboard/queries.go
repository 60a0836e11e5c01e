package dashboard

import (
	"time"

	"github.com/zulandar/parley/internal/models"
	"gorm.io/gorm"
)

// Overview holds the top-line numbers for the index page and /api/overview.
type Overview struct {
	ActiveSessions int      `json:"active_sessions"`
	ActiveChannels []string `json:"active_channels,omitempty"`
	TotalSessions  int64    `json:"total_sessions"`
	TotalMessages  int64    `json:"total_messages"`
}

// BuildOverview combines live session state with archive totals.
func BuildOverview(db *gorm.DB, sessions SessionSource) Overview {
	var ov Overview
	if sessions != nil {
		ov.ActiveSessions = sessions.ActiveCount()
		ov.ActiveChannels = sessions.ActiveChannels()
	}
	if db != nil {
		db.Model(&models.SessionRecord{}).Count(&ov.TotalSessions)
		db.Model(&models.TranscriptEntry{}).Count(&ov.TotalMessages)
	}
	return ov
}

// SessionRow holds one archived session for list views.
type SessionRow struct {
	ID             uint       `json:"id"`
	Platform       string     `json:"platform"`
	ChannelID      string     `json:"channel_id"`
	StartedBy      string     `json:"started_by"`
	Status         string     `json:"status"`
	CollectedCount int        `json:"collected_count"`
	StartedAt      time.Time  `json:"started_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// RecentSessions returns the newest archived sessions, capped at limit.
func RecentSessions(db *gorm.DB, limit int) ([]SessionRow, error) {
	if db == nil {
		return []SessionRow{}, nil
	}

	var records []models.SessionRecord
	if err := db.Order("started_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]SessionRow, len(records))
	for i, r := range records {
		rows[i] = SessionRow{
			ID:             r.ID,
			Platform:       r.Platform,
			ChannelID:      r.ChannelID,
			StartedBy:      r.StartedBy,
			Status:         r.Status,
			CollectedCount: r.CollectedCount,
			StartedAt:      r.StartedAt,
			ClosedAt:       r.ClosedAt,
		}
	}
	return rows, nil
}

// TranscriptRow holds one archived exchange turn for the detail view.
type TranscriptRow struct {
	Sequence  int       `json:"sequence"`
	Role      string    `json:"role"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionDetail holds a session record plus its full transcript.
type SessionDetail struct {
	SessionRow
	Transcript []TranscriptRow `json:"transcript"`
}

// GetSessionDetail returns one archived session with its transcript in
// exchange order.
func GetSessionDetail(db *gorm.DB, id string) (*SessionDetail, error) {
	if db == nil {
		return nil, gorm.ErrRecordNotFound
	}

	var record models.SessionRecord
	if err := db.Preload("Entries", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sequence ASC")
	}).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}

	detail := &SessionDetail{
		SessionRow: SessionRow{
			ID:             record.ID,
			Platform:       record.Platform,
			ChannelID:      record.ChannelID,
			StartedBy:      record.StartedBy,
			Status:         record.Status,
			CollectedCount: record.CollectedCount,
			StartedAt:      record.StartedAt,
			ClosedAt:       record.ClosedAt,
		},
		Transcript: make([]TranscriptRow, len(record.Entries)),
	}
	for i, e := range record.Entries {
		detail.Transcript[i] = TranscriptRow{
			Sequence:  e.Sequence,
			Role:      e.Role,
			Author:    e.Author,
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
		}
	}
	return detail, nil
}
