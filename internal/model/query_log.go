package model

import (
	"strings"
	"time"
)

type QueryLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Intent    string    `gorm:"size:32;not null;index" json:"intent"`
	Outcome   string    `gorm:"size:32;not null;index" json:"outcome"`
	MaxScore  float64   `json:"max_score"`
	Sources   string    `gorm:"type:text" json:"sources"` // comma separated filenames
	Model     string    `gorm:"size:128" json:"model"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func QueryLogFromEvent(event QueryEvent) QueryLog {
	return QueryLog{
		EventID:   event.ID,
		Question:  event.Question,
		Intent:    event.Intent,
		Outcome:   event.Outcome,
		MaxScore:  event.MaxScore,
		Sources:   strings.Join(event.Sources, ","),
		Model:     event.Model,
		LatencyMS: event.LatencyMS,
		CreatedAt: event.CreatedAt,
	}
}
