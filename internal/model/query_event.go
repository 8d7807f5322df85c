package model

import "time"

// QueryEvent is published for every processed query and persisted
// asynchronously as a QueryLog.
type QueryEvent struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Intent    string    `json:"intent"`
	Outcome   string    `json:"outcome"`
	MaxScore  float64   `json:"max_score"`
	Sources   []string  `json:"sources"`
	Model     string    `json:"model"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}
