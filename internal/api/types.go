package api

import (
	"time"

	"predictarb/internal/risk"
	"predictarb/internal/session"
)

// DashboardSnapshot is the full payload served from /api/snapshot: the
// session's running counters plus the current risk posture, enough for an
// operator to see the bot's health without a database connection.
type DashboardSnapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Session   session.Snapshot `json:"session"`
	Risk      risk.Snapshot    `json:"risk"`
	WinRate   float64          `json:"win_rate"`
}
