package api

import (
	"time"

	"predictarb/internal/risk"
	"predictarb/internal/session"
)

// SnapshotProvider gives the API server read access to the running bot's
// state, the narrowest interface the session driver needs to implement to
// back the dashboard. It is deliberately decoupled from internal/config:
// the heartbeat only needs current counters, not the tunables that
// produced them.
type SnapshotProvider interface {
	SessionSnapshot() session.Snapshot
	RiskSnapshot() risk.Snapshot
}

// BuildSnapshot aggregates session and risk state into a dashboard payload.
func BuildSnapshot(provider SnapshotProvider) DashboardSnapshot {
	sessSnap := provider.SessionSnapshot()
	return DashboardSnapshot{
		Timestamp: time.Now(),
		Session:   sessSnap,
		Risk:      provider.RiskSnapshot(),
		WinRate:   sessSnap.WinRate(),
	}
}
