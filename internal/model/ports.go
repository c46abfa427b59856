package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the sync pipeline and API from concrete storage
// (SQLite rows, Redis cache). Each implementation satisfies one or more of them.

// IntegrationStore persists broker connections per user.
type IntegrationStore interface {
	// UpsertIntegration creates or replaces the (user, broker) row.
	UpsertIntegration(ctx context.Context, in Integration) error

	// GetIntegration returns nil, nil if the user has not connected broker.
	GetIntegration(ctx context.Context, userID, broker string) (*Integration, error)

	// ListIntegrations returns every broker row for userID.
	ListIntegrations(ctx context.Context, userID string) ([]Integration, error)

	// ConnectedUsers lists users with at least one connected broker.
	ConnectedUsers(ctx context.Context) ([]string, error)

	// RecordSync stamps last_sync and sync_status for one integration.
	RecordSync(ctx context.Context, userID, broker string, status SyncStatus, syncErr string, at time.Time) error
}

// SnapshotStore holds the latest classified portfolio and opportunity set.
type SnapshotStore interface {
	// ReplaceSnapshot swaps holdings and opportunities together; a failed
	// call leaves the previous snapshot intact.
	ReplaceSnapshot(ctx context.Context, userID string, holdings []ClassifiedHolding, opps []Opportunity, at time.Time) error

	ReadPortfolio(ctx context.Context, userID string) ([]ClassifiedHolding, error)
	ReadOpportunities(ctx context.Context, userID string) ([]Opportunity, error)
}

// SyncThrottle limits how often a user's portfolio is re-synced.
type SyncThrottle interface {
	// TryAcquire returns false if a sync for userID started within window.
	TryAcquire(ctx context.Context, userID string, window time.Duration) (bool, error)

	// Release clears the throttle, e.g. after a failed run.
	Release(ctx context.Context, userID string) error
}

// ScoreCache caches efficiency scores for display.
type ScoreCache interface {
	// GetScore returns nil, nil on a miss.
	GetScore(ctx context.Context, userID string) (*EfficiencyScore, error)
	SetScore(ctx context.Context, userID string, s EfficiencyScore, ttl time.Duration) error
	InvalidateScore(ctx context.Context, userID string) error
}

// EventPublisher fans sync events out to listeners. Best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev SyncEvent)
}
