package adapter

import (
	"context"
	"time"
)

// AdminNotifier delivers operator alerts about payments.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string) error
}

// EventDeduper remembers webhook event ids for a bounded window in a store
// shared by every instance.
type EventDeduper interface {
	// MarkSeen returns true if the id was not seen within ttl.
	MarkSeen(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error)
	// Release forgets an id so a provider retry is processed again.
	Release(ctx context.Context, provider, eventID string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
