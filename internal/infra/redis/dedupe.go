package redis

import (
	"context"
	"fmt"
	"time"

	"linkhub-membership/internal/domain/ports/adapter"
)

var _ adapter.EventDeduper = (*EventDeduper)(nil)

// EventDeduper remembers gateway event ids with SETNX so that a redelivered
// webhook is recognized across replicas until the TTL runs out.
type EventDeduper struct {
	client RedisClient
}

func NewEventDeduper(client RedisClient) *EventDeduper {
	return &EventDeduper{client: client}
}

func webhookKey(provider, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, eventID)
}

func (d *EventDeduper) MarkSeen(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, webhookKey(provider, eventID), time.Now().Unix(), ttl)
}

func (d *EventDeduper) Release(ctx context.Context, provider, eventID string) error {
	return d.client.Del(ctx, webhookKey(provider, eventID))
}
