package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"linkhub-membership/internal/domain/ports/adapter"
)

var _ adapter.EventDeduper = (*WebhookEventRepo)(nil)

// WebhookEventRepo is the Postgres-backed EventDeduper. A row older than the
// TTL is treated as expired and reclaimed by the next delivery of that id.
type WebhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepo(pool *pgxpool.Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

func (r *WebhookEventRepo) MarkSeen(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	const q = `
INSERT INTO webhook_events (provider, event_id, received_at)
VALUES ($1, $2, NOW())
ON CONFLICT (provider, event_id) DO UPDATE
   SET received_at = NOW()
 WHERE webhook_events.received_at < $3;`
	cutoff := time.Now().Add(-ttl)
	cmd, err := execSQL(ctx, r.pool, nil, q, provider, eventID, cutoff)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *WebhookEventRepo) Release(ctx context.Context, provider, eventID string) error {
	_, err := execSQL(ctx, r.pool, nil, `DELETE FROM webhook_events WHERE provider = $1 AND event_id = $2;`, provider, eventID)
	return mapExecErr(err)
}

// Purge drops rows older than ttl so the table stays bounded.
func (r *WebhookEventRepo) Purge(ctx context.Context, ttl time.Duration) (int64, error) {
	cmd, err := execSQL(ctx, r.pool, nil, `DELETE FROM webhook_events WHERE received_at < $1;`, time.Now().Add(-ttl))
	if err != nil {
		return 0, mapExecErr(err)
	}
	return cmd.RowsAffected(), nil
}
