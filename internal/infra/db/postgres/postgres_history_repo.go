package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
)

var _ repository.MembershipHistoryRepository = (*historyRepo)(nil)

type historyRepo struct{ pool *pgxpool.Pool }

func NewHistoryRepo(pool *pgxpool.Pool) *historyRepo {
	return &historyRepo{pool: pool}
}

func (r *historyRepo) Append(ctx context.Context, tx repository.Tx, e *model.MembershipHistoryEntry) error {
	const q = `
INSERT INTO membership_history (
  user_id, purchase_id, provider, transaction_id, plan_id, plan_key, plan_name, region, currency,
  base_amount_minor, discount_minor, final_amount_minor, coupon_code, duration_days,
  period_start, period_end, purchased_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.UserID, e.PurchaseID, string(e.Provider), e.TransactionID, e.Plan, e.PlanKey, e.PlanName,
		string(e.Region), e.Currency, e.BaseAmountMinor, e.DiscountMinor, e.FinalAmountMinor,
		e.CouponCode, e.DurationDays, e.PeriodStart, e.PeriodEnd, e.PurchasedAt)
	return mapExecErr(err)
}

func (r *historyRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.MembershipHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT user_id, purchase_id, provider, transaction_id, plan_id, plan_key, plan_name, region, currency,
       base_amount_minor, discount_minor, final_amount_minor, coupon_code, duration_days,
       period_start, period_end, purchased_at
  FROM membership_history
 WHERE user_id = $1
 ORDER BY purchased_at DESC, id DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.MembershipHistoryEntry
	for rows.Next() {
		var e model.MembershipHistoryEntry
		var provider, region string
		if err := rows.Scan(&e.UserID, &e.PurchaseID, &provider, &e.TransactionID, &e.Plan, &e.PlanKey, &e.PlanName,
			&region, &e.Currency, &e.BaseAmountMinor, &e.DiscountMinor, &e.FinalAmountMinor,
			&e.CouponCode, &e.DurationDays, &e.PeriodStart, &e.PeriodEnd, &e.PurchasedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.Provider = model.Provider(provider)
		e.Region = model.Region(region)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
