package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

type PostgresPurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPurchaseRepo(pool *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{pool: pool}
}

const purchaseColumns = `id, user_id, plan_id, region, currency, duration_days,
  base_amount_minor, discount_minor, final_amount_minor, coupon_code, coupon_applied,
  referrer_code, referrer_user, paid, paid_at, provider, provider_ref, created_at, updated_at`

func (r *PostgresPurchaseRepo) Create(ctx context.Context, tx repository.Tx, p *model.MembershipPurchase) error {
	const q = `INSERT INTO membership_purchases (` + purchaseColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19);`
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.PlanID, string(p.Region), p.Currency, p.DurationDays,
		p.BaseAmountMinor, p.DiscountMinor, p.FinalAmountMinor, p.CouponCode, p.CouponApplied,
		p.ReferrerCode, p.ReferrerUser, p.Paid, p.PaidAt, string(p.Provider), p.ProviderRef, p.CreatedAt, p.UpdatedAt)
	return mapExecErr(err)
}

func (r *PostgresPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MembershipPurchase, error) {
	q := forUpdate(`SELECT `+purchaseColumns+` FROM membership_purchases WHERE id = $1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *PostgresPurchaseRepo) FindByProviderRef(ctx context.Context, tx repository.Tx, provider model.Provider, ref string) (*model.MembershipPurchase, error) {
	if ref == "" {
		return nil, domain.ErrNotFound
	}
	const q = `SELECT ` + purchaseColumns + ` FROM membership_purchases
 WHERE provider = $1 AND provider_ref = $2 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, string(provider), ref)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *PostgresPurchaseRepo) SetProviderRef(ctx context.Context, tx repository.Tx, id string, provider model.Provider, ref string) error {
	const q = `UPDATE membership_purchases SET provider=$2, provider_ref=$3, updated_at=NOW() WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(provider), ref)
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkPaidIfUnpaid is the compare-and-set that guards entitlement: only the
// caller whose UPDATE matched paid=false gets true.
func (r *PostgresPurchaseRepo) MarkPaidIfUnpaid(ctx context.Context, tx repository.Tx, id string, upd repository.PaidUpdate) (bool, error) {
	const q = `
UPDATE membership_purchases
   SET paid = TRUE,
       paid_at = $2,
       provider = $3,
       provider_ref = COALESCE(NULLIF($4, ''), provider_ref),
       currency = COALESCE(NULLIF($5, ''), currency),
       final_amount_minor = COALESCE($6, final_amount_minor),
       updated_at = NOW()
 WHERE id = $1 AND paid = FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, upd.PaidAt, string(upd.Provider), upd.ProviderRef, upd.Currency, upd.FinalAmountMinor)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *PostgresPurchaseRepo) CountPaidByUserAndCoupon(ctx context.Context, tx repository.Tx, userID, couponCode string) (int64, error) {
	const q = `SELECT COUNT(*) FROM membership_purchases WHERE user_id = $1 AND coupon_code = $2 AND paid;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, model.NormalizeCouponCode(couponCode))
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *PostgresPurchaseRepo) ListUnpaidWithRefOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.MembershipPurchase, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + purchaseColumns + ` FROM membership_purchases
 WHERE NOT paid AND provider_ref <> '' AND provider <> 'manual' AND created_at < $1
 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *PostgresPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.MembershipPurchase, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + purchaseColumns + ` FROM membership_purchases WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, userID, limit)
}

func (r *PostgresPurchaseRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.MembershipPurchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.MembershipPurchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPurchase(s scanner) (*model.MembershipPurchase, error) {
	var p model.MembershipPurchase
	var region, provider string
	if err := s.Scan(&p.ID, &p.UserID, &p.PlanID, &region, &p.Currency, &p.DurationDays,
		&p.BaseAmountMinor, &p.DiscountMinor, &p.FinalAmountMinor, &p.CouponCode, &p.CouponApplied,
		&p.ReferrerCode, &p.ReferrerUser, &p.Paid, &p.PaidAt, &provider, &p.ProviderRef, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	p.Region = model.Region(region)
	p.Provider = model.Provider(provider)
	return &p, nil
}
