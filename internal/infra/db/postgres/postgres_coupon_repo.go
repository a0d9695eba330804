package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct{ pool *pgxpool.Pool }

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (
  id, code, type, value, max_discount_minor, regions, starts_at, ends_at,
  usage_limit, per_user_limit, is_active, notes, total_redemptions, created_at, updated_at
) VALUES (
  $1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (id) DO UPDATE SET
  code=$2, type=$3, value=$4::numeric, max_discount_minor=$5, regions=$6, starts_at=$7, ends_at=$8,
  usage_limit=$9, per_user_limit=$10, is_active=$11, notes=$12, updated_at=$15;`

	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	regions := make([]string, 0, len(c.Regions))
	for _, rg := range c.Regions {
		regions = append(regions, string(rg))
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.Code, string(c.Type), c.Value.String(), c.MaxDiscountMinor, regions, c.StartsAt, c.EndsAt,
		c.UsageLimit, c.PerUserLimit, c.IsActive, c.Notes, c.TotalRedemptions, c.CreatedAt, c.UpdatedAt)
	return mapExecErr(err)
}

func (r *couponRepo) FindActiveByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	q := forUpdate(`
SELECT id, code, type, value::text, max_discount_minor, regions, starts_at, ends_at,
       usage_limit, per_user_limit, is_active, notes, total_redemptions, created_at, updated_at
  FROM coupons
 WHERE code = $1 AND is_active`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, model.NormalizeCouponCode(code))
	if err != nil {
		return nil, err
	}

	var (
		c       model.Coupon
		typ     string
		value   string
		regions []string
	)
	if err := row.Scan(&c.ID, &c.Code, &typ, &value, &c.MaxDiscountMinor, &regions, &c.StartsAt, &c.EndsAt,
		&c.UsageLimit, &c.PerUserLimit, &c.IsActive, &c.Notes, &c.TotalRedemptions, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	c.Type = model.CouponType(typ)
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	for _, rg := range regions {
		c.Regions = append(c.Regions, model.Region(rg))
	}
	return &c, nil
}

// IncrementRedemptions is a single in-place UPDATE; concurrent settlements never lose a count.
func (r *couponRepo) IncrementRedemptions(ctx context.Context, tx repository.Tx, code string) error {
	const q = `UPDATE coupons SET total_redemptions = total_redemptions + 1, updated_at = NOW() WHERE code = $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, model.NormalizeCouponCode(code))
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
