package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.MembershipPlanRepository = (*PostgresPlanRepo)(nil)

type PostgresPlanRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPlanRepo(pool *pgxpool.Pool) *PostgresPlanRepo {
	return &PostgresPlanRepo{pool: pool}
}

const planColumns = `id, slug, display_name, duration_days, price_book, features, is_active, sort, notes, created_at, updated_at`

func (r *PostgresPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.MembershipPlan) error {
	const q = `
INSERT INTO membership_plans (` + planColumns + `)
VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE
  SET slug          = EXCLUDED.slug,
      display_name  = EXCLUDED.display_name,
      duration_days = EXCLUDED.duration_days,
      price_book    = EXCLUDED.price_book,
      features      = EXCLUDED.features,
      is_active     = EXCLUDED.is_active,
      sort          = EXCLUDED.sort,
      notes         = EXCLUDED.notes,
      updated_at    = EXCLUDED.updated_at;
`
	prices, err := json.Marshal(plan.PriceBook)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	features := plan.Features
	if features == nil {
		features = []string{}
	}
	feat, err := json.Marshal(features)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	_, err = execSQL(ctx, r.pool, tx, q,
		plan.ID, plan.Slug, plan.DisplayName, plan.DurationDays, string(prices), string(feat),
		plan.IsActive, plan.Sort, plan.Notes, plan.CreatedAt, plan.UpdatedAt,
	)
	return mapExecErr(err)
}

func (r *PostgresPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MembershipPlan, error) {
	q := forUpdate(`SELECT `+planColumns+` FROM membership_plans WHERE id = $1`, tx)
	return r.findOne(ctx, tx, q, id)
}

func (r *PostgresPlanRepo) FindBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.MembershipPlan, error) {
	q := forUpdate(`SELECT `+planColumns+` FROM membership_plans WHERE slug = $1`, tx)
	return r.findOne(ctx, tx, q, model.NormalizeSlug(slug))
}

func (r *PostgresPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.MembershipPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM membership_plans WHERE is_active ORDER BY sort ASC, duration_days ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	out := make([]*model.MembershipPlan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
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

func (r *PostgresPlanRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg string) (*model.MembershipPlan, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(s scanner) (*model.MembershipPlan, error) {
	var p model.MembershipPlan
	var prices, feats []byte
	if err := s.Scan(&p.ID, &p.Slug, &p.DisplayName, &p.DurationDays, &prices, &feats,
		&p.IsActive, &p.Sort, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	if err := json.Unmarshal(prices, &p.PriceBook); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(feats) > 0 {
		if err := json.Unmarshal(feats, &p.Features); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &p, nil
}
