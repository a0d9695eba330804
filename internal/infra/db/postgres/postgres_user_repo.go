package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, email, username, profile_name, phone, country, COALESCE(referral_code, ''),
  referred_by, referred_by_user, referred_at, membership, created_at, updated_at`

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (
  id, email, username, profile_name, phone, country, referral_code,
  referred_by, referred_by_user, referred_at, membership, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,NULLIF($7, ''),$8,$9,$10,$11::jsonb,$12,$13
) ON CONFLICT (id) DO UPDATE SET
  email=$2, username=$3, profile_name=$4, phone=$5, country=$6, referral_code=NULLIF($7, ''),
  updated_at=$13;`

	if u.Membership.Status == "" {
		u.Membership.Status = model.MembershipInactive
	}
	membership, err := json.Marshal(u.Membership)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.ReferralCode = strings.ToUpper(strings.TrimSpace(u.ReferralCode))

	_, err = execSQL(ctx, r.pool, tx, q,
		u.ID, u.Email, u.Username, u.ProfileName, u.Phone, u.Country, u.ReferralCode,
		u.ReferredBy, u.ReferredByUser, u.ReferredAt, string(membership), u.CreatedAt, u.UpdatedAt)
	return mapExecErr(err)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := forUpdate(`SELECT `+userColumns+` FROM users WHERE id = $1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *PostgresUserRepo) FindByReferralCode(ctx context.Context, tx repository.Tx, code string) (*model.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.ErrNotFound
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

// SetReferralIfUnset is first-write-wins: a user already attributed keeps the original referrer.
func (r *PostgresUserRepo) SetReferralIfUnset(ctx context.Context, tx repository.Tx, userID string, ref model.Referral) (bool, error) {
	const q = `
UPDATE users
   SET referred_by = $2, referred_by_user = $3, referred_at = $4, updated_at = NOW()
 WHERE id = $1 AND referred_by = '';`
	at := ref.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, strings.ToUpper(ref.Code), ref.UserID, at)
	if err != nil {
		return false, mapExecErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *PostgresUserRepo) UpdateMembership(ctx context.Context, tx repository.Tx, userID string, m model.MembershipSnapshot) error {
	const q = `UPDATE users SET membership = $2::jsonb, updated_at = NOW() WHERE id = $1;`
	b, err := json.Marshal(m)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, string(b))
	if err != nil {
		return mapExecErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	const q = `
UPDATE users
   SET membership = jsonb_set(membership, '{status}', '"inactive"'::jsonb),
       updated_at = NOW()
 WHERE membership->>'status' = 'active'
   AND membership ? 'currentPeriodEnd'
   AND (membership->>'currentPeriodEnd')::timestamptz <= $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapExecErr(err)
	}
	return int(cmd.RowsAffected()), nil
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var membership []byte
	if err := s.Scan(&u.ID, &u.Email, &u.Username, &u.ProfileName, &u.Phone, &u.Country, &u.ReferralCode,
		&u.ReferredBy, &u.ReferredByUser, &u.ReferredAt, &membership, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	if len(membership) > 0 {
		if err := json.Unmarshal(membership, &u.Membership); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if u.Membership.Status == "" {
		u.Membership.Status = model.MembershipInactive
	}
	return &u, nil
}
