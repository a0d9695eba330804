package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/metrics"
	red "linkhub-membership/internal/infra/redis"
)

var _ repository.MembershipPlanRepository = (*planRepoCacheDecorator)(nil)

const planListKey = "plans:active"

type planRepoCacheDecorator struct {
	inner repository.MembershipPlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.MembershipPlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.MembershipPlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: logger}
}

func planIDKey(id string) string     { return fmt.Sprintf("plan:%s", id) }
func planSlugKey(slug string) string { return fmt.Sprintf("plan:slug:%s", model.NormalizeSlug(slug)) }

// Reads inside a transaction go straight to the database so row locks apply.
func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MembershipPlan, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	return d.cachedPlan(ctx, planIDKey(id), func() (*model.MembershipPlan, error) {
		return d.inner.FindByID(ctx, tx, id)
	})
}

func (d *planRepoCacheDecorator) FindBySlug(ctx context.Context, tx repository.Tx, slug string) (*model.MembershipPlan, error) {
	if tx != nil {
		return d.inner.FindBySlug(ctx, tx, slug)
	}
	return d.cachedPlan(ctx, planSlugKey(slug), func() (*model.MembershipPlan, error) {
		return d.inner.FindBySlug(ctx, tx, slug)
	})
}

func (d *planRepoCacheDecorator) cachedPlan(ctx context.Context, key string, load func() (*model.MembershipPlan, error)) (*model.MembershipPlan, error) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plan model.MembershipPlan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncPlanCache("plan", true)
			return &plan, nil
		}
	} else if !red.IsNil(err) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncPlanCache("plan", false)
	plan, err := load()
	if err != nil {
		return nil, err
	}
	if plan != nil {
		if b, mErr := json.Marshal(plan); mErr == nil {
			if sErr := d.cache.Set(ctx, key, b, d.ttl); sErr != nil {
				d.log.Warn().Err(sErr).Str("key", key).Msg("plan cache write failed")
			}
		}
	}
	return plan, nil
}

// Save invalidates every key the plan may be cached under, including the old slug.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.MembershipPlan) error {
	keys := []string{planIDKey(plan.ID), planSlugKey(plan.Slug), planListKey}
	if prev, err := d.inner.FindByID(ctx, tx, plan.ID); err == nil && prev != nil && prev.Slug != plan.Slug {
		keys = append(keys, planSlugKey(prev.Slug))
	}
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, keys...); err != nil {
		d.log.Warn().Err(err).Strs("keys", keys).Msg("plan cache invalidation failed")
	}
	return nil
}

func (d *planRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.MembershipPlan, error) {
	if tx != nil {
		return d.inner.ListActive(ctx, tx)
	}
	val, err := d.cache.Get(ctx, planListKey)
	if err == nil {
		var plans []*model.MembershipPlan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncPlanCache("list", true)
			return plans, nil
		}
	}

	metrics.IncPlanCache("list", false)
	plans, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if b, mErr := json.Marshal(plans); mErr == nil {
			_ = d.cache.Set(ctx, planListKey, b, d.ttl)
		}
	}
	return plans, nil
}
