package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"linkhub-membership/internal/config"
	"linkhub-membership/internal/domain"
	"linkhub-membership/internal/domain/model"
	"linkhub-membership/internal/domain/ports/repository"
	"linkhub-membership/internal/infra/api"
	"linkhub-membership/internal/infra/db/migrations"
	pg "linkhub-membership/internal/infra/db/postgres"
	"linkhub-membership/internal/infra/logging"
)

type seedPlan struct {
	Slug   string
	Name   string
	Days   int
	Prices []model.PriceEntry
	Sort   int
}

var plans = []seedPlan{
	{"pro-weekly", "Pro Weekly", 7, []model.PriceEntry{
		{Region: model.RegionIN, Currency: "INR", AmountMinor: 14900},
		{Region: model.RegionEU, Currency: "EUR", AmountMinor: 299},
		{Region: model.RegionINTL, Currency: "USD", AmountMinor: 299},
	}, 10},
	{"pro-monthly", "Pro Monthly", 30, []model.PriceEntry{
		{Region: model.RegionIN, Currency: "INR", AmountMinor: 49900},
		{Region: model.RegionEU, Currency: "EUR", AmountMinor: 899},
		{Region: model.RegionINTL, Currency: "USD", AmountMinor: 999},
	}, 20},
	{"pro-yearly", "Pro Yearly", 365, []model.PriceEntry{
		{Region: model.RegionIN, Currency: "INR", AmountMinor: 499900},
		{Region: model.RegionEU, Currency: "EUR", AmountMinor: 8900},
		{Region: model.RegionINTL, Currency: "USD", AmountMinor: 9900},
	}, 30},
}

type seedCoupon struct {
	Code     string
	Type     model.CouponType
	Value    string
	Regions  []model.Region
	Usage    int64
	PerUser  int64
	MaxMinor int64
}

var coupons = []seedCoupon{
	{Code: "WELCOME10", Type: model.CouponPercent, Value: "10", PerUser: 1},
	{Code: "INDIA200", Type: model.CouponFixed, Value: "20000", Regions: []model.Region{model.RegionIN}, Usage: 500},
	{Code: "LAUNCH12.5", Type: model.CouponPercent, Value: "12.5", MaxMinor: 5000},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "also seed a 100% coupon and a demo user with a bearer token")
	migrate := flag.Bool("migrate", true, "apply migrations first")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *migrate {
		if err := migrations.Run(ctx, cfg.Database.URL, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
	}
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	planRepo := pg.NewPostgresPlanRepo(pool)
	couponRepo := pg.NewCouponRepo(pool)
	userRepo := pg.NewPostgresUserRepo(pool)

	if err := seedPlans(ctx, planRepo, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed plans")
	}
	list := coupons
	if cfg.Runtime.Dev {
		list = append(list, seedCoupon{Code: "FREEPASS", Type: model.CouponPercent, Value: "100", Usage: 20})
	}
	if err := seedCoupons(ctx, couponRepo, list, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed coupons")
	}
	if cfg.Runtime.Dev {
		if err := seedDemoUser(ctx, userRepo, cfg.Auth.JWTSecret, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed demo user")
		}
	}
	logger.Info().Msg("seeding complete")
}

func seedPlans(ctx context.Context, repo repository.MembershipPlanRepository, logger *zerolog.Logger) error {
	for _, s := range plans {
		if existing, err := repo.FindBySlug(ctx, repository.NoTX, s.Slug); err == nil && existing != nil {
			logger.Info().Str("slug", s.Slug).Msg("plan already present")
			continue
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		p, err := model.NewMembershipPlan("", s.Slug, s.Name, s.Days, s.Prices)
		if err != nil {
			return fmt.Errorf("plan %s: %w", s.Slug, err)
		}
		p.Sort = s.Sort
		if err := repo.Save(ctx, repository.NoTX, p); err != nil {
			return fmt.Errorf("save plan %s: %w", s.Slug, err)
		}
		logger.Info().Str("slug", p.Slug).Str("id", p.ID).Int("days", p.DurationDays).Msg("seeded plan")
	}
	return nil
}

func seedCoupons(ctx context.Context, repo repository.CouponRepository, list []seedCoupon, logger *zerolog.Logger) error {
	for _, s := range list {
		if existing, err := repo.FindActiveByCode(ctx, repository.NoTX, s.Code); err == nil && existing != nil {
			logger.Info().Str("code", s.Code).Msg("coupon already present")
			continue
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		c, err := model.NewCoupon(s.Code, s.Type, decimal.RequireFromString(s.Value))
		if err != nil {
			return fmt.Errorf("coupon %s: %w", s.Code, err)
		}
		c.Regions = s.Regions
		c.UsageLimit = s.Usage
		c.PerUserLimit = s.PerUser
		c.MaxDiscountMinor = s.MaxMinor
		if err := repo.Save(ctx, repository.NoTX, c); err != nil {
			return fmt.Errorf("save coupon %s: %w", s.Code, err)
		}
		logger.Info().Str("code", c.Code).Str("type", string(c.Type)).Str("value", c.Value.String()).Msg("seeded coupon")
	}
	return nil
}

// seedDemoUser creates a user with a referral code and prints a bearer token
// for calling the membership API by hand.
func seedDemoUser(ctx context.Context, repo repository.UserRepository, jwtSecret string, logger *zerolog.Logger) error {
	const demoID = "00000000-0000-4000-8000-000000000001"
	u, err := repo.FindByID(ctx, repository.NoTX, demoID)
	if errors.Is(err, domain.ErrNotFound) {
		u, err = model.NewUser(demoID, "demo@example.test", "demo")
		if err != nil {
			return err
		}
		u.ReferralCode = "DEMOREF"
		if err := repo.Save(ctx, repository.NoTX, u); err != nil {
			return err
		}
		logger.Info().Str("id", u.ID).Msg("seeded demo user")
	} else if err != nil {
		return err
	}
	if jwtSecret == "" {
		logger.Warn().Msg("auth.jwt_secret empty; no demo token minted")
		return nil
	}
	tok, err := api.NewAuthManager(jwtSecret).Mint(u.ID, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("demo bearer token (24h): %s\n", tok)
	return nil
}
