package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumera-ai/lumera/internal/cache"
	"github.com/lumera-ai/lumera/internal/clock"
	"github.com/lumera-ai/lumera/internal/config"
	"github.com/lumera-ai/lumera/internal/entitlement/domain"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"go.uber.org/zap"
)

// planCacheTTL bounds how long a user's plan id is served without a profile
// lookup. Plan changes surface within this window.
const planCacheTTL = 45 * time.Second

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	profiles profiledomain.Repository
	pricing  *config.PricingHolder
	clock    clock.Clock
	plans    cache.Cache[snowflake.ID, string]
}

func New(log *zap.Logger, repo domain.Repository, profiles profiledomain.Repository, pricing *config.PricingHolder, clk clock.Clock) domain.Service {
	return &Service{
		log:      log.Named("entitlement.service"),
		repo:     repo,
		profiles: profiles,
		pricing:  pricing,
		clock:    clk,
		plans:    cache.NewTTLCache[snowflake.ID, string](),
	}
}

var _ domain.Service = (*Service)(nil)

// Balance computes the credit snapshot for the billing month containing now.
// A usage query failure degrades to zero usage so callers can still render
// the plan totals; a ledger query failure is surfaced.
func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (domain.Snapshot, error) {
	planID, err := s.planID(ctx, userID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	pricing := s.pricing.Get()
	plan, known := pricing.Plan(planID)
	if !known {
		s.log.Warn("unknown plan, using free tier", zap.String("plan", planID), zap.Int64("user_id", int64(userID)))
	}

	now := s.clock.Now()
	ledger, err := s.repo.LedgerEntries(ctx, userID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load ledger: %w", err)
	}

	from, to := monthWindow(now)
	usage, err := s.repo.UsageBetween(ctx, userID, from, to)
	if err != nil {
		s.log.Warn("usage query failed, degrading to zero usage",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err),
		)
		usage = nil
	}

	return computeSnapshot(plan, pricing, ledger, usage, now), nil
}

// HasPaidEntitlement reports whether the user holds an unexpired credit grant.
func (s *Service) HasPaidEntitlement(ctx context.Context, userID snowflake.ID) (bool, error) {
	return s.repo.ActiveGrantExists(ctx, userID, s.clock.Now())
}

func (s *Service) planID(ctx context.Context, userID snowflake.ID) (string, error) {
	if planID, ok := s.plans.Get(userID); ok {
		return planID, nil
	}
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return "", domain.ErrUserUnknown
		}
		return "", fmt.Errorf("load profile: %w", err)
	}
	planID := profile.Plan
	if planID == "" {
		planID = config.FreePlanID
	}
	s.plans.Set(userID, planID, planCacheTTL)
	return planID, nil
}
