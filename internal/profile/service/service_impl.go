package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumera-ai/lumera/internal/profile/domain"
	"github.com/lumera-ai/lumera/internal/retry"
	"github.com/lumera-ai/lumera/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	fetchAttempts       = 3
	fetchBaseDelay      = 500 * time.Millisecond
	registrationTimeout = 5 * time.Second
)

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	genID  *snowflake.Node
	policy retry.Policy
}

func New(log *zap.Logger, repo domain.Repository, genID *snowflake.Node) domain.Service {
	return &Service{
		log:    log.Named("profile.service"),
		repo:   repo,
		genID:  genID,
		policy: retry.NewPolicy(fetchAttempts, fetchBaseDelay),
	}
}

func (s *Service) Fetch(ctx context.Context, identityID, email string) (*domain.UserProfile, error) {
	if identityID == "" {
		return nil, domain.ErrProfileNotFound
	}

	var profile *domain.UserProfile
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			s.log.Debug("retrying profile fetch",
				zap.String("identity_id", identityID),
				zap.Int("attempt", attempt))
		}
		p, err := s.fetchOnce(ctx, identityID, email)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrProfileInactive) {
			return nil, domain.ErrProfileInactive
		}
		if errors.Is(err, retry.ErrExhausted) {
			s.log.Warn("profile fetch exhausted retries",
				zap.String("identity_id", identityID),
				zap.Error(err))
			return nil, errors.Join(domain.ErrProfileUnavailable, err)
		}
		return nil, err
	}
	return profile, nil
}

func (s *Service) fetchOnce(ctx context.Context, identityID, email string) (*domain.UserProfile, error) {
	profile, err := s.repo.FindByIdentityID(ctx, identityID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return s.provision(ctx, identityID, email)
	}
	if err != nil {
		return nil, retry.Transient(err)
	}
	return s.sanitize(profile)
}

// provision creates the profile exactly once per identity id. A duplicate-key
// rejection means another writer won the race, which counts as success.
func (s *Service) provision(ctx context.Context, identityID, email string) (*domain.UserProfile, error) {
	profile := domain.Provisional(identityID, email)
	profile.ID = s.genID.Generate()

	err := s.repo.Create(ctx, profile)
	if db.IsDuplicateKeyErr(err) {
		existing, ferr := s.repo.FindByIdentityID(ctx, identityID)
		if ferr != nil {
			return nil, retry.Transient(ferr)
		}
		return s.sanitize(existing)
	}
	if err != nil {
		return nil, retry.Transient(err)
	}

	s.log.Info("provisioned profile",
		zap.String("identity_id", identityID),
		zap.String("profile_id", profile.ID.String()))
	return s.sanitize(profile)
}

func (s *Service) sanitize(profile *domain.UserProfile) (*domain.UserProfile, error) {
	profile.Role = domain.NormalizeRole(string(profile.Role))
	if profile.Plan == "" {
		profile.Plan = "free"
	}
	if !profile.IsActive {
		return nil, domain.ErrProfileInactive
	}
	return profile, nil
}

func (s *Service) Update(ctx context.Context, identityID string, patch domain.UpdateRequest) (*domain.UserProfile, error) {
	fields := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		fields["name"] = *patch.Name
	}
	if patch.Phone != nil {
		fields["phone"] = *patch.Phone
	}

	if err := s.repo.UpdateFields(ctx, identityID, fields); err != nil {
		return nil, err
	}
	profile, err := s.repo.FindByIdentityID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.sanitize(profile)
}

func (s *Service) CompleteRegistration(identityID string, metadata map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), registrationTimeout)
		defer cancel()

		profile, err := s.repo.FindByIdentityID(ctx, identityID)
		if err != nil {
			s.log.Warn("registration completion skipped",
				zap.String("identity_id", identityID),
				zap.Error(err))
			return
		}

		now := time.Now().UTC()
		fields := map[string]any{"updated_at": now}
		if profile.FirstTouchAt == nil {
			fields["first_touch_at"] = now
		}
		if len(metadata) > 0 {
			merged := datatypes.JSONMap{}
			for k, v := range profile.Metadata {
				merged[k] = v
			}
			for k, v := range metadata {
				merged[k] = v
			}
			fields["metadata"] = merged
		}

		if err := s.repo.UpdateFields(ctx, identityID, fields); err != nil {
			s.log.Warn("registration completion failed",
				zap.String("identity_id", identityID),
				zap.Error(err))
		}
	}()
}
