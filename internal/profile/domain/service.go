package domain

import "context"

type Service interface {
	// Fetch returns the profile for identityID, provisioning it when
	// missing. Transient backend failures retry with backoff; an inactive
	// profile returns ErrProfileInactive and the caller must force a
	// sign-out instead of publishing it.
	Fetch(ctx context.Context, identityID, email string) (*UserProfile, error)

	Update(ctx context.Context, identityID string, patch UpdateRequest) (*UserProfile, error)

	// CompleteRegistration records the registration-completion marker.
	// Fire-and-forget: failures are logged, never surfaced.
	CompleteRegistration(identityID string, metadata map[string]any)
}

type UpdateRequest struct {
	Name  *string
	Phone *string
}
