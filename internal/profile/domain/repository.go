package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, profile *UserProfile) error
	FindByIdentityID(ctx context.Context, identityID string) (*UserProfile, error)
	FindByID(ctx context.Context, id snowflake.ID) (*UserProfile, error)
	UpdateFields(ctx context.Context, identityID string, fields map[string]any) error
}
