// Package domain contains the durable user profile types.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Role is the profile's access level. Unrecognized values from legacy rows
// normalize to RoleUser.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// NormalizeRole maps an externally-sourced role value onto the three
// supported roles, defaulting to user.
func NormalizeRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperAdmin:
		return RoleSuperAdmin
	default:
		return RoleUser
	}
}

// UserProfile is created exactly once per identity id and carries the plan
// and generation counters the rest of the client reads.
type UserProfile struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	IdentityID string            `gorm:"column:identity_id;type:text;not null;uniqueIndex"`
	Email      string            `gorm:"type:text;not null"`
	Name       *string           `gorm:"type:text"`
	Phone      *string           `gorm:"type:text"`
	Role       Role              `gorm:"type:text;not null;default:'user'"`
	Plan       string            `gorm:"type:text;not null;default:'free'"`
	Counters   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	IsActive   bool              `gorm:"column:is_active;not null;default:true"`
	// FirstTouchAt is the registration-completion marker; nil means the
	// user has never finished onboarding.
	FirstTouchAt *time.Time        `gorm:"column:first_touch_at"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UserProfile) TableName() string { return "user_profiles" }

// Provisional returns the stub published while the authoritative profile is
// still being fetched.
func Provisional(identityID, email string) *UserProfile {
	return &UserProfile{
		IdentityID: identityID,
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Role:       RoleUser,
		Plan:       "free",
		Counters:   datatypes.JSONMap{"images": 0, "videos": 0},
		IsActive:   true,
	}
}
