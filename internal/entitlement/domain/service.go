package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrUserUnknown = errors.New("entitlement: unknown user")

type Service interface {
	// Balance computes the user's current credit snapshot for the billing
	// month containing now.
	Balance(ctx context.Context, userID snowflake.ID) (Snapshot, error)

	// HasPaidEntitlement reports whether the user holds an active paid
	// entitlement (an unexpired credit grant).
	HasPaidEntitlement(ctx context.Context, userID snowflake.ID) (bool, error)
}
