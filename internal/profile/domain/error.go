package domain

import "errors"

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrProfileInactive    = errors.New("profile is inactive")
	ErrProfileUnavailable = errors.New("profile unavailable")
)
