package domain

import "errors"

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrCodeInvalid  = errors.New("verification code invalid")
	ErrCodeExpired  = errors.New("verification code expired")
	ErrNoSession    = errors.New("no active identity session")
	ErrTokenInvalid = errors.New("bearer token invalid")
)
