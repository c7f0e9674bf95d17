package otp

import "errors"

var (
	ErrEmailRequired          = errors.New("otp: email is required")
	ErrCodeMalformed          = errors.New("otp: code must be 6 digits")
	ErrNoCodeSent             = errors.New("otp: no code has been sent")
	ErrVerificationInProgress = errors.New("otp: verification already in progress")
	ErrAccountInactive        = errors.New("otp: account is inactive")
	ErrSendRejected           = errors.New("otp: code request rejected")
)
