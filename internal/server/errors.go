package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/lumera-ai/lumera/internal/entitlement/domain"
	identitydomain "github.com/lumera-ai/lumera/internal/identity/domain"
	"github.com/lumera-ai/lumera/internal/otp"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, otp.ErrEmailRequired),
		errors.Is(err, otp.ErrCodeMalformed),
		errors.Is(err, otp.ErrNoCodeSent),
		errors.Is(err, identitydomain.ErrInvalidEmail),
		errors.Is(err, identitydomain.ErrCodeInvalid):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "request", Code: "invalid_request", Message: err.Error()},
			},
		}
	case errors.Is(err, identitydomain.ErrCodeExpired):
		return http.StatusGone, errorPayload{
			Type:    "code_expired",
			Message: "code expired",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identitydomain.ErrNoSession),
		errors.Is(err, identitydomain.ErrTokenInvalid):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, otp.ErrAccountInactive),
		errors.Is(err, profiledomain.ErrProfileInactive):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "account is inactive",
		}
	case errors.Is(err, otp.ErrVerificationInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "verification already in progress",
		}
	case errors.Is(err, profiledomain.ErrProfileNotFound),
		errors.Is(err, entitlementdomain.ErrUserUnknown),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, profiledomain.ErrProfileUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}
