// Package httpclient implements the identity provider contract over its
// REST surface.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/lumera-ai/lumera/internal/config"
	"github.com/lumera-ai/lumera/internal/identity/domain"
	"github.com/lumera-ai/lumera/internal/retry"
	"go.uber.org/zap"
)

type Client struct {
	log     *zap.Logger
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(cfg config.Config, log *zap.Logger) *Client {
	timeout := cfg.Identity.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		log:     log.Named("identity.http"),
		baseURL: cfg.Identity.BaseURL,
		apiKey:  cfg.Identity.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

type sendCodeResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (c *Client) SendCode(ctx context.Context, email string) (*domain.SendCodeResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	var resp sendCodeResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/otp/send", "", sendCodeRequest{Email: email}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.mapStatus(status)
	}
	return &domain.SendCodeResult{OK: resp.OK, Message: resp.Message}, nil
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type sessionResponse struct {
	IdentityID  string    `json:"identity_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c *Client) VerifyCode(ctx context.Context, email, code string) (*domain.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	var resp sessionResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/otp/verify", "", verifyRequest{Email: email, Code: code}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.mapStatus(status)
	}
	return sessionFromResponse(resp), nil
}

func (c *Client) CurrentSession(ctx context.Context) (*domain.Session, error) {
	var resp sessionResponse
	status, err := c.do(ctx, http.MethodGet, "/v1/session", "", nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusNoContent {
		return nil, domain.ErrNoSession
	}
	if status != http.StatusOK {
		return nil, c.mapStatus(status)
	}
	return sessionFromResponse(resp), nil
}

func (c *Client) ValidateToken(ctx context.Context, token string) (*domain.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrTokenInvalid
	}

	var resp sessionResponse
	status, err := c.do(ctx, http.MethodGet, "/v1/user", token, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, domain.ErrTokenInvalid
	}
	if status != http.StatusOK {
		return nil, c.mapStatus(status)
	}
	return sessionFromResponse(resp), nil
}

func (c *Client) SignOut(ctx context.Context, token string, global bool) error {
	path := "/v1/signout"
	if global {
		path += "?scope=global"
	}
	status, err := c.do(ctx, http.MethodPost, path, token, nil, nil)
	if err != nil {
		return err
	}
	// Signing out an already-dead session is not an error.
	if status == http.StatusOK || status == http.StatusNoContent || status == http.StatusUnauthorized {
		return nil
	}
	return c.mapStatus(status)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures are retryable by policy.
		return 0, retry.Transient(fmt.Errorf("identity provider unreachable: %w", err))
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode identity response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

func (c *Client) mapStatus(status int) error {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.ErrCodeInvalid
	case status == http.StatusGone:
		return domain.ErrCodeExpired
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrTokenInvalid
	case status == http.StatusNotFound:
		return domain.ErrNoSession
	case status >= 500:
		return retry.Transient(fmt.Errorf("identity provider error: status %d", status))
	default:
		return fmt.Errorf("identity provider: unexpected status %d", status)
	}
}

func sessionFromResponse(resp sessionResponse) *domain.Session {
	return &domain.Session{
		IdentityID:  resp.IdentityID,
		Email:       strings.ToLower(strings.TrimSpace(resp.Email)),
		AccessToken: resp.AccessToken,
		ExpiresAt:   resp.ExpiresAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}
