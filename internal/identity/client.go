// Package identity implements the client for the identity provider's
// accounts API (email/password auth and ID-token verification).
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const defaultBaseURL = "https://identitytoolkit.googleapis.com/v1/accounts"

// Session is the token bundle returned by sign-in style endpoints.
type Session struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	ExpiresIn    string `json:"expiresIn"`
}

// Client talks to the identity provider with a fixed API key.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// New creates an identity client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// providerError is the provider's error envelope.
type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("identity: encode body: %w", err)
	}
	u := fmt.Sprintf("%s:%s?key=%s", c.baseURL, endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("identity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Internal("identity provider unreachable", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Internal("read identity response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var pe providerError
		_ = json.Unmarshal(raw, &pe)
		msg := pe.Error.Message
		if msg == "" {
			msg = "identity provider error"
		}
		switch {
		case resp.StatusCode == http.StatusBadRequest:
			// Credential and token failures arrive as 400 with a coded message.
			return apperr.Unauthorized(msg)
		default:
			return apperr.Upstream(resp.StatusCode, msg, json.RawMessage(raw))
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperr.Internal("decode identity response", err)
		}
	}
	return nil
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := c.post(ctx, "signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := c.post(ctx, "signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ResetPassword sends a password-reset mail.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.post(ctx, "sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

// Update changes profile fields on the account owning idToken. Empty
// fields are left untouched.
func (c *Client) Update(ctx context.Context, idToken, displayName, photoURL, password string) error {
	body := map[string]any{
		"idToken":           idToken,
		"returnSecureToken": true,
	}
	if displayName != "" {
		body["displayName"] = displayName
	}
	if photoURL != "" {
		body["photoUrl"] = photoURL
	}
	if password != "" {
		body["password"] = password
	}
	return c.post(ctx, "update", body, nil)
}

// Verify resolves an ID token to its account. An unknown or expired
// token is Unauthorized; a disabled account is Forbidden.
func (c *Client) Verify(ctx context.Context, idToken string) (*models.Actor, error) {
	var result struct {
		Users []models.Actor `json:"users"`
	}
	if err := c.post(ctx, "lookup", map[string]any{"idToken": idToken}, &result); err != nil {
		return nil, err
	}
	if len(result.Users) == 0 {
		return nil, apperr.Unauthorized("invalid authorization token")
	}
	actor := result.Users[0]
	if actor.Disabled {
		return nil, apperr.Forbidden("user account is disabled")
	}
	return &actor, nil
}

// Exists reports whether an account with email exists.
func (c *Client) Exists(ctx context.Context, email string) (bool, error) {
	var result struct {
		Users []models.Actor `json:"users"`
	}
	err := c.post(ctx, "lookup", map[string]any{"email": email}, &result)
	if err != nil {
		// The provider reports unknown mails as a coded failure.
		if strings.Contains(err.Error(), "EMAIL_NOT_FOUND") {
			return false, nil
		}
		return false, err
	}
	return len(result.Users) > 0, nil
}
