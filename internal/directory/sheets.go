// Package directory resolves membership records from the tabular
// directory (a spreadsheet reached over its values API) and answers
// permission checks against the permit column.
package directory

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const (
	defaultSheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
	defaultTokenURL      = "https://oauth2.googleapis.com/token"
	sheetsScope          = "https://www.googleapis.com/auth/spreadsheets"
)

// serviceAccount is the subset of the service-account key file we use.
type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// SheetsClient reads ranges from one spreadsheet using a
// service-account JWT grant.
type SheetsClient struct {
	baseURL       string
	tokenURL      string
	spreadsheetID string
	account       serviceAccount
	key           *rsa.PrivateKey
	client        *http.Client
	now           func() time.Time
}

// SheetsOption configures a SheetsClient.
type SheetsOption func(*SheetsClient)

// WithBaseURL overrides the values API base URL (used by tests).
func WithBaseURL(u string) SheetsOption {
	return func(c *SheetsClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTokenURL overrides the token endpoint (used by tests).
func WithTokenURL(u string) SheetsOption {
	return func(c *SheetsClient) {
		c.tokenURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) SheetsOption {
	return func(c *SheetsClient) {
		c.client = hc
	}
}

// NewSheetsClient parses the service-account key JSON and returns a
// client for spreadsheetID.
func NewSheetsClient(saKeyJSON, spreadsheetID string, opts ...SheetsOption) (*SheetsClient, error) {
	var account serviceAccount
	if err := json.Unmarshal([]byte(saKeyJSON), &account); err != nil {
		return nil, fmt.Errorf("directory: parse service account key: %w", err)
	}
	block, _ := pem.Decode([]byte(account.PrivateKey))
	if block == nil {
		return nil, fmt.Errorf("directory: service account key has no PEM block")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("directory: parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("directory: private key is not RSA")
	}

	c := &SheetsClient{
		baseURL:       defaultSheetsBaseURL,
		tokenURL:      defaultTokenURL,
		spreadsheetID: spreadsheetID,
		account:       account,
		key:           rsaKey,
		client:        &http.Client{},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func b64url(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// assertion builds the RS256 service-account JWT. The claim set is
// fixed, so a JWT library would buy nothing here.
func (c *SheetsClient) assertion() (string, error) {
	iat := c.now().Unix()
	header := b64url([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{
		"iss":   c.account.ClientEmail,
		"scope": sheetsScope,
		"aud":   c.tokenURL,
		"iat":   iat,
		"exp":   iat + 3600,
	})
	if err != nil {
		return "", fmt.Errorf("directory: encode claims: %w", err)
	}
	signingInput := header + "." + b64url(claims)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("directory: sign assertion: %w", err)
	}
	return signingInput + "." + b64url(sig), nil
}

// accessToken exchanges the JWT assertion for a bearer token.
func (c *SheetsClient) accessToken(ctx context.Context) (string, error) {
	jwt, err := c.assertion()
	if err != nil {
		return "", err
	}
	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {jwt},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("directory: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.Internal("directory token endpoint unreachable", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", apperr.Upstream(resp.StatusCode, "directory token grant failed", string(raw))
	}
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &token); err != nil || token.AccessToken == "" {
		return "", apperr.Internal("decode directory token", err)
	}
	return token.AccessToken, nil
}

// Values returns the cell grid for an A1 range like "main!A1:K100".
func (c *SheetsClient) Values(ctx context.Context, rng string) ([][]string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/%s/values/%s", c.baseURL, c.spreadsheetID, url.PathEscape(rng))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: create values request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Internal("directory unreachable", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(resp.StatusCode, "directory fetch failed", string(raw))
	}
	var data struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apperr.Internal("decode directory values", err)
	}
	return data.Values, nil
}

// RowsByHeader reads a range whose first row is the header and returns
// one record per remaining row, keyed by header cell.
func (c *SheetsClient) RowsByHeader(ctx context.Context, rng string) ([]models.MemberRecord, error) {
	grid, err := c.Values(ctx, rng)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, nil
	}
	header := grid[0]
	rows := make([]models.MemberRecord, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		rec := make(models.MemberRecord, len(header))
		for i, name := range header {
			if i < len(cells) {
				rec[name] = cells[i]
			}
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
