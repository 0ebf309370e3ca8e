// Package contentstore implements the client for the Git-hosted content
// repository's contents API, where posts and static pages live as
// Markdown files.
package contentstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "ansuz-portal-backend"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Document is a single file returned by the store, content still in its
// wire encoding.
type Document struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Text decodes the document content per its encoding ("base64" or
// "utf8"/empty).
func (d *Document) Text() (string, error) {
	if d.Encoding != "base64" {
		return d.Content, nil
	}
	// The store wraps base64 content with newlines.
	compact := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, d.Content)
	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", fmt.Errorf("contentstore: decode %s: %w", d.Path, err)
	}
	return string(raw), nil
}

// PutResult is returned after a successful write.
type PutResult struct {
	SHA  string `json:"sha"`
	Path string `json:"path"`
}

// Client talks to the content host's REST API for one repository.
type Client struct {
	baseURL string
	owner   string
	repo    string
	branch  string
	token   string
	client  *http.Client
	logger  *slog.Logger
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

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a content-store client for owner/repo on branch.
// The default HTTP client carries no timeout; callers bound requests
// through context deadlines.
func New(owner, repo, branch, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		owner:   owner,
		repo:    repo,
		branch:  branch,
		token:   token,
		client:  &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client authenticating with token.
// Used when an actor has registered a personal content-host token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) contentsURL(path string) string {
	u := fmt.Sprintf("%s/repos/%s/%s/contents", c.baseURL, c.owner, c.repo)
	if path != "" {
		u += "/" + url.PathEscape(path)
		// Keep directory separators readable in the request path.
		u = strings.ReplaceAll(u, "%2F", "/")
	}
	return u
}

func (c *Client) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("contentstore: encode body: %w", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("contentstore: create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Internal("content store unreachable", err)
	}
	return resp, nil
}

// upstreamError drains the response and wraps it per the taxonomy.
func upstreamError(resp *http.Response, message string) error {
	defer resp.Body.Close()
	var payload any
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(raw, &payload) != nil {
		payload = string(raw)
	}
	if resp.StatusCode == http.StatusNotFound {
		return apperr.NotFound(message, payload)
	}
	if resp.StatusCode == http.StatusConflict {
		return &apperr.Error{Kind: apperr.KindConflict, Message: message, Status: resp.StatusCode, Payload: payload}
	}
	return apperr.Upstream(resp.StatusCode, message, payload)
}

// List returns the directory listing at dir ("" for the repository root).
func (c *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, c.contentsURL(dir), nil)
	if err != nil {
		recordRequest("list", "error")
		return nil, err
	}
	recordRequest("list", resp.Status)
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp, "listing not found")
	}
	defer resp.Body.Close()
	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, apperr.Internal("decode listing", err)
	}
	return entries, nil
}

// Get fetches a single document. A 404 or a response with an empty
// content field both surface as NotFound; the absent state is never a
// cacheable document.
func (c *Client) Get(ctx context.Context, path string) (*Document, error) {
	resp, err := c.do(ctx, http.MethodGet, c.contentsURL(path), nil)
	if err != nil {
		recordRequest("get", "error")
		return nil, err
	}
	recordRequest("get", resp.Status)
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp, "document not found")
	}
	defer resp.Body.Close()
	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, apperr.Internal("decode document", err)
	}
	if doc.Content == "" {
		return nil, apperr.NotFound("document has no content", doc)
	}
	return &doc, nil
}

// currentSHA returns the sha of path, or "" when the file does not exist.
func (c *Client) currentSHA(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.contentsURL(path), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", nil
	}
	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", apperr.Internal("decode document", err)
	}
	return doc.SHA, nil
}

// Put writes text content to path, creating or updating the file.
//
// When sha is empty the current sha is read first and supplied as the
// expected base. Two updates interleaving between that read and the
// write can lose one of them; the window is an accepted limitation.
func (c *Client) Put(ctx context.Context, path, content, message, sha string) (*PutResult, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	return c.putRaw(ctx, path, encoded, message, sha)
}

// PutBase64 writes already-encoded content, e.g. image uploads.
func (c *Client) PutBase64(ctx context.Context, path, contentBase64, message string) (*PutResult, error) {
	return c.putRaw(ctx, path, contentBase64, message, "")
}

func (c *Client) putRaw(ctx context.Context, path, contentBase64, message, sha string) (*PutResult, error) {
	if sha == "" {
		current, err := c.currentSHA(ctx, path)
		if err != nil {
			return nil, err
		}
		sha = current
	}

	body := map[string]string{
		"message": message,
		"content": contentBase64,
		"branch":  c.branch,
	}
	if sha != "" {
		body["sha"] = sha
	}

	resp, err := c.do(ctx, http.MethodPut, c.contentsURL(path), body)
	if err != nil {
		recordRequest("put", "error")
		return nil, err
	}
	recordRequest("put", resp.Status)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, upstreamError(resp, "write rejected")
	}
	defer resp.Body.Close()
	var result struct {
		Content PutResult `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Internal("decode write response", err)
	}
	c.logger.Debug("content written", slog.String("path", path), slog.String("sha", result.Content.SHA))
	return &result.Content, nil
}

// Delete removes the file at path. When sha is empty the current sha is
// read first; a missing file surfaces as NotFound.
func (c *Client) Delete(ctx context.Context, path, sha, message string) error {
	if sha == "" {
		current, err := c.currentSHA(ctx, path)
		if err != nil {
			return err
		}
		if current == "" {
			return apperr.NotFound("document not found")
		}
		sha = current
	}

	body := map[string]string{
		"message": message,
		"sha":     sha,
		"branch":  c.branch,
	}
	resp, err := c.do(ctx, http.MethodDelete, c.contentsURL(path), body)
	if err != nil {
		recordRequest("delete", "error")
		return err
	}
	recordRequest("delete", resp.Status)
	if resp.StatusCode != http.StatusOK {
		return upstreamError(resp, "delete rejected")
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// OrgInvite invites email to the content host organization.
func (c *Client) OrgInvite(ctx context.Context, email string) error {
	u := fmt.Sprintf("%s/orgs/%s/invitations", c.baseURL, c.owner)
	body := map[string]string{
		"email": email,
		"role":  "direct_member",
	}
	resp, err := c.do(ctx, http.MethodPost, u, body)
	if err != nil {
		recordRequest("org_invite", "error")
		return err
	}
	recordRequest("org_invite", resp.Status)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return upstreamError(resp, "organization invite failed")
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}
