// Package testutil provides shared test helpers: an in-memory content
// host speaking the contents API and a stub identity provider.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/starford/ansuz/internal/kv"
)

// TestKV returns an in-memory key-value store cleaned up with the test.
func TestKV(t *testing.T) kv.Store {
	t.Helper()
	mem := kv.NewMemory()
	t.Cleanup(func() { mem.Close() })
	return mem
}

// ContentHost is a fake Git content host backed by a map of path to
// file content. It answers the contents endpoints the client uses.
type ContentHost struct {
	mu      sync.Mutex
	files   map[string]string
	shas    map[string]string
	nextSHA int
	Server  *httptest.Server
}

// NewContentHost starts a fake content host seeded with files.
func NewContentHost(t *testing.T, files map[string]string) *ContentHost {
	t.Helper()
	h := &ContentHost{
		files: map[string]string{},
		shas:  map[string]string{},
	}
	for path, content := range files {
		h.put(path, content)
	}
	h.Server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.Server.Close)
	return h
}

// URL returns the base URL of the fake host.
func (h *ContentHost) URL() string {
	return h.Server.URL
}

// SHA returns the current sha of path.
func (h *ContentHost) SHA(path string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shas[path]
}

// Content returns the current content of path.
func (h *ContentHost) Content(path string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.files[path]
	return c, ok
}

func (h *ContentHost) put(path, content string) string {
	h.nextSHA++
	sha := fmt.Sprintf("sha-%04d", h.nextSHA)
	h.files[path] = content
	h.shas[path] = sha
	return sha
}

func (h *ContentHost) handle(w http.ResponseWriter, r *http.Request) {
	const prefix = "/repos/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	// /repos/{owner}/{repo}/contents[/{path}]
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, prefix), "/", 3)
	if len(parts) < 3 || !strings.HasPrefix(parts[2], "contents") {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(strings.TrimPrefix(parts[2], "contents"), "/")

	h.mu.Lock()
	defer h.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		if content, ok := h.files[path]; ok {
			json.NewEncoder(w).Encode(map[string]any{
				"name":     path[strings.LastIndex(path, "/")+1:],
				"path":     path,
				"sha":      h.shas[path],
				"size":     len(content),
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
				"encoding": "base64",
			})
			return
		}
		// Directory listing.
		var entries []map[string]any
		for p := range h.files {
			dir := ""
			if i := strings.LastIndex(p, "/"); i >= 0 {
				dir = p[:i]
			}
			if dir != path {
				continue
			}
			entries = append(entries, map[string]any{
				"name": p[strings.LastIndex(p, "/")+1:],
				"path": p,
				"sha":  h.shas[p],
				"size": len(h.files[p]),
				"type": "file",
			})
		}
		if len(entries) == 0 {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
			return
		}
		json.NewEncoder(w).Encode(entries)

	case http.MethodPut:
		var req struct {
			Content string `json:"content"`
			SHA     string `json:"sha"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status := http.StatusOK
		if _, exists := h.files[path]; !exists {
			status = http.StatusCreated
		} else if req.SHA != h.shas[path] {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"message": "sha mismatch"})
			return
		}
		sha := h.put(path, string(raw))
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]string{"sha": sha, "path": path},
		})

	case http.MethodDelete:
		if _, ok := h.files[path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
			return
		}
		delete(h.files, path)
		delete(h.shas, path)
		json.NewEncoder(w).Encode(map[string]any{})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// IdentityAccount is one account known to the fake identity provider.
type IdentityAccount struct {
	ID       string
	Email    string
	Password string
	Disabled bool
}

// NewIdentityHost starts a fake identity provider. Tokens are
// "token-<account id>".
func NewIdentityHost(t *testing.T, accounts ...IdentityAccount) *httptest.Server {
	t.Helper()
	byEmail := map[string]IdentityAccount{}
	byToken := map[string]IdentityAccount{}
	for _, a := range accounts {
		byEmail[a.Email] = a
		byToken["token-"+a.ID] = a
	}

	fail := func(w http.ResponseWriter, status int, message string) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": status, "message": message},
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		str := func(k string) string { s, _ := body[k].(string); return s }

		switch {
		case strings.Contains(r.URL.Path, ":signInWithPassword"):
			a, ok := byEmail[str("email")]
			if !ok || a.Password != str("password") {
				fail(w, http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS")
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"idToken": "token-" + a.ID, "refreshToken": "refresh-" + a.ID,
				"localId": a.ID, "email": a.Email, "expiresIn": "3600",
			})
		case strings.Contains(r.URL.Path, ":signUp"):
			id := "new-" + str("email")
			json.NewEncoder(w).Encode(map[string]string{
				"idToken": "token-" + id, "refreshToken": "refresh-" + id,
				"localId": id, "email": str("email"), "expiresIn": "3600",
			})
		case strings.Contains(r.URL.Path, ":lookup"):
			var a IdentityAccount
			var ok bool
			if email := str("email"); email != "" {
				if a, ok = byEmail[email]; !ok {
					fail(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
					return
				}
			} else if a, ok = byToken[str("idToken")]; !ok {
				json.NewEncoder(w).Encode(map[string]any{"users": []any{}})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"users": []map[string]any{{
					"localId": a.ID, "email": a.Email, "disabled": a.Disabled,
				}},
			})
		case strings.Contains(r.URL.Path, ":update"):
			a, ok := byToken[str("idToken")]
			if !ok {
				fail(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"localId": a.ID, "email": a.Email,
			})
		case strings.Contains(r.URL.Path, ":sendOobCode"):
			if _, ok := byEmail[str("email")]; !ok {
				fail(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"email": str("email")})
		default:
			fail(w, http.StatusNotFound, "unknown endpoint")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
