package contentstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("club", "blog", "main", "tkn", WithBaseURL(srv.URL))
}

func TestList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/club/blog/contents/_posts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token tkn" {
			t.Errorf("auth = %q", got)
		}
		json.NewEncoder(w).Encode([]Entry{
			{Name: "hello.md", SHA: "abc123", Size: 42},
			{Name: "readme.txt", SHA: "zzz", Size: 1},
		})
	})

	entries, err := c.List(context.Background(), "_posts")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].SHA != "abc123" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestList_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	_, err := c.List(context.Background(), "_posts")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestGet_Base64(t *testing.T) {
	// The store wraps base64 payloads across lines.
	encoded := base64.StdEncoding.EncodeToString([]byte("---\ntitle: Hi\n---\nbody"))
	wrapped := encoded[:10] + "\n" + encoded[10:]

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Document{
			Name: "hello.md", Path: "_posts/hello.md", SHA: "abc123",
			Size: 21, Content: wrapped, Encoding: "base64",
		})
	})

	doc, err := c.Get(context.Background(), "_posts/hello.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	text, err := doc.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "---\ntitle: Hi\n---\nbody" {
		t.Errorf("text = %q", text)
	}
}

func TestGet_EmptyContentIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Document{Name: "big.md", SHA: "abc", Size: 9 << 20})
	})
	_, err := c.Get(context.Background(), "_posts/big.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestGet_UpstreamFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"rate limited"}`, http.StatusForbidden)
	})
	_, err := c.Get(context.Background(), "_posts/x.md")
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindUpstream {
		t.Fatalf("err = %v, want upstream", err)
	}
	if ae.Status != http.StatusForbidden {
		t.Errorf("status = %d", ae.Status)
	}
}

func TestPut_ReadsCurrentSHAWhenUnsupplied(t *testing.T) {
	var gets, puts int
	var putBody map[string]string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets++
			json.NewEncoder(w).Encode(Document{SHA: "oldsha", Content: "eA==", Encoding: "base64"})
		case http.MethodPut:
			puts++
			json.NewDecoder(r.Body).Decode(&putBody)
			json.NewEncoder(w).Encode(map[string]any{
				"content": PutResult{SHA: "newsha", Path: "_posts/p.md"},
			})
		}
	})

	res, err := c.Put(context.Background(), "_posts/p.md", "new text", "update post", "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if gets != 1 || puts != 1 {
		t.Errorf("gets = %d, puts = %d", gets, puts)
	}
	if putBody["sha"] != "oldsha" {
		t.Errorf("expected base sha to be supplied, got %q", putBody["sha"])
	}
	if putBody["branch"] != "main" {
		t.Errorf("branch = %q", putBody["branch"])
	}
	if decoded, _ := base64.StdEncoding.DecodeString(putBody["content"]); string(decoded) != "new text" {
		t.Errorf("content = %q", decoded)
	}
	if res.SHA != "newsha" {
		t.Errorf("sha = %q", res.SHA)
	}
}

func TestPut_ExplicitSHASkipsRead(t *testing.T) {
	var gets int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"content": PutResult{SHA: "s2"}})
	})

	if _, err := c.Put(context.Background(), "p.md", "x", "m", "s1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if gets != 0 {
		t.Errorf("expected no sha pre-read, got %d", gets)
	}
}
