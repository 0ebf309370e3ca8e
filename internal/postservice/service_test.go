package postservice

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/auditlog"
	"github.com/starford/ansuz/internal/contentstore"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/kv"
	"github.com/starford/ansuz/internal/metacache"
)

type fakeFile struct {
	content string
	sha     string
}

type fakeStore struct {
	files   map[string]*fakeFile
	gets    int
	puts    int
	lists   int
	getErr  map[string]error
	putErr  error
	nextSHA int
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string]*fakeFile{}, getErr: map[string]error{}}
}

func (f *fakeStore) add(path, content, sha string) {
	f.files[path] = &fakeFile{content: content, sha: sha}
}

func (f *fakeStore) List(_ context.Context, dir string) ([]contentstore.Entry, error) {
	f.lists++
	var entries []contentstore.Entry
	for path, file := range f.files {
		d, name := "", path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			d, name = path[:i], path[i+1:]
		}
		if d != dir {
			continue
		}
		entries = append(entries, contentstore.Entry{
			Name: name,
			Path: path,
			SHA:  file.sha,
			Size: int64(len(file.content)),
			Type: "file",
		})
	}
	return entries, nil
}

func (f *fakeStore) Get(_ context.Context, path string) (*contentstore.Document, error) {
	f.gets++
	if err := f.getErr[path]; err != nil {
		return nil, err
	}
	file, ok := f.files[path]
	if !ok {
		return nil, apperr.NotFound("document not found")
	}
	return &contentstore.Document{
		Path:     path,
		SHA:      file.sha,
		Size:     int64(len(file.content)),
		Content:  base64.StdEncoding.EncodeToString([]byte(file.content)),
		Encoding: "base64",
	}, nil
}

func (f *fakeStore) Put(_ context.Context, path, content, _, _ string) (*contentstore.PutResult, error) {
	f.puts++
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.nextSHA++
	sha := fmt.Sprintf("sha-%d", f.nextSHA)
	f.files[path] = &fakeFile{content: content, sha: sha}
	return &contentstore.PutResult{SHA: sha, Path: path}, nil
}

type fakeEvents struct {
	events []string
}

func (f *fakeEvents) PublishDocumentEvent(kind, slug string) {
	f.events = append(f.events, kind+":"+slug)
}

func newService(t *testing.T, store *fakeStore, opts ...Option) (*Service, kv.Store) {
	t.Helper()
	mem := kv.NewMemory()
	t.Cleanup(func() { mem.Close() })
	cache := metacache.New(mem, metacache.WithLogger(slog.New(slog.DiscardHandler)))
	opts = append(opts, WithLogger(slog.New(slog.DiscardHandler)), WithPagesDir("pages"))
	return NewService(store, cache, "posts", opts...), mem
}

const samplePost = "---\ntitle: First Post\ntags: [go, notes]\n---\n\nHello world.\n"

func TestGetPost(t *testing.T) {
	store := newFakeStore()
	store.add("posts/first.md", samplePost, "abc123")
	svc, _ := newService(t, store)

	post, err := svc.GetPost(context.Background(), "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	title, _ := post.Meta.Get("title")
	if title.Scalar() != "First Post" {
		t.Errorf("unexpected title: %v", title)
	}
	if post.Content != "Hello world." {
		t.Errorf("unexpected body: %q", post.Content)
	}
	if post.SHA != "abc123" {
		t.Errorf("unexpected sha: %q", post.SHA)
	}
	if post.Size != int64(len(samplePost)) {
		t.Errorf("unexpected size: %d", post.Size)
	}
}

func TestGetPostValidation(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(t, store)

	for _, slug := range []string{"", "../secrets", "a/../../b"} {
		_, err := svc.GetPost(context.Background(), slug)
		if apperr.KindOf(err) != apperr.KindBadRequest {
			t.Errorf("slug %q: expected bad request, got %v", slug, err)
		}
	}
	if store.gets != 0 {
		t.Errorf("store reached despite invalid slug: %d gets", store.gets)
	}
}

func TestGetPostNotFound(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(t, store)

	_, err := svc.GetPost(context.Background(), "missing")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListPostsCachesMetadata(t *testing.T) {
	store := newFakeStore()
	store.add("posts/first.md", samplePost, "abc123")
	store.add("posts/second.md", "---\ntitle: Second\n---\n\nBody.", "def456")
	store.add("posts/readme.txt", "not markdown", "xyz")
	svc, _ := newService(t, store)

	items, err := svc.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if strings.HasSuffix(item.Slug, ".md") {
			t.Errorf("slug keeps extension: %q", item.Slug)
		}
		if item.Meta.Len() == 0 {
			t.Errorf("%s: expected metadata", item.Slug)
		}
		if item.SHA == "" || item.Size == 0 {
			t.Errorf("%s: listing item missing sha or size: %+v", item.Slug, item)
		}
	}
	if store.gets != 2 {
		t.Fatalf("expected 2 body fetches on cold cache, got %d", store.gets)
	}

	// Unchanged hashes answer from the cache with zero body fetches.
	if _, err := svc.ListPosts(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.gets != 2 {
		t.Errorf("expected no body fetches on warm cache, got %d", store.gets)
	}
}

func TestListPostRefs(t *testing.T) {
	store := newFakeStore()
	store.add("posts/first.md", samplePost, "abc123")
	store.add("posts/readme.txt", "not markdown", "xyz")
	svc, _ := newService(t, store)

	refs, err := svc.ListPostRefs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected 1 ref, got %d", len(refs))
	}
	ref := refs[0]
	if ref.Slug != "first" || ref.SHA != "abc123" || ref.Size != int64(len(samplePost)) {
		t.Errorf("unexpected ref: %+v", ref)
	}
	// The bare listing resolves no metadata, so no body is ever fetched.
	if store.gets != 0 {
		t.Errorf("expected zero body fetches, got %d", store.gets)
	}
}

func TestListPostsPartialFailure(t *testing.T) {
	store := newFakeStore()
	store.add("posts/good.md", samplePost, "abc123")
	store.add("posts/bad.md", "---\ntitle: Broken\n---\n\nBody.", "def456")
	store.getErr["posts/bad.md"] = apperr.Upstream(502, "store unavailable", nil)
	svc, _ := newService(t, store)

	items, err := svc.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("listing must tolerate per-entry failures: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if item.Slug == "bad" && item.Meta.Len() != 0 {
			t.Errorf("failed entry should carry empty meta, got %v", item.Meta)
		}
		if item.Slug == "good" && item.Meta.Len() == 0 {
			t.Errorf("healthy entry lost its meta")
		}
	}
}

func TestUpdatePostSeedsCache(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	svc, _ := newService(t, store, WithEvents(events))

	var meta frontmatter.Meta
	meta.Set("title", frontmatter.String("Fresh Post"))
	meta.Set("tags", frontmatter.List("go"))

	post, err := svc.UpdatePost(context.Background(), "fresh", meta, "New body.", RequestInfo{Email: "author@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post.SHA == "" {
		t.Fatal("expected new sha")
	}

	written := store.files["posts/fresh.md"]
	if written == nil {
		t.Fatal("post not written")
	}
	if !strings.HasPrefix(written.content, "---\ntitle: Fresh Post\ntags: [go]\n---\n") {
		t.Errorf("unexpected serialized content:\n%s", written.content)
	}

	// The write already seeded the cache, so listing needs no fetch.
	gets := store.gets
	items, err := svc.ListPosts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.gets != gets {
		t.Errorf("expected zero fetches after update, got %d extra", store.gets-gets)
	}
	title, _ := items[0].Meta.Get("title")
	if title.Scalar() != "Fresh Post" {
		t.Errorf("listing did not observe new meta: %v", items[0].Meta)
	}

	if len(events.events) != 1 || events.events[0] != "post.updated:fresh" {
		t.Errorf("unexpected events: %v", events.events)
	}
}

func TestUpdatePostAudited(t *testing.T) {
	store := newFakeStore()
	mem := kv.NewMemory()
	defer mem.Close()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	audit := auditlog.New(mem, auditlog.WithNow(func() time.Time { return at }))

	cache := metacache.New(kv.NewMemory(), metacache.WithLogger(slog.New(slog.DiscardHandler)))
	svc := NewService(store, cache, "posts", WithAudit(audit), WithLogger(slog.New(slog.DiscardHandler)))

	var meta frontmatter.Meta
	meta.Set("title", frontmatter.String("Audited"))
	_, err := svc.UpdatePost(context.Background(), "audited", meta, "Body.", RequestInfo{
		Email: "author@example.com", IP: "10.0.0.1", UserAgent: "test-agent",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key := fmt.Sprintf("blog_update:%d", at.UnixMilli())
	raw, err := mem.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("audit entry missing under %s: %v", key, err)
	}
	if !strings.Contains(string(raw), "author@example.com") {
		t.Errorf("audit entry missing actor: %s", raw)
	}
	if !strings.Contains(string(raw), "10.0.0.1") {
		t.Errorf("audit entry missing ip: %s", raw)
	}
}

func TestUpdatePageValidation(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(t, store)

	var meta frontmatter.Meta
	for _, slug := range []string{"", "..", "nested/page", `win\page`} {
		_, err := svc.UpdatePage(context.Background(), slug, meta, "Body.", RequestInfo{})
		if apperr.KindOf(err) != apperr.KindBadRequest {
			t.Errorf("slug %q: expected bad request, got %v", slug, err)
		}
	}
	if store.puts != 0 {
		t.Errorf("store written despite invalid slug: %d puts", store.puts)
	}

	if _, err := svc.UpdatePage(context.Background(), "about", meta, "About us.", RequestInfo{}); err != nil {
		t.Fatalf("valid page rejected: %v", err)
	}
	if _, ok := store.files["pages/about.md"]; !ok {
		t.Error("page written to wrong path")
	}
}

func TestGetPageRaw(t *testing.T) {
	store := newFakeStore()
	store.add("pages/about.md", "---\ntitle: About\n---\n\nAbout us.", "p1")
	svc, _ := newService(t, store)

	raw, err := svc.GetPageRaw(context.Background(), "about")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Raw access keeps the front matter in place.
	if !strings.HasPrefix(raw, "---\ntitle: About\n---") {
		t.Errorf("unexpected raw content: %q", raw)
	}

	if _, err := svc.GetPageRaw(context.Background(), "nested/about"); apperr.KindOf(err) != apperr.KindBadRequest {
		t.Errorf("expected bad request for nested page, got %v", err)
	}
}

func TestWithStoreDoesNotMutateBase(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(t, store)

	other := newFakeStore()
	scoped := svc.WithStore(other)

	var meta frontmatter.Meta
	meta.Set("title", frontmatter.String("Scoped"))
	if _, err := scoped.UpdatePost(context.Background(), "scoped", meta, "Body.", RequestInfo{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.puts != 1 {
		t.Errorf("scoped store not used: %d puts", other.puts)
	}
	if store.puts != 0 {
		t.Errorf("base store written through scoped service: %d puts", store.puts)
	}
}
