package metacache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/kv"
)

func countingFetch(body string, err error) (FetchFunc, *int) {
	calls := new(int)
	return func(ctx context.Context) (string, error) {
		*calls++
		return body, err
	}, calls
}

func TestReadThrough_FreshHitSkipsFetch(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	cache := New(store)

	var meta frontmatter.Meta
	meta.Set("title", frontmatter.String("Hello"))
	if err := cache.WriteThrough(ctx, "post-1", "abc123", meta); err != nil {
		t.Fatalf("WriteThrough: %v", err)
	}

	fetch, calls := countingFetch("---\ntitle: SHOULD NOT PARSE\n---\nbody", nil)
	got, err := cache.ReadThrough(ctx, "post-1", "abc123", fetch)
	if err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if *calls != 0 {
		t.Errorf("body fetches = %d, want 0", *calls)
	}
	if v, _ := got.Get("title"); v.Scalar() != "Hello" {
		t.Errorf("title = %q, want cached value", v.Scalar())
	}
}

func TestReadThrough_MissFetchesParsesStores(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	cache := New(store)

	fetch, calls := countingFetch("---\ntitle: Fresh Post\ntags: [a, b]\n---\nbody", nil)
	got, err := cache.ReadThrough(ctx, "post-2", "def456", fetch)
	if err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if *calls != 1 {
		t.Errorf("body fetches = %d, want 1", *calls)
	}
	if v, _ := got.Get("title"); v.Scalar() != "Fresh Post" {
		t.Errorf("title = %q", v.Scalar())
	}

	raw, err := store.Get(ctx, "meta:post-2")
	if err != nil {
		t.Fatalf("expected cache entry: %v", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.SHA != "def456" {
		t.Errorf("entry sha = %q, want def456", entry.SHA)
	}
}

func TestReadThrough_HashMismatchInvalidates(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	cache := New(store)

	var old frontmatter.Meta
	old.Set("title", frontmatter.String("Old"))
	if err := cache.WriteThrough(ctx, "post-3", "abc123", old); err != nil {
		t.Fatal(err)
	}

	fetch, calls := countingFetch("---\ntitle: New\n---\nbody", nil)
	got, err := cache.ReadThrough(ctx, "post-3", "xyz789", fetch)
	if err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if *calls != 1 {
		t.Errorf("body fetches = %d, want 1", *calls)
	}
	if v, _ := got.Get("title"); v.Scalar() != "New" {
		t.Errorf("title = %q", v.Scalar())
	}

	entry, validity := cache.Lookup(ctx, "post-3", "xyz789")
	if validity != Fresh {
		t.Errorf("validity after refresh = %v, want Fresh", validity)
	}
	if entry.SHA != "xyz789" {
		t.Errorf("entry sha = %q, want overwritten to xyz789", entry.SHA)
	}
}

func TestReadThrough_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	cache := New(store)

	fetch, _ := countingFetch("", apperr.NotFound("gone"))
	got, err := cache.ReadThrough(ctx, "ghost", "abc", fetch)
	if err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if got.Len() != 0 {
		t.Errorf("meta = %v, want empty", got.Keys())
	}
	if _, err := store.Get(ctx, "meta:ghost"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected no negative cache entry, got err = %v", err)
	}

	// A later successful fetch must not be blocked.
	fetch2, calls2 := countingFetch("---\ntitle: Back\n---\nbody", nil)
	got, err = cache.ReadThrough(ctx, "ghost", "abc", fetch2)
	if err != nil || *calls2 != 1 {
		t.Fatalf("second read: %v (fetches %d)", err, *calls2)
	}
	if v, _ := got.Get("title"); v.Scalar() != "Back" {
		t.Errorf("title = %q", v.Scalar())
	}
}

func TestReadThrough_UpstreamErrorPropagates(t *testing.T) {
	cache := New(kv.NewMemory())
	fetch, _ := countingFetch("", apperr.Upstream(502, "bad gateway", nil))
	_, err := cache.ReadThrough(context.Background(), "p", "s", fetch)
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("err = %v, want upstream", err)
	}
}

func TestLookup_MalformedEntryIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	store.Put(ctx, "meta:bad", []byte("{not json"), 0)
	cache := New(store)

	_, validity := cache.Lookup(ctx, "bad", "sha")
	if validity != Absent {
		t.Errorf("validity = %v, want Absent", validity)
	}

	// The next read-through repairs the entry.
	fetch, _ := countingFetch("---\nk: v\n---\nbody", nil)
	if _, err := cache.ReadThrough(ctx, "bad", "sha", fetch); err != nil {
		t.Fatalf("ReadThrough: %v", err)
	}
	if _, validity := cache.Lookup(ctx, "bad", "sha"); validity != Fresh {
		t.Errorf("validity after repair = %v, want Fresh", validity)
	}
}

func TestWriteThrough_Overwrites(t *testing.T) {
	ctx := context.Background()
	cache := New(kv.NewMemory())

	var m1, m2 frontmatter.Meta
	m1.Set("title", frontmatter.String("One"))
	m2.Set("title", frontmatter.String("Two"))

	if err := cache.WriteThrough(ctx, "p", "s1", m1); err != nil {
		t.Fatal(err)
	}
	if err := cache.WriteThrough(ctx, "p", "s2", m2); err != nil {
		t.Fatal(err)
	}

	entry, validity := cache.Lookup(ctx, "p", "s2")
	if validity != Fresh {
		t.Fatalf("validity = %v", validity)
	}
	if v, _ := entry.Meta.Get("title"); v.Scalar() != "Two" {
		t.Errorf("title = %q", v.Scalar())
	}
}
