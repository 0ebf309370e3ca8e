// Package metacache maintains the derived front-matter cache keyed by
// content hash, so unchanged documents never need a second body fetch
// just to answer metadata queries.
package metacache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/kv"
)

// Entry is the cached record for one slug. It holds metadata only;
// body text is never cached.
type Entry struct {
	SHA  string           `json:"sha"`
	Meta frontmatter.Meta `json:"meta"`
}

// Validity is the state of a cached entry relative to the document's
// current hash.
type Validity int

const (
	// Absent: no usable entry (missing or malformed).
	Absent Validity = iota
	// Stale: entry exists but was derived from an older revision.
	Stale
	// Fresh: entry hash equals the current hash; meta is usable as is.
	Fresh
)

func (v Validity) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// FetchFunc returns the decoded body text of a document, or an error
// from the apperr taxonomy.
type FetchFunc func(ctx context.Context) (string, error)

// Cache implements the read-through / write-through protocol over a
// kv.Store. No locking: concurrent misses may recompute the same entry,
// which is idempotent for a fixed hash.
type Cache struct {
	store  kv.Store
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache over store.
func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(slug string) string {
	return "meta:" + slug
}

// Lookup classifies the cached entry for slug against currentSHA.
// A malformed stored value counts as Absent; it will be overwritten by
// the next refresh.
func (c *Cache) Lookup(ctx context.Context, slug, currentSHA string) (Entry, Validity) {
	raw, err := c.store.Get(ctx, cacheKey(slug))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("metadata cache read failed", slog.String("slug", slug), slog.String("error", err.Error()))
		}
		return Entry{}, Absent
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("malformed cache entry", slog.String("slug", slug), slog.String("error", err.Error()))
		return Entry{}, Absent
	}
	if entry.SHA == currentSHA {
		return entry, Fresh
	}
	return entry, Stale
}

// ReadThrough returns the metadata for slug at revision currentSHA.
//
// The hash check runs before any body fetch: a Fresh entry answers from
// the cache with zero fetches. Otherwise the body is fetched, parsed,
// and the cache overwritten with {currentSHA, meta}. A document whose
// content is gone yields empty metadata and is NOT cached, so a later
// successful fetch is never shadowed by a negative entry.
func (c *Cache) ReadThrough(ctx context.Context, slug, currentSHA string, fetch FetchFunc) (frontmatter.Meta, error) {
	entry, validity := c.Lookup(ctx, slug, currentSHA)
	recordLookup(validity)
	if validity == Fresh {
		return entry.Meta, nil
	}

	body, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return frontmatter.Meta{}, nil
		}
		return frontmatter.Meta{}, err
	}

	parsed := frontmatter.Parse(body)
	if err := c.WriteThrough(ctx, slug, currentSHA, parsed.Meta); err != nil {
		return frontmatter.Meta{}, err
	}
	return parsed.Meta, nil
}

// WriteThrough unconditionally overwrites the entry for slug. Called on
// the success path of every update so the next read observes the new
// metadata without a hash-mismatch round trip. Entries carry no TTL;
// staleness is purely hash-driven.
func (c *Cache) WriteThrough(ctx context.Context, slug, sha string, meta frontmatter.Meta) error {
	raw, err := json.Marshal(Entry{SHA: sha, Meta: meta})
	if err != nil {
		return apperr.Internal(fmt.Sprintf("encode cache entry for %s", slug), err)
	}
	if err := c.store.Put(ctx, cacheKey(slug), raw, 0); err != nil {
		return apperr.Internal(fmt.Sprintf("write cache entry for %s", slug), err)
	}
	recordWrite()
	return nil
}
