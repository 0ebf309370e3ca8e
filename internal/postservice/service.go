// Package postservice coordinates the content store, the metadata
// cache, and the audit trail for blog posts and static pages.
package postservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/auditlog"
	"github.com/starford/ansuz/internal/contentstore"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/metacache"
)

// ContentStore is the slice of the content-store client the service
// uses. *contentstore.Client satisfies it.
type ContentStore interface {
	List(ctx context.Context, dir string) ([]contentstore.Entry, error)
	Get(ctx context.Context, path string) (*contentstore.Document, error)
	Put(ctx context.Context, path, content, message, sha string) (*contentstore.PutResult, error)
}

// Events receives document change notifications. *sse.Broker satisfies it.
type Events interface {
	PublishDocumentEvent(kind, slug string)
}

// PostSummary is one item of a listing.
type PostSummary struct {
	Slug string           `json:"slug"`
	SHA  string           `json:"sha"`
	Size int64            `json:"size"`
	Meta frontmatter.Meta `json:"meta"`
}

// PostRef is the bare listing item for the legacy API: name and store
// revision only, no metadata.
type PostRef struct {
	Slug string `json:"name"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// Post is the full representation of a document.
type Post struct {
	Slug    string           `json:"slug"`
	Meta    frontmatter.Meta `json:"meta"`
	Content string           `json:"content"`
	SHA     string           `json:"sha"`
	Size    int64            `json:"size"`
}

// RequestInfo identifies who performed a mutation, for the audit trail
// and the commit message.
type RequestInfo struct {
	Email     string
	IP        string
	UserAgent string
}

// Service implements the document operations.
type Service struct {
	store    ContentStore
	cache    *metacache.Cache
	audit    *auditlog.Logger
	events   Events
	postsDir string
	pagesDir string
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAudit attaches the audit logger.
func WithAudit(audit *auditlog.Logger) Option {
	return func(s *Service) {
		s.audit = audit
	}
}

// WithEvents attaches the SSE broker.
func WithEvents(events Events) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithPagesDir sets the directory static pages live in ("" for the
// repository root).
func WithPagesDir(dir string) Option {
	return func(s *Service) {
		s.pagesDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service over store and cache. Posts live under
// postsDir in the content repository.
func NewService(store ContentStore, cache *metacache.Cache, postsDir string, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cache:    cache,
		postsDir: postsDir,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithStore returns a copy of the service writing through store. Used
// when an actor supplies a personal content-host token.
func (s *Service) WithStore(store ContentStore) *Service {
	cp := *s
	cp.store = store
	return &cp
}

func (s *Service) postPath(slug string) string {
	return s.postsDir + "/" + slug + ".md"
}

func (s *Service) pagePath(slug string) string {
	if s.pagesDir == "" {
		return slug + ".md"
	}
	return s.pagesDir + "/" + slug + ".md"
}

// validatePostSlug rejects empty and path-traversing slugs before any
// store call.
func validatePostSlug(slug string) error {
	if slug == "" {
		return apperr.BadRequest("page is required")
	}
	if strings.Contains(slug, "..") {
		return apperr.BadRequest("invalid page name")
	}
	return nil
}

// validatePageSlug additionally rejects separators: static pages are
// flat.
func validatePageSlug(slug string) error {
	if err := validatePostSlug(slug); err != nil {
		return err
	}
	if strings.ContainsAny(slug, "/\\") {
		return apperr.BadRequest("invalid page name")
	}
	return nil
}

// list returns summaries for every .md entry under dir. Metadata comes
// through the cache; an entry whose metadata cannot be resolved is
// listed with empty meta rather than failing the whole listing.
func (s *Service) list(ctx context.Context, dir string) ([]PostSummary, error) {
	entries, err := s.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	items := make([]PostSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.Type != "file" || !strings.HasSuffix(entry.Name, ".md") {
			continue
		}
		slug := strings.TrimSuffix(entry.Name, ".md")
		path := entry.Path
		meta, err := s.cache.ReadThrough(ctx, slug, entry.SHA, func(ctx context.Context) (string, error) {
			doc, err := s.store.Get(ctx, path)
			if err != nil {
				return "", err
			}
			return doc.Text()
		})
		if err != nil {
			s.logger.Warn("listing entry metadata unavailable",
				slog.String("slug", slug), slog.String("error", err.Error()))
			meta = frontmatter.Meta{}
		}
		items = append(items, PostSummary{Slug: slug, SHA: entry.SHA, Size: entry.Size, Meta: meta})
	}
	return items, nil
}

// ListPosts returns summaries of all posts.
func (s *Service) ListPosts(ctx context.Context) ([]PostSummary, error) {
	return s.list(ctx, s.postsDir)
}

// ListPostRefs returns the raw store listing of posts. Unlike ListPosts
// it resolves no metadata, so it touches neither the cache nor any
// document body.
func (s *Service) ListPostRefs(ctx context.Context) ([]PostRef, error) {
	entries, err := s.store.List(ctx, s.postsDir)
	if err != nil {
		return nil, err
	}
	refs := make([]PostRef, 0, len(entries))
	for _, entry := range entries {
		if entry.Type != "file" || !strings.HasSuffix(entry.Name, ".md") {
			continue
		}
		refs = append(refs, PostRef{
			Slug: strings.TrimSuffix(entry.Name, ".md"),
			SHA:  entry.SHA,
			Size: entry.Size,
		})
	}
	return refs, nil
}

// ListPages returns summaries of all static pages.
func (s *Service) ListPages(ctx context.Context) ([]PostSummary, error) {
	return s.list(ctx, s.pagesDir)
}

// GetPost returns one post. The body always comes from the fresh fetch;
// only the metadata is answered from the cache when the revision hash
// still matches.
func (s *Service) GetPost(ctx context.Context, slug string) (*Post, error) {
	if err := validatePostSlug(slug); err != nil {
		return nil, err
	}
	doc, err := s.store.Get(ctx, s.postPath(slug))
	if err != nil {
		return nil, err
	}
	text, err := doc.Text()
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("decode %s", slug), err)
	}
	meta, err := s.cache.ReadThrough(ctx, slug, doc.SHA, func(context.Context) (string, error) {
		return text, nil
	})
	if err != nil {
		return nil, err
	}
	return &Post{
		Slug:    slug,
		Meta:    meta,
		Content: frontmatter.Parse(text).Body,
		SHA:     doc.SHA,
		Size:    doc.Size,
	}, nil
}

// GetPostRaw returns the undecomposed post source, front matter
// included. The cache is not consulted.
func (s *Service) GetPostRaw(ctx context.Context, slug string) (string, error) {
	if err := validatePostSlug(slug); err != nil {
		return "", err
	}
	doc, err := s.store.Get(ctx, s.postPath(slug))
	if err != nil {
		return "", err
	}
	text, err := doc.Text()
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("decode %s", slug), err)
	}
	return text, nil
}

// GetPageRaw returns the undecomposed source of a static page.
func (s *Service) GetPageRaw(ctx context.Context, slug string) (string, error) {
	if err := validatePageSlug(slug); err != nil {
		return "", err
	}
	doc, err := s.store.Get(ctx, s.pagePath(slug))
	if err != nil {
		return "", err
	}
	text, err := doc.Text()
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("decode %s", slug), err)
	}
	return text, nil
}

// UpdatePost serializes meta and content, writes the post, and on
// success updates the metadata cache with the new revision hash so the
// next read needs no extra fetch. The audit entry and the SSE event are
// fire-and-forget.
func (s *Service) UpdatePost(ctx context.Context, slug string, meta frontmatter.Meta, content string, info RequestInfo) (*Post, error) {
	if err := validatePostSlug(slug); err != nil {
		return nil, err
	}
	return s.update(ctx, slug, s.postPath(slug), meta, content, info, "post.updated")
}

// UpdatePage writes a static page. Pages go through the same cache so
// their listing metadata stays coherent.
func (s *Service) UpdatePage(ctx context.Context, slug string, meta frontmatter.Meta, content string, info RequestInfo) (*Post, error) {
	if err := validatePageSlug(slug); err != nil {
		return nil, err
	}
	return s.update(ctx, slug, s.pagePath(slug), meta, content, info, "page.updated")
}

func (s *Service) update(ctx context.Context, slug, path string, meta frontmatter.Meta, content string, info RequestInfo, event string) (*Post, error) {
	serialized := frontmatter.Serialize(meta, content)
	message := fmt.Sprintf("Update %s.md", slug)
	if info.Email != "" {
		message += " by " + info.Email
	}

	res, err := s.store.Put(ctx, path, serialized, message, "")
	if err != nil {
		return nil, err
	}

	// The new meta is known here, so the cache entry is written rather
	// than invalidated.
	if err := s.cache.WriteThrough(ctx, slug, res.SHA, meta); err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, "blog_update", message, info.IP, info.UserAgent)
	}
	if s.events != nil {
		s.events.PublishDocumentEvent(event, slug)
	}
	return &Post{Slug: slug, Meta: meta, Content: content, SHA: res.SHA, Size: int64(len(serialized))}, nil
}
