package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/auditlog"
	"github.com/starford/ansuz/internal/contentstore"
	"github.com/starford/ansuz/internal/directory"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/invite"
	"github.com/starford/ansuz/internal/kv"
	"github.com/starford/ansuz/internal/postservice"
	"github.com/starford/ansuz/internal/secrets"
)

// Handler holds API route handlers and their collaborators.
type Handler struct {
	posts     *postservice.Service
	store     *contentstore.Client
	identity  *identity.Client
	directory *directory.Directory
	invites   *invite.Service
	secrets   *secrets.Cipher
	tokens    kv.Store
	audit     *auditlog.Logger
	assetsDir string
	discord   string
	logger    *slog.Logger
}

// HandlerConfig bundles the collaborators a Handler needs.
type HandlerConfig struct {
	Posts     *postservice.Service
	Store     *contentstore.Client
	Identity  *identity.Client
	Directory *directory.Directory
	Invites   *invite.Service
	Secrets   *secrets.Cipher
	Tokens    kv.Store
	Audit     *auditlog.Logger
	AssetsDir string
	Discord   string
	Logger    *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		posts:     cfg.Posts,
		store:     cfg.Store,
		identity:  cfg.Identity,
		directory: cfg.Directory,
		invites:   cfg.Invites,
		secrets:   cfg.Secrets,
		tokens:    cfg.Tokens,
		audit:     cfg.Audit,
		assetsDir: cfg.AssetsDir,
		discord:   cfg.Discord,
		logger:    logger,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperr.BadRequest("invalid JSON body"))
		return false
	}
	return true
}

func tokenStoreKey(actorID string) string {
	return "ghtoken:" + actorID
}

// serviceFor returns the post service, switched to the actor's personal
// content-host token when one is registered.
func (h *Handler) serviceFor(ctx context.Context) *postservice.Service {
	actor := actorFrom(ctx)
	if actor == nil || h.tokens == nil || h.secrets == nil {
		return h.posts
	}
	raw, err := h.tokens.Get(ctx, tokenStoreKey(actor.ID))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			h.logger.Warn("token lookup failed", slog.String("actor", actor.ID), slog.String("error", err.Error()))
		}
		return h.posts
	}
	token, err := h.secrets.Decrypt(string(raw))
	if err != nil {
		h.logger.Warn("token decrypt failed", slog.String("actor", actor.ID), slog.String("error", err.Error()))
		return h.posts
	}
	return h.posts.WithStore(h.store.WithToken(token))
}

func requestInfo(r *http.Request) postservice.RequestInfo {
	info := postservice.RequestInfo{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		info.IP = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if actor := actorFrom(r.Context()); actor != nil {
		info.Email = actor.Email
	}
	return info
}

// ListPostsV1 handles GET /v1/blog/list. The legacy response is a bare
// array of name/sha/size entries straight from the store listing; no
// metadata is resolved.
func (h *Handler) ListPostsV1(w http.ResponseWriter, r *http.Request) {
	refs, err := h.posts.ListPostRefs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

// GetPostV1 handles GET /v1/blog/get?page=. The legacy response is the
// raw document source, front matter included.
func (h *Handler) GetPostV1(w http.ResponseWriter, r *http.Request) {
	raw, err := h.posts.GetPostRaw(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(raw))
}

// GetPageV1 handles GET /v1/blog/get-static?page=.
func (h *Handler) GetPageV1(w http.ResponseWriter, r *http.Request) {
	raw, err := h.posts.GetPageRaw(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(raw))
}

// ListPosts handles GET /v2/blog/list.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	items, err := h.posts.ListPosts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: items})
}

// ListPages handles GET /v2/blog/list-static.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	items, err := h.posts.ListPages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: items})
}

// GetPost handles GET /v2/blog/get?page=.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.GetPost(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// UpdatePost handles POST /v1/blog/update and /v2/blog/update.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	post, err := h.serviceFor(r.Context()).UpdatePost(r.Context(), req.Page, req.Meta, req.Content, requestInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// UpdatePage handles POST /v1/blog/update-static.
func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	post, err := h.serviceFor(r.Context()).UpdatePage(r.Context(), req.Page, req.Meta, req.Content, requestInfo(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// UploadAsset handles POST /v2/blog/upload. Content arrives already
// base64-encoded and is committed to the assets directory as is.
func (h *Handler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Content == "" {
		writeError(w, apperr.BadRequest("name and content are required"))
		return
	}
	if strings.Contains(req.Name, "..") || strings.ContainsAny(req.Name, "/\\") {
		writeError(w, apperr.BadRequest("invalid asset name"))
		return
	}
	path := h.assetsDir + "/" + req.Name
	info := requestInfo(r)
	res, err := h.store.PutBase64(r.Context(), path, req.Content, "Upload "+req.Name+" by "+info.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.audit != nil {
		h.audit.Record(r.Context(), "asset_upload", "Upload "+req.Name+" by "+info.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusCreated, res)
}

// DeleteAsset handles DELETE /v2/blog/upload?name=.
func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, apperr.BadRequest("name is required"))
		return
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		writeError(w, apperr.BadRequest("invalid asset name"))
		return
	}
	info := requestInfo(r)
	if err := h.store.Delete(r.Context(), h.assetsDir+"/"+name, "", "Delete "+name+" by "+info.Email); err != nil {
		writeError(w, err)
		return
	}
	if h.audit != nil {
		h.audit.Record(r.Context(), "asset_delete", "Delete "+name+" by "+info.Email, info.IP, info.UserAgent)
	}
	w.WriteHeader(http.StatusNoContent)
}
