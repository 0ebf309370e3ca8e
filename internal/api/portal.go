package api

import (
	"errors"
	"net/http"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/directory"
	"github.com/starford/ansuz/internal/kv"
)

// PortalSummary handles POST /portal: the actor's profile plus their
// directory row and permission flag.
func (h *Handler) PortalSummary(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	member, err := h.directory.Member(r.Context(), directory.StudentIDFromEmail(actor.Email))
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actor":     actor,
		"member":    member,
		"permitted": member.Permitted(),
	})
}

// Members handles POST /portal/members.
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.directory.Members(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// MemberCount handles GET /portal/memberCount.
func (h *Handler) MemberCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.directory.Count(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MemberMe handles POST /portal/member/me.
func (h *Handler) MemberMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	member, err := h.directory.Member(r.Context(), directory.StudentIDFromEmail(actor.Email))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// GithubInvite handles POST /portal/github/invite: invites the actor's
// email to the content-host organization.
func (h *Handler) GithubInvite(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if err := h.store.OrgInvite(r.Context(), actor.Email); err != nil {
		writeError(w, err)
		return
	}
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "github_invite", "Invite "+actor.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"invited": true})
}

// GithubTokenGet handles GET /portal/github/token: reports whether the
// actor has a personal content-host token registered. The token itself
// is never returned.
func (h *Handler) GithubTokenGet(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	_, err := h.tokens.Get(r.Context(), tokenStoreKey(actor.ID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]bool{"registered": false})
			return
		}
		writeError(w, apperr.Internal("token lookup failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": true})
}

// GithubTokenPut handles POST /portal/github/token: stores the actor's
// personal content-host token, encrypted at rest.
func (h *Handler) GithubTokenPut(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeError(w, apperr.BadRequest("token is required"))
		return
	}
	actor := actorFrom(r.Context())
	encrypted, err := h.secrets.Encrypt(req.Token)
	if err != nil {
		writeError(w, apperr.Internal("token encrypt failed", err))
		return
	}
	if err := h.tokens.Put(r.Context(), tokenStoreKey(actor.ID), []byte(encrypted), 0); err != nil {
		writeError(w, apperr.Internal("token store failed", err))
		return
	}
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "github_token", "Register token for "+actor.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": true})
}

// GithubTokenDelete handles DELETE /portal/github/token.
func (h *Handler) GithubTokenDelete(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if err := h.tokens.Delete(r.Context(), tokenStoreKey(actor.ID)); err != nil && !errors.Is(err, kv.ErrNotFound) {
		writeError(w, apperr.Internal("token delete failed", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DiscordInvite handles POST /portal/discord/invite: hands a verified
// member the invite URL for the community server.
func (h *Handler) DiscordInvite(w http.ResponseWriter, r *http.Request) {
	if h.discord == "" {
		writeError(w, apperr.NotFound("no invite configured"))
		return
	}
	actor := actorFrom(r.Context())
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "discord_invite", "Invite "+actor.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": h.discord})
}
