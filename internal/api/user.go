package api

import (
	"net/http"

	"github.com/starford/ansuz/internal/apperr"
)

// Login handles POST /user/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, apperr.BadRequest("email and password are required"))
		return
	}
	session, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "login", "Login "+req.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusOK, session)
}

// Register handles POST /user/register. A valid invite code is
// required and consumed on success.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.Code == "" {
		writeError(w, apperr.BadRequest("email, password and code are required"))
		return
	}
	_, ok, err := h.invites.Validate(r.Context(), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperr.Forbidden("invalid invite code"))
		return
	}
	session, err := h.identity.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.invites.Delete(r.Context(), req.Code); err != nil {
		h.logger.Warn("invite code consume failed", "code", req.Code, "error", err.Error())
	}
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "register", "Register "+req.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusCreated, session)
}

// Reset handles POST /user/reset: sends a password reset mail when the
// account exists. The response does not reveal whether it does.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, apperr.BadRequest("email is required"))
		return
	}
	exists, err := h.identity.Exists(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if exists {
		if err := h.identity.ResetPassword(r.Context(), req.Email); err != nil {
			writeError(w, err)
			return
		}
	}
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "reset", "Reset "+req.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

// UpdateProfile handles POST /user/update: changes display name, photo
// or password on the authenticated account.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DisplayName == "" && req.PhotoURL == "" && req.Password == "" {
		writeError(w, apperr.BadRequest("nothing to update"))
		return
	}
	if err := h.identity.Update(r.Context(), tokenFrom(r.Context()), req.DisplayName, req.PhotoURL, req.Password); err != nil {
		writeError(w, err)
		return
	}
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "user_update", "Profile update "+info.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// InviteValidate handles POST /invite/validate.
func (h *Handler) InviteValidate(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actorID, ok, err := h.invites.Validate(r.Context(), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": ok, "localId": actorID})
}

// InviteCreate handles POST /invite/create.
func (h *Handler) InviteCreate(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	code, err := h.invites.Create(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	info := requestInfo(r)
	if h.audit != nil {
		h.audit.Record(r.Context(), "invite_create", "Invite code by "+actor.Email, info.IP, info.UserAgent)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

// InviteDelete handles POST /invite/delete.
func (h *Handler) InviteDelete(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.invites.Delete(r.Context(), req.Code); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
