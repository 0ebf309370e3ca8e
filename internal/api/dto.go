package api

import (
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/postservice"
)

// UpdateRequest is the request body for post and page updates.
type UpdateRequest struct {
	Page    string           `json:"page" validate:"required"`
	Meta    frontmatter.Meta `json:"meta"`
	Content string           `json:"content" validate:"required"`
}

// UploadRequest is the request body for asset uploads. Content is
// base64-encoded.
type UploadRequest struct {
	Name    string `json:"name" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// LoginRequest is the request body for /user/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the request body for /user/register. Code is a
// valid invite code.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

// ResetRequest is the request body for /user/reset.
type ResetRequest struct {
	Email string `json:"email" validate:"required"`
}

// UpdateProfileRequest is the request body for /user/update. Empty
// fields are left untouched.
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	Password    string `json:"password"`
}

// CodeRequest carries an invite code.
type CodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// TokenRequest carries a personal content-host token to store.
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// PostSummary is a listing item (aliased from the domain layer).
type PostSummary = postservice.PostSummary

// PostRef is a legacy listing item (aliased from the domain layer).
type PostRef = postservice.PostRef

// Post is the full document response (aliased from the domain layer).
type Post = postservice.Post

// PostListResponse wraps post listings.
type PostListResponse struct {
	Posts []PostSummary `json:"posts" validate:"required"`
}
