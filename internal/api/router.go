package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(h *Handler, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(CORS)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("pong"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	// Legacy blog API: raw documents, no metadata split.
	r.Route("/v1/blog", func(r chi.Router) {
		r.Get("/list", h.ListPostsV1)
		r.Get("/get", h.GetPostV1)
		r.Get("/get-static", h.GetPageV1)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireActor, h.RequirePermit)
			r.Post("/update", h.UpdatePost)
			r.Post("/update-static", h.UpdatePage)
		})
	})

	r.Route("/v2/blog", func(r chi.Router) {
		r.Get("/list", h.ListPosts)
		r.Get("/list-static", h.ListPages)
		r.Get("/get", h.GetPost)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireActor, h.RequirePermit)
			r.Post("/update", h.UpdatePost)
			r.Post("/upload", h.UploadAsset)
			r.Delete("/upload", h.DeleteAsset)
		})
	})

	r.Route("/invite", func(r chi.Router) {
		r.Post("/validate", h.InviteValidate)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireActor, h.RequirePermit)
			r.Post("/create", h.InviteCreate)
			r.Post("/delete", h.InviteDelete)
		})
	})

	r.Route("/portal", func(r chi.Router) {
		r.Get("/memberCount", h.MemberCount)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireActor)
			r.Post("/", h.PortalSummary)
			r.Post("/member/me", h.MemberMe)
			r.Post("/github/invite", h.GithubInvite)
			r.Get("/github/token", h.GithubTokenGet)
			r.Post("/github/token", h.GithubTokenPut)
			r.Delete("/github/token", h.GithubTokenDelete)
			r.Post("/discord/invite", h.DiscordInvite)
			r.Group(func(r chi.Router) {
				r.Use(h.RequirePermit)
				r.Post("/members", h.Members)
			})
		})
	})

	r.Route("/user", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/reset", h.Reset)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireActor)
			r.Post("/update", h.UpdateProfile)
		})
	})

	return r
}
