package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trunov/thumbnailer/internal/transport/handler"
)

func NewRouter(h *handler.Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/requests", h.RequestThumbnail)
		r.Delete("/thumbnails", h.RemoveThumbnails)
	})

	return r
}
