package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the request/response optimizer routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimizer", func(r chi.Router) {
		r.Get("/", h.HandleGetStatus)
		r.Post("/optimize", h.HandleOptimize)
		r.Post("/solve", h.HandleSolve)
		r.Post("/evaluate", h.HandleEvaluate)
		r.Post("/frontier", h.HandleFrontier)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.HandleListRuns)
			r.Get("/{id}", h.HandleGetRun)
			r.Get("/{id}/allocation.png", h.HandleGetRunChart)
		})
	})
}

// RegisterStreamRoutes registers the long-lived websocket route. It is kept
// apart so that request timeouts are not applied to it.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/optimizer/stream", h.HandleStream)
}
