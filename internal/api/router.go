package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates itself (ticket or bearer) before upgrading.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/config", s.handleConfig)
			r.Get("/system", s.handleSystem)
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/summary", s.handleSummary)
			r.Post("/refresh", s.handleRefresh)

			r.Get("/offline", s.handleOffline)
			r.Get("/balance", s.handleBalance)
			r.Get("/history", s.handleHistory)
			r.Get("/audit", s.handleAudit)

			r.Route("/updates", func(r chi.Router) {
				r.Get("/", s.handleListUpdates)
				r.Route("/{entityID}", func(r chi.Router) {
					r.Post("/install", s.handleInstallUpdate)
					r.Post("/skip", s.handleSkipUpdate)
					r.Post("/clear-skipped", s.handleClearSkipped)
				})
			})

			r.Route("/todo", func(r chi.Router) {
				r.Get("/", s.handleListTodoEntities)
				r.Route("/{entityID}/items", func(r chi.Router) {
					r.Get("/", s.handleListTodoItems)
					r.Post("/", s.handleAddTodoItem)
					r.Patch("/{item}", s.handleUpdateTodoItem)
					r.Delete("/{item}", s.handleRemoveTodoItem)
				})
			})
		})
	})

	return r
}
