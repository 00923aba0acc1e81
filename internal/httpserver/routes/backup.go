package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/handlers"
)

func init() { Register(registerBackup, middleware.Timeout(apiTimeout)) }

func registerBackup(r chi.Router, d deps.Deps) {
	api := protected(r, d)
	api.Get("/api/export", handlers.Export(d))
	api.With(importLimit(d)).Post("/api/import", handlers.Import(d))
}
