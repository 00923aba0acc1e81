package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/handlers"
)

func init() { Register(registerThemes, middleware.Timeout(apiTimeout)) }

func registerThemes(r chi.Router, d deps.Deps) {
	api := protected(r, d)
	api.Get("/api/themes", handlers.ListThemes(d))
	api.With(importLimit(d)).Post("/api/themes", handlers.ImportTheme(d))
	api.Put("/api/themes/active", handlers.SetActiveTheme(d))
	api.Delete("/api/themes/{id}", handlers.DeleteTheme(d))
}
