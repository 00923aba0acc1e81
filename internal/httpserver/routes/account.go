package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/handlers"
)

func init() { Register(registerAccount, middleware.Timeout(apiTimeout)) }

func registerAccount(r chi.Router, d deps.Deps) {
	api := protected(r, d)
	api.Get("/api/account", handlers.GetAccount(d))
	api.Patch("/api/account/profile", handlers.UpdateProfile(d))
	api.Post("/api/account/onboarding", handlers.SetOnboarding(d))
	api.Post("/api/workspaces", handlers.CreateWorkspace(d))
	api.Patch("/api/workspaces/{ws}", handlers.RenameWorkspace(d))
	api.Delete("/api/workspaces/{ws}", handlers.DeleteWorkspace(d))
	api.Post("/api/workspaces/{ws}/activate", handlers.ActivateWorkspace(d))
}
