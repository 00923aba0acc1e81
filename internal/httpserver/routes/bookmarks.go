package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/handlers"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	api := protected(r, d)

	// The feed is long-lived and stays outside the request timeout.
	api.Get("/api/workspaces/{ws}/bookmarks/ws", handlers.BookmarkFeed(d))

	rest := api.With(middleware.Timeout(apiTimeout))
	rest.Get("/api/workspaces/{ws}/bookmarks", handlers.GetBookmarks(d))
	rest.Post("/api/workspaces/{ws}/bookmarks", handlers.AddBookmark(d))
	rest.With(importLimit(d)).Post("/api/workspaces/{ws}/bookmarks/import", handlers.ImportBookmarks(d))
	rest.Patch("/api/workspaces/{ws}/bookmarks/{id}", handlers.EditBookmark(d))
	rest.Delete("/api/workspaces/{ws}/bookmarks/{id}", handlers.RemoveBookmark(d))
	rest.Post("/api/workspaces/{ws}/bookmarks/{id}/toggle", handlers.ToggleBookmark(d))
	rest.Post("/api/workspaces/{ws}/bookmarks/{id}/move", handlers.MoveBookmark(d))
}
