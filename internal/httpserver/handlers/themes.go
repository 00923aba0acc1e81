package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
)

type themesResponse struct {
	Active string         `json:"active"`
	Themes []domain.Theme `json:"themes"`
}

type activeThemeRequest struct {
	ID string `json:"id"`
}

func ListThemes(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, themesResponse{
			Active: d.Themes.ActiveTheme().ID,
			Themes: d.Themes.ListThemes(),
		})
	}
}

// ImportTheme accepts a JSON or JSONC theme document.
func ImportTheme(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		t, err := d.Themes.ImportTheme(r.Context(), data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func DeleteTheme(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Themes.DeleteTheme(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SetActiveTheme(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req activeThemeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := d.Themes.SetActiveTheme(req.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d.Themes.ActiveTheme())
	}
}
