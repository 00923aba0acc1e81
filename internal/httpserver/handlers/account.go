package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vsdesk/internal/account"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
)

type onboardingRequest struct {
	Completed bool `json:"completed"`
}

type workspaceRequest struct {
	Name string `json:"name"`
}

func snapshotResponse(w http.ResponseWriter, d deps.Deps, status int) {
	snap, err := d.Account.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, snap)
}

func GetAccount(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotResponse(w, d, http.StatusOK)
	}
}

func UpdateProfile(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.ProfileUpdate
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := d.Account.UpdateProfile(req); err != nil {
			writeError(w, err)
			return
		}
		snapshotResponse(w, d, http.StatusOK)
	}
}

func SetOnboarding(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req onboardingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		var err error
		if req.Completed {
			err = d.Account.CompleteOnboarding()
		} else {
			err = d.Account.ResetOnboarding()
		}
		if err != nil {
			writeError(w, err)
			return
		}
		snapshotResponse(w, d, http.StatusOK)
	}
}

func CreateWorkspace(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workspaceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		ws, err := d.Account.CreateWorkspace(r.Context(), req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ws)
	}
}

func RenameWorkspace(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workspaceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := d.Account.RenameWorkspace(chi.URLParam(r, "ws"), req.Name); err != nil {
			writeError(w, err)
			return
		}
		snapshotResponse(w, d, http.StatusOK)
	}
}

// DeleteWorkspace removes the workspace and, through the session's delete
// hooks, its bookmarks.
func DeleteWorkspace(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Account.DeleteWorkspace(r.Context(), chi.URLParam(r, "ws")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ActivateWorkspace(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Account.SetActiveWorkspace(chi.URLParam(r, "ws")); err != nil {
			writeError(w, err)
			return
		}
		snapshotResponse(w, d, http.StatusOK)
	}
}
