package handlers

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vsdesk/internal/account"
	"github.com/MrSnakeDoc/vsdesk/internal/bookmarks"
	"github.com/MrSnakeDoc/vsdesk/internal/collections"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/sources/homepage"
	"github.com/MrSnakeDoc/vsdesk/internal/tree"
)

type treeResponse struct {
	Workspace        string       `json:"workspace"`
	Tree             []*tree.Node `json:"tree"`
	LastPersistError string       `json:"lastPersistError,omitempty"`
}

type addBookmarkRequest struct {
	ParentID string      `json:"parentId"`
	Label    string      `json:"label"`
	Kind     domain.Kind `json:"kind"`
	URL      string      `json:"url"`
}

type editBookmarkRequest struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type moveBookmarkRequest struct {
	ParentID string `json:"parentId"`
	Index    int    `json:"index"`
}

type idResponse struct {
	ID string `json:"id"`
}

type importTreeResponse struct {
	Added int `json:"added"`
}

// loadScope resolves {ws} to a loaded bookmark scope. Unknown workspaces are
// refused so no tree is seeded for them.
func loadScope(d deps.Deps, r *http.Request) (*bookmarks.Scope, error) {
	ws := chi.URLParam(r, "ws")
	snap, err := d.Account.Snapshot()
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(snap.Workspaces, func(w domain.Workspace) bool { return w.ID == ws }) {
		return nil, fmt.Errorf("%w: %s", account.ErrWorkspaceNotFound, ws)
	}
	return d.Bookmarks.Load(r.Context(), ws)
}

// itemOf returns the {id} record of scope, or ErrRecordNotFound.
func itemOf(scope *bookmarks.Scope, r *http.Request) (domain.Bookmark, error) {
	id := chi.URLParam(r, "id")
	for _, bm := range scope.Records() {
		if bm.Meta().ID == id {
			return bm, nil
		}
	}
	return nil, recordstore.NotFound(collections.BookmarksCollection, id)
}

func viewOf(scope *bookmarks.Scope) treeResponse {
	resp := treeResponse{Workspace: scope.ID(), Tree: scope.Tree()}
	if resp.Tree == nil {
		resp.Tree = []*tree.Node{}
	}
	if err := scope.LastPersistError(); err != nil {
		resp.LastPersistError = err.Error()
	}
	return resp
}

func GetBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(scope))
	}
}

func AddBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addBookmarkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := bookmarks.ValidateNew(req.Label, req.Kind, req.URL); err != nil {
			writeError(w, err)
			return
		}
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := scope.AddItem(req.ParentID, req.Label, req.Kind, req.URL)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, idResponse{ID: id})
	}
}

func EditBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req editBookmarkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		bm, err := itemOf(scope, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.URL != "" && bm.Kind() == domain.KindLink {
			label := req.Label
			if label == "" {
				label = bm.Meta().Label
			}
			if err := bookmarks.ValidateNew(label, domain.KindLink, req.URL); err != nil {
				writeError(w, err)
				return
			}
		}
		scope.EditItem(bm.Meta().ID, req.Label, req.URL)
		writeJSON(w, http.StatusOK, viewOf(scope))
	}
}

func RemoveBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		bm, err := itemOf(scope, r)
		if err != nil {
			writeError(w, err)
			return
		}
		scope.RemoveItem(bm.Meta().ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func ToggleBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		bm, err := itemOf(scope, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if bm.Kind() != domain.KindFolder {
			writeError(w, fmt.Errorf("%w: %s is not a folder", bookmarks.ErrInvalidItem, bm.Meta().ID))
			return
		}
		scope.ToggleCollapse(bm.Meta().ID)
		writeJSON(w, http.StatusOK, viewOf(scope))
	}
}

func MoveBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveBookmarkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		bm, err := itemOf(scope, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := scope.MoveItem(bm.Meta().ID, req.ParentID, req.Index); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(scope))
	}
}

// ImportBookmarks appends a Homepage bookmarks.yaml (or services.yaml) body
// to the workspace root.
func ImportBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		nodes, err := homepage.Parse(data)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, importTreeResponse{Added: scope.ImportTree(nodes)})
	}
}
