package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/vsdesk/internal/account"
	"github.com/MrSnakeDoc/vsdesk/internal/backup"
	"github.com/MrSnakeDoc/vsdesk/internal/bookmarks"
	"github.com/MrSnakeDoc/vsdesk/internal/domain"
	"github.com/MrSnakeDoc/vsdesk/internal/recordstore"
	"github.com/MrSnakeDoc/vsdesk/internal/sources/homepage"
	"github.com/MrSnakeDoc/vsdesk/internal/theme"
)

// maxBody caps request bodies; export documents of a few thousand
// bookmarks stay well below it.
const maxBody = 8 << 20

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, bookmarks.ErrInvalidItem),
		errors.Is(err, bookmarks.ErrInvalidMove),
		errors.Is(err, backup.ErrInvalidImportFormat),
		errors.Is(err, theme.ErrInvalidThemeFormat),
		errors.Is(err, account.ErrInvalidName),
		errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, homepage.ErrNoBookmarks):
		return http.StatusBadRequest
	case errors.Is(err, recordstore.ErrRecordNotFound),
		errors.Is(err, account.ErrWorkspaceNotFound),
		errors.Is(err, theme.ErrThemeNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrLastWorkspace),
		errors.Is(err, account.ErrActiveWorkspace),
		errors.Is(err, theme.ErrBuiltinTheme):
		return http.StatusConflict
	case errors.Is(err, recordstore.ErrStorageUnavailable),
		errors.Is(err, account.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return data, nil
}
