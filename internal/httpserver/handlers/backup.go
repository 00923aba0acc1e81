package handlers

import (
	"fmt"
	"net/http"

	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
)

// Export waits for pending background writes, then returns the document as
// a download.
func Export(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Flush != nil {
			if err := d.Flush(r.Context()); err != nil {
				writeError(w, err)
				return
			}
		}
		doc, err := d.Backup.Export(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="vsdesk-export-%d.json"`, doc.Timestamp))
		writeJSON(w, http.StatusOK, doc)
	}
}

// Import replaces every exported collection with the request body and
// reloads the orchestrators.
func Import(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := readBody(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if d.Flush != nil {
			if err := d.Flush(r.Context()); err != nil {
				writeError(w, err)
				return
			}
		}
		summary, err := d.Backup.Import(r.Context(), data)
		if err != nil {
			writeError(w, err)
			return
		}
		if d.AfterImport != nil {
			if err := d.AfterImport(r.Context()); err != nil {
				d.Logger.Error("reload after import failed", logger.Error(err))
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
