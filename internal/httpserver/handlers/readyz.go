package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready         bool                       `json:"ready"`
	Mode          string                     `json:"mode"`
	Engine        string                     `json:"engine"`
	SchemaVersion int                        `json:"schema_version"`
	Degraded      bool                       `json:"degraded"`
	Components    map[string]componentStatus `json:"components"`
}

// Readyz reports the store in use and the last persistence outcome of the
// account session. A degraded (in-memory) store is still ready.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"store":   checkStore(d.Storage),
			"account": checkAccount(d),
		}
		resp := readyzResponse{
			Ready:         d.Account != nil && d.Storage.Engine != "",
			Mode:          determineMode(components),
			Engine:        d.Storage.Engine,
			SchemaVersion: d.Storage.SchemaVersion,
			Degraded:      d.Storage.Degraded,
			Components:    components,
		}
		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func determineMode(components map[string]componentStatus) string {
	if store, ok := components["store"]; ok && !store.OK {
		return "critical"
	}
	for _, c := range components {
		if c.Mode == "degraded" {
			return "degraded"
		}
	}
	return "optimal"
}

func checkStore(s deps.Storage) componentStatus {
	switch {
	case s.Engine == "":
		return componentStatus{OK: false, Error: "store not opened"}
	case s.Degraded:
		return componentStatus{
			OK:     true,
			Mode:   "degraded",
			Impact: "changes-not-persisted-across-restarts",
			Error:  s.Reason,
		}
	default:
		return componentStatus{OK: true, Mode: "optimal"}
	}
}

func checkAccount(d deps.Deps) componentStatus {
	if d.Account == nil {
		return componentStatus{OK: false, Error: "session not initialized"}
	}
	if err := d.Account.LastPersistError(); err != nil {
		return componentStatus{
			OK:     true,
			Mode:   "degraded",
			Impact: "last-change-not-persisted",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
