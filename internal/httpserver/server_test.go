package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/MrSnakeDoc/vsdesk/internal/app"
	"github.com/MrSnakeDoc/vsdesk/internal/config"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver"
	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
)

type fixture struct {
	core    *app.Core
	handler http.Handler
	ws      string // active workspace id
}

func newFixture(t *testing.T, tweak func(*deps.Deps)) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := &config.Config{StoreDSN: "memory://", PersistTimeout: time.Second}
	log := logger.NewNop()

	opener, s, storage, err := app.OpenStore(ctx, cfg, log)
	require.NoError(t, err)
	core, err := app.NewCore(s, cfg, log)
	require.NoError(t, err)
	require.NoError(t, core.Start(ctx))
	t.Cleanup(func() {
		core.Stop()
		_ = opener.Close()
	})

	d := deps.Deps{
		Logger:      log,
		StartTime:   time.Now(),
		Version:     "test",
		Storage:     storage,
		Bookmarks:   core.Bookmarks,
		Account:     core.Account,
		Themes:      core.Themes,
		Backup:      core.Backup,
		Flush:       core.Flush,
		AfterImport: core.AfterImport,
	}
	if tweak != nil {
		tweak(&d)
	}
	snap, err := core.Account.Snapshot()
	require.NoError(t, err)
	return &fixture{core: core, handler: httpserver.NewRouter(log, d), ws: snap.Active().ID}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type treeView struct {
	Workspace string `json:"workspace"`
	Tree      []struct {
		ID        string `json:"id"`
		Label     string `json:"label"`
		Kind      string `json:"kind"`
		URL       string `json:"url"`
		Collapsed bool   `json:"collapsed"`
		Children  []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"children"`
	} `json:"tree"`
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[struct {
		Ready         bool   `json:"ready"`
		Mode          string `json:"mode"`
		Engine        string `json:"engine"`
		SchemaVersion int    `json:"schema_version"`
		Degraded      bool   `json:"degraded"`
	}](t, rec)
	require.True(t, ready.Ready)
	require.Equal(t, "optimal", ready.Mode)
	require.Equal(t, "memory", ready.Engine)
	require.Equal(t, 2, ready.SchemaVersion)
	require.False(t, ready.Degraded)
}

func TestReadyReportsDegradedStore(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) {
		d.Storage.Degraded = true
		d.Storage.Reason = "storage unavailable: sqlite: disk full"
	})
	rec := f.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"mode":"degraded"`)
	require.Contains(t, rec.Body.String(), "disk full")
}

func TestBookmarkLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	base := "/api/workspaces/" + f.ws + "/bookmarks"

	rec := f.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[treeView](t, rec)
	require.Equal(t, f.ws, view.Workspace)
	require.Len(t, view.Tree, 1, "seeded workspace")
	seedFolder := view.Tree[0].ID

	rec = f.do(t, http.MethodPost, base, `{"label":"Work","kind":"folder"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	work := decode[map[string]string](t, rec)["id"]

	rec = f.do(t, http.MethodPost, base, `{"parentId":"`+work+`","label":"Docs","kind":"link","url":"https://docs.example"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	docs := decode[map[string]string](t, rec)["id"]

	rec = f.do(t, http.MethodPatch, base+"/"+docs, `{"label":"Manual"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[treeView](t, rec)
	require.Equal(t, "Manual", view.Tree[1].Children[0].Label)

	rec = f.do(t, http.MethodPost, base+"/"+work+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[treeView](t, rec).Tree[1].Collapsed)

	rec = f.do(t, http.MethodPost, base+"/"+work+"/move", `{"parentId":"","index":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[treeView](t, rec)
	require.Equal(t, work, view.Tree[0].ID)
	require.Equal(t, seedFolder, view.Tree[1].ID)

	rec = f.do(t, http.MethodDelete, base+"/"+work, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.NoError(t, f.core.Flush(context.Background()))
	stored, err := f.core.Collections.Bookmarks.ForScope(context.Background(), f.ws)
	require.NoError(t, err)
	require.Len(t, stored, 2, "only the seed is left")
}

func TestBookmarkErrors(t *testing.T) {
	f := newFixture(t, nil)
	base := "/api/workspaces/" + f.ws + "/bookmarks"

	rec := f.do(t, http.MethodPost, base, `{"label":"Broken","kind":"folder"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	folder := decode[map[string]string](t, rec)["id"]
	rec = f.do(t, http.MethodPost, base, `{"parentId":"`+folder+`","label":"Inner","kind":"folder"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	inner := decode[map[string]string](t, rec)["id"]
	rec = f.do(t, http.MethodPost, base, `{"label":"Link","kind":"link","url":"https://a.example"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	link := decode[map[string]string](t, rec)["id"]

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"link without url", http.MethodPost, base, `{"label":"x","kind":"link"}`, http.StatusBadRequest},
		{"unknown kind", http.MethodPost, base, `{"label":"x","kind":"separator"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base, `{"label":"x","kind":"folder","color":"red"}`, http.StatusBadRequest},
		{"parent is a link", http.MethodPost, base, `{"parentId":"` + link + `","label":"x","kind":"folder"}`, http.StatusBadRequest},
		{"move into descendant", http.MethodPost, base + "/" + folder + "/move", `{"parentId":"` + inner + `","index":0}`, http.StatusBadRequest},
		{"toggle a link", http.MethodPost, base + "/" + link + "/toggle", "", http.StatusBadRequest},
		{"edit bad url", http.MethodPatch, base + "/" + link, `{"url":"not a url"}`, http.StatusBadRequest},
		{"unknown bookmark", http.MethodDelete, base + "/nope", "", http.StatusNotFound},
		{"unknown workspace", http.MethodGet, "/api/workspaces/nope/bookmarks", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			require.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestImportHomepageBookmarks(t *testing.T) {
	f := newFixture(t, nil)
	body := `
- Media:
    - Jellyfin:
        - href: https://jellyfin.example
    - Skipped:
        - href: "{{HOMEPAGE_VAR_URL}}"
`
	rec := f.do(t, http.MethodPost, "/api/workspaces/"+f.ws+"/bookmarks/import", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 2, decode[map[string]int](t, rec)["added"])

	rec = f.do(t, http.MethodPost, "/api/workspaces/"+f.ws+"/bookmarks/import", "just: text")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountAndWorkspaces(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPatch, "/api/account/profile", `{"displayName":"Ada"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"displayName":"Ada"`)

	rec = f.do(t, http.MethodPost, "/api/account/onboarding", `{"completed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"onboardingCompleted":true`)

	rec = f.do(t, http.MethodPost, "/api/workspaces", `{"name":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/workspaces", `{"name":"Side"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	side := decode[map[string]any](t, rec)["id"].(string)

	rec = f.do(t, http.MethodPatch, "/api/workspaces/"+side, `{"name":"Hobby"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Hobby"`)

	rec = f.do(t, http.MethodDelete, "/api/workspaces/"+side, "")
	require.Equal(t, http.StatusConflict, rec.Code, "a new workspace becomes the active one")

	rec = f.do(t, http.MethodPost, "/api/workspaces/"+f.ws+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"activeWorkspaceId":"`+f.ws+`"`)

	rec = f.do(t, http.MethodDelete, "/api/workspaces/"+side, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/workspaces/"+f.ws, "")
	require.Equal(t, http.StatusConflict, rec.Code, "last workspace")

	rec = f.do(t, http.MethodPost, "/api/workspaces/nope/activate", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThemes(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/themes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Active string           `json:"active"`
		Themes []map[string]any `json:"themes"`
	}](t, rec)
	require.Equal(t, "dark-plus", list.Active)
	require.Len(t, list.Themes, 3)

	rec = f.do(t, http.MethodPost, "/api/themes", `{
		// exported from an editor
		"name": "Mine",
		"type": "light",
		"colors": {"editor.background": "#ffffff",},
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	mine := decode[map[string]any](t, rec)["id"].(string)

	rec = f.do(t, http.MethodPut, "/api/themes/active", `{"id":"`+mine+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/themes/"+mine, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/themes", "")
	require.Equal(t, "dark-plus", decode[map[string]any](t, rec)["active"])

	require.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/themes/monokai", "").Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/api/themes/active", `{"id":"nope"}`).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/themes", `{"name":"x","colors":{}}`).Code)
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	base := "/api/workspaces/" + f.ws + "/bookmarks"
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, base, `{"label":"Keep","kind":"folder"}`).Code)

	rec := f.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "vsdesk-export-")
	exported := rec.Body.Bytes()

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, base, `{"label":"Drop","kind":"folder"}`).Code)

	rec = f.do(t, http.MethodPost, "/api/import", string(exported))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 3, decode[map[string]int](t, rec)["bookmarks"])

	view := decode[treeView](t, f.do(t, http.MethodGet, base, ""))
	labels := []string{}
	for _, n := range view.Tree {
		labels = append(labels, n.Label)
	}
	require.NotContains(t, labels, "Drop")
	require.Contains(t, labels, "Keep")

	rec = f.do(t, http.MethodPost, "/api/import", `{"version":2}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuards(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) {
		d.AllowedHosts = []string{"localhost"}
		d.AllowedCIDRS = []string{"127.0.0.1/32"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.Host = "evil.example:7420"
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code, "foreign host")

	req = httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.Host = "localhost:7420"
	req.RemoteAddr = "192.0.2.10:5000"
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code, "foreign client")

	req = httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.Host = "localhost:7420"
	req.RemoteAddr = "127.0.0.1:5000"
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestImportIsRateLimited(t *testing.T) {
	f := newFixture(t, nil)
	path := "/api/workspaces/" + f.ws + "/bookmarks/import"

	var last int
	for range 6 {
		last = f.do(t, http.MethodPost, path, "not: [yaml").Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestBookmarkFeed(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/workspaces/" + f.ws + "/bookmarks/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	var view treeView
	require.NoError(t, wsjson.Read(ctx, conn, &view))
	require.Len(t, view.Tree, 1)

	resp, err := http.Post(srv.URL+"/api/workspaces/"+f.ws+"/bookmarks", "application/json",
		bytes.NewBufferString(`{"label":"Live","kind":"folder"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, wsjson.Read(ctx, conn, &view))
	require.Len(t, view.Tree, 2)
	require.Equal(t, "Live", view.Tree[1].Label)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}
