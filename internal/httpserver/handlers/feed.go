package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/MrSnakeDoc/vsdesk/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vsdesk/internal/logger"
	"github.com/MrSnakeDoc/vsdesk/internal/tree"
)

const feedWriteTimeout = 5 * time.Second

// BookmarkFeed upgrades to a WebSocket and pushes the workspace tree on
// connect and after every change. A slow client skips intermediate views.
func BookmarkFeed(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := loadScope(d, r)
		if err != nil {
			writeError(w, err)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			d.Logger.Warn("feed upgrade failed", logger.String("scope", scope.ID()), logger.Error(err))
			return
		}
		defer func() { _ = conn.CloseNow() }()

		// Clients never send; CloseRead handles their close frame.
		ctx := conn.CloseRead(r.Context())

		// One pending signal is enough: the loop always sends the current tree.
		changed := make(chan struct{}, 1)
		unsubscribe := scope.Subscribe(func([]*tree.Node) {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		if err := writeView(ctx, conn, viewOf(scope)); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				if err := writeView(ctx, conn, viewOf(scope)); err != nil {
					if !errors.Is(err, context.Canceled) {
						d.Logger.Debug("feed write failed", logger.String("scope", scope.ID()), logger.Error(err))
					}
					return
				}
			}
		}
	}
}

func writeView(ctx context.Context, conn *websocket.Conn, v treeResponse) error {
	ctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
