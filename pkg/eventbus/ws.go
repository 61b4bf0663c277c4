package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds how long a single WebSocket send may block before
// the connection is considered stalled.
const writeTimeout = 5 * time.Second

// ServeProjectStream upgrades r to a WebSocket and streams every event
// published for projectID until the client disconnects or the bus drops
// the subscription for persistent overflow.
func (b *Bus) ServeProjectStream(w http.ResponseWriter, r *http.Request, projectID int64) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	sub := b.Subscribe(ProjectChannel(projectID))
	defer sub.Unsubscribe()

	if err := writeJSON(ctx, conn, map[string]any{"type": "subscription.confirmed", "project_id": strconv.FormatInt(projectID, 10)}); err != nil {
		return
	}

	// Drain client reads in the background purely to detect disconnects —
	// CodeFRAME's stream is server-push only, so inbound messages (besides
	// close frames) are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeJSON(ctx, conn, evt); err != nil {
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
