package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/model"
)

// heartbeatPeriod keeps proxies from idling out quiet SSE streams.
const heartbeatPeriod = 25 * time.Second

// StatsSource supplies the snapshot sent as the initial-stats event.
// The dashboard stats repository satisfies it via an adapter in main.
type StatsSource interface {
	Snapshot(ctx context.Context) (interface{}, error)
}

// SSEHandler bridges hub subscriptions onto Server-Sent Event streams.
// Room selection mirrors the WebSocket handler: the `rooms` query
// parameter plus the caller's own user room, with the admin room
// stripped for non-admins.
type SSEHandler struct {
	hub   *Hub
	stats StatsSource
}

// NewSSEHandler constructs an SSEHandler.  stats may be nil, in which
// case the initial-stats event is skipped.
func NewSSEHandler(hub *Hub, stats StatsSource) *SSEHandler {
	if hub == nil {
		panic("nil hub passed to NewSSEHandler")
	}
	return &SSEHandler{hub: hub, stats: stats}
}

// Serve handles GET /v1/realtime/events.  The opening sequence is
// fixed: connected, welcome, then initial-stats; after that the stream
// carries hub events and periodic heartbeats until the client leaves.
func (h *SSEHandler) Serve(c echo.Context) error {
	userID, role := identityFrom(c)

	rooms := []string{UserRoom(userID)}
	for _, r := range strings.Split(c.QueryParam("rooms"), ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if r == AdminRoom && role != model.RoleAdmin {
			continue
		}
		rooms = append(rooms, r)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	sub := h.hub.Subscribe(rooms...)
	defer sub.Close()

	if err := writeSSE(res, "connected", echo.Map{"rooms": rooms}); err != nil {
		return nil
	}
	if err := writeSSE(res, "welcome", echo.Map{"user_id": userID}); err != nil {
		return nil
	}
	if h.stats != nil {
		if snap, err := h.stats.Snapshot(c.Request().Context()); err == nil {
			if err := writeSSE(res, "initial-stats", snap); err != nil {
				return nil
			}
		}
	}

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	done := c.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := writeSSE(res, ev.Type, ev); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := writeSSE(res, "heartbeat", echo.Map{"at": time.Now().UTC()}); err != nil {
				return nil
			}
		}
	}
}

// writeSSE emits one event frame and flushes it to the client.
func writeSSE(res *echo.Response, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}
