package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/forestwatch/forest-monitor/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// WSHandler upgrades HTTP requests to WebSocket connections and bridges
// them onto the hub.  Clients choose rooms with the `rooms` query
// parameter (comma separated); the admin room is silently dropped for
// callers without the ADMIN role.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewWSHandler constructs a WSHandler bound to the hub.
func NewWSHandler(hub *Hub, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// non-browser clients send no origin
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

// Serve handles GET /v1/realtime/ws.  JWT middleware has already put
// user_id and role into the context.
func (h *WSHandler) Serve(c echo.Context) error {
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

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	sub := h.hub.Subscribe(rooms...)

	// Reader: only there to notice the peer going away.
	go func() {
		defer sub.Close()
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writer: pump hub events and periodic pings until the subscription
	// or the connection dies.
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = ws.Close()
	}()
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// identityFrom pulls the user id and role claims the JWT middleware put
// into the echo context.  Claim values arrive as float64 from the JWT
// decoder.
func identityFrom(c echo.Context) (uint64, string) {
	var userID uint64
	switch v := c.Get("user_id").(type) {
	case uint64:
		userID = v
	case float64:
		userID = uint64(v)
	case int:
		userID = uint64(v)
	}
	role, _ := c.Get("role").(string)
	return userID, role
}
