package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"equity-scanner/internal/logging"
	"equity-scanner/internal/notify"
	"equity-scanner/internal/stream"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
	streamReadLimit  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EnableStream serves hub notifications on /api/stream.
func (h *Handler) EnableStream(hub *stream.Hub) {
	h.hub = hub
}

// Stream upgrades to a websocket and forwards notifications as JSON
// messages until the client goes away. The optional types query parameter
// is a comma-separated list of notification types.
func (h *Handler) Stream(c echo.Context) error {
	if h.hub == nil {
		return respond(c, http.StatusNotFound, "streaming disabled")
	}

	var types []notify.NotificationType
	for _, t := range strings.Split(c.QueryParam("types"), ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			types = append(types, notify.NotificationType(t))
		}
	}

	// Subscribe first so nothing published during the handshake is lost.
	sub := h.hub.Subscribe(types...)
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.hub.Unsubscribe(sub)
		return nil
	}

	logger := logging.FromContext(c.Request().Context()).With().Str("subscriber", sub.ID).Logger()
	logger.Debug().Int("types", len(types)).Msg("Stream client connected")

	go h.streamReads(conn, sub)
	h.streamWrites(conn, sub)

	logger.Debug().Msg("Stream client disconnected")
	return nil
}

// streamWrites owns every write on conn. It returns when the subscription
// closes or a write fails.
func (h *Handler) streamWrites(conn *websocket.Conn, sub *stream.Subscription) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case n, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamReads discards client messages and keeps the read deadline moving
// on pongs. A read error ends the subscription, which stops the writer.
func (h *Handler) streamReads(conn *websocket.Conn, sub *stream.Subscription) {
	defer h.hub.Unsubscribe(sub)

	conn.SetReadLimit(streamReadLimit)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
