package httpserver

import (
	"net/http"
	"time"

	"lv-tradedesk/internal/notify"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxInbound = 512
)

// WSHandler relays hub events to one websocket client: price broadcasts
// plus the events of the authenticated user. Delivery is best effort.
type WSHandler struct {
	hub      *notify.Hub
	tokens   TokenParser
	cookie   string
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(hub *notify.Hub, tokens TokenParser, cookie, origin string, log *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		cookie: cookie,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on a websocket handshake, so the token may
	// also come as a query parameter.
	token := r.URL.Query().Get("token")
	if token == "" {
		token = sessionToken(r, h.cookie)
	}
	userID, _, err := h.tokens.ParseToken(token)
	if token == "" || err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	log := h.log.With(zap.String("client_id", clientID), zap.String("user_id", userID))
	log.Debug("websocket connected")
	defer log.Debug("websocket closed")

	sub := h.hub.Subscribe(userID)
	defer h.hub.Unsubscribe(sub)

	conn.SetReadLimit(maxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
