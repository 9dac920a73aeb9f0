package progress

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebSocketHandler serves one progress channel over a WebSocket: replay
// first, then live events as JSON text frames.
type WebSocketHandler struct {
	broker   *Broker
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts any origin when allowedOrigins is empty.
func NewWebSocketHandler(broker *Broker, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &WebSocketHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: logger,
	}
}

func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request, channel string) {
	sub, err := h.broker.Subscribe(r.Context(), channel)
	if apperrors.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.logger.Error("Progress subscribe failed", zap.String("channel", channel), zap.Error(err))
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer sub.Cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader loop: only needed to process control frames and notice close.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	for _, ev := range sub.Replay {
		if err := write(ev); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := write(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
