package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/metrics"
	"wamirror/internal/models"
)

type hubClient struct {
	send chan []byte
}

// Hub broadcasts events to connected websocket clients. Each client has a
// bounded queue; a client that cannot keep up loses frames instead of
// blocking ingestion.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*hubClient]struct{}
	closed         bool
	bufferSize     int
	originPatterns []string
	logger         *logrus.Logger
}

// NewHub creates a Hub. originPatterns are host patterns accepted for
// cross-origin websocket upgrades.
func NewHub(bufferSize int, originPatterns []string, logger *logrus.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = constants.DefaultClientBufferSize
	}
	return &Hub{
		clients:        make(map[*hubClient]struct{}),
		bufferSize:     bufferSize,
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// ServeHTTP upgrades the request and streams frames until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept websocket connection")
		return
	}

	client, ok := h.register()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(client)

	// Clients only listen; CloseRead handles control frames and cancels ctx on disconnect.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case frame, ok := <-client.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, constants.WebsocketWriteTimeoutSec*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				h.logger.WithError(err).Debug("Websocket write failed, dropping client")
				return
			}
		}
	}
}

// Notify queues the event for every connected client.
func (h *Hub) Notify(_ context.Context, event string, payload any) error {
	frame, err := json.Marshal(models.Envelope{Event: event, Data: payload})
	if err != nil {
		return apperrors.NewNotifierError("websocket", err)
	}

	h.mu.RLock()
	dropped := 0
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		metrics.AddToCounter("notifier_dropped_total", float64(dropped), map[string]string{"sink": "websocket"}, "Events dropped for slow subscribers")
		h.logger.WithFields(logrus.Fields{
			"sink":    "websocket",
			"event":   event,
			"dropped": dropped,
		}).Warn("Dropped events for slow websocket clients")
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	return nil
}

func (h *Hub) register() (*hubClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	client := &hubClient{send: make(chan []byte, h.bufferSize)}
	h.clients[client] = struct{}{}
	metrics.SetGauge("websocket_clients", float64(len(h.clients)), nil, "Connected websocket clients")
	return client, true
}

func (h *Hub) unregister(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	metrics.SetGauge("websocket_clients", float64(len(h.clients)), nil, "Connected websocket clients")
}
