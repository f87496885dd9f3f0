package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/internal/events"
	"github.com/pennywise/observability/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Admin routes are already session-authenticated.
		return true
	},
}

// ThrottleSource provides the current throttle windows
type ThrottleSource interface {
	Snapshot() []alert.CategorySnapshot
}

// DashboardEvent represents a WebSocket message sent to dashboard clients
type DashboardEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan DashboardEvent
}

// DashboardWebSocket streams live events from the event bus to connected
// operator dashboards. Each connection has exactly one writer goroutine.
type DashboardWebSocket struct {
	throttle      ThrottleSource
	statsInterval time.Duration

	clients      map[*wsClient]bool
	clientsMutex sync.RWMutex
	broadcast    chan DashboardEvent
	register     chan *wsClient
	unregister   chan *wsClient
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewDashboardWebSocket creates a new dashboard WebSocket manager
func NewDashboardWebSocket(throttle ThrottleSource) *DashboardWebSocket {
	return &DashboardWebSocket{
		throttle:      throttle,
		statsInterval: 5 * time.Second,
		clients:       make(map[*wsClient]bool),
		broadcast:     make(chan DashboardEvent, 256),
		register:      make(chan *wsClient),
		unregister:    make(chan *wsClient),
		shutdownChan:  make(chan struct{}),
	}
}

// Attach forwards every bus event to connected clients.
func (ws *DashboardWebSocket) Attach(bus *events.EventBus) {
	bus.SubscribeAll(func(e events.Event) {
		ws.PublishEvent(string(e.Type), e.Data)
	})
}

// Run starts the WebSocket manager (run in goroutine)
func (ws *DashboardWebSocket) Run() {
	logger.Info("DashboardWebSocket: Starting WebSocket manager", nil)

	statsTicker := time.NewTicker(ws.statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case client := <-ws.register:
			ws.clientsMutex.Lock()
			ws.clients[client] = true
			total := len(ws.clients)
			ws.clientsMutex.Unlock()

			logger.Info("DashboardWebSocket: Client connected", map[string]interface{}{
				"total_clients": total,
			})

			// Send initial state to new client
			ws.deliver(client, ws.throttleEvent())

		case client := <-ws.unregister:
			ws.remove(client)

		case event := <-ws.broadcast:
			ws.clientsMutex.RLock()
			for client := range ws.clients {
				ws.deliver(client, event)
			}
			ws.clientsMutex.RUnlock()

		case <-statsTicker.C:
			ws.clientsMutex.RLock()
			idle := len(ws.clients) == 0
			ws.clientsMutex.RUnlock()
			if !idle {
				ws.PublishEvent("throttle.snapshot", ws.throttle.Snapshot())
			}

		case <-ws.shutdownChan:
			logger.Info("DashboardWebSocket: Shutting down", nil)
			ws.clientsMutex.Lock()
			for client := range ws.clients {
				close(client.send)
				delete(ws.clients, client)
			}
			ws.clientsMutex.Unlock()
			return
		}
	}
}

// deliver queues event for client without blocking the manager. A client
// that cannot keep up is dropped.
func (ws *DashboardWebSocket) deliver(client *wsClient, event DashboardEvent) {
	select {
	case client.send <- event:
	default:
		go func() {
			select {
			case ws.unregister <- client:
			case <-ws.shutdownChan:
			}
		}()
	}
}

func (ws *DashboardWebSocket) remove(client *wsClient) {
	ws.clientsMutex.Lock()
	defer ws.clientsMutex.Unlock()
	if _, ok := ws.clients[client]; ok {
		delete(ws.clients, client)
		close(client.send)
		logger.Info("DashboardWebSocket: Client disconnected", map[string]interface{}{
			"total_clients": len(ws.clients),
		})
	}
}

func (ws *DashboardWebSocket) throttleEvent() DashboardEvent {
	return DashboardEvent{
		Type:      "throttle.snapshot",
		Timestamp: time.Now(),
		Data:      ws.throttle.Snapshot(),
	}
}

// HandleConnection handles WebSocket upgrade and client connection
// GET /admin/dashboard/stream
func (ws *DashboardWebSocket) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Info("DashboardWebSocket: Failed to upgrade connection", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := &wsClient{conn: conn, send: make(chan DashboardEvent, wsSendBuffer)}
	select {
	case ws.register <- client:
	case <-ws.shutdownChan:
		conn.Close()
		return
	}

	go ws.writePump(client)
	go ws.readPump(client)
}

// readPump consumes client frames so pongs and close frames are handled
func (ws *DashboardWebSocket) readPump(client *wsClient) {
	defer func() {
		select {
		case ws.unregister <- client:
		case <-ws.shutdownChan:
		}
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Info("DashboardWebSocket: Unexpected close error", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}
	}
}

// writePump is the only goroutine writing to the connection
func (ws *DashboardWebSocket) writePump(client *wsClient) {
	pingTicker := time.NewTicker(wsPingPeriod)
	defer func() {
		pingTicker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				logger.Info("DashboardWebSocket: Failed to send message", map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
		case <-pingTicker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PublishEvent publishes an event to all connected clients
func (ws *DashboardWebSocket) PublishEvent(eventType string, data interface{}) {
	event := DashboardEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Non-blocking send
	select {
	case ws.broadcast <- event:
	default:
		logger.Warn("DashboardWebSocket: Broadcast channel full, dropping event", map[string]interface{}{
			"event_type": eventType,
		})
	}
}

// ClientCount returns the number of connected dashboards
func (ws *DashboardWebSocket) ClientCount() int {
	ws.clientsMutex.RLock()
	defer ws.clientsMutex.RUnlock()
	return len(ws.clients)
}

// Shutdown gracefully shuts down the WebSocket manager
func (ws *DashboardWebSocket) Shutdown() {
	ws.shutdownOnce.Do(func() {
		close(ws.shutdownChan)
	})
}
