package network

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"smile-observer/src/logger"
	"smile-observer/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// WebSocketClient owns the single outbound connection to the quoting backend
// and the connect/disconnect/auto-reconnect state machine around it.
//
// Reconnection is a fixed-interval, single-shot timer that retries forever
// until the connection succeeds or Disconnect is called. There is no backoff
// growth, jitter, or attempt ceiling; the backend is a local service and the
// original client behaved the same way.
// -----------------------------------------------------------------------------

// ConnectionState of the backend link.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// -----------------------------------------------------------------------------

// ErrNotConnected is returned by Send while the link is down. Callers drop
// the message; nothing is queued for later delivery.
var ErrNotConnected = errors.New("websocket client is not connected")

// -----------------------------------------------------------------------------

// FrameHandler receives each inbound text frame, in arrival order, on the
// connection's single reader goroutine.
type FrameHandler func(frame []byte)

// StateHandler receives Connected/Disconnected notifications.
type StateHandler func(state ConnectionState)

// -----------------------------------------------------------------------------

type WebSocketClient struct {
	Config *models.MConfig
	Logger *logger.Logger

	dialer            *websocket.Dialer
	reconnectInterval time.Duration

	onFrame FrameHandler
	onState StateHandler

	mu                 sync.Mutex
	conn               *websocket.Conn
	endpoint           *url.URL
	state              ConnectionState
	explicitDisconnect bool
	wasConnected       bool // Gates the Disconnected notification
	reconnectTimer     *time.Timer
	generation         uint64 // Invalidates stale dial attempts and read loops
}

// -----------------------------------------------------------------------------

func NewWebSocketClient(cfg *models.MConfig, log *logger.Logger) *WebSocketClient {
	return &WebSocketClient{
		Config: cfg,
		Logger: log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.Network.HandshakeTimeout) * time.Second,
		},
		reconnectInterval: time.Duration(cfg.Network.ReconnectSeconds) * time.Second,
		state:             Disconnected,
	}
}

// -----------------------------------------------------------------------------

// SetFrameHandler registers the inbound frame callback. Must be called before
// Connect.
func (c *WebSocketClient) SetFrameHandler(h FrameHandler) {
	c.onFrame = h
}

// SetStateHandler registers the connection-state callback. Must be called
// before Connect.
func (c *WebSocketClient) SetStateHandler(h StateHandler) {
	c.onState = h
}

// -----------------------------------------------------------------------------

// State returns the current connection state.
func (c *WebSocketClient) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the most recently requested backend URL (may be nil before
// the first Connect).
func (c *WebSocketClient) Endpoint() *url.URL {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// -----------------------------------------------------------------------------

// Connect starts (or restarts) the connection process toward endpoint.
// Calling it while already connecting or connected to the same endpoint is a
// logged no-op. A different endpoint aborts the current link and starts over.
func (c *WebSocketClient) Connect(endpoint *url.URL) {
	c.mu.Lock()

	if c.state != Disconnected && c.endpoint != nil && c.endpoint.String() == endpoint.String() {
		c.mu.Unlock()
		c.Logger.Warning("Already connected or connecting to %s, ignoring connect request", endpoint)
		return
	}

	c.explicitDisconnect = false
	c.endpoint = endpoint
	c.cancelReconnectLocked()
	c.generation++
	gen := c.generation

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = Connecting
	c.mu.Unlock()

	c.Logger.Info("Connecting to %s", endpoint)
	go c.dial(gen)
}

// -----------------------------------------------------------------------------

// Disconnect closes the link and suppresses any pending or future reconnect
// attempt until the next Connect call.
func (c *WebSocketClient) Disconnect() {
	c.mu.Lock()
	c.explicitDisconnect = true
	c.cancelReconnectLocked()
	c.generation++

	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnecting"),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}

	c.state = Disconnected
	notify := c.wasConnected
	c.wasConnected = false
	c.mu.Unlock()

	c.Logger.Info("Disconnected from server")
	if notify {
		c.notifyState(Disconnected)
	}
}

// -----------------------------------------------------------------------------

// Send writes one text frame. While not connected the frame is rejected with
// ErrNotConnected; it is never queued.
func (c *WebSocketClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected || c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// -----------------------------------------------------------------------------
// Internal state machine
// -----------------------------------------------------------------------------

func (c *WebSocketClient) dial(gen uint64) {
	c.mu.Lock()
	endpoint := c.endpoint
	c.mu.Unlock()

	conn, _, err := c.dialer.Dial(endpoint.String(), nil)

	c.mu.Lock()
	if gen != c.generation || c.explicitDisconnect {
		// A newer Connect/Disconnect superseded this attempt.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.Logger.Warning("Connection attempt to %s failed: %v", endpoint, err)
		c.handleFailureLocked() // Unlocks
		return
	}

	c.conn = conn
	c.state = Connected
	c.wasConnected = true
	c.cancelReconnectLocked()
	c.mu.Unlock()

	c.Logger.Info("Connected to %s", endpoint)
	c.notifyState(Connected)

	go c.readLoop(conn, gen)
}

// -----------------------------------------------------------------------------

// readLoop delivers inbound frames in arrival order until the transport
// reports an error or close.
func (c *WebSocketClient) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if gen != c.generation {
				c.mu.Unlock()
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.Logger.Warning("Connection lost: %v", err)
			}
			c.conn = nil
			c.handleFailureLocked() // Unlocks
			return
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}

// -----------------------------------------------------------------------------

// handleFailureLocked transitions to Disconnected and schedules a reconnect.
// The caller must hold the mutex; it is released here before callbacks fire.
func (c *WebSocketClient) handleFailureLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = Disconnected

	// Only a link that actually reached Connected produces a Disconnected
	// event; repeated failed attempts stay silent.
	notify := c.wasConnected
	c.wasConnected = false

	if !c.explicitDisconnect {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	if notify {
		c.notifyState(Disconnected)
	}
}

// -----------------------------------------------------------------------------

func (c *WebSocketClient) scheduleReconnectLocked() {
	c.cancelReconnectLocked()
	c.Logger.Info("Scheduling reconnect in %s", c.reconnectInterval)

	c.reconnectTimer = time.AfterFunc(c.reconnectInterval, func() {
		c.mu.Lock()
		if c.explicitDisconnect || c.state != Disconnected {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		c.generation++
		gen := c.generation
		c.mu.Unlock()

		c.Logger.Info("Reconnecting to %s", c.Endpoint())
		c.dial(gen)
	})
}

// -----------------------------------------------------------------------------

func (c *WebSocketClient) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// -----------------------------------------------------------------------------

func (c *WebSocketClient) notifyState(state ConnectionState) {
	if c.onState != nil {
		c.onState(state)
	}
}
