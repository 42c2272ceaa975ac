package server

import (
	"encoding/json"
	"net/http"

	"smile-observer/src/models"
	"smile-observer/src/network"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *WebServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.stateMutex.Lock()
			s.clients[client] = struct{}{}
			state := s.connState
			s.stateMutex.Unlock()

			// Send current backend state on connect
			client.send <- &models.MEgressFrame{Type: "connection", State: state.String()}

		case client := <-s.unregister:
			s.stateMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.stateMutex.Unlock()

		case frame := <-s.broadcast:
			s.stateMutex.Lock()
			for client := range s.clients {
				if !client.wants(frame) {
					continue
				}
				select {
				case client.send <- frame:
					// Frame queued successfully
				default:
					// Client too slow, disconnect to prevent Hub blocking
					delete(s.clients, client)
					close(client.send)
				}
			}
			s.stateMutex.Unlock()
		}
	}
}

// -----------------------------------------------------------------------------
// Pipeline event bridges
// -----------------------------------------------------------------------------

// BroadcastSnapshot pushes a freshly stored smile to every subscribed client.
// Registered as the pipeline's snapshot handler.
func (s *WebServer) BroadcastSnapshot(snapshot *models.MSnapshot) {
	s.broadcast <- &models.MEgressFrame{
		Type:     "snapshot",
		Symbol:   snapshot.Symbol,
		Date:     snapshot.Date,
		Snapshot: snapshot,
	}
}

// -----------------------------------------------------------------------------

// BroadcastConnectionState mirrors backend link transitions to UI clients.
// Registered as the pipeline's connection handler.
func (s *WebServer) BroadcastConnectionState(state network.ConnectionState) {
	s.stateMutex.Lock()
	s.connState = state
	s.stateMutex.Unlock()

	s.broadcast <- &models.MEgressFrame{Type: "connection", State: state.String()}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *WebServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the Hub loop
		send: make(chan *models.MEgressFrame, 256),
	}

	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *WebServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	// An empty symbol list subscribes to everything.
	client.setFilter(cmd.Symbols)
	s.Logger.Debug("Client subscribed to %d symbol(s)", len(cmd.Symbols))
}
