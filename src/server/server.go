package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"smile-observer/src/config"
	"smile-observer/src/ingest"
	"smile-observer/src/logger"
	"smile-observer/src/models"
	"smile-observer/src/network"
	"smile-observer/src/utils"
	"smile-observer/src/watchlist"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// WebServer
//
// Local REST + WebSocket surface for UI clients. REST drives the watchlist
// (add, remove, pause, resume, settings) and reads snapshots; the /ws hub
// pushes snapshot and connection updates as they happen.
// -----------------------------------------------------------------------------

type WebServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine

	pipeline *ingest.Pipeline
	watch    *watchlist.Manager
	backend  *network.WebSocketClient
	markets  *utils.MarketScheduler

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MEgressFrame // Strongly typed and buffered queue
	register   chan *Client
	unregister chan *Client

	stateMutex sync.RWMutex
	connState  network.ConnectionState
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewWebServer(cfg *models.MConfig, log *logger.Logger, pipeline *ingest.Pipeline,
	watch *watchlist.Manager, backend *network.WebSocketClient, markets *utils.MarketScheduler) *WebServer {

	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &WebServer{
		Config:   cfg,
		Logger:   log,
		engine:   gin.Default(),
		pipeline: pipeline,
		watch:    watch,
		backend:  backend,
		markets:  markets,
		clients:  make(map[*Client]struct{}),
		// Buffered channel so a burst of snapshots never blocks the pipeline
		broadcast:  make(chan *models.MEgressFrame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *WebServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/connection", s.getConnection)
	s.engine.POST("/api/connection/connect", s.connectBackend)
	s.engine.POST("/api/connection/disconnect", s.disconnectBackend)
	s.engine.GET("/api/symbols", s.getSymbols)
	s.engine.GET("/api/snapshot", s.getSnapshot)
	s.engine.GET("/api/dates", s.getDates)

	s.engine.POST("/api/symbols", s.addSymbol)
	s.engine.DELETE("/api/symbols/:symbol/:model", s.removeSymbol)
	s.engine.PUT("/api/symbols/:symbol/:model/state", s.setSymbolState)
	s.engine.PUT("/api/symbols/:symbol/:model/settings", s.updateSettings)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *WebServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

func (s *WebServer) Stop() error {
	close(s.broadcast)
	close(s.register)
	close(s.unregister)
	return nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *WebServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	backendState := s.connState
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": connections,
		"backend":     backendState.String(),
		"market_open": s.markets.AnyMarketOpen(),
		"snapshots":   s.pipeline.Store().Len(),
	})
}

// -----------------------------------------------------------------------------

func (s *WebServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":              s.Config.Name,
		"websocket_url":     s.Config.Network.WebSocketURL,
		"reconnect_seconds": s.Config.Network.ReconnectSeconds,
	})
}

// -----------------------------------------------------------------------------

func (s *WebServer) getConnection(c *gin.Context) {
	s.stateMutex.RLock()
	backendState := s.connState
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"state":    backendState.String(),
		"counters": s.pipeline.Counters(),
	})
}

// -----------------------------------------------------------------------------

// connectBackend dials the configured backend. The optional "url" field
// overrides the configured endpoint for this session.
func (s *WebServer) connectBackend(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	// Body is optional; ignore EOF-style bind failures.
	_ = c.ShouldBindJSON(&req)

	raw := req.URL
	if raw == "" {
		raw = s.Config.Network.WebSocketURL
	}

	endpoint, err := config.ParseEndpoint(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.backend.Connect(endpoint)
	c.JSON(http.StatusOK, gin.H{"status": "connecting", "endpoint": endpoint.String()})
}

// -----------------------------------------------------------------------------

func (s *WebServer) disconnectBackend(c *gin.Context) {
	s.backend.Disconnect()
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// -----------------------------------------------------------------------------

func (s *WebServer) getSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"watchlist": s.watch.Items(),
		"stored":    s.pipeline.Store().Symbols(),
	})
}

// -----------------------------------------------------------------------------

func (s *WebServer) getSnapshot(c *gin.Context) {
	symbol := c.Query("symbol")
	date := c.Query("date")
	if symbol == "" || date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and date query parameters are required"})
		return
	}

	snapshot, ok := s.pipeline.Store().Get(symbol, date)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no snapshot for %s/%s", symbol, date)})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// -----------------------------------------------------------------------------

func (s *WebServer) getDates(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query parameter is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "dates": s.pipeline.Store().Dates(symbol)})
}

// -----------------------------------------------------------------------------

type addSymbolRequest struct {
	Symbol   string                 `json:"symbol" binding:"required"`
	Model    string                 `json:"model" binding:"required"`
	Settings map[string]interface{} `json:"settings"`
}

func (s *WebServer) addSymbol(c *gin.Context) {
	var req addSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.watch.Add(req.Symbol, req.Model, req.Settings) {
		c.JSON(http.StatusConflict, gin.H{"error": "symbol already tracked"})
		return
	}

	if err := s.pipeline.SendAddSymbol(req.Symbol, req.Model, req.Settings); err != nil {
		// Watchlist keeps the entry; it will be replayed on reconnect.
		c.JSON(http.StatusAccepted, gin.H{"status": "queued_locally", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// -----------------------------------------------------------------------------

func (s *WebServer) removeSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	model := c.Param("model")

	if !s.watch.Remove(symbol, model) {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked"})
		return
	}
	s.pipeline.Store().RemoveSymbol(symbol)

	if err := s.pipeline.SendRemoveSymbol(symbol, model); err != nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "removed_locally", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// -----------------------------------------------------------------------------

type setStateRequest struct {
	State string `json:"state" binding:"required"` // "active" or "paused"
}

// setSymbolState pauses or resumes a symbol. This is a local-only state flip;
// the backend keeps streaming and paused data is simply not requested by the
// UI layers.
func (s *WebServer) setSymbolState(c *gin.Context) {
	symbol := c.Param("symbol")
	model := c.Param("model")

	var req setStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var state models.SymbolState
	switch req.State {
	case "active":
		state = models.SymbolActive
	case "paused":
		state = models.SymbolPaused
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be 'active' or 'paused'"})
		return
	}

	if !s.watch.SetState(symbol, model, state) {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked or already in requested state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": state.String()})
}

// -----------------------------------------------------------------------------

type updateSettingsRequest struct {
	Settings map[string]interface{} `json:"settings" binding:"required"`
}

func (s *WebServer) updateSettings(c *gin.Context) {
	symbol := c.Param("symbol")
	model := c.Param("model")

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.watch.UpdateSettings(symbol, model, req.Settings) {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked"})
		return
	}

	if err := s.pipeline.SendUpdateSettings(symbol, model, req.Settings); err != nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "saved_locally", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}
