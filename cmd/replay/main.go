package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"smile-observer/src/codec"
	"smile-observer/src/logger"
	"smile-observer/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Replay backend: a stand-in for the quoting service, useful for developing
// against a machine where the real backend is not running. It answers symbol
// commands and streams the same CSV payload for every added symbol at a fixed
// interval, compressed and base64-encoded exactly like the real service.
// -----------------------------------------------------------------------------

var sampleCSV = []byte(`snap_shot_dates,symbol,option_types,strikes,theo_ivs,mid_iv,bid_iv,ask_iv,bid_prices,ask_prices,log_moneyness
2024-01-15,AAPL240119C00180000,c,180.0,0.2450,0.2455,0.2400,0.2510,3.10,3.25,-0.0213
2024-01-15,AAPL240119C00185000,c,185.0,0.2310,0.2312,0.2270,0.2355,1.42,1.51,0.0061
2024-01-15,AAPL240119P00175000,p,175.0,0.2580,0.2579,0.2530,0.2628,1.05,1.12,-0.0495
2024-01-15,AAPL240119P00180000,p,180.0,0.2465,0.2460,0.2410,0.2511,2.18,2.30,-0.0213
`)

// -----------------------------------------------------------------------------

type replayServer struct {
	Logger   *logger.Logger
	payload  []byte // Precompressed CSV
	interval time.Duration
	upgrader websocket.Upgrader
}

// -----------------------------------------------------------------------------

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	streams map[string]chan struct{} // symbol -> stop channel
}

// -----------------------------------------------------------------------------

func main() {

	addr := flag.String("addr", "127.0.0.1:8765", "listen address")
	csvPath := flag.String("csv", "", "CSV file to replay (builtin sample when empty)")
	intervalSec := flag.Int("interval", 2, "seconds between data frames")
	level := flag.Int("level", 6, "zlib compression level")
	flag.Parse()

	appLogger := logger.NewLogger("replay", logger.DEBUG)

	csvData := sampleCSV
	if *csvPath != "" {
		data, err := os.ReadFile(*csvPath)
		if err != nil {
			fmt.Printf("Error reading CSV file: %v\n", err)
			os.Exit(1)
		}
		csvData = data
	}

	compressed, err := codec.Compress(csvData, *level)
	if err != nil {
		appLogger.Critical("Failed to compress payload: %v", err)
	}

	srv := &replayServer{
		Logger:   appLogger,
		payload:  compressed,
		interval: time.Duration(*intervalSec) * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	http.HandleFunc("/", srv.handleConnection)
	appLogger.Info("Replay backend listening on %s (%d bytes compressed payload)",
		*addr, len(compressed))

	if err := http.ListenAndServe(*addr, nil); err != nil {
		appLogger.Critical("Server failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (s *replayServer) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warning("Upgrade failed: %v", err)
		return
	}

	s.Logger.Info("Client connected from %s", conn.RemoteAddr())
	sess := &session{conn: conn, streams: make(map[string]chan struct{})}
	defer sess.stopAll()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			s.Logger.Info("Client disconnected: %v", err)
			return
		}

		var cmd models.MCommandRequest
		if err := json.Unmarshal(frame, &cmd); err != nil || cmd.Type != "symbol" {
			s.Logger.Warning("Ignoring unrecognized frame: %s", frame)
			continue
		}

		s.handleCommand(sess, cmd)
	}
}

// -----------------------------------------------------------------------------

func (s *replayServer) handleCommand(sess *session, cmd models.MCommandRequest) {
	symbol := cmd.Data.SymbolName
	model := cmd.Data.ModelName

	switch cmd.Action {
	case "add":
		sess.mu.Lock()
		if _, exists := sess.streams[symbol]; exists {
			sess.mu.Unlock()
			s.respond(sess, cmd, false, "symbol already streaming")
			return
		}
		stop := make(chan struct{})
		sess.streams[symbol] = stop
		sess.mu.Unlock()

		s.respond(sess, cmd, true, "")
		go s.stream(sess, symbol, model, stop)

	case "remove":
		sess.mu.Lock()
		stop, exists := sess.streams[symbol]
		if exists {
			close(stop)
			delete(sess.streams, symbol)
		}
		sess.mu.Unlock()

		s.respond(sess, cmd, exists, boolMessage(exists, "", "symbol not streaming"))

	case "update":
		// Settings are accepted and ignored; the replay payload is static.
		s.respond(sess, cmd, true, "")

	default:
		s.respond(sess, cmd, false, fmt.Sprintf("unknown action '%s'", cmd.Action))
	}
}

// -----------------------------------------------------------------------------

// stream pushes the canned payload for one symbol until stopped.
func (s *replayServer) stream(sess *session, symbol, model string, stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frame := map[string]interface{}{
		"type":            "data_stream",
		"symbol":          symbol,
		"model":           model,
		"metrics":         map[string]interface{}{"source": "replay"},
		"data_compressed": base64.StdEncoding.EncodeToString(s.payload),
	}

	for {
		select {
		case <-ticker.C:
			if err := sess.writeJSON(frame); err != nil {
				s.Logger.Info("Stream for %s ended: %v", symbol, err)
				return
			}
			s.Logger.Debug("Sent data_stream for %s", symbol)
		case <-stop:
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *replayServer) respond(sess *session, cmd models.MCommandRequest, ok bool, errMsg string) {
	resp := map[string]interface{}{
		"type":    "symbol_response",
		"action":  cmd.Action,
		"success": ok,
		"data": map[string]interface{}{
			"symbol_name": cmd.Data.SymbolName,
			"model_name":  cmd.Data.ModelName,
		},
	}
	if errMsg != "" {
		resp["error"] = errMsg
	}

	if err := sess.writeJSON(resp); err != nil {
		s.Logger.Warning("Failed to send response: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (sess *session) writeJSON(v interface{}) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.conn.WriteJSON(v)
}

// -----------------------------------------------------------------------------

func (sess *session) stopAll() {
	sess.mu.Lock()
	for symbol, stop := range sess.streams {
		close(stop)
		delete(sess.streams, symbol)
	}
	sess.mu.Unlock()
	sess.conn.Close()
}

// -----------------------------------------------------------------------------

func boolMessage(ok bool, whenTrue, whenFalse string) string {
	if ok {
		return whenTrue
	}
	return whenFalse
}
