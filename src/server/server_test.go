package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"smile-observer/src/codec"
	"smile-observer/src/ingest"
	"smile-observer/src/logger"
	"smile-observer/src/models"
	"smile-observer/src/network"
	"smile-observer/src/utils"
	"smile-observer/src/watchlist"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeTransport struct {
	connected bool
	sent      [][]byte
}

func (f *fakeTransport) Connect(endpoint *url.URL) { f.connected = true }
func (f *fakeTransport) Disconnect()               { f.connected = false }

func (f *fakeTransport) Send(payload []byte) error {
	if !f.connected {
		return network.ErrNotConnected
	}
	f.sent = append(f.sent, payload)
	return nil
}

// -----------------------------------------------------------------------------

type memoryStore struct {
	items map[string]models.MWatchItem
}

func (m *memoryStore) Initialize() error { return nil }
func (m *memoryStore) Close() error      { return nil }

func (m *memoryStore) SaveSymbol(item models.MWatchItem) error {
	m.items[item.UniqueKey()] = item
	return nil
}

func (m *memoryStore) DeleteSymbol(uniqueKey string) error {
	delete(m.items, uniqueKey)
	return nil
}

func (m *memoryStore) LoadSymbols() ([]models.MWatchItem, error) { return nil, nil }

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

type harness struct {
	server    *WebServer
	transport *fakeTransport
	pipeline  *ingest.Pipeline
	watch     *watchlist.Manager
}

func newHarness(t *testing.T, connected bool) *harness {
	t.Helper()

	cfg := &models.MConfig{
		Name:     "smile-observer",
		Host:     "127.0.0.1",
		Port:     8090,
		LogLevel: "ERROR",
		Network: models.MNetworkConfig{
			WebSocketURL:     "ws://127.0.0.1:8765",
			ReconnectSeconds: 3,
			HandshakeTimeout: 2,
		},
	}
	log := logger.NewLogger("test", logger.ERROR)

	transport := &fakeTransport{connected: connected}
	pipeline := ingest.NewPipeline(transport, log)
	watch := watchlist.NewManager(&memoryStore{items: make(map[string]models.MWatchItem)}, log)
	backend := network.NewWebSocketClient(cfg, log)
	markets := utils.NewMarketScheduler(nil, log)

	return &harness{
		server:    NewWebServer(cfg, log, pipeline, watch, backend, markets),
		transport: transport,
		pipeline:  pipeline,
		watch:     watch,
	}
}

// -----------------------------------------------------------------------------

func (h *harness) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.engine.ServeHTTP(rec, req)
	return rec
}

func (h *harness) ingest(t *testing.T, symbol, csv string) {
	t.Helper()

	compressed, err := codec.Compress([]byte(csv), codec.DefaultLevel)
	require.NoError(t, err)

	frame, err := json.Marshal(map[string]interface{}{
		"type":            "data_stream",
		"symbol":          symbol,
		"model":           "svi",
		"data_compressed": base64.StdEncoding.EncodeToString(compressed),
	})
	require.NoError(t, err)
	h.pipeline.HandleFrame(frame)
}

const sampleCSV = "snap_shot_dates,symbol,strikes,theo_ivs,bid_iv,ask_iv,bid_prices,ask_prices\n" +
	"2024-01-15,AAPL240119C00180000,180.0,0.245,0.24,0.251,3.10,3.25\n"

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, true)

	rec := h.request(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Contains(t, body, "market_open")
	require.Contains(t, body, "backend")
}

// -----------------------------------------------------------------------------

func TestAddSymbolSendsCommand(t *testing.T) {
	h := newHarness(t, true)

	rec := h.request(t, http.MethodPost, "/api/symbols", map[string]interface{}{
		"symbol": "AAPL", "model": "svi", "settings": map[string]interface{}{"k": 1.0},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.transport.sent, 1)

	item, ok := h.watch.Get("AAPL", "svi")
	require.True(t, ok)
	require.Equal(t, models.SymbolActive, item.State)

	// Duplicate add is rejected.
	rec = h.request(t, http.MethodPost, "/api/symbols", map[string]interface{}{
		"symbol": "AAPL", "model": "svi",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

// -----------------------------------------------------------------------------

func TestAddSymbolWhileDisconnected(t *testing.T) {
	h := newHarness(t, false)

	rec := h.request(t, http.MethodPost, "/api/symbols", map[string]interface{}{
		"symbol": "AAPL", "model": "svi",
	})
	// Accepted locally; the watchlist replays it on reconnect.
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, h.transport.sent)

	_, ok := h.watch.Get("AAPL", "svi")
	require.True(t, ok)
}

// -----------------------------------------------------------------------------

func TestSnapshotEndpoint(t *testing.T) {
	h := newHarness(t, true)

	rec := h.request(t, http.MethodGet, "/api/snapshot?symbol=AAPL&date=2024-01-15", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	h.ingest(t, "AAPL", sampleCSV)

	rec = h.request(t, http.MethodGet, "/api/snapshot?symbol=AAPL&date=2024-01-15", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot models.MSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Equal(t, "AAPL", snapshot.Symbol)
	require.Len(t, snapshot.Points, 1)

	// Missing query params
	rec = h.request(t, http.MethodGet, "/api/snapshot?symbol=AAPL", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// -----------------------------------------------------------------------------

func TestDatesEndpoint(t *testing.T) {
	h := newHarness(t, true)
	h.ingest(t, "AAPL", sampleCSV)

	rec := h.request(t, http.MethodGet, "/api/dates?symbol=AAPL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Symbol string   `json:"symbol"`
		Dates  []string `json:"dates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"2024-01-15"}, body.Dates)
}

// -----------------------------------------------------------------------------

func TestRemoveSymbolDropsSnapshots(t *testing.T) {
	h := newHarness(t, true)

	h.request(t, http.MethodPost, "/api/symbols", map[string]interface{}{
		"symbol": "AAPL", "model": "svi",
	})
	h.ingest(t, "AAPL", sampleCSV)
	require.Equal(t, 1, h.pipeline.Store().Len())

	rec := h.request(t, http.MethodDelete, "/api/symbols/AAPL/svi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, h.pipeline.Store().Len())

	rec = h.request(t, http.MethodDelete, "/api/symbols/AAPL/svi", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// -----------------------------------------------------------------------------

func TestPauseResumeEndpoint(t *testing.T) {
	h := newHarness(t, true)
	h.request(t, http.MethodPost, "/api/symbols", map[string]interface{}{
		"symbol": "AAPL", "model": "svi",
	})
	sentBefore := len(h.transport.sent)

	rec := h.request(t, http.MethodPut, "/api/symbols/AAPL/svi/state", map[string]interface{}{
		"state": "paused",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	item, _ := h.watch.Get("AAPL", "svi")
	require.Equal(t, models.SymbolPaused, item.State)
	// Pause is local: nothing goes to the backend.
	require.Len(t, h.transport.sent, sentBefore)

	rec = h.request(t, http.MethodPut, "/api/symbols/AAPL/svi/state", map[string]interface{}{
		"state": "sideways",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.request(t, http.MethodPut, "/api/symbols/TSLA/svi/state", map[string]interface{}{
		"state": "paused",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// -----------------------------------------------------------------------------

func TestUpdateSettingsEndpoint(t *testing.T) {
	h := newHarness(t, true)
	h.request(t, http.MethodPost, "/api/symbols", map[string]interface{}{
		"symbol": "AAPL", "model": "svi",
	})

	rec := h.request(t, http.MethodPut, "/api/symbols/AAPL/svi/settings", map[string]interface{}{
		"settings": map[string]interface{}{"fit_window": 60.0},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.transport.sent, 2)

	item, _ := h.watch.Get("AAPL", "svi")
	require.Equal(t, 60.0, item.Settings["fit_window"])
}

// -----------------------------------------------------------------------------

func TestConnectionEndpoint(t *testing.T) {
	h := newHarness(t, true)

	rec := h.request(t, http.MethodGet, "/api/connection", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State    string          `json:"state"`
		Counters ingest.Counters `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "disconnected", body.State)

	h.ingest(t, "AAPL", sampleCSV)
	rec = h.request(t, http.MethodGet, "/api/connection", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, uint64(1), body.Counters.SnapshotsStored)
}
