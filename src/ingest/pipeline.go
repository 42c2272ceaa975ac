package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"smile-observer/src/codec"
	"smile-observer/src/interfaces"
	"smile-observer/src/logger"
	"smile-observer/src/models"
	"smile-observer/src/network"
	"smile-observer/src/parser"
)

// -----------------------------------------------------------------------------
// Pipeline wires the transport, the compression codec, the CSV parser and the
// snapshot store together. Inbound frames flow through it on the transport's
// reader goroutine; a bad payload is logged, counted and dropped without
// disturbing the stream.
// -----------------------------------------------------------------------------

// NotConnectedWarning reports a command rejected because the backend link is
// down. The command is discarded, never queued.
type NotConnectedWarning struct {
	Kind   models.CommandKind
	Symbol string
}

func (e *NotConnectedWarning) Error() string {
	return fmt.Sprintf("cannot send '%s' for %s: not connected", e.Kind, e.Symbol)
}

// -----------------------------------------------------------------------------

// SnapshotHandler fires after a snapshot has been stored.
type SnapshotHandler func(snapshot *models.MSnapshot)

// ResponseHandler fires for backend command acknowledgements; ok mirrors the
// response's success flag.
type ResponseHandler func(resp models.MResponseEnvelope, ok bool)

// ConnectionHandler forwards transport state changes to the outer layers.
type ConnectionHandler func(state network.ConnectionState)

// -----------------------------------------------------------------------------

// Counters exposes pipeline diagnostics. All fields are cumulative since
// startup.
type Counters struct {
	FramesReceived    uint64
	SnapshotsStored   uint64
	CommandsSent      uint64
	CommandsRejected  uint64
	MalformedMessages uint64
	UnhandledMessages uint64
	DecodeFailures    uint64
	TruncatedPayloads uint64
	ParseFailures     uint64
	EmptyPayloads     uint64
}

// -----------------------------------------------------------------------------

type Pipeline struct {
	Logger *logger.Logger

	transport interfaces.ITransport
	parser    *parser.SnapshotParser
	store     *SnapshotStore

	onSnapshot   SnapshotHandler
	onResponse   ResponseHandler
	onConnection ConnectionHandler

	mu       sync.Mutex
	counters Counters
}

// -----------------------------------------------------------------------------

func NewPipeline(transport interfaces.ITransport, log *logger.Logger) *Pipeline {
	return &Pipeline{
		Logger:    log,
		transport: transport,
		parser:    parser.NewSnapshotParser(log.Named("Parser")),
		store:     NewSnapshotStore(),
	}
}

// -----------------------------------------------------------------------------

// Store exposes the snapshot store for read access by the egress layer.
func (p *Pipeline) Store() *SnapshotStore {
	return p.store
}

// -----------------------------------------------------------------------------

func (p *Pipeline) SetSnapshotHandler(h SnapshotHandler) {
	p.onSnapshot = h
}

func (p *Pipeline) SetResponseHandler(h ResponseHandler) {
	p.onResponse = h
}

func (p *Pipeline) SetConnectionHandler(h ConnectionHandler) {
	p.onConnection = h
}

// -----------------------------------------------------------------------------

// Counters returns a copy of the diagnostic counters.
func (p *Pipeline) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// -----------------------------------------------------------------------------
// Outbound commands
// -----------------------------------------------------------------------------

// SendAddSymbol asks the backend to start streaming a symbol.
func (p *Pipeline) SendAddSymbol(symbol, model string, settings map[string]interface{}) error {
	return p.send(models.MCommandEnvelope{
		Kind: models.CommandAdd, Symbol: symbol, Model: model, Settings: settings,
	})
}

// SendRemoveSymbol asks the backend to stop streaming a symbol.
func (p *Pipeline) SendRemoveSymbol(symbol, model string) error {
	return p.send(models.MCommandEnvelope{
		Kind: models.CommandRemove, Symbol: symbol, Model: model,
	})
}

// SendUpdateSettings pushes new model settings for an already tracked symbol.
func (p *Pipeline) SendUpdateSettings(symbol, model string, settings map[string]interface{}) error {
	return p.send(models.MCommandEnvelope{
		Kind: models.CommandUpdateSettings, Symbol: symbol, Model: model, Settings: settings,
	})
}

// -----------------------------------------------------------------------------

func (p *Pipeline) send(cmd models.MCommandEnvelope) error {
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}

	if err := p.transport.Send(payload); err != nil {
		if errors.Is(err, network.ErrNotConnected) {
			p.bump(func(c *Counters) { c.CommandsRejected++ })
			warn := &NotConnectedWarning{Kind: cmd.Kind, Symbol: cmd.Symbol}
			p.Logger.Warning("%v", warn)
			return warn
		}
		return err
	}

	p.bump(func(c *Counters) { c.CommandsSent++ })
	p.Logger.Debug("Sent '%s' command for %s (%s)", cmd.Kind, cmd.Symbol, cmd.Model)
	return nil
}

// -----------------------------------------------------------------------------
// Inbound frames
// -----------------------------------------------------------------------------

// HandleFrame processes one inbound frame. Registered as the transport's
// frame handler; frames arrive here in order, one at a time.
func (p *Pipeline) HandleFrame(frame []byte) {
	p.bump(func(c *Counters) { c.FramesReceived++ })

	inbound, err := DecodeInbound(frame)
	if err != nil {
		var malformed *MalformedMessageWarning
		var unhandled *UnhandledMessageWarning
		switch {
		case errors.As(err, &malformed):
			p.bump(func(c *Counters) { c.MalformedMessages++ })
			p.Logger.Warning("Dropping frame: %v", err)
		case errors.As(err, &unhandled):
			p.bump(func(c *Counters) { c.UnhandledMessages++ })
			p.Logger.Warning("Dropping frame: %v", err)
		default:
			p.Logger.Error("Frame decode failed: %v", err)
		}
		return
	}

	switch inbound.Kind {
	case InboundDataFrame:
		p.handleDataFrame(inbound.Data)
	case InboundResponse:
		p.handleResponse(inbound.Response)
	}
}

// -----------------------------------------------------------------------------

func (p *Pipeline) handleDataFrame(frame *models.MDataFrame) {
	if frame.DataCompressed == "" {
		// Heartbeat-style frame without payload; nothing to do.
		p.bump(func(c *Counters) { c.EmptyPayloads++ })
		p.Logger.Debug("data_stream for %s carried no payload", frame.Symbol)
		return
	}

	compressed, err := base64.StdEncoding.DecodeString(frame.DataCompressed)
	if err != nil {
		p.bump(func(c *Counters) { c.MalformedMessages++ })
		p.Logger.Warning("Dropping data_stream for %s: invalid base64: %v", frame.Symbol, err)
		return
	}

	csv, err := codec.Decompress(compressed)
	if err != nil {
		if codec.IsTruncated(err) {
			// Soft failure: continue with the bytes we did decode.
			p.bump(func(c *Counters) { c.TruncatedPayloads++ })
			p.Logger.Warning("Payload for %s: %v", frame.Symbol, err)
		} else {
			p.bump(func(c *Counters) { c.DecodeFailures++ })
			p.Logger.Warning("Dropping data_stream for %s: %v", frame.Symbol, err)
			return
		}
	}

	snapshot, stats, err := p.parser.Parse(frame.Symbol, csv)
	if err != nil {
		p.bump(func(c *Counters) { c.ParseFailures++ })
		p.Logger.Warning("Dropping payload for %s: %v", frame.Symbol, err)
		return
	}

	p.store.Put(snapshot)
	p.bump(func(c *Counters) { c.SnapshotsStored++ })
	p.Logger.Debug("Stored snapshot %s/%s (%d points, %d rows skipped)",
		snapshot.Symbol, snapshot.Date, len(snapshot.Points), stats.RowsSkipped)

	if p.onSnapshot != nil {
		p.onSnapshot(snapshot)
	}
}

// -----------------------------------------------------------------------------

func (p *Pipeline) handleResponse(resp *models.MResponseEnvelope) {
	if resp.Success {
		p.Logger.Info("Backend acknowledged '%s' for %s", resp.Action, resp.Symbol())
	} else {
		p.Logger.Warning("Backend rejected '%s' for %s: %s", resp.Action, resp.Symbol(), resp.Error)
	}

	if p.onResponse != nil {
		p.onResponse(*resp, resp.Success)
	}
}

// -----------------------------------------------------------------------------

// HandleConnectionState forwards transport state changes. Registered as the
// transport's state handler.
func (p *Pipeline) HandleConnectionState(state network.ConnectionState) {
	p.Logger.Info("Backend connection is now %s", state)
	if p.onConnection != nil {
		p.onConnection(state)
	}
}

// -----------------------------------------------------------------------------

func (p *Pipeline) bump(f func(c *Counters)) {
	p.mu.Lock()
	f(&p.counters)
	p.mu.Unlock()
}
