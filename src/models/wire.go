package models

// -----------------------------------------------------------------------------
// Wire protocol structures (JSON over the backend WebSocket)
// -----------------------------------------------------------------------------

// Command kinds understood by the backend.
type CommandKind string

const (
	CommandAdd            CommandKind = "add"
	CommandRemove         CommandKind = "remove"
	CommandUpdateSettings CommandKind = "update"
)

// -----------------------------------------------------------------------------

// MCommandEnvelope is an outbound request to the quoting backend.
// Serialized once, then discarded.
type MCommandEnvelope struct {
	Kind     CommandKind
	Symbol   string
	Model    string
	Settings map[string]interface{}
}

// MCommandRequest is the exact outbound JSON shape.
type MCommandRequest struct {
	Type   string       `json:"type"` // always "symbol"
	Action string       `json:"action"`
	Data   MCommandData `json:"data"`
}

type MCommandData struct {
	SymbolName    string                 `json:"symbol_name"`
	ModelName     string                 `json:"model_name"`
	ModelSettings map[string]interface{} `json:"model_settings,omitempty"`
}

// -----------------------------------------------------------------------------

// MDataFrame is an inbound "data_stream" message. DataCompressed carries the
// base64 text of a zlib-compressed CSV payload.
type MDataFrame struct {
	Symbol         string                 `json:"symbol"`
	Model          string                 `json:"model"`
	Metrics        map[string]interface{} `json:"metrics"`
	DataCompressed string                 `json:"data_compressed"`
}

// -----------------------------------------------------------------------------

// MResponseEnvelope is an inbound "symbol_response" acknowledgement. The
// backend echoes the command's data block back.
type MResponseEnvelope struct {
	Action  string       `json:"action"`
	Success bool         `json:"success"`
	Data    MCommandData `json:"data"`
	Error   string       `json:"error,omitempty"`
}

// Symbol is a convenience accessor for the echoed symbol name.
func (r MResponseEnvelope) Symbol() string {
	return r.Data.SymbolName
}
