package ingest

import (
	"encoding/json"
	"fmt"

	"smile-observer/src/models"
)

// -----------------------------------------------------------------------------
// JSON envelope codec for the backend WebSocket protocol.
//
// Outbound commands all share one shape ("type":"symbol" plus an action).
// Inbound frames are discriminated on their "type" field: "data_stream"
// carries a compressed CSV payload, "symbol_response" acknowledges a command.
// -----------------------------------------------------------------------------

const (
	messageTypeSymbol   = "symbol"
	messageTypeData     = "data_stream"
	messageTypeResponse = "symbol_response"
)

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// MalformedMessageWarning reports a frame that is not valid JSON or lacks the
// fields its type requires. The frame is dropped; the stream continues.
type MalformedMessageWarning struct {
	Message string
	Cause   error
}

func (e *MalformedMessageWarning) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MalformedMessageWarning) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------

// UnhandledMessageWarning reports a syntactically valid frame whose type this
// client does not understand.
type UnhandledMessageWarning struct {
	Type string
}

func (e *UnhandledMessageWarning) Error() string {
	return fmt.Sprintf("unhandled message type '%s'", e.Type)
}

// -----------------------------------------------------------------------------
// Inbound union
// -----------------------------------------------------------------------------

type InboundKind int

const (
	InboundDataFrame InboundKind = iota
	InboundResponse
)

// MInbound is the decoded form of one inbound frame. Exactly one of the two
// payload pointers is set, according to Kind.
type MInbound struct {
	Kind     InboundKind
	Data     *models.MDataFrame
	Response *models.MResponseEnvelope
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

// EncodeCommand serializes an outbound symbol command. The envelope is built
// fresh on every call; nothing about it is cached or retained.
func EncodeCommand(cmd models.MCommandEnvelope) ([]byte, error) {
	switch cmd.Kind {
	case models.CommandAdd, models.CommandRemove, models.CommandUpdateSettings:
	default:
		return nil, fmt.Errorf("unknown command kind '%s'", cmd.Kind)
	}
	if cmd.Symbol == "" {
		return nil, fmt.Errorf("command '%s' requires a symbol", cmd.Kind)
	}

	request := models.MCommandRequest{
		Type:   messageTypeSymbol,
		Action: string(cmd.Kind),
		Data: models.MCommandData{
			SymbolName:    cmd.Symbol,
			ModelName:     cmd.Model,
			ModelSettings: cmd.Settings,
		},
	}
	return json.Marshal(request)
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

// typeProbe extracts only the discriminator before the full decode.
type typeProbe struct {
	Type string `json:"type"`
}

// DecodeInbound classifies and decodes one inbound frame. A frame that is not
// JSON, or whose required fields are missing, yields a
// *MalformedMessageWarning; an unknown type yields an
// *UnhandledMessageWarning. Both are soft: the caller logs and moves on.
func DecodeInbound(frame []byte) (*MInbound, error) {
	var probe typeProbe
	if err := json.Unmarshal(frame, &probe); err != nil {
		return nil, &MalformedMessageWarning{Message: "frame is not valid JSON", Cause: err}
	}

	switch probe.Type {
	case messageTypeData:
		var data models.MDataFrame
		if err := json.Unmarshal(frame, &data); err != nil {
			return nil, &MalformedMessageWarning{Message: "invalid data_stream frame", Cause: err}
		}
		if data.Symbol == "" {
			return nil, &MalformedMessageWarning{Message: "data_stream frame has no symbol"}
		}
		return &MInbound{Kind: InboundDataFrame, Data: &data}, nil

	case messageTypeResponse:
		var resp models.MResponseEnvelope
		if err := json.Unmarshal(frame, &resp); err != nil {
			return nil, &MalformedMessageWarning{Message: "invalid symbol_response frame", Cause: err}
		}
		if resp.Action == "" {
			return nil, &MalformedMessageWarning{Message: "symbol_response frame has no action"}
		}
		return &MInbound{Kind: InboundResponse, Response: &resp}, nil
	}

	return nil, &UnhandledMessageWarning{Type: probe.Type}
}
