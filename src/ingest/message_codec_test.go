package ingest

import (
	"encoding/json"
	"testing"

	"smile-observer/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func TestEncodeCommandShapes(t *testing.T) {
	payload, err := EncodeCommand(models.MCommandEnvelope{
		Kind:     models.CommandAdd,
		Symbol:   "AAPL",
		Model:    "svi",
		Settings: map[string]interface{}{"fit_window": 30.0},
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "symbol", decoded["type"])
	require.Equal(t, "add", decoded["action"])

	data := decoded["data"].(map[string]interface{})
	require.Equal(t, "AAPL", data["symbol_name"])
	require.Equal(t, "svi", data["model_name"])
	require.Equal(t, 30.0, data["model_settings"].(map[string]interface{})["fit_window"])
}

// -----------------------------------------------------------------------------

func TestEncodeCommandOmitsEmptySettings(t *testing.T) {
	payload, err := EncodeCommand(models.MCommandEnvelope{
		Kind:   models.CommandRemove,
		Symbol: "AAPL",
		Model:  "svi",
	})
	require.NoError(t, err)
	require.NotContains(t, string(payload), "model_settings")
}

// -----------------------------------------------------------------------------

func TestEncodeCommandRejectsInvalid(t *testing.T) {
	_, err := EncodeCommand(models.MCommandEnvelope{Kind: "bogus", Symbol: "AAPL"})
	require.Error(t, err)

	_, err = EncodeCommand(models.MCommandEnvelope{Kind: models.CommandAdd})
	require.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestDecodeInboundDataStream(t *testing.T) {
	frame := []byte(`{"type":"data_stream","symbol":"AAPL","model":"svi","metrics":{"rmse":0.002},"data_compressed":"eJwDAA=="}`)

	inbound, err := DecodeInbound(frame)
	require.NoError(t, err)
	require.Equal(t, InboundDataFrame, inbound.Kind)
	require.NotNil(t, inbound.Data)
	require.Equal(t, "AAPL", inbound.Data.Symbol)
	require.Equal(t, "eJwDAA==", inbound.Data.DataCompressed)
	require.Equal(t, 0.002, inbound.Data.Metrics["rmse"])
}

// -----------------------------------------------------------------------------

func TestDecodeInboundSymbolResponse(t *testing.T) {
	frame := []byte(`{"type":"symbol_response","action":"add","success":false,"data":{"symbol_name":"AAPL","model_name":"svi"},"error":"unknown model"}`)

	inbound, err := DecodeInbound(frame)
	require.NoError(t, err)
	require.Equal(t, InboundResponse, inbound.Kind)
	require.NotNil(t, inbound.Response)
	require.False(t, inbound.Response.Success)
	require.Equal(t, "AAPL", inbound.Response.Symbol())
	require.Equal(t, "svi", inbound.Response.Data.ModelName)
	require.Equal(t, "unknown model", inbound.Response.Error)
}

// -----------------------------------------------------------------------------

func TestDecodeInboundMalformed(t *testing.T) {
	var malformed *MalformedMessageWarning

	_, err := DecodeInbound([]byte("{not json"))
	require.ErrorAs(t, err, &malformed)

	// data_stream without a symbol
	_, err = DecodeInbound([]byte(`{"type":"data_stream","data_compressed":"eJw="}`))
	require.ErrorAs(t, err, &malformed)
}

// -----------------------------------------------------------------------------

func TestDecodeInboundUnhandledType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"heartbeat"}`))

	var unhandled *UnhandledMessageWarning
	require.ErrorAs(t, err, &unhandled)
	require.Equal(t, "heartbeat", unhandled.Type)
}
