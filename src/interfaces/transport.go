package interfaces

import "net/url"

// -----------------------------------------------------------------------------

// ITransport is the backend link contract consumed by the ingestion pipeline.
// Implemented by network.WebSocketClient; tests substitute an in-memory fake.
type ITransport interface {
	Connect(endpoint *url.URL)
	Disconnect()
	Send(payload []byte) error
}
