package models

// -----------------------------------------------------------------------------
// Egress frames pushed to local UI clients over /ws
// -----------------------------------------------------------------------------

type MEgressFrame struct {
	Type     string     `json:"type"` // "snapshot" or "connection"
	Symbol   string     `json:"symbol,omitempty"`
	Date     string     `json:"date,omitempty"`
	Snapshot *MSnapshot `json:"snapshot,omitempty"`
	State    string     `json:"state,omitempty"`
}

// -----------------------------------------------------------------------------
// MSubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}
