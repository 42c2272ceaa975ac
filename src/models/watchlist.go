package models

// -----------------------------------------------------------------------------
// Watchlist structures
// -----------------------------------------------------------------------------

// SymbolState mirrors the backend's notion of a tracked symbol: Paused symbols
// stay registered but their snapshots are not requested.
type SymbolState int

const (
	SymbolActive SymbolState = iota
	SymbolPaused
)

func (s SymbolState) String() string {
	if s == SymbolPaused {
		return "paused"
	}
	return "active"
}

// -----------------------------------------------------------------------------

// MWatchItem is one tracked (symbol, model) pair with its model settings.
type MWatchItem struct {
	Symbol   string                 `json:"symbol"`
	Model    string                 `json:"model"`
	State    SymbolState            `json:"state"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// UniqueKey identifies the pair in maps and in the watchlist store.
func (w MWatchItem) UniqueKey() string {
	return w.Symbol + "_" + w.Model
}
