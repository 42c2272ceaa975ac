package models

// -----------------------------------------------------------------------------
// Volatility smile data structures
// -----------------------------------------------------------------------------

// MOptionPoint holds one strike's quoted values within a snapshot.
// Optional fields (MidIv, LogMoneyness) are NaN when absent from the payload.
type MOptionPoint struct {
	OptionSymbol string  `json:"option_symbol"` // e.g. "AAPL240119C00100000"
	OptionType   string  `json:"option_type"`   // "c"/"p", "N/A" when column missing
	Strike       float64 `json:"strike"`
	TheoIv       float64 `json:"theo_iv"`
	MidIv        float64 `json:"mid_iv"`
	BidIv        float64 `json:"bid_iv"`
	AskIv        float64 `json:"ask_iv"`
	BidPrice     float64 `json:"bid_price"`
	AskPrice     float64 `json:"ask_price"`
	LogMoneyness float64 `json:"log_moneyness"`
}

// -----------------------------------------------------------------------------

// MSnapshot is the full smile for one symbol at one snapshot date.
// A snapshot always replaces any prior snapshot for the same (Symbol, Date)
// key; it is never merged point-by-point.
type MSnapshot struct {
	Symbol string         `json:"symbol"`
	Date   string         `json:"date"` // ISO date, "2006-01-02"
	Points []MOptionPoint `json:"points"`
}

// -----------------------------------------------------------------------------

// MSnapshotKey identifies a snapshot in the store.
type MSnapshotKey struct {
	Symbol string
	Date   string
}

// -----------------------------------------------------------------------------

func (s *MSnapshot) Key() MSnapshotKey {
	return MSnapshotKey{Symbol: s.Symbol, Date: s.Date}
}
