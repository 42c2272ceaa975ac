package interfaces

import "smile-observer/src/models"

// -----------------------------------------------------------------------------

// IWatchlistStore persists the tracked (symbol, model) pairs across restarts.
type IWatchlistStore interface {
	Initialize() error
	SaveSymbol(item models.MWatchItem) error
	DeleteSymbol(uniqueKey string) error
	LoadSymbols() ([]models.MWatchItem, error)
	Close() error
}
