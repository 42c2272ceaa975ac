package utils

import (
	"sync"
	"time"

	"smile-observer/src/logger"
)

// -----------------------------------------------------------------------------
// MarketScheduler maps tracked symbols to their venue calendars so the app
// can tell whether any quoted market is currently open. The symbol list
// follows the watchlist.
// -----------------------------------------------------------------------------

type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.UpdateSymbols(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// UpdateSymbols rebuilds the symbol-to-calendar mapping from scratch.
func (ms *MarketScheduler) UpdateSymbols(symbols []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar)
	for _, symbol := range symbols {
		if cal := GetCalendar(symbol); cal != nil {
			ms.Calendars[symbol] = cal
		}
	}

	ms.Logger.Info("MarketScheduler: Mapped %d symbols to %d calendars.",
		len(symbols), len(ms.Calendars))
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked market is currently open. With an empty
// watchlist the NYSE default calendar answers.
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := time.Now().UTC()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if len(ms.Calendars) == 0 {
		return GetCalendar("").IsOpenOnMinute(now)
	}

	for _, cal := range ms.Calendars {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}
