package watchlist

import (
	"sort"
	"sync"

	"smile-observer/src/interfaces"
	"smile-observer/src/logger"
	"smile-observer/src/models"
)

// -----------------------------------------------------------------------------
// Manager tracks the (symbol, model) pairs the user follows. The in-memory
// map is authoritative; every mutation is mirrored to the watchlist store so
// the list survives restarts. Pausing a symbol is a purely local state flip,
// nothing is sent to the backend for it.
// -----------------------------------------------------------------------------

type ChangeKind int

const (
	ItemAdded ChangeKind = iota
	ItemRemoved
	ItemUpdated
)

// ChangeHandler fires after each successful watchlist mutation.
type ChangeHandler func(kind ChangeKind, item models.MWatchItem)

// -----------------------------------------------------------------------------

type Manager struct {
	Logger *logger.Logger

	store    interfaces.IWatchlistStore
	onChange ChangeHandler

	mu    sync.RWMutex
	items map[string]models.MWatchItem
}

// -----------------------------------------------------------------------------

func NewManager(store interfaces.IWatchlistStore, log *logger.Logger) *Manager {
	return &Manager{
		Logger: log,
		store:  store,
		items:  make(map[string]models.MWatchItem),
	}
}

// -----------------------------------------------------------------------------

// SetChangeHandler registers the mutation callback. Must be called before the
// manager is shared across goroutines.
func (m *Manager) SetChangeHandler(h ChangeHandler) {
	m.onChange = h
}

// -----------------------------------------------------------------------------

// Restore loads the persisted watchlist into memory and returns it, so the
// caller can re-issue add commands once the backend link is up.
func (m *Manager) Restore() ([]models.MWatchItem, error) {
	items, err := m.store.LoadSymbols()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for _, item := range items {
		m.items[item.UniqueKey()] = item
	}
	m.mu.Unlock()

	m.Logger.Info("Restored %d watchlist item(s) from storage", len(items))
	return items, nil
}

// -----------------------------------------------------------------------------

// Add registers a new (symbol, model) pair as active. Returns false when the
// pair is already tracked.
func (m *Manager) Add(symbol, model string, settings map[string]interface{}) bool {
	item := models.MWatchItem{
		Symbol:   symbol,
		Model:    model,
		State:    models.SymbolActive,
		Settings: settings,
	}

	m.mu.Lock()
	if _, exists := m.items[item.UniqueKey()]; exists {
		m.mu.Unlock()
		return false
	}
	m.items[item.UniqueKey()] = item
	m.mu.Unlock()

	m.persist(item)
	m.notify(ItemAdded, item)
	return true
}

// -----------------------------------------------------------------------------

// Remove drops a tracked pair. Returns false when it was not tracked.
func (m *Manager) Remove(symbol, model string) bool {
	key := models.MWatchItem{Symbol: symbol, Model: model}.UniqueKey()

	m.mu.Lock()
	item, exists := m.items[key]
	if !exists {
		m.mu.Unlock()
		return false
	}
	delete(m.items, key)
	m.mu.Unlock()

	if err := m.store.DeleteSymbol(key); err != nil {
		m.Logger.Error("Failed to delete watchlist item %s: %v", key, err)
	}
	m.notify(ItemRemoved, item)
	return true
}

// -----------------------------------------------------------------------------

// SetState pauses or resumes a tracked pair locally. Returns false when the
// pair is unknown or already in the requested state.
func (m *Manager) SetState(symbol, model string, state models.SymbolState) bool {
	key := models.MWatchItem{Symbol: symbol, Model: model}.UniqueKey()

	m.mu.Lock()
	item, exists := m.items[key]
	if !exists || item.State == state {
		m.mu.Unlock()
		return false
	}
	item.State = state
	m.items[key] = item
	m.mu.Unlock()

	m.persist(item)
	m.notify(ItemUpdated, item)
	return true
}

// -----------------------------------------------------------------------------

// UpdateSettings replaces the model settings of a tracked pair.
func (m *Manager) UpdateSettings(symbol, model string, settings map[string]interface{}) bool {
	key := models.MWatchItem{Symbol: symbol, Model: model}.UniqueKey()

	m.mu.Lock()
	item, exists := m.items[key]
	if !exists {
		m.mu.Unlock()
		return false
	}
	item.Settings = settings
	m.items[key] = item
	m.mu.Unlock()

	m.persist(item)
	m.notify(ItemUpdated, item)
	return true
}

// -----------------------------------------------------------------------------

// Get returns the tracked item for (symbol, model).
func (m *Manager) Get(symbol, model string) (models.MWatchItem, bool) {
	key := models.MWatchItem{Symbol: symbol, Model: model}.UniqueKey()

	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	return item, ok
}

// -----------------------------------------------------------------------------

// Items returns the full watchlist, sorted by unique key for stable output.
func (m *Manager) Items() []models.MWatchItem {
	m.mu.RLock()
	items := make([]models.MWatchItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].UniqueKey() < items[j].UniqueKey()
	})
	return items
}

// -----------------------------------------------------------------------------

// ActiveItems returns only the items currently streaming.
func (m *Manager) ActiveItems() []models.MWatchItem {
	var active []models.MWatchItem
	for _, item := range m.Items() {
		if item.State == models.SymbolActive {
			active = append(active, item)
		}
	}
	return active
}

// -----------------------------------------------------------------------------

// persist mirrors the item to storage; a failure is logged, the in-memory
// state stays authoritative.
func (m *Manager) persist(item models.MWatchItem) {
	if err := m.store.SaveSymbol(item); err != nil {
		m.Logger.Error("Failed to persist watchlist item %s: %v", item.UniqueKey(), err)
	}
}

// -----------------------------------------------------------------------------

func (m *Manager) notify(kind ChangeKind, item models.MWatchItem) {
	if m.onChange != nil {
		m.onChange(kind, item)
	}
}
