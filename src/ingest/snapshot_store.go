package ingest

import (
	"sort"
	"sync"

	"smile-observer/src/models"
)

// -----------------------------------------------------------------------------
// SnapshotStore holds the latest smile per (symbol, date). A new snapshot for
// an existing key replaces the old one wholesale; points are never merged.
// -----------------------------------------------------------------------------

type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[models.MSnapshotKey]*models.MSnapshot
}

// -----------------------------------------------------------------------------

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[models.MSnapshotKey]*models.MSnapshot),
	}
}

// -----------------------------------------------------------------------------

// Put stores the snapshot, replacing any previous entry for its key.
// Empty snapshots never reach the store; the parser rejects them upstream.
func (s *SnapshotStore) Put(snapshot *models.MSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.Key()] = snapshot
}

// -----------------------------------------------------------------------------

// Get returns a deep copy of the snapshot for (symbol, date), or false when
// none exists. Callers may mutate the copy freely.
func (s *SnapshotStore) Get(symbol, date string) (*models.MSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[models.MSnapshotKey{Symbol: symbol, Date: date}]
	if !ok {
		return nil, false
	}

	points := make([]models.MOptionPoint, len(snapshot.Points))
	copy(points, snapshot.Points)
	return &models.MSnapshot{
		Symbol: snapshot.Symbol,
		Date:   snapshot.Date,
		Points: points,
	}, true
}

// -----------------------------------------------------------------------------

// Symbols lists the distinct symbols with at least one stored snapshot,
// sorted for stable output.
func (s *SnapshotStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var symbols []string
	for key := range s.snapshots {
		if !seen[key.Symbol] {
			seen[key.Symbol] = true
			symbols = append(symbols, key.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// -----------------------------------------------------------------------------

// Dates lists the snapshot dates stored for a symbol, sorted ascending.
// ISO dates sort correctly as strings.
func (s *SnapshotStore) Dates(symbol string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var dates []string
	for key := range s.snapshots {
		if key.Symbol == symbol {
			dates = append(dates, key.Date)
		}
	}
	sort.Strings(dates)
	return dates
}

// -----------------------------------------------------------------------------

// Len returns the number of stored snapshots.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// -----------------------------------------------------------------------------

// RemoveSymbol drops every stored snapshot for symbol and returns how many
// entries were removed.
func (s *SnapshotStore) RemoveSymbol(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.snapshots {
		if key.Symbol == symbol {
			delete(s.snapshots, key)
			removed++
		}
	}
	return removed
}
