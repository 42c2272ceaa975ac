package storage

import (
	"path/filepath"
	"testing"

	"smile-observer/src/logger"
	"smile-observer/src/models"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	cfg := &models.MConfig{
		Storage: models.MStorageConfig{
			DBType: "sqlite",
			DBPath: filepath.Join(t.TempDir(), "watchlist.db"),
		},
	}

	store, err := NewSQLiteStore(cfg, logger.NewLogger("test", logger.ERROR))
	require.NoError(t, err)
	require.NoError(t, store.Initialize())
	t.Cleanup(func() { store.Close() })
	return store
}

// -----------------------------------------------------------------------------

func TestSaveLoadDelete(t *testing.T) {
	store := newTestStore(t)

	item := models.MWatchItem{
		Symbol:   "AAPL",
		Model:    "svi",
		State:    models.SymbolActive,
		Settings: map[string]interface{}{"fit_window": 30.0},
	}
	require.NoError(t, store.SaveSymbol(item))

	items, err := store.LoadSymbols()
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "AAPL", items[0].Symbol)
	require.Equal(t, "svi", items[0].Model)
	require.Equal(t, models.SymbolActive, items[0].State)
	require.Equal(t, 30.0, items[0].Settings["fit_window"])

	require.NoError(t, store.DeleteSymbol(item.UniqueKey()))
	items, err = store.LoadSymbols()
	require.NoError(t, err)
	require.Empty(t, items)
}

// -----------------------------------------------------------------------------

func TestSaveUpserts(t *testing.T) {
	store := newTestStore(t)

	item := models.MWatchItem{Symbol: "AAPL", Model: "svi", State: models.SymbolActive}
	require.NoError(t, store.SaveSymbol(item))

	item.State = models.SymbolPaused
	item.Settings = map[string]interface{}{"k": 1.5}
	require.NoError(t, store.SaveSymbol(item))

	items, err := store.LoadSymbols()
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, models.SymbolPaused, items[0].State)
	require.Equal(t, 1.5, items[0].Settings["k"])
}

// -----------------------------------------------------------------------------

func TestNilSettingsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveSymbol(models.MWatchItem{Symbol: "MSFT", Model: "sabr"}))

	items, err := store.LoadSymbols()
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Nil(t, items[0].Settings)
}

// -----------------------------------------------------------------------------

func TestLoadOrderedByKey(t *testing.T) {
	store := newTestStore(t)

	for _, sym := range []string{"MSFT", "AAPL", "GOOG"} {
		require.NoError(t, store.SaveSymbol(models.MWatchItem{Symbol: sym, Model: "svi"}))
	}

	items, err := store.LoadSymbols()
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "AAPL", items[0].Symbol)
	require.Equal(t, "GOOG", items[1].Symbol)
	require.Equal(t, "MSFT", items[2].Symbol)
}
