package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"smile-observer/src/logger"
	"smile-observer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------
// SQLite watchlist store. Unlike transient market data, the watchlist must
// survive restarts, so tables are created if missing and never dropped.
// -----------------------------------------------------------------------------

type SQLiteStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteStore(cfg *models.MConfig, log *logger.Logger) (*SQLiteStore, error) {
	return &SQLiteStore{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS watchlist (
			unique_key TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			model TEXT NOT NULL,
			state INTEGER NOT NULL,
			settings TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create watchlist table: %w", err)
	}

	d.Logger.Info("SQLiteStore initialized (path: %s)", dsn)
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) SaveSymbol(item models.MWatchItem) error {
	settings, err := encodeSettings(item.Settings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO watchlist (unique_key, symbol, model, state, settings, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (unique_key) DO UPDATE SET
			state = excluded.state,
			settings = excluded.settings,
			updated_at = excluded.updated_at
	`
	_, err = d.DB.Exec(query, item.UniqueKey(), item.Symbol, item.Model,
		int(item.State), settings, time.Now().UTC())
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) DeleteSymbol(uniqueKey string) error {
	_, err := d.DB.Exec("DELETE FROM watchlist WHERE unique_key = ?", uniqueKey)
	return err
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) LoadSymbols() ([]models.MWatchItem, error) {
	rows, err := d.DB.Query("SELECT symbol, model, state, settings FROM watchlist ORDER BY unique_key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWatchItems(rows)
}

// -----------------------------------------------------------------------------

func (d *SQLiteStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Shared row helpers
// -----------------------------------------------------------------------------

func encodeSettings(settings map[string]interface{}) (string, error) {
	if len(settings) == 0 {
		return "", nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to encode settings: %w", err)
	}
	return string(data), nil
}

// -----------------------------------------------------------------------------

func scanWatchItems(rows *sql.Rows) ([]models.MWatchItem, error) {
	var items []models.MWatchItem
	for rows.Next() {
		var item models.MWatchItem
		var state int
		var settings sql.NullString

		if err := rows.Scan(&item.Symbol, &item.Model, &state, &settings); err != nil {
			return nil, err
		}

		item.State = models.SymbolState(state)
		if settings.Valid && settings.String != "" {
			if err := json.Unmarshal([]byte(settings.String), &item.Settings); err != nil {
				return nil, fmt.Errorf("failed to decode settings for %s: %w", item.UniqueKey(), err)
			}
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
