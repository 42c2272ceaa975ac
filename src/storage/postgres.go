package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smile-observer/src/logger"
	"smile-observer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// Postgres watchlist store. The schema is derived from the executable name so
// several instances can share one database.
// -----------------------------------------------------------------------------

type PostgresStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresStore(cfg *models.MConfig, log *logger.Logger) (*PostgresStore, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresStore{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."watchlist" (
			unique_key TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			model TEXT NOT NULL,
			state INTEGER NOT NULL,
			settings TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create watchlist table: %w", err)
	}

	d.Logger.Info("PostgresStore initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) SaveSymbol(item models.MWatchItem) error {
	settings, err := encodeSettings(item.Settings)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO "%s"."watchlist" (unique_key, symbol, model, state, settings, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (unique_key) DO UPDATE SET
			state = EXCLUDED.state,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at
	`, d.Schema)
	_, err = d.DB.Exec(query, item.UniqueKey(), item.Symbol, item.Model,
		int(item.State), settings, time.Now().UTC())
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) DeleteSymbol(uniqueKey string) error {
	query := fmt.Sprintf(`DELETE FROM "%s"."watchlist" WHERE unique_key = $1`, d.Schema)
	_, err := d.DB.Exec(query, uniqueKey)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) LoadSymbols() ([]models.MWatchItem, error) {
	query := fmt.Sprintf(`SELECT symbol, model, state, settings FROM "%s"."watchlist" ORDER BY unique_key`, d.Schema)
	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWatchItems(rows)
}

// -----------------------------------------------------------------------------

func (d *PostgresStore) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
