package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smile-observer/src/config"
	"smile-observer/src/ingest"
	"smile-observer/src/interfaces"
	"smile-observer/src/logger"
	"smile-observer/src/models"
	"smile-observer/src/network"
	"smile-observer/src/server"
	"smile-observer/src/storage"
	"smile-observer/src/utils"
	"smile-observer/src/watchlist"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.Name, logger.LevelFromString(cfg.LogLevel, logger.INFO))

	// 1. Watchlist storage
	var store interfaces.IWatchlistStore

	switch cfg.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.MConfig, appLogger.Named("Storage"))
	default:
		// Default to SQLite
		store, err = storage.NewSQLiteStore(cfg.MConfig, appLogger.Named("Storage"))
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer store.Close()

	// 2. Watchlist manager with persisted state
	watch := watchlist.NewManager(store, appLogger.Named("Watchlist"))
	restored, err := watch.Restore()
	if err != nil {
		appLogger.Warning("Failed to restore watchlist: %v", err)
	}

	// 3. Backend link and ingestion pipeline
	var client = network.NewWebSocketClient(cfg.MConfig, appLogger.Named("Network"))
	pipeline := ingest.NewPipeline(client, appLogger.Named("Pipeline"))
	client.SetFrameHandler(pipeline.HandleFrame)
	client.SetStateHandler(pipeline.HandleConnectionState)

	// 4. Market calendars follow the watchlist
	markets := utils.NewMarketScheduler(watchedSymbols(watch), appLogger.Named("Markets"))
	watch.SetChangeHandler(func(kind watchlist.ChangeKind, item models.MWatchItem) {
		markets.UpdateSymbols(watchedSymbols(watch))
	})

	// 5. Local REST/WebSocket surface
	srv := server.NewWebServer(cfg.MConfig, appLogger.Named("Server"), pipeline, watch, client, markets)
	pipeline.SetSnapshotHandler(srv.BroadcastSnapshot)
	pipeline.SetConnectionHandler(func(state network.ConnectionState) {
		srv.BroadcastConnectionState(state)

		// The backend forgets its subscriptions on disconnect; replay the
		// active watchlist on every (re)connect.
		if state == network.Connected {
			for _, item := range watch.ActiveItems() {
				if err := pipeline.SendAddSymbol(item.Symbol, item.Model, item.Settings); err != nil {
					appLogger.Warning("Failed to re-add %s: %v", item.UniqueKey(), err)
				}
			}
		}
	})

	if len(restored) > 0 {
		appLogger.Info("Will re-subscribe %d watchlist item(s) once connected", len(restored))
	}

	// 6. Start Server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 7. Dial the backend; the state machine keeps retrying from here on
	client.Connect(cfg.WebSocketEndpoint(appLogger))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	client.Disconnect()
	srv.Stop()
}

// -----------------------------------------------------------------------------

func watchedSymbols(watch *watchlist.Manager) []string {
	var symbols []string
	for _, item := range watch.Items() {
		symbols = append(symbols, item.Symbol)
	}
	return symbols
}
