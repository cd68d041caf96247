package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-stream/src/config"
	"market-stream/src/logger"
	"market-stream/src/realtime"
	"market-stream/src/server"
)

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf, conf.Name)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Session
	session := realtime.NewSession(&conf.Stream, appLogger.Named("stream"))

	// 5. Sinks
	sinks, err := setupSinks(ctx, conf.MConfig, appLogger)
	if err != nil {
		appLogger.Critical("Failed to setup sinks: %v", err)
	}
	for _, sink := range sinks.list() {
		session.AddSink(sink)
	}

	symbols := sinks.expandSymbols(conf.Stream.Symbols, appLogger)

	// 6. Servers
	api := server.NewAPIServer(conf.MConfig, appLogger.Named("api"), session)
	health := startServers(api, session, conf.MConfig, appLogger)

	// 7. Connect and subscribe
	session.Subscribe(symbols, conf.Stream.DataTypes)
	if err := session.Connect(ctx, ""); err != nil {
		// subscriptions stay queued; POST /api/connect retries
		appLogger.Warning("Initial connect failed: %v", err)
	}
	appLogger.Info("Streaming %d symbols from %s", len(symbols), conf.Stream.URL)

	// 8. Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := api.Stop(shutdownCtx); err != nil {
		appLogger.Error("API shutdown: %v", err)
	}
	health.Stop()
	session.Close()
	cancel()
	sinks.stop(appLogger)

	stats := session.RouterStats()
	appLogger.Info("Shutdown complete (dispatched %d, dropped %d)", stats.Dispatched, stats.Dropped)
}
