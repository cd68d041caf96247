package main

import (
	"context"
	"fmt"

	"market-stream/src/cache"
	"market-stream/src/interfaces"
	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/publisher"
	"market-stream/src/storage"
)

// -----------------------------------------------------------------------------

// sinkSet holds the optional consumers of routed data
type sinkSet struct {
	db        interfaces.IDatabase
	recorder  *storage.Recorder
	cache     *cache.RedisPriceCache
	publisher *publisher.KafkaTradePublisher
}

// -----------------------------------------------------------------------------

// setupSinks builds and starts every sink enabled in config
func setupSinks(ctx context.Context, config *models.MConfig, appLogger *logger.Logger) (*sinkSet, error) {
	s := &sinkSet{}

	if config.Storage.Enabled {
		dbLogger := appLogger.Named("storage")
		db, err := storage.NewDatabase(&config.Storage, dbLogger)
		if err != nil {
			return nil, err
		}
		if err := db.Initialize(); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		s.db = db
		s.recorder = storage.NewRecorder(db, &config.Storage, dbLogger)
		s.recorder.Start(ctx)
		appLogger.Info("Recording to %s", config.Storage.DBType)
	}

	if config.Cache.Enabled {
		c := cache.NewRedisPriceCache(&config.Cache, appLogger.Named("cache"))
		if err := c.Start(ctx); err != nil {
			// the stream is still useful without the mirror
			appLogger.Warning("Redis cache disabled: %v", err)
		} else {
			s.cache = c
		}
	}

	if config.Publisher.Enabled {
		s.publisher = publisher.NewKafkaTradePublisher(&config.Publisher, appLogger.Named("kafka"))
		s.publisher.Start()
	}

	return s, nil
}

// -----------------------------------------------------------------------------

func (s *sinkSet) list() []interfaces.IDataSink {
	var sinks []interfaces.IDataSink
	if s.recorder != nil {
		sinks = append(sinks, s.recorder)
	}
	if s.cache != nil {
		sinks = append(sinks, s.cache)
	}
	if s.publisher != nil {
		sinks = append(sinks, s.publisher)
	}
	return sinks
}

// -----------------------------------------------------------------------------

// expandSymbols resolves schema.table.field references when recording to Postgres
func (s *sinkSet) expandSymbols(raw []string, appLogger *logger.Logger) []string {
	pg, ok := s.db.(*storage.PostgresDB)
	if !ok {
		return raw
	}
	symbols, err := pg.ExpandSymbols(raw)
	if err != nil {
		appLogger.Warning("Symbol expansion incomplete: %v", err)
	}
	appLogger.Info("Expanded %d configured symbols to %d", len(raw), len(symbols))
	return symbols
}

// -----------------------------------------------------------------------------

// stop flushes sinks in reverse order of setup
func (s *sinkSet) stop(appLogger *logger.Logger) {
	if s.publisher != nil {
		if err := s.publisher.Stop(); err != nil {
			appLogger.Error("Kafka close: %v", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Stop(); err != nil {
			appLogger.Error("Redis close: %v", err)
		}
	}
	if s.recorder != nil {
		s.recorder.Stop()
		written, dropped := s.recorder.Stats()
		appLogger.Info("Recorder wrote %d records (%d dropped)", written, dropped)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			appLogger.Error("Database close: %v", err)
		}
	}
}
