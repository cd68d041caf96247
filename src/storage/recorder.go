package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market-stream/src/helpers"
	"market-stream/src/interfaces"
	"market-stream/src/logger"
	"market-stream/src/models"
)

const cleanupInterval = time.Hour

// NewDatabase builds the configured backend
func NewDatabase(cfg *models.MStorageConfig, log *logger.Logger) (interfaces.IDatabase, error) {
	switch cfg.DBType {
	case "sqlite":
		return NewAsyncSQLiteDB(cfg, log)
	case "postgres":
		return NewPostgresDB(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database type '%s'", cfg.DBType)
	}
}

// -----------------------------------------------------------------------------
// Recorder batches routed records and writes them off the router path.
// -----------------------------------------------------------------------------

type Recorder struct {
	DB     interfaces.IDatabase
	Config *models.MStorageConfig
	Logger *logger.Logger

	errs          *helpers.ErrorHandler
	flushInterval time.Duration
	batchSize     int

	records chan record
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped atomic.Int64
	written atomic.Int64
}

type record struct {
	price  *models.MRealTimePrice
	trades []models.MTrade
	book   *models.MOrderBook
}

// batch accumulates between flushes; order books keep the latest per symbol
type batch struct {
	prices []models.MRealTimePrice
	trades []models.MTrade
	books  map[string]models.MOrderBook
}

func (b *batch) size() int { return len(b.prices) + len(b.trades) + len(b.books) }

// -----------------------------------------------------------------------------

func NewRecorder(db interfaces.IDatabase, cfg *models.MStorageConfig, log *logger.Logger) *Recorder {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	interval := time.Duration(cfg.FlushIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Recorder{
		DB:            db,
		Config:        cfg,
		Logger:        log,
		errs:          helpers.NewErrorHandler(log),
		flushInterval: interval,
		batchSize:     batchSize,
		records:       make(chan record, batchSize*4),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches the flush loop
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop drains pending records, flushes them and waits for the loop to exit
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Stats returns how many records were written and dropped
func (r *Recorder) Stats() (written, dropped int64) {
	return r.written.Load(), r.dropped.Load()
}

// -----------------------------------------------------------------------------
// Data Sink Implementation
// -----------------------------------------------------------------------------

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) OnPrice(price models.MRealTimePrice) {
	r.enqueue(record{price: &price})
}

func (r *Recorder) OnTrades(symbol string, trades []models.MTrade) {
	r.enqueue(record{trades: append([]models.MTrade(nil), trades...)})
}

func (r *Recorder) OnOrderBook(book models.MOrderBook) {
	r.enqueue(record{book: &book})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.records <- rec:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.Logger.Warning("Recorder queue full, dropped %d records so far", r.dropped.Load())
		}
	}
}

// -----------------------------------------------------------------------------
// Flush loop
// -----------------------------------------------------------------------------

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	b := &batch{books: make(map[string]models.MOrderBook)}
	lastCleanup := time.Time{}

	for {
		select {
		case rec := <-r.records:
			b.add(rec)
			if b.size() >= r.batchSize {
				r.flush(b)
			}

		case <-ticker.C:
			r.flush(b)
			if time.Since(lastCleanup) >= cleanupInterval {
				r.errs.Handle(r.DB.CleanupOldData(), "recorder cleanup")
				lastCleanup = time.Now()
			}

		case <-ctx.Done():
			// drain what is already queued
			for {
				select {
				case rec := <-r.records:
					b.add(rec)
				default:
					r.flush(b)
					return
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (b *batch) add(rec record) {
	switch {
	case rec.price != nil:
		b.prices = append(b.prices, *rec.price)
	case rec.book != nil:
		b.books[rec.book.Symbol] = *rec.book
	default:
		b.trades = append(b.trades, rec.trades...)
	}
}

// -----------------------------------------------------------------------------

func (r *Recorder) flush(b *batch) {
	if b.size() == 0 {
		return
	}

	start := time.Now()
	n := int64(b.size())

	if err := r.DB.SavePricesBulk(b.prices); err != nil {
		r.errs.Handle(helpers.NewDatabaseError("save prices", err), "recorder")
	}
	if err := r.DB.SaveTradesBulk(b.trades); err != nil {
		r.errs.Handle(helpers.NewDatabaseError("save trades", err), "recorder")
	}

	books := make([]models.MOrderBook, 0, len(b.books))
	for _, book := range b.books {
		books = append(books, book)
	}
	if err := r.DB.SaveOrderBooks(books); err != nil {
		r.errs.Handle(helpers.NewDatabaseError("save order books", err), "recorder")
	}

	r.written.Add(n)
	r.Logger.Debug("Flushed %d records in %v", n, time.Since(start))

	b.prices = b.prices[:0]
	b.trades = b.trades[:0]
	b.books = make(map[string]models.MOrderBook)
}
