package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"market-stream/src/logger"
	"market-stream/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MStorageConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	tables := map[string]string{
		"prices": `
			CREATE TABLE IF NOT EXISTS prices (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				symbol TEXT NOT NULL,
				price REAL,
				change_percent REAL,
				volume REAL,
				timestamp INTEGER,
				received_at INTEGER NOT NULL
			);`,
		"trades": `
			CREATE TABLE IF NOT EXISTS trades (
				symbol TEXT NOT NULL,
				trade_id TEXT NOT NULL,
				price REAL,
				quantity REAL,
				is_buy INTEGER,
				timestamp INTEGER,
				exchange TEXT,
				received_at INTEGER NOT NULL,
				PRIMARY KEY (symbol, trade_id)
			);`,
		"order_books": `
			CREATE TABLE IF NOT EXISTS order_books (
				symbol TEXT PRIMARY KEY,
				bids TEXT,
				asks TEXT,
				timestamp INTEGER,
				received_at INTEGER NOT NULL
			);`,
	}

	for _, name := range []string{"prices", "trades", "order_books"} {
		if _, err := d.DB.Exec(tables[name]); err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
	}

	if _, err := d.DB.Exec("CREATE INDEX IF NOT EXISTS idx_prices_symbol ON prices (symbol, received_at)"); err != nil {
		return fmt.Errorf("failed to index prices: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SavePricesBulk(prices []models.MRealTimePrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO prices (symbol, price, change_percent, volume, timestamp, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, p := range prices {
		if _, err := stmt.Exec(p.Symbol, p.Price, p.ChangePercent, p.Volume, p.Timestamp, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveTradesBulk(trades []models.MTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trades (symbol, trade_id, price, quantity, is_buy, timestamp, exchange, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, trade_id) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, t := range trades {
		if _, err := stmt.Exec(t.Symbol, t.TradeID, t.Price, t.Quantity, t.IsBuy, t.Timestamp, t.Exchange, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveOrderBooks(books []models.MOrderBook) error {
	if len(books) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO order_books (symbol, bids, asks, timestamp, received_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			bids = excluded.bids,
			asks = excluded.asks,
			timestamp = excluded.timestamp,
			received_at = excluded.received_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, b := range books {
		bids, asks, err := encodeLevels(b)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(b.Symbol, bids, asks, b.Timestamp, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) CleanupOldData() error {
	retentionDays := d.Config.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	d.Logger.Info("Cleaning up data older than %d days (received_at < %d)...", retentionDays, cutoff)

	for _, table := range []string{"prices", "trades", "order_books"} {
		if _, err := d.DB.Exec(fmt.Sprintf("DELETE FROM %s WHERE received_at < ?", table), cutoff); err != nil {
			d.Logger.Error("Cleanup %s error: %v", table, err)
		}
	}

	d.Logger.Info("Cleanup completed")
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

func encodeLevels(b models.MOrderBook) (string, string, error) {
	bids, err := json.Marshal(b.Bids)
	if err != nil {
		return "", "", err
	}
	asks, err := json.Marshal(b.Asks)
	if err != nil {
		return "", "", err
	}
	return string(bids), string(asks), nil
}
