package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"market-stream/src/logger"
	"market-stream/src/models"

	"github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MStorageConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MStorageConfig, log *logger.Logger) (*PostgresDB, error) {
	// Schema is named after the executable
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(d.Schema))); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) table(name string) string {
	return pq.QuoteIdentifier(d.Schema) + "." + pq.QuoteIdentifier(name)
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	queries := []struct {
		name  string
		query string
	}{
		{"prices", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				symbol TEXT NOT NULL,
				price DOUBLE PRECISION,
				change_percent DOUBLE PRECISION,
				volume DOUBLE PRECISION,
				timestamp BIGINT,
				received_at BIGINT NOT NULL
			);`, d.table("prices"))},
		{"trades", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				trade_id TEXT NOT NULL,
				price DOUBLE PRECISION,
				quantity DOUBLE PRECISION,
				is_buy BOOLEAN,
				timestamp BIGINT,
				exchange TEXT,
				received_at BIGINT NOT NULL,
				PRIMARY KEY (symbol, trade_id)
			);`, d.table("trades"))},
		{"order_books", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT PRIMARY KEY,
				bids JSONB,
				asks JSONB,
				timestamp BIGINT,
				received_at BIGINT NOT NULL
			);`, d.table("order_books"))},
		{"symbols", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT PRIMARY KEY,
				type TEXT,
				ref_schema TEXT,
				ref_table TEXT,
				ref_field TEXT,
				updated_at TIMESTAMP
			);`, d.table("symbols"))},
	}

	for _, q := range queries {
		if _, err := d.DB.Exec(q.query); err != nil {
			return fmt.Errorf("failed to create %s: %w", q.name, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// SavePricesBulk streams the batch with COPY
func (d *PostgresDB) SavePricesBulk(prices []models.MRealTimePrice) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyInSchema(d.Schema, "prices",
		"symbol", "price", "change_percent", "volume", "timestamp", "received_at"))
	if err != nil {
		return err
	}

	now := time.Now().UTC().Unix()
	for _, p := range prices {
		if _, err := stmt.Exec(p.Symbol, p.Price, p.ChangePercent, p.Volume, p.Timestamp, now); err != nil {
			stmt.Close()
			return err
		}
	}

	// Flush the COPY buffer
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveTradesBulk(trades []models.MTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, trade_id, price, quantity, is_buy, timestamp, exchange, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, trade_id) DO NOTHING
	`, d.table("trades")))
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

func (d *PostgresDB) SaveOrderBooks(books []models.MOrderBook) error {
	if len(books) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, bids, asks, timestamp, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			bids = EXCLUDED.bids,
			asks = EXCLUDED.asks,
			timestamp = EXCLUDED.timestamp,
			received_at = EXCLUDED.received_at
	`, d.table("order_books")))
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

func (d *PostgresDB) CleanupOldData() error {
	retentionDays := d.Config.RetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Unix()

	d.Logger.Info("Cleaning up data older than %d days (received_at < %d)...", retentionDays, cutoff)

	for _, name := range []string{"prices", "trades", "order_books"} {
		if _, err := d.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE received_at < $1`, d.table(name)), cutoff); err != nil {
			d.Logger.Error("Cleanup %s error: %v", name, err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
