package interfaces

import "market-stream/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for recording stream data.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SavePricesBulk inserts a batch of price ticks.
	SavePricesBulk(prices []models.MRealTimePrice) error

	// -----------------------------------------------------------------------------

	// SaveTradesBulk inserts a batch of trades, ignoring duplicates.
	SaveTradesBulk(trades []models.MTrade) error

	// -----------------------------------------------------------------------------

	// SaveOrderBooks upserts the latest snapshot per symbol.
	SaveOrderBooks(books []models.MOrderBook) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
