package interfaces

import "market-stream/src/models"

// -----------------------------------------------------------------------------
// IDataSink receives records after they have been applied to the store.
// Implementations must not block the router; queue and return.
// -----------------------------------------------------------------------------

type IDataSink interface {

	// Name identifies the sink in logs
	Name() string

	// -----------------------------------------------------------------------------

	OnPrice(price models.MRealTimePrice)

	// -----------------------------------------------------------------------------

	// OnTrades receives the trades of one push in arrival order
	OnTrades(symbol string, trades []models.MTrade)

	// -----------------------------------------------------------------------------

	OnOrderBook(book models.MOrderBook)
}
