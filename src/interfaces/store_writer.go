package interfaces

import "market-stream/src/models"

// -----------------------------------------------------------------------------
// IStoreWriter is the mutation surface the router writes through.
// -----------------------------------------------------------------------------

type IStoreWriter interface {
	UpdatePrice(symbol string, price models.MRealTimePrice)
	AddTrade(symbol string, trade models.MTrade)
	UpdateOrderBook(symbol string, book models.MOrderBook)
}
