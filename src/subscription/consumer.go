package subscription

import (
	"strings"

	"market-stream/src/models"
)

// Consumer is one independent subscriber sharing the Multiplexer's wire set.
type Consumer struct {
	mux *Multiplexer
	id  string
}

func (c *Consumer) ID() string { return c.id }

// Subscribe adds dataTypes for symbols on behalf of this consumer
func (c *Consumer) Subscribe(symbols []string, dataTypes []models.DataType) {
	c.mux.subscribe(c.id, symbols, dataTypes)
}

// Unsubscribe withdraws this consumer's dataTypes (all when omitted) for symbol
func (c *Consumer) Unsubscribe(symbol string, dataTypes ...models.DataType) {
	c.mux.unsubscribe(c.id, symbol, dataTypes)
}

// Close withdraws every interest this consumer holds
func (c *Consumer) Close() {
	c.mux.release(c.id)
}

// -----------------------------------------------------------------------------

// Wants reports whether this consumer holds dataType for symbol
func (c *Consumer) Wants(symbol string, dataType models.DataType) bool {
	c.mux.mu.Lock()
	defer c.mux.mu.Unlock()
	return c.mux.interest[strings.TrimSpace(symbol)][c.id].Has(dataType)
}

// Interest returns this consumer's own types per symbol
func (c *Consumer) Interest() map[string][]models.DataType {
	c.mux.mu.Lock()
	defer c.mux.mu.Unlock()

	out := make(map[string][]models.DataType)
	for symbol, consumers := range c.mux.interest {
		if set, ok := consumers[c.id]; ok {
			out[symbol] = set.Sorted()
		}
	}
	return out
}
