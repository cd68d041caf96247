package main

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"market-stream/src/models"
)

// -----------------------------------------------------------------------------

// generator produces a random walk per symbol
type generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	last   map[string]float64
	open   map[string]float64
	nextID int64
}

func newGenerator(seed int64) *generator {
	return &generator{
		rng:  rand.New(rand.NewSource(seed)),
		last: make(map[string]float64),
		open: make(map[string]float64),
	}
}

// -----------------------------------------------------------------------------

func (g *generator) step(symbol string) float64 {
	p, ok := g.last[symbol]
	if !ok {
		p = 50 + g.rng.Float64()*450
		g.open[symbol] = p
	}
	p *= 1 + g.rng.NormFloat64()*0.001
	p = math.Round(p*100) / 100
	g.last[symbol] = p
	return p
}

// -----------------------------------------------------------------------------

func (g *generator) price(symbol string) models.MRealTimePrice {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.step(symbol)
	return models.MRealTimePrice{
		Symbol:        symbol,
		Price:         p,
		ChangePercent: math.Round((p/g.open[symbol]-1)*10000) / 100,
		Volume:        math.Round(g.rng.Float64() * 1e6),
		Timestamp:     time.Now().UnixMilli(),
	}
}

func (g *generator) trades(symbol string) models.MTradesPayload {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 1 + g.rng.Intn(3)
	out := models.MTradesPayload{Trades: make([]models.MTrade, 0, n)}
	for i := 0; i < n; i++ {
		g.nextID++
		out.Trades = append(out.Trades, models.MTrade{
			TradeID:   fmt.Sprintf("mock-%d", g.nextID),
			Symbol:    symbol,
			Price:     g.step(symbol),
			Quantity:  math.Round(g.rng.Float64()*10000) / 100,
			IsBuy:     g.rng.Intn(2) == 0,
			Timestamp: time.Now().UnixMilli(),
			Exchange:  "MOCK",
		})
	}
	return out
}

func (g *generator) orderBook(symbol string, depth int) models.MOrderBook {
	g.mu.Lock()
	defer g.mu.Unlock()

	mid := g.step(symbol)
	book := models.MOrderBook{Symbol: symbol, Timestamp: time.Now().UnixMilli()}
	for i := 1; i <= depth; i++ {
		offset := float64(i) * 0.01
		book.Bids = append(book.Bids, models.MPriceLevel{Price: math.Round((mid-offset)*100) / 100, Size: float64(1 + g.rng.Intn(500))})
		book.Asks = append(book.Asks, models.MPriceLevel{Price: math.Round((mid+offset)*100) / 100, Size: float64(1 + g.rng.Intn(500))})
	}
	return book
}

// payload returns the data section for one symbol and type, or nil for unsupported types
func (g *generator) payload(symbol string, dt models.DataType) interface{} {
	switch dt {
	case models.DataTypePrice:
		return g.price(symbol)
	case models.DataTypeTrades:
		return g.trades(symbol)
	case models.DataTypeOrderBook:
		return g.orderBook(symbol, 10)
	}
	return nil
}
