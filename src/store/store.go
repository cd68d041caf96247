package store

import (
	"sort"
	"sync"

	"market-stream/src/models"
	"market-stream/src/utils"
)

// -----------------------------------------------------------------------------
// Store holds the latest real-time state per symbol.
// Writes come from the router dispatch path; reads are unrestricted.
// -----------------------------------------------------------------------------

type Store struct {
	prices     map[string]models.MRealTimePrice
	trades     map[string]*utils.TradeRingBuffer
	orderBooks map[string]models.MOrderBook
	charts     map[string]string

	tradeCapacity int
	mu            sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewStore(tradeCapacity int) *Store {
	if tradeCapacity <= 0 {
		tradeCapacity = utils.DefaultTradeBufferSize
	}
	return &Store{
		prices:        make(map[string]models.MRealTimePrice),
		trades:        make(map[string]*utils.TradeRingBuffer),
		orderBooks:    make(map[string]models.MOrderBook),
		charts:        make(map[string]string),
		tradeCapacity: tradeCapacity,
	}
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// UpdatePrice replaces the price record for symbol
func (s *Store) UpdatePrice(symbol string, price models.MRealTimePrice) {
	price.Symbol = symbol

	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// AddTrade pushes a trade to the front of the symbol's bounded feed
func (s *Store) AddTrade(symbol string, trade models.MTrade) {
	trade.Symbol = symbol

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.trades[symbol]
	if !ok {
		buf = utils.NewTradeRingBuffer(s.tradeCapacity)
		s.trades[symbol] = buf
	}
	buf.Append(trade)
}

// -----------------------------------------------------------------------------

// UpdateOrderBook replaces the snapshot for symbol wholesale
func (s *Store) UpdateOrderBook(symbol string, book models.MOrderBook) {
	book.Symbol = symbol
	book.Bids = append([]models.MPriceLevel(nil), book.Bids...)
	book.Asks = append([]models.MPriceLevel(nil), book.Asks...)

	s.mu.Lock()
	s.orderBooks[symbol] = book
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// SetChartTimeframe records the chart timeframe selected for symbol
func (s *Store) SetChartTimeframe(symbol, timeframe string) {
	s.mu.Lock()
	s.charts[symbol] = timeframe
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// ClearData removes every record for the given symbols, or everything when none are given
func (s *Store) ClearData(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(symbols) == 0 {
		s.prices = make(map[string]models.MRealTimePrice)
		s.trades = make(map[string]*utils.TradeRingBuffer)
		s.orderBooks = make(map[string]models.MOrderBook)
		s.charts = make(map[string]string)
		return
	}

	for _, sym := range symbols {
		delete(s.prices, sym)
		delete(s.trades, sym)
		delete(s.orderBooks, sym)
		delete(s.charts, sym)
	}
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

func (s *Store) Price(symbol string) (models.MRealTimePrice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[symbol]
	return p, ok
}

// -----------------------------------------------------------------------------

// Prices returns a copy of every price record
func (s *Store) Prices() map[string]models.MRealTimePrice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.MRealTimePrice, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------------

// Trades returns the symbol's trades, newest first
func (s *Store) Trades(symbol string) []models.MTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.trades[symbol]
	if !ok {
		return []models.MTrade{}
	}
	return buf.GetAll()
}

// -----------------------------------------------------------------------------

func (s *Store) OrderBook(symbol string) (models.MOrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.orderBooks[symbol]
	if !ok {
		return models.MOrderBook{}, false
	}
	book.Bids = append([]models.MPriceLevel(nil), book.Bids...)
	book.Asks = append([]models.MPriceLevel(nil), book.Asks...)
	return book, true
}

// -----------------------------------------------------------------------------

func (s *Store) ChartTimeframe(symbol string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tf, ok := s.charts[symbol]
	return tf, ok
}

// -----------------------------------------------------------------------------

// TradeCapacity returns the per symbol trade feed limit
func (s *Store) TradeCapacity() int {
	return s.tradeCapacity
}

// -----------------------------------------------------------------------------

// Symbols returns every symbol holding at least one record, sorted
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for sym := range s.prices {
		seen[sym] = struct{}{}
	}
	for sym := range s.trades {
		seen[sym] = struct{}{}
	}
	for sym := range s.orderBooks {
		seen[sym] = struct{}{}
	}
	for sym := range s.charts {
		seen[sym] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

// Snapshot copies the state of the given symbols (all symbols when empty)
func (s *Store) Snapshot(symbols []string) models.MSnapshot {
	if len(symbols) == 0 {
		symbols = s.Symbols()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.MSnapshot{
		Prices:     make(map[string]models.MRealTimePrice),
		Trades:     make(map[string][]models.MTrade),
		OrderBooks: make(map[string]models.MOrderBook),
		Charts:     make(map[string]string),
	}
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			snap.Prices[sym] = p
		}
		if buf, ok := s.trades[sym]; ok && buf.Size() > 0 {
			snap.Trades[sym] = buf.GetAll()
		}
		if ob, ok := s.orderBooks[sym]; ok {
			snap.OrderBooks[sym] = ob
		}
		if tf, ok := s.charts[sym]; ok {
			snap.Charts[sym] = tf
		}
	}
	return snap
}
