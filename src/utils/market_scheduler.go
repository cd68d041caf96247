package utils

import (
	"sync"
	"time"
)

// MarketSession caches calendars per symbol and reports open markets.
type MarketSession struct {
	calendars map[string]*TradingCalendar
	mu        sync.Mutex
	now       func() time.Time
}

// -----------------------------------------------------------------------------

func NewMarketSession() *MarketSession {
	return &MarketSession{
		calendars: make(map[string]*TradingCalendar),
		now:       time.Now,
	}
}

// -----------------------------------------------------------------------------

func (ms *MarketSession) calendarFor(symbol string) *TradingCalendar {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if cal, ok := ms.calendars[symbol]; ok {
		return cal
	}
	cal := GetCalendar(symbol)
	ms.calendars[symbol] = cal
	return cal
}

// -----------------------------------------------------------------------------

// OpenMarkets returns, per symbol, whether its market is currently open.
func (ms *MarketSession) OpenMarkets(symbols []string) map[string]bool {
	now := ms.now().UTC()
	out := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		out[sym] = ms.calendarFor(sym).IsOpen(now)
	}
	return out
}

// -----------------------------------------------------------------------------

// AnyOpen checks if ANY of the symbols' markets are currently open
func (ms *MarketSession) AnyOpen(symbols []string) bool {
	for _, open := range ms.OpenMarkets(symbols) {
		if open {
			return true
		}
	}
	return false
}
