package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-stream/src/models"
)

func TestUpdatePriceLastWriteWins(t *testing.T) {
	s := NewStore(20)
	s.UpdatePrice("AAPL", models.MRealTimePrice{Price: 150.25})
	s.UpdatePrice("AAPL", models.MRealTimePrice{Price: 151})

	p, ok := s.Price("AAPL")
	require.True(t, ok)
	assert.Equal(t, 151.0, p.Price)
	assert.Equal(t, "AAPL", p.Symbol)
}

func TestAddTradeBoundedNewestFirst(t *testing.T) {
	s := NewStore(20)
	for i := 1; i <= 25; i++ {
		s.AddTrade("AAPL", models.MTrade{TradeID: fmt.Sprintf("t%d", i)})
	}

	trades := s.Trades("AAPL")
	require.Len(t, trades, 20)
	assert.Equal(t, "t25", trades[0].TradeID)
	assert.Equal(t, "t6", trades[19].TradeID)
	assert.Empty(t, s.Trades("MSFT"))
}

func TestUpdateOrderBookIdempotent(t *testing.T) {
	book := models.MOrderBook{
		Bids: []models.MPriceLevel{{Price: 99.5, Size: 10}, {Price: 99, Size: 4}},
		Asks: []models.MPriceLevel{{Price: 100, Size: 3}},
	}

	once := NewStore(20)
	once.UpdateOrderBook("AAPL", book)

	twice := NewStore(20)
	twice.UpdateOrderBook("AAPL", book)
	twice.UpdateOrderBook("AAPL", book)

	assert.Equal(t, once.Snapshot(nil), twice.Snapshot(nil))
}

func TestUpdateOrderBookReplacesWholesale(t *testing.T) {
	s := NewStore(20)
	s.UpdateOrderBook("AAPL", models.MOrderBook{
		Bids: []models.MPriceLevel{{Price: 1, Size: 1}, {Price: 0.5, Size: 1}},
	})
	s.UpdateOrderBook("AAPL", models.MOrderBook{
		Asks: []models.MPriceLevel{{Price: 2, Size: 1}},
	})

	ob, ok := s.OrderBook("AAPL")
	require.True(t, ok)
	assert.Empty(t, ob.Bids)
	assert.Len(t, ob.Asks, 1)
}

func TestOrderBookReadIsACopy(t *testing.T) {
	s := NewStore(20)
	s.UpdateOrderBook("AAPL", models.MOrderBook{Bids: []models.MPriceLevel{{Price: 1, Size: 1}}})

	ob, _ := s.OrderBook("AAPL")
	ob.Bids[0].Price = 42

	again, _ := s.OrderBook("AAPL")
	assert.Equal(t, 1.0, again.Bids[0].Price)
}

func TestClearDataSingleSymbol(t *testing.T) {
	s := NewStore(20)
	for _, sym := range []string{"AAPL", "MSFT"} {
		s.UpdatePrice(sym, models.MRealTimePrice{Price: 1})
		s.AddTrade(sym, models.MTrade{TradeID: "x"})
		s.UpdateOrderBook(sym, models.MOrderBook{})
		s.SetChartTimeframe(sym, "1h")
	}

	s.ClearData("AAPL")

	_, ok := s.Price("AAPL")
	assert.False(t, ok)
	assert.Empty(t, s.Trades("AAPL"))
	_, ok = s.OrderBook("AAPL")
	assert.False(t, ok)
	_, ok = s.ChartTimeframe("AAPL")
	assert.False(t, ok)

	assert.Equal(t, []string{"MSFT"}, s.Symbols())
}

func TestClearDataAll(t *testing.T) {
	s := NewStore(20)
	s.UpdatePrice("AAPL", models.MRealTimePrice{Price: 1})
	s.SetChartTimeframe("MSFT", "5m")

	s.ClearData()
	assert.Empty(t, s.Symbols())
	assert.Empty(t, s.Prices())
}

func TestSnapshotFiltersSymbols(t *testing.T) {
	s := NewStore(5)
	s.UpdatePrice("AAPL", models.MRealTimePrice{Price: 1})
	s.UpdatePrice("MSFT", models.MRealTimePrice{Price: 2})
	s.AddTrade("AAPL", models.MTrade{TradeID: "a"})

	snap := s.Snapshot([]string{"AAPL"})
	assert.Len(t, snap.Prices, 1)
	assert.Len(t, snap.Trades["AAPL"], 1)
	assert.NotContains(t, snap.Prices, "MSFT")
}

func TestConcurrentReadersWithSingleWriter(t *testing.T) {
	s := NewStore(10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.AddTrade("AAPL", models.MTrade{TradeID: fmt.Sprint(i)})
			s.UpdatePrice("AAPL", models.MRealTimePrice{Price: float64(i)})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				assert.LessOrEqual(t, len(s.Trades("AAPL")), 10)
				s.Prices()
			}
		}()
	}
	wg.Wait()
}
