package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMICForSymbol(t *testing.T) {
	assert.Equal(t, "xnys", MICForSymbol("AAPL"))
	assert.Equal(t, "xlon", MICForSymbol("VOD.L"))
	assert.Equal(t, "xtks", MICForSymbol("7203.T"))
	assert.Equal(t, "xnys", MICForSymbol("BRK.B"))
	assert.Equal(t, "", MICForSymbol("BTCUSDT"))
	assert.Equal(t, "", MICForSymbol("eth/usd"))
}

func TestCryptoAlwaysOpen(t *testing.T) {
	cal := GetCalendar("BTCUSDT")
	sunday := time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)
	assert.True(t, cal.IsOpen(sunday))
}

func TestWeekdayFallback(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	cal := &TradingCalendar{Timezone: ny}

	assert.True(t, cal.IsOpen(time.Date(2026, 10, 14, 10, 0, 0, 0, ny)))
	assert.False(t, cal.IsOpen(time.Date(2026, 10, 14, 9, 0, 0, 0, ny)))
	assert.False(t, cal.IsOpen(time.Date(2026, 10, 17, 12, 0, 0, 0, ny)))
}

func TestMarketSessionAnyOpen(t *testing.T) {
	ms := NewMarketSession()
	ms.now = func() time.Time { return time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC) }

	assert.True(t, ms.AnyOpen([]string{"AAPL", "BTCUSDT"}))
	assert.False(t, ms.AnyOpen([]string{"AAPL"}))
	assert.False(t, ms.AnyOpen(nil))
}
