package utils

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// Exchange suffix to ISO 10383 MIC code. Symbols without a suffix trade on NYSE hours.
var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".MI": "xmil",
	".MC": "xmad",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
	".SS": "xshg",
	".SZ": "xshe",
}

const defaultMIC = "xnys"

// -----------------------------------------------------------------------------

// TradingCalendar answers session questions for one exchange.
// AlwaysOpen is set for 24/7 crypto pairs.
type TradingCalendar struct {
	MIC        string
	Calendar   *calendar.Calendar
	AlwaysOpen bool
	Timezone   *time.Location
}

// -----------------------------------------------------------------------------

// MICForSymbol maps a symbol to the exchange whose hours apply to it.
func MICForSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	if IsCryptoPair(upper) {
		return ""
	}
	if i := strings.LastIndex(upper, "."); i > 0 {
		if mic, ok := suffixMIC[upper[i:]]; ok {
			return mic
		}
	}
	return defaultMIC
}

// -----------------------------------------------------------------------------

// IsCryptoPair reports quote-currency suffixed pairs such as BTCUSDT or ETH/USD.
func IsCryptoPair(symbol string) bool {
	upper := strings.ToUpper(symbol)
	if strings.Contains(upper, "/") {
		return true
	}
	for _, quote := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// GetCalendar loads the calendar for a symbol, falling back to NYSE, then to a weekday rule.
func GetCalendar(symbol string) *TradingCalendar {
	mic := MICForSymbol(symbol)
	if mic == "" {
		return &TradingCalendar{AlwaysOpen: true, Timezone: time.UTC}
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		mic = defaultMIC
		cal = calendar.GetCalendar(mic)
	}
	if cal == nil {
		nyLoc, err := time.LoadLocation("America/New_York")
		if err != nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{MIC: mic, Timezone: nyLoc}
	}

	return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

// IsOpen checks if the market is open at t.
func (tc *TradingCalendar) IsOpen(t time.Time) bool {
	if tc.AlwaysOpen {
		return true
	}
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Calendar != nil {
		return tc.Calendar.IsOpen(t)
	}

	// Weekday fallback: 09:30 - 16:00 local
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
