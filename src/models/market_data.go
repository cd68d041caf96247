package models

// MRealTimePrice is the latest quote for a symbol.
type MRealTimePrice struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price" validate:"gte=0"`
	ChangePercent float64 `json:"changePercent"`
	Volume        float64 `json:"volume" validate:"gte=0"`
	Timestamp     int64   `json:"timestamp"`
}

// MTrade is a single executed trade.
type MTrade struct {
	TradeID   string  `json:"tradeId"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	IsBuy     bool    `json:"isBuy"`
	Timestamp int64   `json:"timestamp"`
	Exchange  string  `json:"exchange"`
}

// MPriceLevel is one row of an order book side.
type MPriceLevel struct {
	Price float64 `json:"price" validate:"gte=0"`
	Size  float64 `json:"size" validate:"gte=0"`
}

// MOrderBook is a full depth snapshot. Bids are best (highest) first, asks best (lowest) first.
type MOrderBook struct {
	Symbol    string        `json:"symbol"`
	Bids      []MPriceLevel `json:"bids" validate:"dive"`
	Asks      []MPriceLevel `json:"asks" validate:"dive"`
	Timestamp int64         `json:"timestamp"`
}

// MTradesPayload is the data section of a trades push.
type MTradesPayload struct {
	Trades []MTrade `json:"trades" validate:"required,dive"`
}

// MSnapshot is the state held for a set of symbols at one instant.
type MSnapshot struct {
	Prices     map[string]MRealTimePrice `json:"prices"`
	Trades     map[string][]MTrade       `json:"trades"`
	OrderBooks map[string]MOrderBook     `json:"orderBooks"`
	Charts     map[string]string         `json:"charts"`
}
