package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"market-stream/src/models"
	"market-stream/src/store"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

type atomicCounter struct{ v atomic.Int64 }

func (a *atomicCounter) set(n int)   { a.v.Store(int64(n)) }
func (a *atomicCounter) load() int64 { return a.v.Load() }

// -----------------------------------------------------------------------------

func relayMessage(msgType, symbol string, dataType models.DataType, data interface{}) (models.MInboundMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.MInboundMessage{}, err
	}
	return models.MInboundMessage{
		Type:      msgType,
		Symbol:    symbol,
		DataType:  dataType,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// -----------------------------------------------------------------------------

func ack(msgType string, symbols []string) models.MInboundMessage {
	return models.MInboundMessage{
		Type:      msgType,
		Symbol:    strings.Join(symbols, ","),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// -----------------------------------------------------------------------------

// snapshotMessages builds initial_data messages for what the store holds
func snapshotMessages(st *store.Store, symbols []string, dataTypes []models.DataType) []models.MInboundMessage {
	if len(symbols) == 0 {
		return nil
	}

	snap := st.Snapshot(symbols)
	wanted := models.NewDataTypeSet(dataTypes...)
	var out []models.MInboundMessage

	add := func(symbol string, dataType models.DataType, data interface{}) {
		if msg, err := relayMessage(models.MsgInitialData, symbol, dataType, data); err == nil {
			out = append(out, msg)
		}
	}

	for _, sym := range symbols {
		if p, ok := snap.Prices[sym]; ok && wanted.Has(models.DataTypePrice) {
			add(sym, models.DataTypePrice, p)
		}
		if trades, ok := snap.Trades[sym]; ok && wanted.Has(models.DataTypeTrades) {
			add(sym, models.DataTypeTrades, models.MTradesPayload{Trades: trades})
		}
		if book, ok := snap.OrderBooks[sym]; ok && wanted.Has(models.DataTypeOrderBook) {
			add(sym, models.DataTypeOrderBook, book)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// -----------------------------------------------------------------------------

func notFound(c *gin.Context, what, symbol string) {
	c.JSON(http.StatusNotFound, gin.H{"error": "no " + what + " for " + symbol})
}
