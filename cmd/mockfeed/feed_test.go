package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"market-stream/src/logger"
	"market-stream/src/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startFeed(t *testing.T, token string) string {
	t.Helper()
	f := &feed{
		logger:   logger.NewNopLogger("mockfeed"),
		gen:      newGenerator(1),
		interval: 20 * time.Millisecond,
		token:    token,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/realtime/"
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string) models.MInboundMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg models.MInboundMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == kind {
			return msg
		}
	}
}

// -----------------------------------------------------------------------------

func TestFeed_SubscribeSendsSnapshotThenUpdates(t *testing.T) {
	conn, _, err := websocket.DefaultDialer.Dial(startFeed(t, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.MSubscriptionRequest{
		Type:     models.MsgSubscribe,
		Channels: []models.MChannel{{Symbol: "AAPL", DataTypes: []models.DataType{models.DataTypePrice}}},
	}))

	readUntil(t, conn, models.MsgSubscriptionAck)
	initial := readUntil(t, conn, models.MsgInitialData)
	assert.Equal(t, "AAPL", initial.Symbol)

	update := readUntil(t, conn, models.MsgDataUpdate)
	assert.Equal(t, models.DataTypePrice, update.DataType)
	assert.NotEmpty(t, update.Data)

	require.NoError(t, conn.WriteJSON(models.MSubscriptionRequest{Type: models.MsgPing}))
	readUntil(t, conn, models.MsgPong)
}

func TestFeed_RejectsWrongToken(t *testing.T) {
	url := startFeed(t, "secret")

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=secret", nil)
	require.NoError(t, err)
	conn.Close()
}

func TestGenerator_OrderBookIsSorted(t *testing.T) {
	book := newGenerator(7).orderBook("MSFT", 5)
	require.Len(t, book.Bids, 5)
	require.Len(t, book.Asks, 5)
	for i := 1; i < 5; i++ {
		assert.Greater(t, book.Bids[i-1].Price, book.Bids[i].Price)
		assert.Less(t, book.Asks[i-1].Price, book.Asks[i].Price)
	}
	assert.Nil(t, newGenerator(7).payload("MSFT", models.DataTypeChart))
}
