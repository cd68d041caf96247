package realtime

import (
	"context"
	"testing"
	"time"

	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

func newTestSession(t *testing.T, server *testutils.PushServer) *Session {
	t.Helper()
	cfg := &models.MStreamConfig{
		URL:                  server.WSURL(),
		Token:                "cfg-token",
		ConnectTimeoutMs:     1000,
		ReconnectDelaysMs:    []int{20},
		MaxReconnectAttempts: 5,
		TradeBufferSize:      20,
		ClearOnDisconnect:    true,
	}
	s := NewSession(cfg, logger.NewNopLogger("realtime"))
	t.Cleanup(s.Close)
	return s
}

// -----------------------------------------------------------------------------

func TestSession_PriceScenario(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()
	s := newTestSession(t, server)

	require.NoError(t, s.Connect(context.Background(), ""))
	s.Subscribe([]string{"AAPL"}, []models.DataType{models.DataTypePrice})

	assert.Eventually(t, func() bool { return len(server.Requests()) == 1 }, waitFor, tick)
	server.Push(testutils.DataUpdate("AAPL", models.DataTypePrice, map[string]interface{}{
		"price": 150.25, "changePercent": 0.5, "volume": 1200, "timestamp": 1700000000,
	}))

	assert.Eventually(t, func() bool {
		p, ok := s.Store().Price("AAPL")
		return ok && p.Price == 150.25
	}, waitFor, tick)
	assert.Equal(t, []string{"cfg-token"}, server.Tokens())
	assert.Equal(t, int64(1), s.RouterStats().Dispatched)
}

func TestSession_ConnectWhileConnectedSendsNoDuplicates(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()
	s := newTestSession(t, server)

	require.NoError(t, s.Connect(context.Background(), ""))
	s.Subscribe([]string{"AAPL"}, []models.DataType{models.DataTypePrice})
	assert.Eventually(t, func() bool { return len(server.Requests()) == 1 }, waitFor, tick)

	require.NoError(t, s.Connect(context.Background(), ""))
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, server.Requests(), 1)
	assert.Equal(t, 1, server.Connections())
	assert.Equal(t, models.StateConnected, s.ConnectionState())
}

func TestSession_SubscribeBeforeConnectIsReplayed(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()
	s := newTestSession(t, server)

	s.Subscribe([]string{"AAPL", "MSFT"}, []models.DataType{models.DataTypePrice, models.DataTypeTrades})
	require.NoError(t, s.Connect(context.Background(), "explicit"))

	assert.Eventually(t, func() bool { return len(server.Requests()) == 1 }, waitFor, tick)
	req := server.Requests()[0]
	assert.Equal(t, models.MsgSubscribe, req.Type)
	assert.Len(t, req.Channels, 2)
	assert.Equal(t, []string{"explicit"}, server.Tokens())
}

func TestSession_ReconnectReplaysSubscriptions(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()
	s := newTestSession(t, server)

	require.NoError(t, s.Connect(context.Background(), ""))
	s.Subscribe([]string{"AAPL"}, []models.DataType{models.DataTypeTrades})
	assert.Eventually(t, func() bool { return len(server.Requests()) == 1 }, waitFor, tick)

	server.DropAll()

	assert.Eventually(t, func() bool {
		return server.Connections() == 2 && len(server.Requests()) == 2
	}, waitFor, tick)
	assert.Equal(t, []models.MChannel{
		{Symbol: "AAPL", DataTypes: []models.DataType{models.DataTypeTrades}},
	}, server.Requests()[1].Channels)
}

func TestSession_DisconnectClearsStateAndInterest(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()
	s := newTestSession(t, server)

	require.NoError(t, s.Connect(context.Background(), ""))
	s.Subscribe([]string{"AAPL"}, []models.DataType{models.DataTypePrice})
	server.Push(testutils.DataUpdate("AAPL", models.DataTypePrice, map[string]interface{}{"price": 1.0}))
	assert.Eventually(t, func() bool { _, ok := s.Store().Price("AAPL"); return ok }, waitFor, tick)

	s.Disconnect()

	assert.Equal(t, models.StateDisconnected, s.ConnectionState())
	assert.Empty(t, s.Subscriptions())
	assert.Empty(t, s.Store().Symbols())

	// a later connect starts from an empty subscription set
	require.NoError(t, s.Connect(context.Background(), ""))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, server.Requests(), 1)
}

func TestSession_ConnectFailureRecordsError(t *testing.T) {
	server := testutils.NewPushServer()
	server.Reject(true)
	defer server.Close()
	s := newTestSession(t, server)

	require.Error(t, s.Connect(context.Background(), ""))
	assert.Equal(t, models.StateError, s.ConnectionState())
	assert.NotEmpty(t, s.LastError())

	server.Reject(false)
	require.NoError(t, s.Connect(context.Background(), ""))
	assert.Empty(t, s.LastError())
}

func TestSession_ConsumersShareConnection(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()
	s := newTestSession(t, server)
	require.NoError(t, s.Connect(context.Background(), ""))

	a := s.Consumer("a")
	b := s.Consumer("b")
	a.Subscribe([]string{"AAPL"}, []models.DataType{models.DataTypePrice})
	b.Subscribe([]string{"AAPL"}, []models.DataType{models.DataTypeTrades})
	a.Unsubscribe("AAPL")

	assert.Equal(t, map[string][]models.DataType{"AAPL": {models.DataTypeTrades}}, s.Subscriptions())
	assert.Eventually(t, func() bool { return len(server.Requests()) == 3 }, waitFor, tick)
	assert.Equal(t, models.MsgUnsubscribe, server.Requests()[2].Type)
}
