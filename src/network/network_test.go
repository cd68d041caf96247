package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"market-stream/src/helpers"
	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

func newTestManager(t *testing.T, url string) *ConnectionManager {
	t.Helper()
	cfg := &models.MStreamConfig{
		URL:                  url,
		ConnectTimeoutMs:     1000,
		ReconnectDelaysMs:    []int{20, 40},
		MaxReconnectAttempts: 3,
	}
	m := NewConnectionManager(cfg, logger.NewNopLogger("network"))
	t.Cleanup(m.Disconnect)
	return m
}

type eventLog struct {
	mu     sync.Mutex
	events []models.ConnectionEvent
}

func (l *eventLog) record(e models.ConnectionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) states() []models.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.ConnectionState, len(l.events))
	for i, e := range l.events {
		out[i] = e.State
	}
	return out
}

func (l *eventLog) last() models.ConnectionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return models.ConnectionEvent{}
	}
	return l.events[len(l.events)-1]
}

// -----------------------------------------------------------------------------

func TestConnect_OpensAndAppendsToken(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	events := &eventLog{}
	m.OnConnection(events.record)

	require.NoError(t, m.Connect(context.Background(), "secret"))

	assert.Equal(t, models.StateConnected, m.State())
	assert.Equal(t, []models.ConnectionState{models.StateConnecting, models.StateConnected}, events.states())
	assert.Eventually(t, func() bool { return server.Connections() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"secret"}, server.Tokens())
}

func TestConnect_IsNoOpWhenConnected(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	require.NoError(t, m.Connect(context.Background(), ""))
	require.NoError(t, m.Connect(context.Background(), ""))

	assert.Equal(t, models.StateConnected, m.State())
	assert.Eventually(t, func() bool { return server.Connections() == 1 }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, server.Connections())
	assert.Empty(t, server.Requests())
}

func TestConnect_ConcurrentCallersShareOneAttempt(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Connect(context.Background(), "")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, server.Connections())
}

func TestConnect_FailureSetsErrorState(t *testing.T) {
	server := testutils.NewPushServer()
	server.Reject(true)
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	events := &eventLog{}
	m.OnConnection(events.record)

	err := m.Connect(context.Background(), "")
	require.Error(t, err)

	var connErr *helpers.ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.Equal(t, models.StateError, m.State())
	assert.NotEmpty(t, m.LastError())
	assert.Equal(t, models.StateError, events.last().State)
	assert.NotEmpty(t, events.last().Error)
}

func TestConnect_InvalidURL(t *testing.T) {
	m := newTestManager(t, "ws://127.0.0.1:1/ws")
	err := m.Connect(context.Background(), "")
	assert.Error(t, err)
	assert.Equal(t, models.StateError, m.State())
}

// -----------------------------------------------------------------------------

func TestDisconnect_StopsAndEmits(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	events := &eventLog{}
	m.OnConnection(events.record)

	require.NoError(t, m.Connect(context.Background(), ""))
	m.Disconnect()

	assert.Equal(t, models.StateDisconnected, m.State())
	assert.Equal(t, models.StateDisconnected, events.last().State)
	assert.Error(t, m.Send(models.MSubscriptionRequest{Type: models.MsgSubscribe}))

	// no automatic reconnect after an explicit disconnect
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, server.Connections())
}

func TestReconnect_AfterServerDrop(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	events := &eventLog{}
	m.OnConnection(events.record)

	require.NoError(t, m.Connect(context.Background(), "tok"))
	assert.Eventually(t, func() bool { return server.Connections() == 1 }, waitFor, tick)

	server.DropAll()

	assert.Eventually(t, func() bool {
		return server.Connections() == 2 && m.State() == models.StateConnected
	}, waitFor, tick)
	assert.Contains(t, events.states(), models.StateDisconnected)
	assert.Equal(t, []string{"tok", "tok"}, server.Tokens())
}

func TestReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	events := &eventLog{}
	m.OnConnection(events.record)

	require.NoError(t, m.Connect(context.Background(), ""))
	server.Reject(true)
	server.DropAll()

	assert.Eventually(t, func() bool {
		e := events.last()
		return e.State == models.StateError && e.Error == ErrMaxReconnectAttempts.Error()
	}, waitFor, tick)
	assert.Equal(t, models.StateError, m.State())
	assert.Equal(t, 1, server.Connections())
}

func TestReconnect_DisabledWithZeroAttempts(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	m.Config.MaxReconnectAttempts = 0

	require.NoError(t, m.Connect(context.Background(), ""))
	server.DropAll()

	assert.Eventually(t, func() bool { return m.State() == models.StateError }, waitFor, tick)
	assert.Equal(t, ErrMaxReconnectAttempts.Error(), m.LastError())
}

// -----------------------------------------------------------------------------

func TestMessages_DispatchedByType(t *testing.T) {
	server := testutils.NewPushServer()
	server.AutoAck = true
	defer server.Close()

	m := newTestManager(t, server.WSURL())

	var mu sync.Mutex
	var data, acks, errs []models.MInboundMessage
	m.OnData(func(msg models.MInboundMessage) { mu.Lock(); data = append(data, msg); mu.Unlock() })
	m.OnAck(func(msg models.MInboundMessage) { mu.Lock(); acks = append(acks, msg); mu.Unlock() })
	m.OnError(func(msg models.MInboundMessage) { mu.Lock(); errs = append(errs, msg); mu.Unlock() })

	require.NoError(t, m.Connect(context.Background(), ""))
	require.NoError(t, m.Send(models.MSubscriptionRequest{
		Type:     models.MsgSubscribe,
		Channels: []models.MChannel{{Symbol: "AAPL", DataTypes: []models.DataType{models.DataTypePrice}}},
	}))

	server.PushRaw("not json")
	server.Push(testutils.DataUpdate("AAPL", models.DataTypePrice, map[string]interface{}{"price": 150.25}))
	server.Push(models.MInboundMessage{Type: models.MsgError, Error: "bad channel"})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(data) == 1 && len(acks) == 1 && len(errs) == 1
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "AAPL", data[0].Symbol)
	assert.Equal(t, models.MsgSubscriptionAck, acks[0].Type)
	assert.Equal(t, "bad channel", errs[0].Error)
	assert.Equal(t, models.StateConnected, m.State())
}

func TestHeartbeat_SendsPing(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())
	m.heartbeatPeriod = 20 * time.Millisecond

	require.NoError(t, m.Connect(context.Background(), ""))

	assert.Eventually(t, func() bool { return server.Pings() >= 2 }, waitFor, tick)
	assert.GreaterOrEqual(t, m.PingMs(), int64(0))
	assert.Empty(t, server.Requests())
}

// -----------------------------------------------------------------------------

func TestObservers_PanicIsRecoveredAndCancelRemoves(t *testing.T) {
	server := testutils.NewPushServer()
	defer server.Close()

	m := newTestManager(t, server.WSURL())

	m.OnConnection(func(models.ConnectionEvent) { panic("boom") })
	events := &eventLog{}
	cancel := m.OnConnection(events.record)

	require.NoError(t, m.Connect(context.Background(), ""))
	assert.Equal(t, []models.ConnectionState{models.StateConnecting, models.StateConnected}, events.states())

	cancel()
	assert.Equal(t, 1, m.onConnection.len())

	m.Disconnect()
	assert.Len(t, events.states(), 2)
}

func TestSend_FailsWhenNotConnected(t *testing.T) {
	m := newTestManager(t, "ws://localhost:1/ws")
	err := m.Send(models.MSubscriptionRequest{Type: models.MsgPing})

	var connErr *helpers.ConnectionError
	assert.True(t, errors.As(err, &connErr))
}
