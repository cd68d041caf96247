package subscription

import (
	"testing"

	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	price     = models.DataTypePrice
	trades    = models.DataTypeTrades
	orderbook = models.DataTypeOrderBook
)

func newOnlineMux(t *testing.T) (*Multiplexer, *testutils.MockSender) {
	t.Helper()
	sender := testutils.NewMockSender()
	m := NewMultiplexer(sender, logger.NewNopLogger("subscription"))
	m.HandleConnection(models.ConnectionEvent{State: models.StateConnected})
	return m, sender
}

// -----------------------------------------------------------------------------

func TestSubscribe_SendsOnlyNewPairs(t *testing.T) {
	m, sender := newOnlineMux(t)

	m.Subscribe([]string{"AAPL", "MSFT"}, []models.DataType{price})
	m.Subscribe([]string{"AAPL"}, []models.DataType{price, trades})
	m.Subscribe([]string{"AAPL"}, []models.DataType{price})

	reqs := sender.Requests()
	require.Len(t, reqs, 2)

	assert.Equal(t, models.MsgSubscribe, reqs[0].Type)
	assert.Equal(t, []models.MChannel{
		{Symbol: "AAPL", DataTypes: []models.DataType{price}},
		{Symbol: "MSFT", DataTypes: []models.DataType{price}},
	}, reqs[0].Channels)

	assert.Equal(t, []models.MChannel{{Symbol: "AAPL", DataTypes: []models.DataType{trades}}}, reqs[1].Channels)
	assert.Equal(t, map[string][]models.DataType{
		"AAPL": {price, trades},
		"MSFT": {price},
	}, m.Active())
}

func TestSubscribe_IgnoresInvalidInput(t *testing.T) {
	m, sender := newOnlineMux(t)

	m.Subscribe([]string{"AAPL"}, []models.DataType{"bogus"})
	m.Subscribe([]string{"", "  "}, []models.DataType{price})

	assert.Empty(t, sender.Requests())
	assert.Empty(t, m.Symbols())
}

// -----------------------------------------------------------------------------

func TestUnsubscribe_RemovesSymbolWhenEmpty(t *testing.T) {
	m, sender := newOnlineMux(t)
	m.Subscribe([]string{"AAPL"}, []models.DataType{price, trades})
	sender.Reset()

	m.Unsubscribe("AAPL", trades)
	assert.Equal(t, []string{"AAPL"}, m.Symbols())

	m.Unsubscribe("AAPL")
	assert.Empty(t, m.Symbols())

	reqs := sender.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, models.MsgUnsubscribe, reqs[0].Type)
	assert.Equal(t, []models.MChannel{{Symbol: "AAPL", DataTypes: []models.DataType{trades}}}, reqs[0].Channels)
	assert.Equal(t, []models.MChannel{{Symbol: "AAPL", DataTypes: []models.DataType{price}}}, reqs[1].Channels)
}

func TestUnsubscribe_UnknownSymbolIsNoOp(t *testing.T) {
	m, sender := newOnlineMux(t)
	m.Unsubscribe("NOPE")
	assert.Empty(t, sender.Requests())
}

func TestUnsubscribe_RespectsOtherConsumers(t *testing.T) {
	m, sender := newOnlineMux(t)
	chart := m.Consumer("chart")
	tape := m.Consumer("tape")

	chart.Subscribe([]string{"AAPL"}, []models.DataType{price})
	tape.Subscribe([]string{"AAPL"}, []models.DataType{trades})
	sender.Reset()

	// chart withdraws without naming types; tape's trades stay on the wire
	chart.Unsubscribe("AAPL")
	assert.Equal(t, map[string][]models.DataType{"AAPL": {trades}}, m.Active())
	require.Len(t, sender.Requests(), 1)
	assert.Equal(t, []models.DataType{price}, sender.Requests()[0].Channels[0].DataTypes)

	tape.Unsubscribe("AAPL", trades)
	assert.Empty(t, m.Active())
	require.Len(t, sender.Requests(), 2)
	assert.Equal(t, []models.DataType{trades}, sender.Requests()[1].Channels[0].DataTypes)
}

func TestUnsubscribe_SharedTypeStaysWhileHeld(t *testing.T) {
	m, sender := newOnlineMux(t)
	a := m.Consumer("a")
	b := m.Consumer("b")

	a.Subscribe([]string{"AAPL"}, []models.DataType{price})
	b.Subscribe([]string{"AAPL"}, []models.DataType{price})
	require.Len(t, sender.Requests(), 1)

	a.Unsubscribe("AAPL", price)
	assert.True(t, m.Wants("AAPL", price))
	assert.Len(t, sender.Requests(), 1)

	b.Close()
	assert.False(t, m.Wants("AAPL", price))
	assert.Len(t, sender.Requests(), 2)
}

// -----------------------------------------------------------------------------

// Property: a symbol is tracked iff some consumer still wants a type for it.
func TestInterestMatchesConsumers(t *testing.T) {
	m, _ := newOnlineMux(t)
	consumers := []*Consumer{m.Consumer("a"), m.Consumer("b"), m.Consumer("c")}
	symbols := []string{"AAPL", "MSFT"}
	types := []models.DataType{price, trades, orderbook}

	step := 0
	for round := 0; round < 60; round++ {
		c := consumers[round%len(consumers)]
		sym := symbols[(round/3)%len(symbols)]
		dt := types[(round*7)%len(types)]

		if round%4 == 3 {
			c.Unsubscribe(sym, dt)
		} else if round%11 == 10 {
			c.Unsubscribe(sym)
		} else {
			c.Subscribe([]string{sym}, []models.DataType{dt})
		}
		step++

		for _, s := range symbols {
			wanted := false
			for _, cc := range consumers {
				if len(cc.Interest()[s]) > 0 {
					wanted = true
				}
			}
			_, tracked := m.Active()[s]
			assert.Equal(t, wanted, tracked, "step %d symbol %s", step, s)
		}
	}
}

// -----------------------------------------------------------------------------

func TestUnsubscribeAll_SendsSingleMessage(t *testing.T) {
	m, sender := newOnlineMux(t)
	m.Subscribe([]string{"AAPL", "MSFT"}, []models.DataType{price})
	m.Consumer("x").Subscribe([]string{"TSLA"}, []models.DataType{trades})
	sender.Reset()

	m.UnsubscribeAll()

	reqs := sender.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.MsgUnsubscribeAll, reqs[0].Type)
	assert.Empty(t, reqs[0].Channels)
	assert.Empty(t, m.Active())

	// nothing left to drop
	m.UnsubscribeAll()
	assert.Len(t, sender.Requests(), 1)
}

// -----------------------------------------------------------------------------

func TestOffline_QueuesAndReplaysOnConnect(t *testing.T) {
	sender := testutils.NewMockSender()
	m := NewMultiplexer(sender, logger.NewNopLogger("subscription"))

	m.Subscribe([]string{"AAPL"}, []models.DataType{price})
	m.Subscribe([]string{"MSFT"}, []models.DataType{trades, orderbook})
	m.Unsubscribe("MSFT", orderbook)
	assert.Empty(t, sender.Requests())

	m.HandleConnection(models.ConnectionEvent{State: models.StateConnected})

	reqs := sender.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.MsgSubscribe, reqs[0].Type)
	assert.Equal(t, []models.MChannel{
		{Symbol: "AAPL", DataTypes: []models.DataType{price}},
		{Symbol: "MSFT", DataTypes: []models.DataType{trades}},
	}, reqs[0].Channels)
}

func TestReconnect_ReplaysUnion(t *testing.T) {
	m, sender := newOnlineMux(t)
	m.Subscribe([]string{"AAPL"}, []models.DataType{price})

	m.HandleConnection(models.ConnectionEvent{State: models.StateDisconnected, Error: "EOF"})
	m.Subscribe([]string{"AAPL"}, []models.DataType{trades})
	assert.Len(t, sender.Requests(), 1)

	m.HandleConnection(models.ConnectionEvent{State: models.StateConnecting})
	m.HandleConnection(models.ConnectionEvent{State: models.StateConnected})

	reqs := sender.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []models.MChannel{{Symbol: "AAPL", DataTypes: []models.DataType{price, trades}}}, reqs[1].Channels)
}

func TestReset_ClearsWithoutTraffic(t *testing.T) {
	m, sender := newOnlineMux(t)
	m.Subscribe([]string{"AAPL"}, []models.DataType{price})
	sender.Reset()

	m.Reset()
	assert.Empty(t, m.Symbols())
	assert.Empty(t, sender.Requests())

	// a fresh connect starts from an empty set
	m.HandleConnection(models.ConnectionEvent{State: models.StateConnected})
	assert.Empty(t, sender.Requests())
}

func TestSendFailure_KeepsInterest(t *testing.T) {
	m, sender := newOnlineMux(t)
	sender.Fail = true

	m.Subscribe([]string{"AAPL"}, []models.DataType{price})
	assert.Equal(t, []string{"AAPL"}, m.Symbols())

	sender.Fail = false
	m.HandleConnection(models.ConnectionEvent{State: models.StateConnected})
	require.Len(t, sender.Requests(), 1)
}

func TestConsumer_InterestAndWants(t *testing.T) {
	m, _ := newOnlineMux(t)
	c := m.Consumer("relay-1")
	assert.Equal(t, "relay-1", c.ID())

	c.Subscribe([]string{"AAPL", "AAPL"}, []models.DataType{orderbook, price})
	m.Subscribe([]string{"MSFT"}, []models.DataType{price})

	assert.Equal(t, map[string][]models.DataType{"AAPL": {orderbook, price}}, c.Interest())
	assert.True(t, c.Wants("AAPL", price))
	assert.False(t, c.Wants("MSFT", price))
	assert.True(t, m.Wants("MSFT", price))
}
