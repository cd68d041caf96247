package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-stream/src/models"
)

func trade(i int) models.MTrade {
	return models.MTrade{TradeID: fmt.Sprintf("t%d", i), Symbol: "AAPL", Price: float64(i)}
}

func TestTradeRingBufferKeepsLastCapacityNewestFirst(t *testing.T) {
	rb := NewTradeRingBuffer(20)
	for i := 1; i <= 25; i++ {
		rb.Append(trade(i))
	}

	all := rb.GetAll()
	require.Len(t, all, 20)
	assert.Equal(t, "t25", all[0].TradeID)
	assert.Equal(t, "t6", all[19].TradeID)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].Price, all[i].Price)
	}
	assert.True(t, rb.IsFull())
}

func TestTradeRingBufferNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 3, 50} {
		rb := NewTradeRingBuffer(capacity)
		for i := 0; i < capacity*4+1; i++ {
			rb.Append(trade(i))
			assert.LessOrEqual(t, rb.Size(), capacity)
		}
	}
}

func TestTradeRingBufferPartial(t *testing.T) {
	rb := NewTradeRingBuffer(5)
	rb.Append(trade(1))
	rb.Append(trade(2))

	assert.Equal(t, []models.MTrade{trade(2), trade(1)}, rb.GetAll())
	assert.Equal(t, []models.MTrade{trade(2)}, rb.GetLatest(1))
	assert.Empty(t, rb.GetLatest(0))
}

func TestTradeRingBufferResize(t *testing.T) {
	rb := NewTradeRingBuffer(5)
	for i := 1; i <= 5; i++ {
		rb.Append(trade(i))
	}

	rb.Resize(3)
	assert.Equal(t, []models.MTrade{trade(5), trade(4), trade(3)}, rb.GetAll())

	rb.Append(trade(6))
	assert.Equal(t, []models.MTrade{trade(6), trade(5), trade(4)}, rb.GetAll())

	rb.Resize(6)
	rb.Append(trade(7))
	assert.Equal(t, []models.MTrade{trade(7), trade(6), trade(5), trade(4)}, rb.GetAll())
}

func TestTradeRingBufferClear(t *testing.T) {
	rb := NewTradeRingBuffer(0)
	assert.Equal(t, DefaultTradeBufferSize, rb.Capacity())

	rb.Append(trade(1))
	rb.Clear()
	assert.Zero(t, rb.Size())
	assert.Empty(t, rb.GetAll())
}
