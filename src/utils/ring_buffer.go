package utils

import (
	"market-stream/src/models"
)

// -----------------------------------------------------------------------------
// TradeRingBuffer is a fixed-size circular buffer of trades.
// True ring buffer - the oldest trade is overwritten once full.
// -----------------------------------------------------------------------------

type TradeRingBuffer struct {
	data     []models.MTrade
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewTradeRingBuffer creates a new buffer with fixed capacity
func NewTradeRingBuffer(capacity int) *TradeRingBuffer {
	if capacity <= 0 {
		capacity = DefaultTradeBufferSize
	}

	return &TradeRingBuffer{
		data:     make([]models.MTrade, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds a trade, evicting the oldest one when full
func (rb *TradeRingBuffer) Append(trade models.MTrade) {
	rb.data[rb.index] = trade
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns up to n trades, newest first
func (rb *TradeRingBuffer) GetLatest(n int) []models.MTrade {
	if rb.size == 0 || n <= 0 {
		return []models.MTrade{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]models.MTrade, count)

	// Latest trade is at index-1
	for i := 0; i < count; i++ {
		idx := (rb.index - 1 - i + 2*rb.capacity) % rb.capacity
		result[i] = rb.data[idx]
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns every held trade, newest first
func (rb *TradeRingBuffer) GetAll() []models.MTrade {
	return rb.GetLatest(rb.size)
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *TradeRingBuffer) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *TradeRingBuffer) Capacity() int {
	return rb.capacity
}

// -----------------------------------------------------------------------------

// Resize changes the capacity of the buffer
// If newCapacity < size, oldest trades are dropped
func (rb *TradeRingBuffer) Resize(newCapacity int) {
	if newCapacity <= 0 || newCapacity == rb.capacity {
		return
	}

	// Newest first, keep only what fits
	kept := rb.GetLatest(newCapacity)

	newData := make([]models.MTrade, newCapacity)
	// Re-insert oldest to newest so index ends after the newest
	for i := 0; i < len(kept); i++ {
		newData[i] = kept[len(kept)-1-i]
	}

	rb.data = newData
	rb.capacity = newCapacity
	rb.size = len(kept)
	rb.index = rb.size % newCapacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (rb *TradeRingBuffer) IsFull() bool {
	return rb.size == rb.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the buffer
func (rb *TradeRingBuffer) Clear() {
	rb.data = make([]models.MTrade, rb.capacity)
	rb.index = 0
	rb.size = 0
}
