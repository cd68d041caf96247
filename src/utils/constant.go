package utils

// -----------------------------------------------------------------------------

// DefaultTradeBufferSize is the per symbol trade feed limit.
const (
	DefaultTradeBufferSize = 20
)
