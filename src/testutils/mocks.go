package testutils

import (
	"errors"
	"sync"

	"market-stream/src/models"
)

// MockSender records outbound requests instead of writing them to a socket
type MockSender struct {
	Mu       sync.Mutex
	Sent     []models.MSubscriptionRequest
	StateVal models.ConnectionState
	Fail     bool
}

func NewMockSender() *MockSender {
	return &MockSender{StateVal: models.StateConnected}
}

func (m *MockSender) Send(msg interface{}) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Fail {
		return errors.New("mock send failure")
	}
	if req, ok := msg.(models.MSubscriptionRequest); ok {
		m.Sent = append(m.Sent, req)
	}
	return nil
}

func (m *MockSender) State() models.ConnectionState {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.StateVal
}

// Requests returns a copy of every recorded request
func (m *MockSender) Requests() []models.MSubscriptionRequest {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.MSubscriptionRequest(nil), m.Sent...)
}

// Reset forgets recorded requests
func (m *MockSender) Reset() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Sent = nil
}

// -----------------------------------------------------------------------------

// RecordingSink collects everything the router forwards
type RecordingSink struct {
	Mu         sync.Mutex
	NameVal    string
	Prices     []models.MRealTimePrice
	Trades     []models.MTrade
	OrderBooks []models.MOrderBook
}

func NewRecordingSink(name string) *RecordingSink {
	return &RecordingSink{NameVal: name}
}

func (s *RecordingSink) Name() string { return s.NameVal }

func (s *RecordingSink) OnPrice(price models.MRealTimePrice) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Prices = append(s.Prices, price)
}

func (s *RecordingSink) OnTrades(symbol string, trades []models.MTrade) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Trades = append(s.Trades, trades...)
}

func (s *RecordingSink) OnOrderBook(book models.MOrderBook) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.OrderBooks = append(s.OrderBooks, book)
}

// Counts returns the number of prices, trades and order books received
func (s *RecordingSink) Counts() (int, int, int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return len(s.Prices), len(s.Trades), len(s.OrderBooks)
}
