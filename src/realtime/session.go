package realtime

import (
	"context"
	"sync"

	"market-stream/src/interfaces"
	"market-stream/src/logger"
	"market-stream/src/models"
	"market-stream/src/network"
	"market-stream/src/router"
	"market-stream/src/store"
	"market-stream/src/subscription"
)

// -----------------------------------------------------------------------------
// Session wires the connection, multiplexer, router and store together.
// Create one at startup and pass it to whatever needs real-time data.
// -----------------------------------------------------------------------------

type Session struct {
	Config *models.MStreamConfig
	Logger *logger.Logger

	manager *network.ConnectionManager
	mux     *subscription.Multiplexer
	router  *router.Router
	store   *store.Store

	mu        sync.RWMutex
	lastEvent models.ConnectionEvent
	cancels   []func()
}

// -----------------------------------------------------------------------------

func NewSession(cfg *models.MStreamConfig, log *logger.Logger) *Session {
	st := store.NewStore(cfg.TradeBufferSize)
	manager := network.NewConnectionManager(cfg, log.Named("network"))
	mux := subscription.NewMultiplexer(manager, log.Named("subscription"))
	rt := router.NewRouter(st, log.Named("router"))

	s := &Session{
		Config:    cfg,
		Logger:    log,
		manager:   manager,
		mux:       mux,
		router:    rt,
		store:     st,
		lastEvent: models.ConnectionEvent{State: models.StateDisconnected},
	}

	// Registered once for the life of the session; reconnects reuse them
	s.cancels = []func(){
		manager.OnConnection(s.trackConnection),
		manager.OnConnection(mux.HandleConnection),
		manager.OnData(rt.HandleMessage),
		manager.OnError(s.handleServerError),
	}

	return s
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connect opens the push connection; an empty token falls back to the configured one
func (s *Session) Connect(ctx context.Context, token string) error {
	if token == "" {
		token = s.Config.Token
	}
	return s.manager.Connect(ctx, token)
}

// -----------------------------------------------------------------------------

// Disconnect closes the connection and drops all subscription interest
func (s *Session) Disconnect() {
	s.mux.Reset()
	s.manager.Disconnect()

	if s.Config.ClearOnDisconnect {
		s.store.ClearData()
	}
}

// -----------------------------------------------------------------------------

// Close disconnects and detaches the session's observers
func (s *Session) Close() {
	s.Disconnect()

	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// -----------------------------------------------------------------------------

func (s *Session) ConnectionState() models.ConnectionState {
	return s.manager.State()
}

// LastError returns the error text of the latest connection event
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent.Error
}

func (s *Session) PingMs() int64 {
	return s.manager.PingMs()
}

// OnConnection forwards connection events to h
func (s *Session) OnConnection(h network.ConnectionHandler) func() {
	return s.manager.OnConnection(h)
}

// OnData forwards raw data pushes to h after the router has seen them
func (s *Session) OnData(h network.MessageHandler) func() {
	return s.manager.OnData(h)
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func (s *Session) Subscribe(symbols []string, dataTypes []models.DataType) {
	s.mux.Subscribe(symbols, dataTypes)
}

func (s *Session) Unsubscribe(symbol string, dataTypes ...models.DataType) {
	s.mux.Unsubscribe(symbol, dataTypes...)
}

func (s *Session) UnsubscribeAll() {
	s.mux.UnsubscribeAll()
}

// Consumer returns an independent subscriber sharing this session's connection
func (s *Session) Consumer(id string) *subscription.Consumer {
	return s.mux.Consumer(id)
}

// Subscriptions returns the active wire subscription set
func (s *Session) Subscriptions() map[string][]models.DataType {
	return s.mux.Active()
}

// -----------------------------------------------------------------------------
// Data
// -----------------------------------------------------------------------------

func (s *Session) Store() *store.Store {
	return s.store
}

// AddSink attaches a downstream consumer of routed records
func (s *Session) AddSink(sink interfaces.IDataSink) {
	s.router.AddSink(sink)
}

func (s *Session) RouterStats() router.Stats {
	return s.router.Stats()
}

// -----------------------------------------------------------------------------
// Observers
// -----------------------------------------------------------------------------

func (s *Session) trackConnection(event models.ConnectionEvent) {
	s.mu.Lock()
	s.lastEvent = event
	s.mu.Unlock()

	s.Logger.Info("%s", describe(event))
}

func (s *Session) handleServerError(msg models.MInboundMessage) {
	s.Logger.Warning("Push server reported an error for %q: %s", msg.Symbol, msg.Error)
}

func describe(event models.ConnectionEvent) string {
	text := models.ConnectionMessages[event.State]
	if event.Error != "" {
		text += ": " + event.Error
	}
	return text
}
