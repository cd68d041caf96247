package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"market-stream/src/helpers"
	"market-stream/src/logger"
	"market-stream/src/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1024 * 1024 // 1MB for order book snapshots
)

// ErrMaxReconnectAttempts is reported once automatic reconnection gives up.
var ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")

// -----------------------------------------------------------------------------
// ConnectionManager owns the single WebSocket connection to the push endpoint.
// -----------------------------------------------------------------------------

type ConnectionManager struct {
	Config *models.MStreamConfig
	Logger *logger.Logger
	Dialer *websocket.Dialer

	errs            *helpers.ErrorHandler
	delays          []time.Duration
	connectTimeout  time.Duration
	heartbeatPeriod time.Duration

	mu                sync.Mutex
	state             models.ConnectionState
	lastError         string
	conn              *websocket.Conn
	token             string
	pending           *connectAttempt
	generation        uint64
	autoReconnect     bool
	reconnectAttempts int
	reconnectTimer    *time.Timer
	stopHeartbeat     chan struct{}
	pingSentAt        time.Time
	pingRTT           time.Duration

	writeMu sync.Mutex

	onConnection registry[ConnectionHandler]
	onData       registry[MessageHandler]
	onError      registry[MessageHandler]
	onAck        registry[MessageHandler]
}

type connectAttempt struct {
	done chan struct{}
	once sync.Once
	err  error
}

func (a *connectAttempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// -----------------------------------------------------------------------------

func NewConnectionManager(cfg *models.MStreamConfig, log *logger.Logger) *ConnectionManager {
	connectTimeout := time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	return &ConnectionManager{
		Config: cfg,
		Logger: log,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: connectTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
		errs:            helpers.NewErrorHandler(log),
		delays:          helpers.MillisToDurations(cfg.ReconnectDelaysMs),
		connectTimeout:  connectTimeout,
		heartbeatPeriod: time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
		state:           models.StateDisconnected,
	}
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Connect opens the connection and blocks until it is open or has failed.
// It is a no-op when already connected; concurrent callers share one attempt.
func (m *ConnectionManager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	m.autoReconnect = true
	m.reconnectAttempts = 0
	if token != "" {
		m.token = token
	}
	token = m.token
	m.mu.Unlock()

	return m.connect(ctx, token)
}

// -----------------------------------------------------------------------------

// Disconnect closes the connection and cancels any pending reconnect.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	m.autoReconnect = false
	m.generation++
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()

	conn := m.conn
	m.conn = nil
	pending := m.pending
	m.pending = nil
	m.lastError = ""
	m.state = models.StateDisconnected
	m.mu.Unlock()

	if pending != nil {
		pending.finish(helpers.NewConnectionError("connection attempt cancelled by disconnect", nil))
	}

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Client disconnecting"),
			time.Now().Add(writeWait),
		)
		m.writeMu.Unlock()
		conn.Close()
		m.Logger.Info("Disconnected from %s", m.Config.URL)
	}

	m.emitConnection(models.ConnectionEvent{State: models.StateDisconnected})
}

// -----------------------------------------------------------------------------

// State returns the current connection state
func (m *ConnectionManager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// -----------------------------------------------------------------------------

// LastError returns the message of the last connection failure, if any
func (m *ConnectionManager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// -----------------------------------------------------------------------------

// PingMs returns the last heartbeat round trip in milliseconds (0 before the first pong)
func (m *ConnectionManager) PingMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingRTT.Milliseconds()
}

// -----------------------------------------------------------------------------

// Send writes msg as JSON on the open connection
func (m *ConnectionManager) Send(msg interface{}) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if conn == nil || state != models.StateConnected {
		return helpers.NewConnectionError("cannot send: not connected", nil)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return helpers.NewConnectionError("write failed", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

func (m *ConnectionManager) connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.state == models.StateConnected {
		m.mu.Unlock()
		return nil
	}
	if attempt := m.pending; attempt != nil {
		m.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.stopReconnectLocked()
	attempt := &connectAttempt{done: make(chan struct{})}
	m.pending = attempt
	m.generation++
	gen := m.generation
	m.state = models.StateConnecting
	m.mu.Unlock()

	m.emitConnection(models.ConnectionEvent{State: models.StateConnecting})

	endpoint, err := m.endpoint(token)
	var conn *websocket.Conn
	if err == nil {
		dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		conn, _, err = m.Dialer.DialContext(dialCtx, endpoint, nil)
		cancel()
	}

	m.mu.Lock()
	if gen != m.generation {
		// Disconnect won the race; it already finished the attempt
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		<-attempt.done
		return attempt.err
	}
	m.pending = nil

	if err != nil {
		cerr := helpers.NewConnectionError("websocket connection failed", err)
		m.state = models.StateError
		m.lastError = cerr.Error()
		m.mu.Unlock()

		m.Logger.Warning("Connect to %s failed: %v", m.Config.URL, err)
		attempt.finish(cerr)
		m.emitConnection(models.ConnectionEvent{State: models.StateError, Error: cerr.Error()})
		return cerr
	}

	conn.SetReadLimit(maxMessageSize)
	m.conn = conn
	m.reconnectAttempts = 0
	m.lastError = ""
	m.state = models.StateConnected
	stop := make(chan struct{})
	m.stopHeartbeat = stop
	m.mu.Unlock()

	m.Logger.Info("Connected to %s", m.Config.URL)
	attempt.finish(nil)

	go m.readLoop(conn, gen)
	if m.heartbeatPeriod > 0 {
		go m.heartbeat(stop)
	}

	m.emitConnection(models.ConnectionEvent{State: models.StateConnected})
	return nil
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) endpoint(token string) (string, error) {
	u, err := url.Parse(m.Config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid stream url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// -----------------------------------------------------------------------------

// readLoop - handles incoming messages until the connection drops
func (m *ConnectionManager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, gen, err)
			return
		}
		m.handleMessage(data)
	}
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) handleMessage(data []byte) {
	var msg models.MInboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.errs.Handle(helpers.NewMalformedMessageError("failed to parse push message", err), "readLoop")
		return
	}

	switch msg.Type {
	case models.MsgDataUpdate, models.MsgInitialData:
		m.emitMessage(&m.onData, "data", msg)

	case models.MsgSubscriptionAck, models.MsgUnsubscribeAck:
		m.emitMessage(&m.onAck, "ack", msg)

	case models.MsgPong:
		m.mu.Lock()
		if !m.pingSentAt.IsZero() {
			m.pingRTT = time.Since(m.pingSentAt)
		}
		m.mu.Unlock()

	case models.MsgError:
		m.Logger.Error("Server error: %s", msg.Error)
		m.emitMessage(&m.onError, "error", msg)

	default:
		m.Logger.Debug("Ignoring message type %q", msg.Type)
	}
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) handleClose(conn *websocket.Conn, gen uint64, readErr error) {
	m.mu.Lock()
	if gen != m.generation || m.conn != conn {
		// Closed by Disconnect or superseded
		m.mu.Unlock()
		return
	}

	m.conn = nil
	m.stopHeartbeatLocked()
	conn.Close()

	event := models.ConnectionEvent{State: models.StateDisconnected}
	if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		event.Error = readErr.Error()
		m.lastError = event.Error
	}
	m.state = models.StateDisconnected

	retry := m.autoReconnect && m.reconnectAttempts < m.Config.MaxReconnectAttempts
	if retry {
		m.scheduleReconnectLocked()
	} else {
		m.state = models.StateError
		m.lastError = ErrMaxReconnectAttempts.Error()
	}
	m.mu.Unlock()

	m.Logger.Warning("Connection lost: %v", readErr)
	m.emitConnection(event)

	if !retry {
		m.emitConnection(models.ConnectionEvent{State: models.StateError, Error: ErrMaxReconnectAttempts.Error()})
	}
}

// -----------------------------------------------------------------------------
// Reconnection
// -----------------------------------------------------------------------------

func (m *ConnectionManager) scheduleReconnectLocked() {
	delay := helpers.ReconnectDelay(m.delays, m.reconnectAttempts)
	gen := m.generation

	m.Logger.Info("Reconnecting in %v (attempt %d/%d)", delay, m.reconnectAttempts+1, m.Config.MaxReconnectAttempts)

	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if gen != m.generation || !m.autoReconnect || m.state == models.StateConnected || m.pending != nil {
			m.mu.Unlock()
			return
		}
		m.reconnectTimer = nil
		m.reconnectAttempts++
		token := m.token
		m.mu.Unlock()

		if err := m.connect(context.Background(), token); err != nil {
			m.afterFailedReconnect()
		}
	})
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) afterFailedReconnect() {
	m.mu.Lock()
	if !m.autoReconnect || m.state != models.StateError || m.pending != nil || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}

	if m.reconnectAttempts < m.Config.MaxReconnectAttempts {
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.lastError = ErrMaxReconnectAttempts.Error()
	m.mu.Unlock()

	m.Logger.Error("Giving up after %d reconnect attempts", m.Config.MaxReconnectAttempts)
	m.emitConnection(models.ConnectionEvent{State: models.StateError, Error: ErrMaxReconnectAttempts.Error()})
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// -----------------------------------------------------------------------------
// Heartbeat
// -----------------------------------------------------------------------------

func (m *ConnectionManager) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(m.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.pingSentAt = time.Now()
			m.mu.Unlock()

			ping := models.MSubscriptionRequest{
				Type:      models.MsgPing,
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			}
			if err := m.Send(ping); err != nil {
				m.Logger.Debug("Heartbeat failed: %v", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) stopHeartbeatLocked() {
	if m.stopHeartbeat != nil {
		close(m.stopHeartbeat)
		m.stopHeartbeat = nil
	}
}
