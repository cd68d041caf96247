package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"market-stream/src/models"

	"github.com/gorilla/websocket"
)

// PushServer is an in-process push endpoint for tests.
// It records every request, answers pings with pongs and can push or drop.
type PushServer struct {
	*httptest.Server

	upgrader websocket.Upgrader

	Mu          sync.Mutex
	peers       []*peer
	requests    []models.MSubscriptionRequest
	pings       int
	tokens      []string
	connections int
	reject      bool

	// AutoAck answers subscribe/unsubscribe requests with an acknowledgement
	AutoAck bool
}

type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) writeJSON(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

// -----------------------------------------------------------------------------

func NewPushServer() *PushServer {
	s := &PushServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// WSURL returns the ws:// address of the server
func (s *PushServer) WSURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ws/realtime/"
}

// -----------------------------------------------------------------------------

func (s *PushServer) handle(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	reject := s.reject
	s.Mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := &peer{conn: conn}
	s.Mu.Lock()
	s.peers = append(s.peers, p)
	s.tokens = append(s.tokens, r.URL.Query().Get("token"))
	s.connections++
	s.Mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req models.MSubscriptionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		if req.Type == models.MsgPing {
			s.Mu.Lock()
			s.pings++
			s.Mu.Unlock()
			_ = p.writeJSON(models.MInboundMessage{Type: models.MsgPong})
			continue
		}

		s.Mu.Lock()
		s.requests = append(s.requests, req)
		autoAck := s.AutoAck
		s.Mu.Unlock()

		if autoAck {
			ack := models.MSubscriptionRequest{Type: models.MsgSubscriptionAck, Channels: req.Channels}
			if req.Type != models.MsgSubscribe {
				ack.Type = models.MsgUnsubscribeAck
			}
			_ = p.writeJSON(ack)
		}
	}
}

// -----------------------------------------------------------------------------

// Requests returns the non-ping requests received so far
func (s *PushServer) Requests() []models.MSubscriptionRequest {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return append([]models.MSubscriptionRequest(nil), s.requests...)
}

// Pings returns the number of heartbeat pings received
func (s *PushServer) Pings() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.pings
}

// Connections returns the number of accepted upgrades
func (s *PushServer) Connections() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.connections
}

// Tokens returns the token query parameter of every accepted upgrade
func (s *PushServer) Tokens() []string {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// Reject makes subsequent upgrades fail with 503
func (s *PushServer) Reject(reject bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.reject = reject
}

// -----------------------------------------------------------------------------

// Push sends msg to every open connection
func (s *PushServer) Push(msg interface{}) {
	s.Mu.Lock()
	peers := append([]*peer(nil), s.peers...)
	s.Mu.Unlock()

	for _, p := range peers {
		_ = p.writeJSON(msg)
	}
}

// PushRaw sends an arbitrary text frame to every open connection
func (s *PushServer) PushRaw(data string) {
	s.Mu.Lock()
	peers := append([]*peer(nil), s.peers...)
	s.Mu.Unlock()

	for _, p := range peers {
		p.mu.Lock()
		_ = p.conn.WriteMessage(websocket.TextMessage, []byte(data))
		p.mu.Unlock()
	}
}

// DropAll closes every connection without a close handshake
func (s *PushServer) DropAll() {
	s.Mu.Lock()
	peers := s.peers
	s.peers = nil
	s.Mu.Unlock()

	for _, p := range peers {
		p.conn.Close()
	}
}

// -----------------------------------------------------------------------------

// DataUpdate builds a data_update message with data marshalled to JSON
func DataUpdate(symbol string, dataType models.DataType, data interface{}) models.MInboundMessage {
	raw, _ := json.Marshal(data)
	return models.MInboundMessage{
		Type:      models.MsgDataUpdate,
		Symbol:    symbol,
		DataType:  dataType,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
