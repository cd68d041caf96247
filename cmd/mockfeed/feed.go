package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"market-stream/src/logger"
	"market-stream/src/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------

// feed serves the push protocol on /ws/realtime/
type feed struct {
	logger   *logger.Logger
	gen      *generator
	interval time.Duration
	token    string
	upgrader websocket.Upgrader
}

// session is one connected stream client
type session struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[string]models.DataTypeSet
}

func (s *session) write(msg models.MInboundMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(msg)
}

// -----------------------------------------------------------------------------

func (f *feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.token != "" && r.URL.Query().Get("token") != f.token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("upgrade failed: %v", err)
		return
	}

	s := &session{id: uuid.New().String(), conn: conn, subs: make(map[string]models.DataTypeSet)}
	f.logger.Info("Client %s connected from %s", s.id, r.RemoteAddr)

	done := make(chan struct{})
	go f.pump(s, done)
	f.read(s)
	close(done)
	conn.Close()
	f.logger.Info("Client %s disconnected", s.id)
}

// -----------------------------------------------------------------------------

func (f *feed) read(s *session) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var req models.MSubscriptionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			s.write(models.MInboundMessage{Type: models.MsgError, Error: "invalid json"})
			continue
		}

		switch req.Type {
		case models.MsgPing:
			s.write(models.MInboundMessage{Type: models.MsgPong, Timestamp: now()})

		case models.MsgSubscribe:
			s.mu.Lock()
			for _, ch := range req.Channels {
				if s.subs[ch.Symbol] == nil {
					s.subs[ch.Symbol] = models.NewDataTypeSet()
				}
				s.subs[ch.Symbol].Union(models.NewDataTypeSet(ch.DataTypes...))
			}
			s.mu.Unlock()
			s.write(models.MInboundMessage{Type: models.MsgSubscriptionAck, Timestamp: now()})
			for _, ch := range req.Channels {
				for _, dt := range ch.DataTypes {
					f.push(s, models.MsgInitialData, ch.Symbol, dt)
				}
			}

		case models.MsgUnsubscribe:
			s.mu.Lock()
			for _, ch := range req.Channels {
				set := s.subs[ch.Symbol]
				for _, dt := range ch.DataTypes {
					delete(set, dt)
				}
				if len(set) == 0 {
					delete(s.subs, ch.Symbol)
				}
			}
			s.mu.Unlock()
			s.write(models.MInboundMessage{Type: models.MsgUnsubscribeAck, Timestamp: now()})

		case models.MsgUnsubscribeAll:
			s.mu.Lock()
			s.subs = make(map[string]models.DataTypeSet)
			s.mu.Unlock()
			s.write(models.MInboundMessage{Type: models.MsgUnsubscribeAck, Timestamp: now()})

		default:
			s.write(models.MInboundMessage{Type: models.MsgError, Error: "unknown message type: " + req.Type})
		}
	}
}

// -----------------------------------------------------------------------------

// pump pushes one update per subscribed pair every interval
func (f *feed) pump(s *session, done <-chan struct{}) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			pairs := make(map[string][]models.DataType, len(s.subs))
			for sym, set := range s.subs {
				pairs[sym] = set.Sorted()
			}
			s.mu.Unlock()

			for sym, types := range pairs {
				for _, dt := range types {
					if err := f.push(s, models.MsgDataUpdate, sym, dt); err != nil {
						return
					}
				}
			}
		}
	}
}

func (f *feed) push(s *session, kind, symbol string, dt models.DataType) error {
	payload := f.gen.payload(symbol, dt)
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.write(models.MInboundMessage{
		Type:      kind,
		Symbol:    symbol,
		DataType:  dt,
		Data:      data,
		Timestamp: now(),
	})
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }
