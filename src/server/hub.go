package server

import (
	"encoding/json"
	"net/http"

	"market-stream/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Relay commands sent by downstream clients.
const (
	CommandSubscribe      = "subscribe"
	CommandUnsubscribe    = "unsubscribe"
	CommandUnsubscribeAll = "unsubscribe_all"
)

// delivery is a message addressed to one client
type delivery struct {
	client *Client
	msg    models.MInboundMessage
}

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

func (s *APIServer) startHub() {
	s.hubOnce.Do(func() { go s.runHub() })
}

// runHub is the main Hub loop; it alone touches s.clients and closes client queues
func (s *APIServer) runHub() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.clientCount.set(len(s.clients))

		case client := <-s.unregister:
			s.dropClient(client)

		case d := <-s.deliver:
			if _, ok := s.clients[d.client]; ok {
				s.enqueue(d.client, d.msg)
			}

		case msg := <-s.broadcast:
			for client := range s.clients {
				if client.consumer.Wants(msg.Symbol, msg.DataType) {
					s.enqueue(client, msg)
				}
			}

		case <-s.done:
			for client := range s.clients {
				s.dropClient(client)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) enqueue(client *Client, msg models.MInboundMessage) {
	select {
	case client.send <- msg:
	default:
		// Client too slow, disconnect to keep the hub moving
		s.Logger.Warning("Dropping slow relay client %s", client.id)
		s.dropClient(client)
	}
}

func (s *APIServer) dropClient(client *Client) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	close(client.send)
	client.consumer.Close()
	s.clientCount.set(len(s.clients))
}

// -----------------------------------------------------------------------------
// Data Sink Implementation
// -----------------------------------------------------------------------------

func (s *APIServer) Name() string { return "relay" }

func (s *APIServer) OnPrice(price models.MRealTimePrice) {
	s.publish(price.Symbol, models.DataTypePrice, price)
}

func (s *APIServer) OnTrades(symbol string, trades []models.MTrade) {
	s.publish(symbol, models.DataTypeTrades, models.MTradesPayload{Trades: trades})
}

func (s *APIServer) OnOrderBook(book models.MOrderBook) {
	s.publish(book.Symbol, models.DataTypeOrderBook, book)
}

// publish never blocks the router; a full queue drops the update
func (s *APIServer) publish(symbol string, dataType models.DataType, data interface{}) {
	if s.clientCount.load() == 0 {
		return
	}

	msg, err := relayMessage(models.MsgDataUpdate, symbol, dataType, data)
	if err != nil {
		s.Logger.Error("Failed to encode %s update for %s: %v", dataType, symbol, err)
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		s.Logger.Warning("Relay queue full, dropping %s update for %s", dataType, symbol)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	id := uuid.NewString()
	client := &Client{
		id:       id,
		hub:      s,
		conn:     conn,
		send:     make(chan models.MInboundMessage, 256),
		consumer: s.Session.Consumer(id),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}
	s.Logger.Info("Relay client %s connected from %s", id, c.ClientIP())

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MRelayCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	dataTypes := cmd.DataTypes
	if len(dataTypes) == 0 {
		dataTypes = s.Config.Stream.DataTypes
	}

	switch cmd.Command {
	case CommandSubscribe:
		client.consumer.Subscribe(cmd.Symbols, dataTypes)
		s.send(client, ack(models.MsgSubscriptionAck, cmd.Symbols))

		for _, msg := range snapshotMessages(s.Session.Store(), cmd.Symbols, dataTypes) {
			s.send(client, msg)
		}

	case CommandUnsubscribe:
		for _, sym := range cmd.Symbols {
			client.consumer.Unsubscribe(sym, cmd.DataTypes...)
		}
		s.send(client, ack(models.MsgUnsubscribeAck, cmd.Symbols))

	case CommandUnsubscribeAll:
		client.consumer.Close()
		s.send(client, ack(models.MsgUnsubscribeAck, nil))

	default:
		s.send(client, models.MInboundMessage{Type: models.MsgError, Error: "unknown command: " + cmd.Command})
	}
}

// -----------------------------------------------------------------------------

// send hands msg to the hub so only the hub writes to client queues
func (s *APIServer) send(client *Client, msg models.MInboundMessage) {
	select {
	case s.deliver <- delivery{client: client, msg: msg}:
	case <-s.done:
	}
}
