package models

import "encoding/json"

// Outbound message types.
const (
	MsgSubscribe      = "subscribe"
	MsgUnsubscribe    = "unsubscribe"
	MsgUnsubscribeAll = "unsubscribe_all"
	MsgPing           = "ping"
)

// Inbound message types.
const (
	MsgDataUpdate      = "data_update"
	MsgInitialData     = "initial_data"
	MsgSubscriptionAck = "subscription_ack"
	MsgUnsubscribeAck  = "unsubscribe_ack"
	MsgPong            = "pong"
	MsgError           = "error"
)

// -----------------------------------------------------------------------------
// Client -> Server
// -----------------------------------------------------------------------------

// MChannel is the set of data types requested for one symbol.
type MChannel struct {
	Symbol    string     `json:"symbol"`
	DataTypes []DataType `json:"dataTypes"`
}

// MSubscriptionRequest is a subscribe, unsubscribe, unsubscribe_all or ping request.
type MSubscriptionRequest struct {
	Type      string     `json:"type"`
	Channels  []MChannel `json:"channels,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Server -> Client
// -----------------------------------------------------------------------------

// MInboundMessage is the envelope of every push message.
type MInboundMessage struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol,omitempty"`
	DataType  DataType        `json:"dataType,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// -----------------------------------------------------------------------------
// Relay (downstream clients of the local server)
// -----------------------------------------------------------------------------

// MRelayCommand is sent by a relay client to change its interest.
type MRelayCommand struct {
	Command   string     `json:"command"`
	Symbols   []string   `json:"symbols"`
	DataTypes []DataType `json:"dataTypes"`
}
