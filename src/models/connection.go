package models

// ConnectionState is the lifecycle state of the push connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// ConnectionMessages are the human readable descriptions shown next to a state.
var ConnectionMessages = map[ConnectionState]string{
	StateDisconnected: "Disconnected from real-time data",
	StateConnecting:   "Connecting to real-time data...",
	StateConnected:    "Connected to real-time data",
	StateError:        "Connection failed",
}

// ConnectionEvent is emitted on every state transition.
type ConnectionEvent struct {
	State ConnectionState `json:"state"`
	Error string          `json:"error,omitempty"`
}
