package sse

// Event names written in the "event:" field of a frame.
const (
	// EventTypeConnected is sent once when a client connects.
	EventTypeConnected = "connected"

	// EventTypeMessage carries one stream element.
	EventTypeMessage = "message"

	// EventTypeComplete is the terminal frame of a stream that completed.
	EventTypeComplete = "complete"

	// EventTypeError is the terminal frame of a stream that failed.
	EventTypeError = "error"
)

// ConnectedEvent is the payload of the connected frame.
type ConnectedEvent struct {
	ClientID string `json:"client_id"`
	Window   int64  `json:"window"`
}

// CompleteEvent is the payload of the complete frame.
type CompleteEvent struct {
	ClientID string `json:"client_id"`
	Events   int64  `json:"events"`
}
