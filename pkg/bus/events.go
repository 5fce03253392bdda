package bus

// EventKind discriminates the transport event stream. The values mirror the
// bridge wire protocol frame types.
type EventKind string

const (
	EventPairingCode   EventKind = "qr"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailure   EventKind = "auth_failure"
	EventReady         EventKind = "ready"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = "message"
)

// Event is one item on the serialized transport event stream. Exactly one
// dispatcher consumes these, in order.
type Event struct {
	Kind EventKind
	// Code is the pairing code, set for EventPairingCode.
	Code string
	// Reason is set for EventDisconnected and EventAuthFailure.
	Reason string
	// Message is set for EventMessage.
	Message *MessageEvent
}

// MessageEvent is a provider-native inbound message before normalization.
type MessageEvent struct {
	// From is the chat JID the message arrived from.
	From string
	// FromMe marks echoes of the session's own outbound sends.
	FromMe bool
	Body   string
	// ID is the bare provider message id, SerializedID the fully
	// serialized form. Either or both may be empty.
	ID           string
	SerializedID string
	Timestamp    int64
	HasMedia     bool
	Kind         string
}
