package bus

import "time"

// InboundMessage is a user message after normalization, ready to be
// forwarded to the backend. Immutable once constructed.
type InboundMessage struct {
	// ExternalID is the sender's stable identifier, digits only.
	ExternalID string
	// ChatID is the provider-native chat identifier replies go back to
	// (e.g. "15551234567@c.us").
	ChatID string
	// Text is the trimmed message body.
	Text string
	// ProviderMessageID is the provider's message id, empty when the
	// provider supplied none.
	ProviderMessageID string
	ReceivedAt        time.Time
	// Raw carries provider metadata through to the backend unmodified.
	Raw map[string]interface{}
}

// DedupKey is the identifier used to suppress duplicate processing of the
// same logical inbound event. Content-based fallback when the provider
// supplied no message id.
func (m InboundMessage) DedupKey() string {
	if m.ProviderMessageID != "" {
		return m.ProviderMessageID
	}
	return m.ExternalID + "|" + m.Text
}

// OutboundMessage is either a reply to an InboundMessage or a
// backend-initiated notification.
type OutboundMessage struct {
	ID          string
	RecipientID string
	Body        string
	// CorrelationID ties a reply back to the inbound provider message id,
	// empty for notifications.
	CorrelationID string
}
