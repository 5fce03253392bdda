package bus

// Sender accepts outbound messages for ordered, readiness-gated delivery.
// Implemented by the outbound queue; consumed by the delivery pipeline and
// the control-plane notification endpoints.
type Sender interface {
	Enqueue(OutboundMessage) error
}
