// Package transport talks to the WhatsApp bridge process over a websocket.
// The bridge owns the actual WhatsApp web session; this side sees a
// serialized event stream (pairing, readiness, inbound messages) and a send
// operation.
package transport

import (
	"context"
	"errors"

	"github.com/grabtexts/wabridge/pkg/bus"
)

var ErrNotConnected = errors.New("transport: not connected")

// Transport is the black-box messaging capability the rest of the adapter
// is written against.
type Transport interface {
	// Connect establishes (or re-establishes) the bridge connection.
	Connect(ctx context.Context) error
	// Events returns the serialized event stream. The channel stays open
	// across reconnects; consumers stop via their own context.
	Events() <-chan bus.Event
	// Send delivers one message to a recipient JID.
	Send(ctx context.Context, recipientID, body string) error
	Close() error
}
