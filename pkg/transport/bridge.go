package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/logger"
)

const handshakeTimeout = 10 * time.Second

// frame is the bridge wire protocol. One JSON object per websocket text
// message, discriminated by Type.
type frame struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	// message frames
	From         string `json:"from,omitempty"`
	FromMe       bool   `json:"from_me,omitempty"`
	Body         string `json:"body,omitempty"`
	ID           string `json:"id,omitempty"`
	SerializedID string `json:"serialized_id,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
	HasMedia     bool   `json:"has_media,omitempty"`
	Kind         string `json:"kind,omitempty"`

	// outbound frames
	To      string `json:"to,omitempty"`
	Content string `json:"content,omitempty"`

	// init frame
	AuthPath string `json:"auth_path,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// BridgeClient implements Transport against the bridge websocket. The
// events channel survives reconnects so the dispatcher loop never has to
// resubscribe.
type BridgeClient struct {
	url      string
	authPath string
	clientID string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	events chan bus.Event
}

func NewBridgeClient(cfg *config.Config) *BridgeClient {
	return &BridgeClient{
		url:      cfg.BridgeURL,
		authPath: cfg.AuthStorePath,
		clientID: cfg.ClientID,
		events:   make(chan bus.Event, 64),
	}
}

func (c *BridgeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotConnected
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("connecting to bridge at %s: %w", c.url, err)
	}

	init := frame{Type: "init", AuthPath: c.authPath, ClientID: c.clientID}
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return fmt.Errorf("sending init frame: %w", err)
	}

	c.conn = conn
	go c.listen(conn)

	logger.InfoCF("transport", "bridge connected", map[string]interface{}{
		"url": c.url,
	})
	return nil
}

func (c *BridgeClient) Events() <-chan bus.Event {
	return c.events
}

func (c *BridgeClient) Send(ctx context.Context, recipientID, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	}

	out := frame{Type: "message", To: recipientID, Content: body}
	if err := c.conn.WriteJSON(out); err != nil {
		return fmt.Errorf("sending message to %s: %w", recipientID, err)
	}
	return nil
}

func (c *BridgeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	// The events channel is deliberately left open; the dispatcher stops
	// via its own context, and closing here would race with listen
	// goroutines still draining their connection.
	return err
}

// listen pumps one connection's frames onto the shared event stream. On
// read failure it emits a synthetic disconnected event and returns; the
// supervisor decides whether to reconnect. A connection reports at most
// one disconnect: once a wire disconnected frame went out, the read
// failure that follows it is the same outage and stays silent.
func (c *BridgeClient) listen(conn *websocket.Conn) {
	wireDisconnect := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.conn != conn // a newer connection already took over
			closed := c.closed
			c.mu.Unlock()
			if closed || stale || wireDisconnect {
				return
			}
			logger.WarnCF("transport", "bridge read failed", map[string]interface{}{
				"error": err.Error(),
			})
			c.emit(bus.Event{Kind: bus.EventDisconnected, Reason: "connection lost: " + err.Error()})
			return
		}

		ev, err := decodeEvent(data)
		if err != nil {
			logger.DebugCF("transport", "dropping undecodable frame", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if ev == nil {
			continue
		}
		if ev.Kind == bus.EventDisconnected {
			wireDisconnect = true
		}
		c.emit(*ev)
	}
}

func (c *BridgeClient) emit(ev bus.Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.events <- ev
}

// decodeEvent maps one wire frame to a transport event. Unknown frame
// types decode to nil so protocol additions on the bridge side stay
// backwards compatible.
func decodeEvent(data []byte) (*bus.Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshaling frame: %w", err)
	}

	switch f.Type {
	case "qr":
		return &bus.Event{Kind: bus.EventPairingCode, Code: f.Code}, nil
	case "authenticated":
		return &bus.Event{Kind: bus.EventAuthenticated}, nil
	case "auth_failure":
		return &bus.Event{Kind: bus.EventAuthFailure, Reason: f.Reason}, nil
	case "ready":
		return &bus.Event{Kind: bus.EventReady}, nil
	case "disconnected":
		return &bus.Event{Kind: bus.EventDisconnected, Reason: f.Reason}, nil
	case "message":
		return &bus.Event{Kind: bus.EventMessage, Message: &bus.MessageEvent{
			From:         f.From,
			FromMe:       f.FromMe,
			Body:         f.Body,
			ID:           f.ID,
			SerializedID: f.SerializedID,
			Timestamp:    f.Timestamp,
			HasMedia:     f.HasMedia,
			Kind:         f.Kind,
		}}, nil
	default:
		return nil, nil
	}
}
