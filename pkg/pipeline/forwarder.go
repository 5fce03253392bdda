package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/logger"
)

// Forwarder is the delivery pipeline: normalize, dedup, forward to the
// backend, enqueue the reply. Safe for concurrent use; the supervisor runs
// one Forward per inbound event, possibly many at once.
type Forwarder struct {
	backend *BackendClient
	sender  bus.Sender
	dedup   *dedupTable

	emptyFallback string
	busyFallback  string
}

func NewForwarder(backend *BackendClient, sender bus.Sender, cfg *config.Config) *Forwarder {
	return &Forwarder{
		backend:       backend,
		sender:        sender,
		dedup:         newDedupTable(cfg.DedupWindow),
		emptyFallback: cfg.EmptyReplyFallback,
		busyFallback:  cfg.BusyFallback,
	}
}

// Forward handles one provider message event end to end. Every message
// that survives normalization produces exactly one enqueued reply, real or
// fallback. Duplicates of an in-flight forward wait for its result and
// produce nothing.
func (f *Forwarder) Forward(ctx context.Context, ev *bus.MessageEvent) {
	msg, ok := Normalize(ev, time.Now())
	if !ok {
		return
	}

	key := msg.DedupKey()
	call, leader := f.dedup.begin(key)
	if !leader {
		if call != nil {
			select {
			case <-call.done:
			case <-ctx.Done():
			}
		}
		logger.DebugCF("pipeline", "duplicate inbound suppressed", map[string]interface{}{
			"dedup_key": key,
		})
		return
	}
	defer f.dedup.end(key, call, msg.ProviderMessageID != "")

	logger.InfoCF("pipeline", "forwarding message", map[string]interface{}{
		"external_id": msg.ExternalID,
		"message_id":  msg.ProviderMessageID,
	})

	reply, err := f.backend.RequestReply(ctx, msg)
	switch {
	case err != nil:
		reply = f.busyFallback
	case strings.TrimSpace(reply) == "":
		reply = f.emptyFallback
	}

	out := bus.OutboundMessage{
		ID:            uuid.NewString(),
		RecipientID:   msg.ChatID,
		Body:          reply,
		CorrelationID: msg.ProviderMessageID,
	}
	if err := f.sender.Enqueue(out); err != nil {
		logger.ErrorCF("pipeline", "failed to enqueue reply", map[string]interface{}{
			"recipient": out.RecipientID,
			"error":     err.Error(),
		})
	}
}
