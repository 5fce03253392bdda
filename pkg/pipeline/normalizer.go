// Package pipeline forwards normalized inbound messages to the HTTP backend
// and turns its responses into outbound replies.
package pipeline

import (
	"strings"
	"time"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/logger"
)

const groupSuffix = "@g.us"

// Normalize converts a provider-native message event into the canonical
// inbound record. Returns false when the event is filtered: group chats,
// echoes of our own sends, empty bodies, and malformed events are dropped
// here and never reach the backend.
func Normalize(ev *bus.MessageEvent, now time.Time) (bus.InboundMessage, bool) {
	if ev == nil || ev.From == "" {
		logger.DebugC("pipeline", "dropping event with no sender")
		return bus.InboundMessage{}, false
	}
	if ev.FromMe {
		logger.DebugCF("pipeline", "dropping own echo", map[string]interface{}{
			"chat": ev.From,
		})
		return bus.InboundMessage{}, false
	}
	if strings.HasSuffix(ev.From, groupSuffix) {
		logger.DebugCF("pipeline", "dropping group message", map[string]interface{}{
			"chat": ev.From,
		})
		return bus.InboundMessage{}, false
	}

	externalID := externalIDFrom(ev.From)
	text := strings.TrimSpace(ev.Body)
	if externalID == "" || text == "" {
		logger.DebugCF("pipeline", "dropping empty message", map[string]interface{}{
			"chat": ev.From,
		})
		return bus.InboundMessage{}, false
	}

	return bus.InboundMessage{
		ExternalID:        externalID,
		ChatID:            ev.From,
		Text:              text,
		ProviderMessageID: providerMessageID(ev),
		ReceivedAt:        now,
		Raw: map[string]interface{}{
			"from":      ev.From,
			"timestamp": ev.Timestamp,
			"has_media": ev.HasMedia,
			"type":      ev.Kind,
		},
	}, true
}

// externalIDFrom strips the JID down to the digits of its local part:
// "+1 (555) 123-4567@c.us" and "15551234567@c.us" both yield "15551234567".
func externalIDFrom(jid string) string {
	local, _, _ := strings.Cut(jid, "@")
	var b strings.Builder
	for _, r := range local {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// providerMessageID prefers the fully serialized id over the bare one.
func providerMessageID(ev *bus.MessageEvent) string {
	if ev.SerializedID != "" {
		return ev.SerializedID
	}
	return ev.ID
}
