package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/session"
)

type captureSender struct {
	msgs []bus.OutboundMessage
	err  error
}

func (c *captureSender) Enqueue(msg bus.OutboundMessage) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func serverFor(t *testing.T) (*Server, *session.Session, *captureSender) {
	t.Helper()
	cfg := &config.Config{
		BackendBaseURL:    "https://backend.example",
		BackendChatPath:   "/api/chat/incoming/",
		ListenHost:        "127.0.0.1",
		ListenPort:        0,
		SupportContactURL: "https://wa.me/+233559665774",
	}
	sess := session.New()
	sender := &captureSender{}
	n := 0
	srv := New(cfg, sess, sender, func() string { n++; return "test-id" })
	return srv, sess, sender
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func post(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, sess, _ := serverFor(t)

	rec := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["whatsapp_ready"])
	assert.Equal(t, false, body["has_qr"])
	assert.Equal(t, "https://backend.example/api/chat/incoming/", body["backend_chat_url"])

	sess.OnPairingCode("2@abc")
	rec = get(t, srv, "/health")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["has_qr"])
	assert.Equal(t, "pairing", body["state"])
}

func TestQRStates(t *testing.T) {
	srv, sess, _ := serverFor(t)

	// No code issued yet.
	rec := get(t, srv, "/qr")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Pairing: page embeds the rendered code.
	sess.OnPairingCode("2@abc123")
	rec = get(t, srv, "/qr")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data:image/png;base64,")
	assert.Contains(t, rec.Body.String(), `http-equiv="refresh"`)

	// Connected: no QR needed.
	sess.OnReady()
	rec = get(t, srv, "/qr")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "connected")
}

func TestHomeReflectsReadiness(t *testing.T) {
	srv, sess, _ := serverFor(t)

	assert.Contains(t, get(t, srv, "/").Body.String(), "Waiting")
	sess.OnReady()
	assert.Contains(t, get(t, srv, "/").Body.String(), "connected")
}

func TestPaymentConfirmationNotReady(t *testing.T) {
	srv, _, sender := serverFor(t)

	rec := post(t, srv, "/send-payment-confirmation", `{"phone":"2335551111","order_id":42}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, sender.msgs)
}

func TestPaymentConfirmationMissingPhone(t *testing.T) {
	srv, sess, sender := serverFor(t)
	sess.OnReady()

	rec := post(t, srv, "/send-payment-confirmation", `{"order_id":42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sender.msgs)
}

func TestPaymentConfirmationEnqueues(t *testing.T) {
	srv, sess, sender := serverFor(t)
	sess.OnReady()

	rec := post(t, srv, "/send-payment-confirmation", `{"phone":"+233 555-1111","order_id":42}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "2335551111@c.us", msg.RecipientID)
	assert.Contains(t, msg.Body, "order #42")
	assert.Contains(t, msg.Body, "https://wa.me/+233559665774")
	assert.Empty(t, msg.CorrelationID, "notifications carry no correlation id")
}

func TestPaymentConfirmationNumericPhone(t *testing.T) {
	srv, sess, sender := serverFor(t)
	sess.OnReady()

	rec := post(t, srv, "/send-payment-confirmation", `{"phone":2335551111,"order_id":"A-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "2335551111@c.us", sender.msgs[0].RecipientID)
	assert.Contains(t, sender.msgs[0].Body, "order #A-7")
}

func TestAddressFlowEnqueues(t *testing.T) {
	srv, sess, sender := serverFor(t)
	sess.OnReady()

	body := `{"phone":"2335551111","item":"Jollof","quantity":2,` +
		`"addons":[{"name":"Chicken"},{"name":"Plantain"}]}`
	rec := post(t, srv, "/start-address-flow", body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "2335551111@c.us", msg.RecipientID)
	assert.Contains(t, msg.Body, "2 x Jollof")
	assert.Contains(t, msg.Body, "Add-ons: Chicken, Plantain")
	assert.Contains(t, msg.Body, "delivery address")
}

func TestAddressFlowWithoutAddons(t *testing.T) {
	srv, sess, sender := serverFor(t)
	sess.OnReady()

	rec := post(t, srv, "/start-address-flow", `{"phone":"2335551111","item":"Jollof","quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.msgs, 1)
	assert.NotContains(t, sender.msgs[0].Body, "Add-ons")
}

func TestNotificationBadJSON(t *testing.T) {
	srv, sess, _ := serverFor(t)
	sess.OnReady()

	rec := post(t, srv, "/send-payment-confirmation", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
