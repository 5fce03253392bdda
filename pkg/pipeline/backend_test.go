package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
)

func backendFor(t *testing.T, srv *httptest.Server, token string, timeout time.Duration) *BackendClient {
	t.Helper()
	cfg := &config.Config{
		BackendBaseURL:   srv.URL,
		BackendChatPath:  "/api/chat/incoming/",
		BackendAuthToken: token,
		BackendTimeout:   timeout,
	}
	return NewBackendClient(cfg)
}

func sampleMessage() bus.InboundMessage {
	return bus.InboundMessage{
		ExternalID:        "15551234567",
		ChatID:            "15551234567@c.us",
		Text:              "hello",
		ProviderMessageID: "ABC123",
		Raw:               map[string]interface{}{"from": "15551234567@c.us"},
	}
}

func TestRequestReplyPayloadAndHeaders(t *testing.T) {
	var got map[string]interface{}
	var auth, contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		require.Equal(t, "/api/chat/incoming/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"reply_text":"Hi there"}`))
	}))
	defer srv.Close()

	reply, err := backendFor(t, srv, "tok", time.Second).RequestReply(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "15551234567", got["external_id"])
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, "ABC123", got["provider_message_id"])
	assert.Contains(t, got, "raw")
}

func TestRequestReplyNullMessageID(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer srv.Close()

	msg := sampleMessage()
	msg.ProviderMessageID = ""
	_, err := backendFor(t, srv, "", time.Second).RequestReply(context.Background(), msg)
	require.NoError(t, err)

	// Field is present but null, matching the documented payload shape.
	v, present := got["provider_message_id"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestRequestReplyAlternateField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"reply":"from the alt field"}`))
	}))
	defer srv.Close()

	reply, err := backendFor(t, srv, "", time.Second).RequestReply(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.Equal(t, "from the alt field", reply)
}

func TestRequestReplyEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reply, err := backendFor(t, srv, "", time.Second).RequestReply(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.Empty(t, reply, "caller substitutes the fallback, not the client")
}

func TestRequestReplyNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := backendFor(t, srv, "", time.Second).RequestReply(context.Background(), sampleMessage())
	assert.Error(t, err)
}

func TestRequestReplyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"reply_text":"too late"}`))
	}))
	defer srv.Close()

	_, err := backendFor(t, srv, "", 20*time.Millisecond).RequestReply(context.Background(), sampleMessage())
	assert.Error(t, err)
}

func TestRequestReplyMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	_, err := backendFor(t, srv, "", time.Second).RequestReply(context.Background(), sampleMessage())
	assert.Error(t, err)
}
