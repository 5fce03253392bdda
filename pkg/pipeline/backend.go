package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/logger"
)

// BackendClient POSTs normalized messages to the backend chat endpoint and
// extracts the reply text.
type BackendClient struct {
	url    string
	token  string
	client *http.Client
}

func NewBackendClient(cfg *config.Config) *BackendClient {
	return &BackendClient{
		url:   cfg.ChatURL(),
		token: cfg.BackendAuthToken,
		client: &http.Client{
			Timeout: cfg.BackendTimeout,
		},
	}
}

type chatRequest struct {
	ExternalID        string                 `json:"external_id"`
	Text              string                 `json:"text"`
	ProviderMessageID *string                `json:"provider_message_id"`
	Raw               map[string]interface{} `json:"raw"`
}

// chatResponse accepts both reply field spellings the backend has used.
type chatResponse struct {
	ReplyText string `json:"reply_text"`
	Reply     string `json:"reply"`
}

// RequestReply forwards one message and returns the backend's reply text,
// which may be empty. Any transport error, timeout or non-2xx status is
// returned as an error; the caller substitutes a fallback reply and must
// not retry (the backend may already have processed the request).
func (c *BackendClient) RequestReply(ctx context.Context, msg bus.InboundMessage) (string, error) {
	payload := chatRequest{
		ExternalID: msg.ExternalID,
		Text:       msg.Text,
		Raw:        msg.Raw,
	}
	if msg.ProviderMessageID != "" {
		payload.ProviderMessageID = &msg.ProviderMessageID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logger.ErrorCF("pipeline", "backend call failed", map[string]interface{}{
			"url":   c.url,
			"error": err.Error(),
		})
		return "", fmt.Errorf("backend call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading backend response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.ErrorCF("pipeline", "backend returned error status", map[string]interface{}{
			"status_code": resp.StatusCode,
			"response":    string(respBody),
		})
		return "", fmt.Errorf("backend status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		logger.ErrorCF("pipeline", "backend returned malformed JSON", map[string]interface{}{
			"response": string(respBody),
		})
		return "", fmt.Errorf("unmarshaling backend response: %w", err)
	}

	if parsed.ReplyText != "" {
		return parsed.ReplyText, nil
	}
	return parsed.Reply, nil
}
