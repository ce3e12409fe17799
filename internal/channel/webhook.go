package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WebhookSender delivers through a provider's JSON webhook endpoint. Used
// for SMS and WhatsApp, where the upstream provider fronts the carrier.
type WebhookSender struct {
	name   string
	url    string
	token  string
	client *http.Client
}

// NewWebhookSender builds a webhook adapter. An empty url is allowed and
// reported as a configuration failure at send time, so a half-configured
// deployment fails sends instead of crashing at startup.
func NewWebhookSender(name, url, token string) *WebhookSender {
	return &WebhookSender{
		name:   name,
		url:    url,
		token:  token,
		client: &http.Client{},
	}
}

type webhookSendRequest struct {
	To             string   `json:"to"`
	Content        string   `json:"content"`
	Attachments    []string `json:"attachments,omitempty"`
	IdempotencyKey string   `json:"idempotencyKey"`
}

type webhookSendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (s *WebhookSender) Send(ctx context.Context, req SendRequest) Result {
	if s.url == "" {
		return Failed(KindConfiguration, fmt.Sprintf("%s webhook URL not configured", s.name))
	}

	reqBody, err := json.Marshal(webhookSendRequest{
		To:             req.To,
		Content:        req.Content,
		Attachments:    req.Attachments,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return Failed(KindProvider, fmt.Sprintf("encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return Failed(KindConfiguration, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		// Includes context timeouts; both are transient from our side.
		return Failed(KindProvider, fmt.Sprintf("%s provider unreachable: %v", s.name, err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed(KindProvider, fmt.Sprintf("%s provider status %d body=%q", s.name, resp.StatusCode, truncate(body, 256)))
	}

	var sr webhookSendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return Failed(KindProvider, fmt.Sprintf("decode %s response: %v body=%q", s.name, err, truncate(body, 256)))
	}
	if sr.MessageID == "" {
		return Failed(KindProvider, fmt.Sprintf("missing messageId in %s response body=%q", s.name, truncate(body, 256)))
	}

	return Sent(sr.MessageID)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
