package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second

	// maxReplyBytes caps how much of a carrier reply is read and quoted in errors.
	maxReplyBytes = 4 << 10
)

// WebhookClient hands outbound SMS to an HTTP carrier. The carrier takes a JSON
// submission and answers 202 Accepted with the id it assigned to the message.
type WebhookClient struct {
	url    string
	client *http.Client
}

func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type submission struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

type acceptance struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status,omitempty"`
}

// RejectedError is returned when the carrier answers with anything but 202.
type RejectedError struct {
	StatusCode int
	Reply      string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("carrier rejected submission: status %d reply=%q", e.StatusCode, e.Reply)
}

// Submit posts one message and returns the carrier's message id.
func (c *WebhookClient) Submit(ctx context.Context, to, from, body string) (string, error) {
	payload, err := json.Marshal(submission{To: to, From: from, Body: body})
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build carrier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("carrier unreachable: %w", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read carrier reply: %w", err)
	}
	text := strings.TrimSpace(string(reply))

	if resp.StatusCode != http.StatusAccepted {
		return "", &RejectedError{StatusCode: resp.StatusCode, Reply: text}
	}

	var a acceptance
	if err := json.Unmarshal(reply, &a); err != nil {
		return "", fmt.Errorf("carrier acceptance is not JSON: %w reply=%q", err, text)
	}
	if a.MessageID == "" {
		return "", fmt.Errorf("carrier acceptance carries no messageId: reply=%q", text)
	}
	return a.MessageID, nil
}
