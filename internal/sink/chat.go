package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/imagegate/internal/classify"
)

// ChatSink posts alert findings to an incoming-webhook endpoint (Slack compatible).
type ChatSink struct {
	WebhookURL string
	client     *http.Client
}

// NewChat builds a chat sink with an optional custom HTTP client.
func NewChat(webhookURL string, client *http.Client) *ChatSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ChatSink{WebhookURL: webhookURL, client: client}
}

func (s *ChatSink) Name() string { return "chat" }

func (s *ChatSink) Deliver(ctx context.Context, d Delivery) error {
	if s.WebhookURL == "" {
		return skipped("no webhook configured")
	}
	if len(d.Summary.Alerts) == 0 {
		return skipped("no findings at or above threshold")
	}

	body, err := json.Marshal(map[string]string{"text": FormatChatMessage(d.Target, d.Summary)})
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{Sink: s.Name(), Err: fmt.Errorf("unexpected status code %d", resp.StatusCode)}
	}
	return nil
}

// FormatChatMessage renders the target and a bulleted list of alert findings.
func FormatChatMessage(target string, sum classify.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":warning: *%s+ vulnerabilities detected in %s*\n\n", sum.Threshold, target)
	fmt.Fprintf(&b, "The following %d finding(s) meet the alert threshold:\n", len(sum.Alerts))
	for _, f := range sum.Alerts {
		fmt.Fprintf(&b, "- %s (%s): %s", f.ID, f.Severity, f.Summary())
		if f.FixedVersion != "" {
			fmt.Fprintf(&b, " [fixed in %s]", f.FixedVersion)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
