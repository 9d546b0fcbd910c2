// Package notify forwards agent events to an ntfy-style push endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wardenlabs/adwarden/internal/relay"
)

// Pusher posts plain-text messages to one push endpoint.
type Pusher struct {
	endpoint string
	client   *http.Client
}

func NewPusher(endpoint string, client *http.Client) *Pusher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Pusher{endpoint: endpoint, client: client}
}

// Send posts a message to the configured endpoint using HTTP POST.
func (p *Pusher) Send(ctx context.Context, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Watch subscribes to the broker and pushes every event until ctx is done.
// Push failures are logged and dropped; the event feed never blocks on the
// push endpoint.
func (p *Pusher) Watch(ctx context.Context, broker *relay.Broker) {
	id, events := broker.Subscribe()
	defer broker.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			message := fmt.Sprintf("[%s] %s", evt.Kind, evt.Payload)
			if err := p.Send(ctx, message); err != nil {
				slog.Debug("push notification failed", "kind", evt.Kind, "error", err)
			}
		}
	}
}
