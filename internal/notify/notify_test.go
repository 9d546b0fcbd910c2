package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/wardenlabs/adwarden/internal/relay"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestSendPostsPlainText(t *testing.T) {
	ctx := context.Background()

	var receivedMethod string
	var receivedPath string
	var receivedBody string
	var receivedContentType string

	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			receivedMethod = r.Method
			receivedPath = r.URL.Path
			receivedContentType = r.Header.Get("Content-Type")
			rawBody, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			receivedBody = string(rawBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("ok")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	p := NewPusher("http://example.com/notifications", client)
	if err := p.Send(ctx, "stream flipped to backup"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got, want := receivedMethod, http.MethodPost; got != want {
		t.Fatalf("method = %q; want %q", got, want)
	}
	if got, want := receivedPath, "/notifications"; got != want {
		t.Fatalf("path = %q; want %q", got, want)
	}
	if got, want := receivedContentType, "text/plain"; got != want {
		t.Fatalf("content-type = %q; want %q", got, want)
	}
	if got, want := receivedBody, "stream flipped to backup"; got != want {
		t.Fatalf("body = %q; want %q", got, want)
	}
}

func TestSendReturnsErrorForServerError(t *testing.T) {
	ctx := context.Background()

	client := &http.Client{
		Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader("server failure")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	p := NewPusher("http://example.com/notifications", client)
	err := p.Send(ctx, "anything")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy notification failed") {
		t.Fatalf("error = %q; want to contain %q", err, "ntfy notification failed")
	}
}

func TestWatchForwardsBrokerEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bodies := make(chan string, 4)
	client := &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			rawBody, _ := io.ReadAll(r.Body)
			bodies <- string(rawBody)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("ok")),
				Header:     make(http.Header),
			}, nil
		}),
	}

	broker := relay.NewBroker()
	p := NewPusher("http://example.com/notifications", client)

	done := make(chan struct{})
	go func() {
		p.Watch(ctx, broker)
		close(done)
	}()

	// Give the watcher time to subscribe before publishing.
	deadline := time.After(time.Second)
	for broker.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher never subscribed")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	broker.Publish(relay.NewEvent("worker_patched", `{"url":"https://assets.example.tv/wasmworker.min.js"}`))

	select {
	case body := <-bodies:
		if !strings.Contains(body, "worker_patched") {
			t.Errorf("pushed body = %q, want event kind included", body)
		}
	case <-time.After(time.Second):
		t.Fatal("no push received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
