package intercept

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/wardenlabs/adwarden/internal/engine"
	"github.com/wardenlabs/adwarden/internal/gql"
	"github.com/wardenlabs/adwarden/internal/inject"
	"github.com/wardenlabs/adwarden/internal/metrics"
	"github.com/wardenlabs/adwarden/internal/relay"
)

type fakeSession struct {
	body    []byte
	bodyErr error

	fulfilled     bool
	fulfillStatus int64
	fulfillBody   []byte
	fulfillHdrs   []*fetch.HeaderEntry
	continued     bool
}

func (s *fakeSession) GetResponseBody(context.Context, fetch.RequestID) ([]byte, error) {
	return s.body, s.bodyErr
}

func (s *fakeSession) Fulfill(_ context.Context, _ fetch.RequestID, status int64, headers []*fetch.HeaderEntry, body []byte) error {
	s.fulfilled = true
	s.fulfillStatus = status
	s.fulfillHdrs = headers
	s.fulfillBody = body
	return nil
}

func (s *fakeSession) Continue(context.Context, fetch.RequestID) error {
	s.continued = true
	return nil
}

type stubTokens struct{}

func (stubTokens) FetchPlaybackToken(context.Context, gql.StreamIdentity, string, string) (gql.PlaybackToken, error) {
	return gql.PlaybackToken{}, errors.New("not used")
}

type stubReporter struct{}

func (stubReporter) ReportAdWatched(context.Context, string, string, any) error { return nil }

type stubNotifier struct{}

func (stubNotifier) ReloadPlayer(context.Context)       {}
func (stubNotifier) ShowAdBanner(context.Context, bool) {}

func newTestInterceptor(t *testing.T) *Interceptor {
	t.Helper()
	eng := engine.New(engine.Options{
		StripAdSegments: true,
		AdSignifier:     "stitched-ad",
		UsherEndpoint:   "https://usher.example.net",
	}, engine.NewRegistry(), stubTokens{}, stubReporter{},
		func(context.Context, string) (*engine.FetchResult, error) {
			return nil, errors.New("not used")
		}, stubNotifier{}, metrics.New())

	patcher, err := inject.NewPatcher(inject.Options{AdSignifier: "stitched-ad"}, "twitch.tv")
	if err != nil {
		t.Fatalf("NewPatcher() error = %v", err)
	}
	return New(eng, patcher, metrics.New(), relay.NewBroker(), "wasmworker")
}

func TestHandlePausedPlaylistFulfillsWithOriginalStatus(t *testing.T) {
	i := newTestInterceptor(t)
	sess := &fakeSession{body: []byte("#EXTM3U\n#EXTINF:2.0,live\nseg.ts\n")}

	ev := &fetch.EventRequestPaused{
		RequestID:          "req-1",
		Request:            &network.Request{URL: "https://video-weaver.example.net/v1/playlist/media.m3u8"},
		ResponseStatusCode: 200,
		ResponseHeaders: []*fetch.HeaderEntry{
			{Name: "Content-Type", Value: "application/vnd.apple.mpegurl"},
			{Name: "Content-Length", Value: "999"},
		},
	}
	i.HandlePaused(context.Background(), ev, sess)

	if !sess.fulfilled || sess.continued {
		t.Fatalf("fulfilled=%v continued=%v, want fulfill only", sess.fulfilled, sess.continued)
	}
	if sess.fulfillStatus != 200 {
		t.Fatalf("status = %d, want the original preserved", sess.fulfillStatus)
	}
	if string(sess.fulfillBody) != "#EXTM3U\n#EXTINF:2.0,live\nseg.ts\n" {
		t.Fatalf("unregistered playlist body changed: %q", sess.fulfillBody)
	}

	var hasType, staleLength bool
	for _, h := range sess.fulfillHdrs {
		if h.Name == "Content-Type" {
			hasType = true
		}
		if strings.EqualFold(h.Name, "Content-Length") && h.Value == "999" {
			staleLength = true
		}
	}
	if !hasType {
		t.Fatal("original Content-Type header dropped")
	}
	if staleLength {
		t.Fatal("stale Content-Length header kept")
	}
}

func TestHandlePausedMasterRegistersVariants(t *testing.T) {
	i := newTestInterceptor(t)
	master := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=6000000\nhttps://video-weaver.example.net/v1/playlist/a.m3u8\n"
	sess := &fakeSession{body: []byte(master)}

	ev := &fetch.EventRequestPaused{
		RequestID:          "req-1",
		Request:            &network.Request{URL: "https://usher.example.net/api/channel/hls/somechannel.m3u8?token=t"},
		ResponseStatusCode: 200,
	}
	i.HandlePaused(context.Background(), ev, sess)

	if !sess.fulfilled {
		t.Fatal("master playlist not fulfilled")
	}
	if string(sess.fulfillBody) != master {
		t.Fatal("master playlist body must pass through unmodified")
	}
	info, ok := i.engine.Registry().Lookup("https://video-weaver.example.net/v1/playlist/a.m3u8")
	if !ok || info.Channel != "somechannel" {
		t.Fatalf("variant not registered: %+v ok=%v", info, ok)
	}
}

func TestHandlePausedBodyReadFailureFailsOpen(t *testing.T) {
	i := newTestInterceptor(t)
	sess := &fakeSession{bodyErr: errors.New("body evicted")}

	ev := &fetch.EventRequestPaused{
		RequestID:          "req-1",
		Request:            &network.Request{URL: "https://video-weaver.example.net/v1/playlist/media.m3u8"},
		ResponseStatusCode: 200,
	}
	i.HandlePaused(context.Background(), ev, sess)

	if !sess.continued || sess.fulfilled {
		t.Fatal("body read failure must continue the original response")
	}
}

func TestHandlePausedRequestStagePassesThrough(t *testing.T) {
	i := newTestInterceptor(t)
	sess := &fakeSession{}

	ev := &fetch.EventRequestPaused{
		RequestID: "req-1",
		Request:   &network.Request{URL: "https://video-weaver.example.net/v1/playlist/media.m3u8"},
	}
	i.HandlePaused(context.Background(), ev, sess)

	if !sess.continued {
		t.Fatal("request-stage pause must continue")
	}
}

func TestHandlePausedWorkerScriptPatched(t *testing.T) {
	i := newTestInterceptor(t)
	original := []byte("runWorker();\n")
	sess := &fakeSession{body: original}

	ev := &fetch.EventRequestPaused{
		RequestID:          "req-1",
		Request:            &network.Request{URL: "https://assets.twitch.tv/assets/wasmworker-deadbeef.js"},
		ResponseStatusCode: 200,
	}
	i.HandlePaused(context.Background(), ev, sess)

	if !sess.fulfilled {
		t.Fatal("same-origin worker script not fulfilled")
	}
	if !strings.HasSuffix(string(sess.fulfillBody), string(original)) {
		t.Fatal("patched worker lost the original source")
	}
	if len(sess.fulfillBody) <= len(original) {
		t.Fatal("worker source not prepended with the bundle")
	}
}

func TestHandlePausedThirdPartyWorkerByteIdentical(t *testing.T) {
	i := newTestInterceptor(t)
	sess := &fakeSession{body: []byte("thirdPartyWorker();\n")}

	ev := &fetch.EventRequestPaused{
		RequestID:          "req-1",
		Request:            &network.Request{URL: "https://cdn.example.com/wasmworker.js"},
		ResponseStatusCode: 200,
	}
	i.HandlePaused(context.Background(), ev, sess)

	if !sess.continued || sess.fulfilled {
		t.Fatal("third-party worker script must pass through untouched")
	}
}

func TestHandlePausedUnrelatedURLContinues(t *testing.T) {
	i := newTestInterceptor(t)
	sess := &fakeSession{}

	ev := &fetch.EventRequestPaused{
		RequestID:          "req-1",
		Request:            &network.Request{URL: "https://example.net/segment-001.ts"},
		ResponseStatusCode: 200,
	}
	i.HandlePaused(context.Background(), ev, sess)

	if !sess.continued {
		t.Fatal("unrelated URL must continue")
	}
}

func TestChannelFromMasterURL(t *testing.T) {
	tests := []struct {
		url     string
		channel string
		ok      bool
	}{
		{"https://usher.example.net/api/channel/hls/somechannel.m3u8?token=t", "somechannel", true},
		{"https://video-weaver.example.net/v1/playlist/media.m3u8", "", false},
	}
	for _, tt := range tests {
		channel, ok := ChannelFromMasterURL(tt.url)
		if channel != tt.channel || ok != tt.ok {
			t.Errorf("ChannelFromMasterURL(%q) = (%q, %v), want (%q, %v)", tt.url, channel, ok, tt.channel, tt.ok)
		}
	}
}
