// Package intercept pauses playlist and worker-script responses at the
// browser's network boundary and rewrites them before the page sees them.
package intercept

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/fetch"
	"github.com/wardenlabs/adwarden/internal/engine"
	"github.com/wardenlabs/adwarden/internal/hls"
	"github.com/wardenlabs/adwarden/internal/inject"
	"github.com/wardenlabs/adwarden/internal/metrics"
	"github.com/wardenlabs/adwarden/internal/relay"
)

var masterChannelPattern = regexp.MustCompile(`/api/channel/hls/([^/.]+)\.m3u8`)

// Session is the slice of the Fetch domain the interceptor needs on one
// attached browser session. Implementations exist for chromedp page
// sessions and for flat-protocol worker sessions.
type Session interface {
	GetResponseBody(ctx context.Context, id fetch.RequestID) ([]byte, error)
	Fulfill(ctx context.Context, id fetch.RequestID, status int64, headers []*fetch.HeaderEntry, body []byte) error
	Continue(ctx context.Context, id fetch.RequestID) error
}

// Interceptor routes paused responses through the ad engine and the worker
// patcher. Requests that match neither concern continue untouched.
type Interceptor struct {
	engine           *engine.Engine
	patcher          *inject.Patcher
	metrics          *metrics.Metrics
	broker           *relay.Broker
	workerScriptHint string
}

func New(eng *engine.Engine, patcher *inject.Patcher, m *metrics.Metrics, broker *relay.Broker, workerScriptHint string) *Interceptor {
	return &Interceptor{
		engine:           eng,
		patcher:          patcher,
		metrics:          m,
		broker:           broker,
		workerScriptHint: workerScriptHint,
	}
}

// Patterns returns the Fetch request patterns the interceptor wants paused.
// Everything else flows to the network with no added latency.
func (i *Interceptor) Patterns() []*fetch.RequestPattern {
	return []*fetch.RequestPattern{
		{URLPattern: "*.m3u8*", RequestStage: fetch.RequestStageResponse},
		{URLPattern: "*" + i.workerScriptHint + "*", RequestStage: fetch.RequestStageResponse},
	}
}

// HandlePaused resolves one paused request. It always resolves: every path
// ends in a fulfill or a continue, since a dangling paused request hangs the
// page's own fetch.
func (i *Interceptor) HandlePaused(ctx context.Context, ev *fetch.EventRequestPaused, sess Session) {
	url := ev.Request.URL

	// Request-stage pauses are not expected with response-stage patterns;
	// let them through unmodified.
	if ev.ResponseStatusCode == 0 && ev.ResponseErrorReason == "" {
		i.passThrough(ctx, ev, sess)
		return
	}
	if ev.ResponseErrorReason != "" {
		i.passThrough(ctx, ev, sess)
		return
	}

	switch {
	case i.isWorkerScript(url):
		i.handleWorkerScript(ctx, ev, sess)
	case hls.IsPlaylistURL(url):
		i.handlePlaylist(ctx, ev, sess)
	default:
		i.passThrough(ctx, ev, sess)
	}
}

func (i *Interceptor) isWorkerScript(url string) bool {
	return i.workerScriptHint != "" && strings.Contains(url, i.workerScriptHint)
}

// handlePlaylist performs the real request's body read, routes it through
// the engine keyed by the request URL, and fulfills with the possibly
// replaced body under the original status and headers.
func (i *Interceptor) handlePlaylist(ctx context.Context, ev *fetch.EventRequestPaused, sess Session) {
	url := ev.Request.URL
	body, err := sess.GetResponseBody(ctx, ev.RequestID)
	if err != nil {
		slog.Debug("playlist body read failed, passing through", "url", url, "error", err)
		i.passThrough(ctx, ev, sess)
		return
	}

	text := string(body)
	if channel, ok := ChannelFromMasterURL(url); ok {
		i.engine.RegisterMaster(url, channel, text)
		i.publish("master_observed", map[string]string{"channel": channel})
	}

	processed := i.engine.ProcessPlaylist(ctx, url, text)
	if err := sess.Fulfill(ctx, ev.RequestID, ev.ResponseStatusCode, replaceBodyHeaders(ev.ResponseHeaders, len(processed)), []byte(processed)); err != nil {
		slog.Debug("playlist fulfill failed, passing through", "url", url, "error", err)
		i.passThrough(ctx, ev, sess)
	}
}

// handleWorkerScript rewrites same-origin worker sources with the
// interception bundle. Third-party origins pass through byte-identical.
func (i *Interceptor) handleWorkerScript(ctx context.Context, ev *fetch.EventRequestPaused, sess Session) {
	url := ev.Request.URL
	if !i.patcher.ShouldPatch(url) {
		i.passThrough(ctx, ev, sess)
		return
	}

	body, err := sess.GetResponseBody(ctx, ev.RequestID)
	if err != nil {
		slog.Debug("worker source read failed, passing through", "url", url, "error", err)
		i.passThrough(ctx, ev, sess)
		return
	}

	patched := i.patcher.PatchWorkerSource(body)
	if err := sess.Fulfill(ctx, ev.RequestID, ev.ResponseStatusCode, replaceBodyHeaders(ev.ResponseHeaders, len(patched)), patched); err != nil {
		slog.Debug("worker fulfill failed, passing through", "url", url, "error", err)
		i.passThrough(ctx, ev, sess)
		return
	}

	i.metrics.IncWorkersPatched()
	i.publish("worker_patched", map[string]string{"url": url})
	slog.Info("worker script patched", "url", url)
}

func (i *Interceptor) passThrough(ctx context.Context, ev *fetch.EventRequestPaused, sess Session) {
	if err := sess.Continue(ctx, ev.RequestID); err != nil {
		slog.Debug("continue failed", "url", ev.Request.URL, "error", err)
	}
}

func (i *Interceptor) publish(kind string, payload any) {
	if i.broker == nil {
		return
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	i.broker.Publish(relay.NewEvent(kind, string(encoded)))
}

// ChannelFromMasterURL extracts the channel name from a master playlist URL.
func ChannelFromMasterURL(url string) (string, bool) {
	m := masterChannelPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// replaceBodyHeaders rewrites entity headers for a substituted body while
// preserving everything else from the original response.
func replaceBodyHeaders(headers []*fetch.HeaderEntry, bodyLen int) []*fetch.HeaderEntry {
	out := make([]*fetch.HeaderEntry, 0, len(headers)+1)
	for _, h := range headers {
		switch strings.ToLower(h.Name) {
		case "content-length", "content-encoding", "transfer-encoding":
			continue
		}
		out = append(out, h)
	}
	out = append(out, &fetch.HeaderEntry{Name: "Content-Length", Value: strconv.Itoa(bodyLen)})
	return out
}
