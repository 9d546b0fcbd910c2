package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/wardenlabs/adwarden/internal/intercept"
)

// workerTypes are the target types whose network requests bypass the page
// session's interception and need their own flat session.
var workerTypes = map[string]bool{
	"worker":         true,
	"shared_worker":  true,
	"service_worker": true,
}

// workerWatcher discovers worker targets spawned by the target site and
// attaches playlist interception to each over the flat protocol. Worker
// sources are already patched at the page boundary; this layer catches the
// playlist fetches the workers issue themselves.
type workerWatcher struct {
	raw         *rawCDP
	interceptor InterceptHandler
	match       func(url string) bool

	mu          sync.Mutex
	sessions    map[string]string // targetID -> sessionID
	bySession   map[string]string // sessionID -> targetID
	unregisters []func()
}

// InterceptHandler is the slice of the interceptor the watcher drives.
type InterceptHandler interface {
	Patterns() []*fetch.RequestPattern
	HandlePaused(ctx context.Context, ev *fetch.EventRequestPaused, sess intercept.Session)
}

func newWorkerWatcher(httpBase string, interceptor InterceptHandler, match func(string) bool) *workerWatcher {
	return &workerWatcher{
		raw:         newRawCDP(httpBase),
		interceptor: interceptor,
		match:       match,
		sessions:    make(map[string]string),
		bySession:   make(map[string]string),
	}
}

// start connects to the browser endpoint and begins target discovery.
// Existing worker targets are reported through the same targetCreated
// events as new ones.
func (w *workerWatcher) start(ctx context.Context) error {
	if err := w.raw.connect(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	w.unregisters = append(w.unregisters,
		w.raw.registerEventHandler("Target.targetCreated", w.onTargetEvent),
		w.raw.registerEventHandler("Target.targetInfoChanged", w.onTargetEvent),
		w.raw.registerEventHandler("Target.targetDestroyed", w.onTargetDestroyed),
		w.raw.registerEventHandler("Fetch.requestPaused", w.onRequestPaused),
	)
	w.mu.Unlock()

	if err := w.raw.setDiscoverTargets(ctx, true); err != nil {
		return fmt.Errorf("worker discovery: %w", err)
	}
	return nil
}

func (w *workerWatcher) stop() {
	w.mu.Lock()
	for _, unregister := range w.unregisters {
		unregister()
	}
	w.unregisters = nil
	w.mu.Unlock()
	w.raw.close()
}

func (w *workerWatcher) sessionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions)
}

func (w *workerWatcher) onTargetEvent(_ string, params json.RawMessage) {
	var ev struct {
		TargetInfo struct {
			TargetID string `json:"targetId"`
			Type     string `json:"type"`
			URL      string `json:"url"`
		} `json:"targetInfo"`
	}
	if json.Unmarshal(params, &ev) != nil {
		return
	}
	info := ev.TargetInfo
	if !workerTypes[info.Type] || !w.match(info.URL) {
		return
	}

	w.mu.Lock()
	_, attached := w.sessions[info.TargetID]
	w.mu.Unlock()
	if attached {
		return
	}

	go w.attach(info.TargetID, info.URL)
}

func (w *workerWatcher) attach(targetID, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionID, err := w.raw.attachToTarget(ctx, targetID)
	if err != nil {
		slog.Debug("worker attach failed", "target_id", targetID, "error", err)
		return
	}

	// Register the session before enabling interception. A busy worker can
	// pause a request the moment Fetch is enabled, and onRequestPaused must
	// already know the session or the request would never be resolved.
	w.mu.Lock()
	w.sessions[targetID] = sessionID
	w.bySession[sessionID] = targetID
	w.mu.Unlock()

	params := struct {
		Patterns []*fetch.RequestPattern `json:"patterns"`
	}{Patterns: w.interceptor.Patterns()}
	if _, err := w.raw.sendFlat(ctx, sessionID, "Fetch.enable", params); err != nil {
		slog.Debug("worker fetch enable failed", "target_id", targetID, "error", err)
		w.forget(targetID, sessionID)
		_ = w.raw.detachFromTarget(ctx, sessionID)
		return
	}

	// Worker targets start paused until the attaching client resumes them.
	if _, err := w.raw.sendFlat(ctx, sessionID, "Runtime.runIfWaitingForDebugger", nil); err != nil {
		slog.Debug("worker resume failed", "target_id", targetID, "error", err)
	}

	slog.Info("worker interception attached", "target_id", targetID, "url", truncateURL(url))
}

func (w *workerWatcher) forget(targetID, sessionID string) {
	w.mu.Lock()
	delete(w.sessions, targetID)
	delete(w.bySession, sessionID)
	w.mu.Unlock()
}

func (w *workerWatcher) onTargetDestroyed(_ string, params json.RawMessage) {
	var ev struct {
		TargetID string `json:"targetId"`
	}
	if json.Unmarshal(params, &ev) != nil {
		return
	}

	w.mu.Lock()
	sessionID, ok := w.sessions[ev.TargetID]
	if ok {
		delete(w.sessions, ev.TargetID)
		delete(w.bySession, sessionID)
	}
	w.mu.Unlock()
	if ok {
		slog.Debug("worker target gone", "target_id", ev.TargetID)
	}
}

func (w *workerWatcher) onRequestPaused(sessionID string, params json.RawMessage) {
	w.mu.Lock()
	_, ours := w.bySession[sessionID]
	w.mu.Unlock()
	if !ours {
		return
	}

	var ev fetch.EventRequestPaused
	if err := json.Unmarshal(params, &ev); err != nil {
		slog.Debug("undecodable requestPaused event", "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		w.interceptor.HandlePaused(ctx, &ev, &rawSession{raw: w.raw, sessionID: sessionID})
	}()
}

// rawSession resolves paused requests on a flat-protocol worker session.
type rawSession struct {
	raw       *rawCDP
	sessionID string
}

func (s *rawSession) GetResponseBody(ctx context.Context, id fetch.RequestID) ([]byte, error) {
	params := struct {
		RequestID fetch.RequestID `json:"requestId"`
	}{RequestID: id}

	raw, err := s.raw.sendFlat(ctx, s.sessionID, "Fetch.getResponseBody", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Body          string `json:"body"`
		Base64Encoded bool   `json:"base64Encoded"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("rawcdp: unmarshal body: %w", err)
	}
	if resp.Base64Encoded {
		return base64.StdEncoding.DecodeString(resp.Body)
	}
	return []byte(resp.Body), nil
}

func (s *rawSession) Fulfill(ctx context.Context, id fetch.RequestID, status int64, headers []*fetch.HeaderEntry, body []byte) error {
	params := struct {
		RequestID       fetch.RequestID      `json:"requestId"`
		ResponseCode    int64                `json:"responseCode"`
		ResponseHeaders []*fetch.HeaderEntry `json:"responseHeaders,omitempty"`
		Body            string               `json:"body,omitempty"`
	}{
		RequestID:       id,
		ResponseCode:    status,
		ResponseHeaders: headers,
		Body:            base64.StdEncoding.EncodeToString(body),
	}

	_, err := s.raw.sendFlat(ctx, s.sessionID, "Fetch.fulfillRequest", params)
	return err
}

func (s *rawSession) Continue(ctx context.Context, id fetch.RequestID) error {
	params := struct {
		RequestID fetch.RequestID `json:"requestId"`
	}{RequestID: id}

	_, err := s.raw.sendFlat(ctx, s.sessionID, "Fetch.continueRequest", params)
	return err
}
