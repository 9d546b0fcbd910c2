package cdp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/wardenlabs/adwarden/internal/intercept"
)

type stubPausedHandler struct {
	mu      sync.Mutex
	handled []fetch.RequestID
}

func (h *stubPausedHandler) Patterns() []*fetch.RequestPattern {
	return []*fetch.RequestPattern{{URLPattern: "*.m3u8*", RequestStage: fetch.RequestStageResponse}}
}

func (h *stubPausedHandler) HandlePaused(ctx context.Context, ev *fetch.EventRequestPaused, sess intercept.Session) {
	h.mu.Lock()
	h.handled = append(h.handled, ev.RequestID)
	h.mu.Unlock()
	_ = sess.Continue(ctx, ev.RequestID)
}

// newFakeBrowser serves a flat-protocol browser endpoint with one worker
// target. The worker is busy: it pauses a playlist request the instant
// Fetch.enable is acknowledged, while the runIfWaitingForDebugger reply is
// still in flight. Resolved request IDs are sent on continued.
func newFakeBrowser(t *testing.T, continued chan string) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, _ *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/devtools/browser/fake"
		json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/devtools/browser/fake", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("ws upgrade: %v", err)
			return
		}
		go serveBrowserConn(conn, continued)
	})
	srv = httptest.NewServer(mux)
	return srv
}

func serveBrowserConn(conn net.Conn, continued chan string) {
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		writeMu.Lock()
		wsutil.WriteServerText(conn, data)
		writeMu.Unlock()
	}
	reply := func(id int64, result any) {
		write(map[string]any{"id": id, "result": result})
	}

	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}

		var msg struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}

		switch msg.Method {
		case "Target.setDiscoverTargets":
			reply(msg.ID, map[string]any{})
			write(map[string]any{
				"method": "Target.targetCreated",
				"params": map[string]any{"targetInfo": map[string]any{
					"targetId": "W1",
					"type":     "worker",
					"url":      "https://assets.example.tv/wasmworker.min.js",
				}},
			})
		case "Target.attachToTarget":
			reply(msg.ID, map[string]any{"sessionId": "S1"})
		case "Fetch.enable":
			reply(msg.ID, map[string]any{})
			write(map[string]any{
				"method":    "Fetch.requestPaused",
				"sessionId": "S1",
				"params": map[string]any{
					"requestId":          "req-1",
					"request":            map[string]any{"url": "https://video-weaver.example.net/media.m3u8", "method": "GET"},
					"responseStatusCode": 200,
				},
			})
		case "Runtime.runIfWaitingForDebugger":
			go func(id int64) {
				time.Sleep(150 * time.Millisecond)
				reply(id, map[string]any{})
			}(msg.ID)
		case "Fetch.continueRequest":
			var p struct {
				RequestID string `json:"requestId"`
			}
			json.Unmarshal(msg.Params, &p)
			reply(msg.ID, map[string]any{})
			select {
			case continued <- p.RequestID:
			default:
			}
		default:
			reply(msg.ID, map[string]any{})
		}
	}
}

func TestWorkerRequestPausedDuringAttachIsResolved(t *testing.T) {
	continued := make(chan string, 1)
	srv := newFakeBrowser(t, continued)
	defer srv.Close()

	handler := &stubPausedHandler{}
	w := newWorkerWatcher(srv.URL, handler, func(string) bool { return true })
	defer w.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case id := <-continued:
		if id != "req-1" {
			t.Fatalf("resolved request = %q, want req-1", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("request paused during worker attach was never resolved")
	}

	handler.mu.Lock()
	got := len(handler.handled)
	handler.mu.Unlock()
	if got != 1 {
		t.Fatalf("handled %d paused requests, want 1", got)
	}
	if w.sessionCount() != 1 {
		t.Fatalf("sessionCount() = %d, want 1", w.sessionCount())
	}
}
