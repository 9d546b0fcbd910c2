package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Message keys understood by the main-context dispatcher. A background
// execution context that detects an ad posts one of these; the value carries
// the action's parameter.
const (
	KeyReloadPlayer = "ReloadPlayer"
	KeyShowAdBanner = "ShowAdBanner"
)

// Message is the structured payload a background context posts back to the
// main context.
type Message struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Handler receives the value of one dispatched message.
type Handler func(ctx context.Context, value json.RawMessage)

// Dispatcher routes background-context messages to their registered
// handlers. The channel is fire-and-forget: there is no acknowledgement,
// unknown keys are dropped, and handler panics are the handler's problem.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register installs the handler for a message key, replacing any previous
// one.
func (d *Dispatcher) Register(key string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[key] = h
}

// Dispatch decodes one raw message payload and invokes its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		slog.Debug("relay: undecodable message dropped", "error", err)
		return
	}
	if msg.Key == "" {
		return
	}

	d.mu.RLock()
	handler, ok := d.handlers[msg.Key]
	d.mu.RUnlock()
	if !ok {
		slog.Debug("relay: message with no handler dropped", "key", msg.Key)
		return
	}
	handler(ctx, msg.Value)
}
