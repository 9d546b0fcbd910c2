package main

import (
	"context"
	"sync"

	"github.com/wardenlabs/adwarden/internal/cdp"
	"github.com/wardenlabs/adwarden/internal/config"
	"github.com/wardenlabs/adwarden/internal/engine"
	"github.com/wardenlabs/adwarden/internal/gql"
	"github.com/wardenlabs/adwarden/internal/metrics"
)

// agentService exposes the agent's in-memory state to the local API.
type agentService struct {
	registry   *engine.Registry
	creds      *gql.Credentials
	tokens     engine.TokenSource
	client     *cdp.Client
	metrics    *metrics.Metrics
	playerType string
}

func (s *agentService) Streams() []engine.StreamInfo           { return s.registry.Snapshot() }
func (s *agentService) CredentialStatus() gql.CredentialStatus { return s.creds.Status() }
func (s *agentService) TabCount() int                          { return s.client.GetTabCount() }
func (s *agentService) WorkerSessionCount() int                { return s.client.WorkerSessionCount() }

func (s *agentService) ProbeToken(ctx context.Context, channel string) (gql.PlaybackToken, error) {
	return s.tokens.FetchPlaybackToken(ctx, gql.LiveChannel(channel), s.playerType, "")
}

// probePlayerType resolves the player type used for token probes. The
// dedicated access-token override wins when set, otherwise probes use the
// regular player type.
func probePlayerType(cfg *config.Config) string {
	if cfg.AccessTokenPlayerType != "" {
		return cfg.AccessTokenPlayerType
	}
	return cfg.RegularPlayerType
}

// updateGauges refreshes gauge metrics before each scrape.
func (s *agentService) updateGauges() {
	s.metrics.SetTrackedStreams(s.registry.Len())
}

// lateNotifier defers to a notifier bound after construction. The engine
// needs a notifier before the CDP client that implements it can exist.
type lateNotifier struct {
	mu    sync.RWMutex
	inner engine.Notifier
}

func (n *lateNotifier) bind(inner engine.Notifier) {
	n.mu.Lock()
	n.inner = inner
	n.mu.Unlock()
}

func (n *lateNotifier) ReloadPlayer(ctx context.Context) {
	n.mu.RLock()
	inner := n.inner
	n.mu.RUnlock()
	if inner != nil {
		inner.ReloadPlayer(ctx)
	}
}

func (n *lateNotifier) ShowAdBanner(ctx context.Context, midroll bool) {
	n.mu.RLock()
	inner := n.inner
	n.mu.RUnlock()
	if inner != nil {
		inner.ShowAdBanner(ctx, midroll)
	}
}
