package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/wardenlabs/adwarden/internal/gql"
	"github.com/wardenlabs/adwarden/internal/hls"
	"github.com/wardenlabs/adwarden/internal/metrics"
)

// Options is the fixed per-process engine configuration.
type Options struct {
	StripAdSegments  bool
	ShowAdBanner     bool
	NotifyAdsWatched bool
	AdSignifier      string
	BackupPlayerType string
	BackupPlatform   string
	UsherEndpoint    string
}

// FetchResult is the outcome of one playlist fetch performed on behalf of
// the engine.
type FetchResult struct {
	Status int
	Body   []byte
}

// Fetcher performs a plain GET of a playlist URL.
type Fetcher func(ctx context.Context, url string) (*FetchResult, error)

// TokenSource acquires playback authorization for a stream identity.
type TokenSource interface {
	FetchPlaybackToken(ctx context.Context, identity gql.StreamIdentity, playerType, platform string) (gql.PlaybackToken, error)
}

// AdReporter sends best-effort ad-watched notifications.
type AdReporter interface {
	ReportAdWatched(ctx context.Context, eventName, radToken string, payload any) error
}

// Notifier signals the host page. Both signals are fire-and-forget.
type Notifier interface {
	ReloadPlayer(ctx context.Context)
	ShowAdBanner(ctx context.Context, midroll bool)
}

// Engine is the per-stream ad detection and backup-selection state machine.
// Playlist bodies flow through ProcessPlaylist; everything the engine does
// beyond rewriting the body is a side signal to external collaborators.
type Engine struct {
	opts     Options
	registry *Registry
	tokens   TokenSource
	reporter AdReporter
	fetch    Fetcher
	notify   Notifier
	metrics  *metrics.Metrics
}

func New(opts Options, registry *Registry, tokens TokenSource, reporter AdReporter, fetch Fetcher, notify Notifier, m *metrics.Metrics) *Engine {
	return &Engine{
		opts:     opts,
		registry: registry,
		tokens:   tokens,
		reporter: reporter,
		fetch:    fetch,
		notify:   notify,
		metrics:  m,
	}
}

// Registry exposes the engine's stream registry.
func (e *Engine) Registry() *Registry { return e.registry }

// RegisterMaster records the variant playlists of an observed master
// playlist against the channel that owns them. Detection only applies to
// playlist URLs registered this way.
func (e *Engine) RegisterMaster(masterURL, channel, body string) {
	variants := hls.VariantURLs(body)
	for _, u := range variants {
		e.registry.Register(u, channel)
	}
	if len(variants) > 0 {
		slog.Debug("registered stream variants", "channel", channel, "count", len(variants))
	}
}

// ProcessPlaylist routes one playlist response body through the state
// machine and returns the body to serve. Failures never propagate: the
// worst outcome is the original body, or a blank body when an ad was
// detected and could not be replaced.
func (e *Engine) ProcessPlaylist(ctx context.Context, playlistURL, body string) string {
	info, ok := e.registry.Lookup(playlistURL)
	if !ok || !e.opts.StripAdSegments {
		return body
	}
	e.metrics.IncPlaylistsIntercepted()

	if info.UseBackupStream {
		return e.backupBody(ctx, playlistURL, body)
	}

	if !hls.ContainsAdSignifier(body, e.opts.AdSignifier) {
		return body
	}

	// One detection event per body, however many signifier occurrences.
	midroll := hls.IsMidroll(body)
	e.metrics.IncAdsDetected(midroll)
	slog.Info("ad detected", "channel", info.Channel, "midroll", midroll)

	if e.opts.NotifyAdsWatched {
		e.reportAdWatched(ctx, body)
	}

	if err := e.activateBackup(ctx, playlistURL, info.Channel, midroll); err != nil {
		// Never show the ad: blank this cycle even though the backup
		// source is not available, at the cost of a playback stall.
		e.metrics.IncTokenFailures()
		slog.Warn("backup activation failed, blanking ad cycle", "channel", info.Channel, "error", err)
		return ""
	}

	e.signalHost(ctx, midroll)
	return ""
}

// backupBody replaces the primary playlist with a fresh fetch of the cached
// backup master's first variant. A failed fetch falls back to the original
// body for this cycle only.
func (e *Engine) backupBody(ctx context.Context, playlistURL, body string) string {
	encodings, ok := e.registry.BackupEncodings(playlistURL)
	if !ok {
		return body
	}
	variantURL, ok := hls.FirstVariantURL(encodings)
	if !ok {
		slog.Debug("backup encodings carry no variant", "url", playlistURL)
		return body
	}
	res, err := e.fetch(ctx, variantURL)
	if err != nil || res.Status < 200 || res.Status >= 300 {
		slog.Debug("backup playlist fetch failed", "url", variantURL, "error", err)
		return body
	}
	return string(res.Body)
}

// activateBackup acquires a backup playback token, fetches the alternate
// master playlist once, and flips the stream to BACKUP. The flip only
// happens when the whole chain succeeded.
func (e *Engine) activateBackup(ctx context.Context, playlistURL, channel string, midroll bool) error {
	token, err := e.tokens.FetchPlaybackToken(ctx, gql.LiveChannel(channel), e.opts.BackupPlayerType, e.opts.BackupPlatform)
	if err != nil {
		return err
	}

	masterURL := e.backupMasterURL(channel, token)
	res, err := e.fetch(ctx, masterURL)
	if err != nil {
		return fmt.Errorf("fetch backup master: %w", err)
	}
	if res.Status < 200 || res.Status >= 300 {
		return fmt.Errorf("backup master status %d", res.Status)
	}

	if e.registry.ActivateBackup(playlistURL, midroll, string(res.Body)) {
		e.metrics.IncBackupSwitches()
		slog.Info("switched to backup stream", "channel", channel, "midroll", midroll)
	}
	return nil
}

func (e *Engine) backupMasterURL(channel string, token gql.PlaybackToken) string {
	q := url.Values{}
	q.Set("allow_source", "true")
	q.Set("allow_audio_only", "true")
	q.Set("fast_bread", "true")
	q.Set("player_backend", "mediaplayer")
	q.Set("sig", token.Signature)
	q.Set("token", token.Value)
	return fmt.Sprintf("%s/api/channel/hls/%s.m3u8?%s",
		strings.TrimRight(e.opts.UsherEndpoint, "/"), channel, q.Encode())
}

func (e *Engine) signalHost(ctx context.Context, midroll bool) {
	e.notify.ReloadPlayer(ctx)
	if e.opts.ShowAdBanner {
		e.notify.ShowAdBanner(ctx, midroll)
	}
}

// reportAdWatched extracts the rad token from the ad date-range directive
// and sends an impression notification. Best-effort: failures are dropped.
func (e *Engine) reportAdWatched(ctx context.Context, body string) {
	for _, attrs := range hls.DateRangeAttrs(body) {
		class, _ := attrs.Get("CLASS")
		if !strings.Contains(class.Str, e.opts.AdSignifier) {
			continue
		}
		radToken, ok := attrs.Get("X-TV-TWITCH-AD-RAD-TOKEN")
		if !ok {
			continue
		}
		payload := map[string]any{}
		for _, key := range attrs.Keys() {
			if strings.HasPrefix(key, "X-TV-TWITCH-AD-") && key != "X-TV-TWITCH-AD-RAD-TOKEN" {
				v, _ := attrs.Get(key)
				payload[key] = v.String()
			}
		}
		if err := e.reporter.ReportAdWatched(ctx, "video_ad_impression", radToken.Str, payload); err != nil {
			slog.Debug("ad watched notification dropped", "error", err)
		}
		return
	}
}
