package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the warden agent.
type Metrics struct {
	registry             *prometheus.Registry
	playlistsIntercepted prometheus.Counter
	adsDetected          *prometheus.CounterVec
	backupSwitches       prometheus.Counter
	tokenFailures        prometheus.Counter
	workersPatched       prometheus.Counter
	trackedStreams       prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	playlistsIntercepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_playlists_intercepted_total",
		Help: "Total number of playlist responses routed through the engine",
	})
	adsDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_ads_detected_total",
		Help: "Total number of ad detection events by kind",
	}, []string{"kind"})
	backupSwitches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_backup_switches_total",
		Help: "Total number of streams switched to the backup source",
	})
	tokenFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_token_failures_total",
		Help: "Total number of failed backup playback-token acquisitions",
	})
	workersPatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_workers_patched_total",
		Help: "Total number of worker scripts rewritten with the interception bundle",
	})
	trackedStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warden_tracked_streams",
		Help: "Number of stream playlists currently tracked",
	})

	registry.MustRegister(
		playlistsIntercepted,
		adsDetected,
		backupSwitches,
		tokenFailures,
		workersPatched,
		trackedStreams,
	)

	return &Metrics{
		registry:             registry,
		playlistsIntercepted: playlistsIntercepted,
		adsDetected:          adsDetected,
		backupSwitches:       backupSwitches,
		tokenFailures:        tokenFailures,
		workersPatched:       workersPatched,
		trackedStreams:       trackedStreams,
	}
}

// IncPlaylistsIntercepted increments the intercepted playlist counter.
func (m *Metrics) IncPlaylistsIntercepted() {
	m.playlistsIntercepted.Inc()
}

// IncAdsDetected increments the ad detection counter for the given kind
// ("midroll" or "preroll").
func (m *Metrics) IncAdsDetected(midroll bool) {
	kind := "preroll"
	if midroll {
		kind = "midroll"
	}
	m.adsDetected.WithLabelValues(kind).Inc()
}

// IncBackupSwitches increments the backup switch counter.
func (m *Metrics) IncBackupSwitches() {
	m.backupSwitches.Inc()
}

// IncTokenFailures increments the token failure counter.
func (m *Metrics) IncTokenFailures() {
	m.tokenFailures.Inc()
}

// IncWorkersPatched increments the patched worker counter.
func (m *Metrics) IncWorkersPatched() {
	m.workersPatched.Inc()
}

// SetTrackedStreams sets the tracked stream gauge.
func (m *Metrics) SetTrackedStreams(n int) {
	m.trackedStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves the registry. updateGauges is
// called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
