// Package api serves the local observability surface: tracked streams,
// credential status, the live event feed, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wardenlabs/adwarden/internal/engine"
	"github.com/wardenlabs/adwarden/internal/gql"
	"github.com/wardenlabs/adwarden/internal/relay"
)

// Service is the view of the agent the API exposes. Everything except the
// token probe is a read of in-memory state.
type Service interface {
	Streams() []engine.StreamInfo
	CredentialStatus() gql.CredentialStatus
	TabCount() int
	WorkerSessionCount() int
	ProbeToken(ctx context.Context, channel string) (gql.PlaybackToken, error)
}

func NewServer(svc Service, broker *relay.Broker, metricsHandler http.Handler) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Warden Agent API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/api/v1/events", relay.SSEHandler(broker))
	router.Method(http.MethodGet, "/metrics", metricsHandler)

	registerHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *gql.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case gql.CodeAuthFailure:
			return huma.Error502BadGateway(coded.Message)
		case gql.CodeNetworkFailure:
			return huma.Error504GatewayTimeout(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
