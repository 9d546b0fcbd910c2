package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/wardenlabs/adwarden/internal/engine"
	"github.com/wardenlabs/adwarden/internal/gql"
)

func registerHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status         string `json:"status"`
			Tabs           int    `json:"tabs"`
			WorkerSessions int    `json:"worker_sessions"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Tabs = svc.TabCount()
			out.Body.WorkerSessions = svc.WorkerSessionCount()
			return out, nil
		})

	type streamsOutput struct {
		Body struct {
			Streams []engine.StreamInfo `json:"streams"`
			Count   int                 `json:"count"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-streams", Method: http.MethodGet, Path: "/api/v1/streams", Summary: "List tracked stream playlists", Tags: []string{"Streams"}},
		func(ctx context.Context, input *struct{}) (*streamsOutput, error) {
			streams := svc.Streams()
			out := &streamsOutput{}
			out.Body.Streams = streams
			out.Body.Count = len(streams)
			return out, nil
		})

	type credentialsOutput struct {
		Body gql.CredentialStatus
	}
	huma.Register(api, huma.Operation{OperationID: "credential-status", Method: http.MethodGet, Path: "/api/v1/credentials", Summary: "Captured credential status (values never exposed)", Tags: []string{"Credentials"}},
		func(ctx context.Context, input *struct{}) (*credentialsOutput, error) {
			out := &credentialsOutput{}
			out.Body = svc.CredentialStatus()
			return out, nil
		})

	type tokenProbeInput struct {
		Channel string `path:"channel" doc:"Channel login to request a playback token for"`
	}
	type tokenProbeOutput struct {
		Body struct {
			Channel  string `json:"channel"`
			Acquired bool   `json:"acquired"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "probe-token", Method: http.MethodPost, Path: "/api/v1/token/{channel}/probe", Summary: "Verify a playback token can be acquired with current credentials", Tags: []string{"Credentials"}},
		func(ctx context.Context, input *tokenProbeInput) (*tokenProbeOutput, error) {
			token, err := svc.ProbeToken(ctx, input.Channel)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &tokenProbeOutput{}
			out.Body.Channel = input.Channel
			out.Body.Acquired = token.Value != "" && token.Signature != ""
			return out, nil
		})
}
