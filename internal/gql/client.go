package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// adEventHash is the persisted-query identifier for the ad-watched
// notification operation.
const adEventHash = "7e6c69e6eb59f8ccb97ab73686f3d8b7d85a72a0298745ccd8bfc68e4054ca5b"

// playbackTokenQueryFmt is the literal playback-access-token query. The
// platform is baked into the query text; player type travels as a variable.
const playbackTokenQueryFmt = `query PlaybackAccessToken_Template($login: String!, $isLive: Boolean!, $vodID: ID!, $isVod: Boolean!, $playerType: String!) {` +
	`  streamPlaybackAccessToken(channelName: $login, params: {platform: %q, playerBackend: "mediaplayer", playerType: $playerType}) @include(if: $isLive) {    value    signature  }` +
	`  videoPlaybackAccessToken(id: $vodID, params: {platform: %q, playerBackend: "mediaplayer", playerType: $playerType}) @include(if: $isVod) {    value    signature  }` +
	`}`

// Client issues authenticated remote procedure calls against the platform's
// GraphQL endpoint using whatever subset of the credential bundle has been
// captured so far.
type Client struct {
	endpoint   string
	clientID   string
	creds      *Credentials
	httpClient *http.Client
}

func NewClient(endpoint, clientID string, creds *Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   endpoint,
		clientID:   clientID,
		creds:      creds,
		httpClient: httpClient,
	}
}

// FetchPlaybackToken requests playback authorization for a live channel or a
// recorded video. A missing or empty signed entry is an AUTH_FAILURE; wire
// errors are NETWORK_FAILURE.
func (c *Client) FetchPlaybackToken(ctx context.Context, identity StreamIdentity, playerType, platform string) (PlaybackToken, error) {
	if platform == "" {
		platform = "web"
	}

	body := request{
		OperationName: "PlaybackAccessToken_Template",
		Query:         fmt.Sprintf(playbackTokenQueryFmt, platform, platform),
		Variables: map[string]any{
			"login":      identity.ChannelLogin,
			"isLive":     identity.IsLive(),
			"vodID":      identity.VideoID,
			"isVod":      !identity.IsLive(),
			"playerType": playerType,
		},
	}

	raw, err := c.post(ctx, []request{body})
	if err != nil {
		return PlaybackToken{}, err
	}

	var responses []playbackTokenResponse
	if err := json.Unmarshal(raw, &responses); err != nil {
		return PlaybackToken{}, newError(CodeAuthFailure, "malformed token response", err)
	}
	if len(responses) == 0 {
		return PlaybackToken{}, newError(CodeAuthFailure, "empty token response", nil)
	}

	token := responses[0].Data.VideoPlaybackAccessToken
	if identity.IsLive() {
		token = responses[0].Data.StreamPlaybackAccessToken
	}
	if token == nil || token.Value == "" || token.Signature == "" {
		return PlaybackToken{}, newError(CodeAuthFailure, "no usable signed token entry", nil)
	}
	return *token, nil
}

// ReportAdWatched sends the ad-watched notification as a persisted query.
// It is best-effort: callers are expected to log and drop any error, and a
// failure must never affect playback.
func (c *Client) ReportAdWatched(ctx context.Context, eventName, radToken string, payload any) error {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return newError(CodeNetworkFailure, "encode ad event payload", err)
	}

	body := request{
		OperationName: "ClientSideAdEventHandling_RecordAdEvent",
		Variables: map[string]any{
			"input": map[string]any{
				"eventName":    eventName,
				"eventPayload": string(serialized),
				"radToken":     radToken,
			},
		},
		Extensions: map[string]any{
			"persistedQuery": map[string]any{
				"version":    1,
				"sha256Hash": adEventHash,
			},
		},
	}

	if _, err := c.post(ctx, []request{body}); err != nil {
		return err
	}
	return nil
}

// post sends a JSON array of request objects and returns the raw response
// body. Credential headers are attached only when captured; the endpoint is
// expected to reject what it considers unauthenticated.
func (c *Client) post(ctx context.Context, body []request) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, newError(CodeNetworkFailure, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, newError(CodeNetworkFailure, "build request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerClientID, c.clientID)
	deviceID, integrity, authorization := c.creds.values()
	if deviceID != "" {
		req.Header.Set(headerDeviceID, deviceID)
	}
	if integrity != "" {
		req.Header.Set(headerIntegrity, integrity)
	}
	if authorization != "" {
		req.Header.Set(headerAuth, authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(CodeNetworkFailure, "gql request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(CodeNetworkFailure, "read gql response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("gql request rejected", "status", resp.StatusCode)
		return nil, newError(CodeAuthFailure, fmt.Sprintf("gql status %d", resp.StatusCode), nil)
	}
	return raw, nil
}
