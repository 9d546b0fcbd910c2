package gql

import "fmt"

const (
	CodeAuthFailure    = "AUTH_FAILURE"
	CodeNetworkFailure = "NETWORK_FAILURE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// PlaybackToken is a signed value/signature pair authorizing a playlist fetch.
type PlaybackToken struct {
	Value     string `json:"value"`
	Signature string `json:"signature"`
}

// StreamIdentity names either a live channel or a recorded video, never both.
type StreamIdentity struct {
	ChannelLogin string
	VideoID      string
}

// LiveChannel builds the identity of a live channel stream.
func LiveChannel(login string) StreamIdentity {
	return StreamIdentity{ChannelLogin: login}
}

// RecordedVideo builds the identity of a recorded video.
func RecordedVideo(id string) StreamIdentity {
	return StreamIdentity{VideoID: id}
}

// IsLive reports whether the identity names a live channel.
func (s StreamIdentity) IsLive() bool { return s.ChannelLogin != "" }

type request struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query,omitempty"`
	Variables     map[string]any `json:"variables"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type playbackTokenResponse struct {
	Data struct {
		StreamPlaybackAccessToken *PlaybackToken `json:"streamPlaybackAccessToken"`
		VideoPlaybackAccessToken  *PlaybackToken `json:"videoPlaybackAccessToken"`
	} `json:"data"`
}
