package cdp

import (
	"context"
	"encoding/base64"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"
)

// pageSession resolves paused requests on a chromedp tab context. The ctx
// passed to each method must descend from the tab's context so the command
// executor is in scope.
type pageSession struct{}

func (s *pageSession) GetResponseBody(ctx context.Context, id fetch.RequestID) ([]byte, error) {
	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = fetch.GetResponseBody(id).Do(ctx)
		return err
	}))
	return body, err
}

func (s *pageSession) Fulfill(ctx context.Context, id fetch.RequestID, status int64, headers []*fetch.HeaderEntry, body []byte) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return fetch.FulfillRequest(id, status).
			WithResponseHeaders(headers).
			WithBody(base64.StdEncoding.EncodeToString(body)).
			Do(ctx)
	}))
}

func (s *pageSession) Continue(ctx context.Context, id fetch.RequestID) error {
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return fetch.ContinueRequest(id).Do(ctx)
	}))
}
