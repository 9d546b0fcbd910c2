// Package cdp attaches to a running Chromium over the DevTools protocol and
// wires paused network responses, runtime binding calls, and navigation
// events into the rest of the agent.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/wardenlabs/adwarden/internal/config"
	"github.com/wardenlabs/adwarden/internal/engine"
	"github.com/wardenlabs/adwarden/internal/gql"
	"github.com/wardenlabs/adwarden/internal/inject"
	"github.com/wardenlabs/adwarden/internal/intercept"
	"github.com/wardenlabs/adwarden/internal/relay"
)

// Client manages CDP connections to browser tabs showing the target site.
// Each attached tab gets response interception, the page hook script, and
// the notify binding; a separate flat-protocol watcher covers worker
// targets that chromedp's session bootstrap would destabilise.
type Client struct {
	cfg         *config.Config
	interceptor *intercept.Interceptor
	dispatcher  *relay.Dispatcher
	creds       *gql.Credentials
	streams     *engine.Registry
	tabRegistry *TabRegistry
	workers     *workerWatcher

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        map[target.ID]*TabContext
	tabsMu      sync.RWMutex
	done        chan struct{}
}

// TabContext is one attached page target.
type TabContext struct {
	ID     target.ID
	URL    string
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, interceptor *intercept.Interceptor, patcher *inject.Patcher, dispatcher *relay.Dispatcher, creds *gql.Credentials, streams *engine.Registry) *Client {
	c := &Client{
		cfg:         cfg,
		interceptor: interceptor,
		dispatcher:  dispatcher,
		creds:       creds,
		streams:     streams,
		tabRegistry: NewTabRegistry(),
		tabs:        make(map[target.ID]*TabContext),
		done:        make(chan struct{}),
	}
	c.workers = newWorkerWatcher(cfg.GetCDPURL(), interceptor, patcher.ShouldPatch)
	return c
}

// Connect attaches to every open tab whose URL matches the configured
// filter and starts the worker watcher. At least one matching tab must
// exist.
func (c *Client) Connect(ctx context.Context) error {
	cdpURL := c.cfg.GetCDPURL()
	slog.Info("Connecting to Chromium", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)

	tempCtx, tempCancel := chromedp.NewContext(c.allocCtx)
	defer tempCancel()

	if err := chromedp.Run(tempCtx); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}

	slog.Info("Found browser targets", "count", len(targets))

	attachedCount := 0
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if !c.matchesTabURL(t.URL) {
			slog.Debug("Skipping tab (url filter)", "url", t.URL)
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Error("Failed to attach to tab", "target_id", t.TargetID, "url", t.URL, "error", err)
			continue
		}
		attachedCount++
	}

	if attachedCount == 0 {
		return fmt.Errorf("no tabs found matching WARDEN_TAB_URL_FILTER=%q", c.cfg.TabURLFilter)
	}

	if err := c.workers.start(ctx); err != nil {
		slog.Warn("Worker watcher unavailable, page-level interception only", "error", err)
	}

	slog.Info("Attached to tabs", "count", attachedCount, "tab_url_filter", c.cfg.TabURLFilter)
	return nil
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	info := c.tabRegistry.Register(targetID, url)

	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(targetID))
	tab := &TabContext{ID: targetID, URL: url, ctx: tabCtx, cancel: tabCancel}

	c.tabsMu.Lock()
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetCacheDisabled(true),
		page.Enable(),
		runtime.AddBinding(inject.NotifyBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(inject.PageHook()).Do(ctx)
			return err
		}),
		fetch.Enable().WithPatterns(c.interceptor.Patterns()),
	)
	if err != nil {
		tabCancel()
		c.tabRegistry.Remove(targetID)
		c.tabsMu.Lock()
		delete(c.tabs, targetID)
		c.tabsMu.Unlock()
		return fmt.Errorf("failed to enable tab domains: %w", err)
	}

	slog.Info("Attached to tab", "target_id", targetID, "channel", info.Channel, "url", truncateURL(url))
	chromedp.ListenTarget(tabCtx, c.createEventHandler(tab))
	return nil
}

func (c *Client) createEventHandler(tab *TabContext) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			// Resolve off the listener goroutine: fulfilling a paused
			// request issues CDP commands on the same connection.
			go func() {
				ctx, cancel := context.WithTimeout(tab.ctx, 15*time.Second)
				defer cancel()
				c.interceptor.HandlePaused(ctx, e, &pageSession{})
			}()
		case *runtime.EventBindingCalled:
			if e.Name != inject.NotifyBinding {
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(tab.ctx, 15*time.Second)
				defer cancel()
				c.dispatcher.Dispatch(ctx, e.Payload)
			}()
		case *network.EventRequestWillBeSent:
			if strings.HasPrefix(e.Request.URL, c.cfg.GQLEndpoint) {
				c.creds.CaptureFromHeaders(flattenHeaders(e.Request.Headers))
			}
		case *page.EventFrameNavigated:
			if e.Frame.ParentID != "" {
				return
			}
			info := c.tabRegistry.Register(tab.ID, e.Frame.URL)
			c.streams.Reset()
			slog.Info("Tab navigated, stream state reset", "target_id", tab.ID, "channel", info.Channel, "url", truncateURL(e.Frame.URL))
		case *page.EventNavigatedWithinDocument:
			info := c.tabRegistry.Register(tab.ID, e.URL)
			slog.Debug("Tab navigated (SPA)", "target_id", tab.ID, "channel", info.Channel, "url", truncateURL(e.URL))
		}
	}
}

// eachTab runs fn on a snapshot of the attached tabs.
func (c *Client) eachTab(fn func(tab *TabContext)) {
	c.tabsMu.RLock()
	tabs := make([]*TabContext, 0, len(c.tabs))
	for _, tab := range c.tabs {
		tabs = append(tabs, tab)
	}
	c.tabsMu.RUnlock()
	for _, tab := range tabs {
		fn(tab)
	}
}

func (c *Client) Close() error {
	close(c.done)

	c.workers.stop()

	c.tabsMu.Lock()
	for _, tab := range c.tabs {
		tab.cancel()
	}
	c.tabs = make(map[target.ID]*TabContext)
	c.tabsMu.Unlock()

	if c.allocCancel != nil {
		c.allocCancel()
	}

	slog.Info("CDP client closed")
	return nil
}

// Tabs returns the registry of attached tabs.
func (c *Client) Tabs() *TabRegistry { return c.tabRegistry }

func (c *Client) GetTabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

// WorkerSessionCount reports how many worker targets currently have
// flat-protocol interception attached.
func (c *Client) WorkerSessionCount() int {
	return c.workers.sessionCount()
}

func (c *Client) matchesTabURL(url string) bool {
	if c.cfg.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.cfg.TabURLFilter))
}

// flattenHeaders lowers CDP's loosely typed header map to the string pairs
// the credential store consumes. Non-string values are dropped.
func flattenHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
