package cdp

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// TabInfo describes one attached page target.
type TabInfo struct {
	TargetID   string    `json:"target_id"`
	URL        string    `json:"url"`
	Channel    string    `json:"channel,omitempty"`
	AttachedAt time.Time `json:"attached_at"`
}

// TabRegistry maps CDP target IDs to tab metadata.
type TabRegistry struct {
	tabs map[target.ID]*TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*TabInfo)}
}

// Register records a tab, replacing any previous entry for the target. The
// original attach time survives re-registration on navigation.
func (r *TabRegistry) Register(targetID target.ID, pageURL string) *TabInfo {
	info := &TabInfo{
		TargetID:   string(targetID),
		URL:        pageURL,
		Channel:    channelFromPageURL(pageURL),
		AttachedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	if prev, ok := r.tabs[targetID]; ok {
		info.AttachedAt = prev.AttachedAt
	}
	r.tabs[targetID] = info
	r.mu.Unlock()

	return info
}

func (r *TabRegistry) Get(targetID target.ID) (*TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	return info, ok
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// List returns a snapshot of all registered tabs.
func (r *TabRegistry) List() []TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		out = append(out, *info)
	}
	return out
}

// nonChannelSegments are first path segments that never name a channel.
var nonChannelSegments = map[string]bool{
	"directory": true,
	"videos":    true,
	"settings":  true,
	"search":    true,
	"downloads": true,
}

// channelFromPageURL guesses the channel from a page URL's first path
// segment. Returns "" when the page is not a channel page.
func channelFromPageURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	segment, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	segment = strings.ToLower(segment)
	if segment == "" || nonChannelSegments[segment] {
		return ""
	}
	return segment
}
