package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// playerResetJS nudges the player's media element so it reloads its
// playlist after a backup switch. Clears any pending break banner first.
const playerResetJS = `(() => {
	const banner = document.getElementById('warden-banner');
	if (banner) banner.remove();
	const video = document.querySelector('video');
	if (!video) return false;
	const pos = video.currentTime;
	video.pause();
	video.currentTime = Math.max(0, pos - 0.01);
	const played = video.play();
	if (played && played.catch) played.catch(() => {});
	return true;
})()`

const bannerJS = `(() => {
	let banner = document.getElementById('warden-banner');
	if (!banner) {
		banner = document.createElement('div');
		banner.id = 'warden-banner';
		banner.style.cssText = 'position:fixed;top:12px;left:50%%;transform:translateX(-50%%);z-index:99999;padding:6px 14px;background:rgba(0,0,0,0.8);color:#fff;font:13px sans-serif;border-radius:4px;pointer-events:none;';
		document.body.appendChild(banner);
	}
	banner.textContent = %q;
	clearTimeout(banner._wardenHide);
	banner._wardenHide = setTimeout(() => banner.remove(), 30000);
	return true;
})()`

// Notifier delivers player signals to every attached tab. Both signals are
// best effort: a tab that is mid-navigation just misses the nudge.
type Notifier struct {
	client *Client
}

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) ReloadPlayer(ctx context.Context) {
	n.evaluateAll(ctx, playerResetJS)
	slog.Debug("player reload signalled")
}

func (n *Notifier) ShowAdBanner(ctx context.Context, midroll bool) {
	text := "Commercial break in progress"
	if midroll {
		text = "Commercial break in progress (midroll)"
	}
	n.evaluateAll(ctx, fmt.Sprintf(bannerJS, text))
}

func (n *Notifier) evaluateAll(ctx context.Context, js string) {
	n.client.eachTab(func(tab *TabContext) {
		if ctx.Err() != nil {
			return
		}
		evalCtx, cancel := context.WithTimeout(tab.ctx, 10*time.Second)
		defer cancel()
		if err := chromedp.Run(evalCtx, chromedp.Evaluate(js, nil)); err != nil {
			slog.Debug("tab evaluate failed", "target_id", tab.ID, "error", err)
		}
	})
}
