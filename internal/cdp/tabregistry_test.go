package cdp

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
)

func TestChannelFromPageURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"channel page", "https://www.twitch.tv/somechannel", "somechannel"},
		{"channel with query", "https://www.twitch.tv/SomeChannel?referrer=raid", "somechannel"},
		{"channel subpage", "https://www.twitch.tv/somechannel/about", "somechannel"},
		{"front page", "https://www.twitch.tv/", ""},
		{"directory", "https://www.twitch.tv/directory/category/games", ""},
		{"videos", "https://www.twitch.tv/videos/123456", ""},
		{"garbage", "://not-a-url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := channelFromPageURL(tt.url); got != tt.want {
				t.Errorf("channelFromPageURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestTabRegistryRegisterAndRemove(t *testing.T) {
	r := NewTabRegistry()
	id := target.ID("TAB-1")

	info := r.Register(id, "https://www.twitch.tv/somechannel")
	if info.Channel != "somechannel" {
		t.Errorf("Channel = %q, want somechannel", info.Channel)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}

	got, ok := r.Get(id)
	if !ok || got.URL != "https://www.twitch.tv/somechannel" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	r.Remove(id)
	if r.Count() != 0 {
		t.Errorf("Count after remove = %d, want 0", r.Count())
	}
}

func TestTabRegistryKeepsAttachTimeAcrossNavigation(t *testing.T) {
	r := NewTabRegistry()
	id := target.ID("TAB-1")

	first := r.Register(id, "https://www.twitch.tv/somechannel")
	second := r.Register(id, "https://www.twitch.tv/otherchannel")

	if !second.AttachedAt.Equal(first.AttachedAt) {
		t.Errorf("AttachedAt changed on re-register: %v != %v", second.AttachedAt, first.AttachedAt)
	}
	if second.Channel != "otherchannel" {
		t.Errorf("Channel = %q, want otherchannel", second.Channel)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestFlattenHeadersDropsNonStrings(t *testing.T) {
	headers := network.Headers{
		"Client-Id":   "abc123",
		"X-Device-Id": "dev-1",
		"Weird":       42.0,
	}

	flat := flattenHeaders(headers)
	if flat["Client-Id"] != "abc123" || flat["X-Device-Id"] != "dev-1" {
		t.Errorf("string headers not preserved: %v", flat)
	}
	if _, ok := flat["Weird"]; ok {
		t.Error("non-string header should be dropped")
	}
}
