package hls

import (
	"strings"
	"testing"
)

const sampleMaster = `#EXTM3U
#EXT-X-TWITCH-INFO:NODE="video-edge",MANIFEST-NODE="video-weaver"
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="chunked",NAME="1080p60"
#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080,CODECS="avc1.64002A,mp4a.40.2"
https://video-weaver.example.net/v1/playlist/first.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1280x720
https://video-weaver.example.net/v1/playlist/second.m3u8
`

func TestIsPlaylistURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://usher.example.net/api/channel/hls/somechannel.m3u8", true},
		{"https://usher.example.net/api/channel/hls/somechannel.m3u8?token=abc&sig=def", true},
		{"  https://video-weaver.example.net/v1/playlist/x.m3u8  ", true},
		{"https://example.net/segment-001.ts", false},
		{"https://gql.example.net/gql", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsPlaylistURL(tt.url); got != tt.want {
			t.Errorf("IsPlaylistURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestFirstVariantURL(t *testing.T) {
	u, ok := FirstVariantURL(sampleMaster)
	if !ok {
		t.Fatal("FirstVariantURL found nothing")
	}
	if want := "https://video-weaver.example.net/v1/playlist/first.m3u8"; u != want {
		t.Fatalf("FirstVariantURL = %q, want %q", u, want)
	}

	if _, ok := FirstVariantURL("#EXTM3U\n#EXT-X-ENDLIST\n"); ok {
		t.Fatal("FirstVariantURL matched a playlist with no variants")
	}
}

func TestVariantURLs(t *testing.T) {
	urls := VariantURLs(sampleMaster)
	if len(urls) != 2 {
		t.Fatalf("VariantURLs returned %d entries, want 2: %v", len(urls), urls)
	}
	if !strings.HasSuffix(urls[1], "second.m3u8") {
		t.Fatalf("second variant = %q", urls[1])
	}
}

func TestContainsAdSignifier(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-DATERANGE:ID=\"stitched-ad-1\",CLASS=\"twitch-stitched-ad\"\n"
	if !ContainsAdSignifier(body, "stitched-ad") {
		t.Fatal("signifier not detected")
	}
	if ContainsAdSignifier(body, "") {
		t.Fatal("empty signifier must never match")
	}
	if ContainsAdSignifier("#EXTM3U\n#EXTINF:2.0,live\n", "stitched-ad") {
		t.Fatal("false positive on clean playlist")
	}
}

func TestIsMidroll(t *testing.T) {
	if !IsMidroll(`#EXT-X-DATERANGE:ID="MIDROLL-7"`) {
		t.Fatal("case-insensitive midroll match failed")
	}
	if IsMidroll(`#EXT-X-DATERANGE:ID="preroll-1"`) {
		t.Fatal("preroll misclassified as midroll")
	}
}

func TestDateRangeAttrs(t *testing.T) {
	body := "#EXTM3U\n" +
		"#EXT-X-DATERANGE:ID=\"stitched-ad-1\",CLASS=\"twitch-stitched-ad\",X-TV-TWITCH-AD-RAD-TOKEN=\"rad-123\"\n" +
		"#EXTINF:2.0,\n" +
		"https://example.net/seg.ts\n" +
		"#EXT-X-DATERANGE:ID=\"other\"\n"

	ranges := DateRangeAttrs(body)
	if len(ranges) != 2 {
		t.Fatalf("DateRangeAttrs returned %d mappings, want 2", len(ranges))
	}
	rad, ok := ranges[0].Get("X-TV-TWITCH-AD-RAD-TOKEN")
	if !ok || rad.Str != "rad-123" {
		t.Fatalf("rad token = %+v, want rad-123", rad)
	}
}
