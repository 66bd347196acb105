package hls

import (
	"strings"
	"testing"
)

func TestRenditionByName(t *testing.T) {
	tests := []struct {
		name   string
		found  bool
		width  int
		height int
	}{
		{"480p", true, 854, 480},
		{"720p", true, 1280, 720},
		{"1080p", true, 1920, 1080},
		{"360p", false, 0, 0},
		{"", false, 0, 0},
	}

	for _, tt := range tests {
		r, ok := RenditionByName(tt.name)
		if ok != tt.found {
			t.Errorf("RenditionByName(%q) found = %v, want %v", tt.name, ok, tt.found)
			continue
		}
		if ok && (r.Width != tt.width || r.Height != tt.height) {
			t.Errorf("RenditionByName(%q) = %dx%d, want %dx%d", tt.name, r.Width, r.Height, tt.width, tt.height)
		}
	}
}

func TestRenditionScaleAndResolution(t *testing.T) {
	r, _ := RenditionByName("720p")
	if got := r.Scale(); got != "1280:720" {
		t.Errorf("Scale() = %q, want %q", got, "1280:720")
	}
	if got := r.Resolution(); got != "1280x720" {
		t.Errorf("Resolution() = %q, want %q", got, "1280x720")
	}
}

func TestMasterPlaylistAllRenditions(t *testing.T) {
	playlist := MasterPlaylist(Renditions)

	if !strings.HasPrefix(playlist, "#EXTM3U\n#EXT-X-VERSION:3\n") {
		t.Fatalf("playlist missing header:\n%s", playlist)
	}

	wantLines := []string{
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=854x480",
		"480p/index.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=1280x720",
		"720p/index.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1920x1080",
		"1080p/index.m3u8",
	}
	lines := strings.Split(strings.TrimSpace(playlist), "\n")
	if len(lines) != len(wantLines)+2 {
		t.Fatalf("playlist has %d lines, want %d:\n%s", len(lines), len(wantLines)+2, playlist)
	}
	for i, want := range wantLines {
		if lines[i+2] != want {
			t.Errorf("line %d = %q, want %q", i+2, lines[i+2], want)
		}
	}
}

func TestMasterPlaylistSubset(t *testing.T) {
	r480, _ := RenditionByName("480p")
	r1080, _ := RenditionByName("1080p")

	playlist := MasterPlaylist([]Rendition{r480, r1080})
	if strings.Contains(playlist, "720p") {
		t.Errorf("subset playlist should not reference 720p:\n%s", playlist)
	}
	if !strings.Contains(playlist, "480p/index.m3u8") || !strings.Contains(playlist, "1080p/index.m3u8") {
		t.Errorf("subset playlist missing present renditions:\n%s", playlist)
	}
}

func TestMasterPlaylistEmpty(t *testing.T) {
	playlist := MasterPlaylist(nil)
	if playlist != "#EXTM3U\n#EXT-X-VERSION:3\n" {
		t.Errorf("empty playlist = %q", playlist)
	}
}
