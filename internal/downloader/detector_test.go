package downloader

import (
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://cdn.example.com/a/clip.mkv", false},
		{"http://example.com/clip.mp4", false},
		{"ftp://example.com/clip.mp4", true},
		{"/relative/clip.mp4", true},
		{"https://", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestStagingName(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.com/media/clip.mkv", "id1_clip.mkv"},
		{"https://example.com/media/my%20clip.mov?token=abc", "id1_my_clip.mov"},
		{"https://example.com/media/%C3%A9t%C3%A9.webm", "id1__t_.webm"},
		{"https://example.com/", "video_id1.mp4"},
		{"https://example.com", "video_id1.mp4"},
		{"https://example.com/media/..", "video_id1.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := StagingName(tt.url, "id1")
			if result != tt.expected {
				t.Errorf("StagingName(%q) = %q, want %q", tt.url, result, tt.expected)
			}
		})
	}
}

func TestStagingName_DistinctPerID(t *testing.T) {
	url := "https://example.com/media/clip.mp4"

	if StagingName(url, "a") == StagingName(url, "b") {
		t.Fatal("staging names must differ across ids")
	}
}

func TestStagingName_LongNameKeepsExtension(t *testing.T) {
	url := "https://example.com/" + strings.Repeat("x", 400) + ".mkv"

	name := StagingName(url, "id1")
	if !strings.HasSuffix(name, ".mkv") {
		t.Errorf("extension lost: %q", name)
	}
	if len(name) > maxNameLength+len("id1_") {
		t.Errorf("name too long: %d", len(name))
	}
}

func TestDefaultTitle(t *testing.T) {
	if got := DefaultTitle("https://example.com/videos/intro.mp4"); got != "intro.mp4" {
		t.Errorf("unexpected title: %q", got)
	}
	if got := DefaultTitle("https://example.com/"); got != "https://example.com/" {
		t.Errorf("expected URL fallback, got %q", got)
	}
}
