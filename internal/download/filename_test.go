package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "plain", title: "My Great Video", want: "My_Great_Video"},
		{name: "invalid characters", title: `a<b>c:d"e/f\g|h?i*j`, want: "a_b_c_d_e"},
		{name: "path components stripped", title: "../../etc/passwd", want: "passwd"},
		{name: "whitespace collapsed", title: "  too   many\tspaces  ", want: "too_many_spaces"},
		{name: "trailing dots trimmed", title: "name...", want: "name"},
		{name: "empty", title: "", want: ""},
		{
			name:  "long titles bounded",
			title: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			want:  "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeTitle(tt.title))
		})
	}
}

func TestBaseFilename(t *testing.T) {
	tests := []struct {
		name      string
		sourceURL string
		itemID    string
		kind      MediaKind
		title     string
		want      string
	}{
		{
			name:      "extension from url",
			sourceURL: "https://cdn.example.com/media/abc.webp",
			itemID:    "vid1",
			kind:      KindThumbnail,
			title:     "Hello",
			want:      "vid1_Hello.webp",
		},
		{
			name:      "kind default when url has no extension",
			sourceURL: "https://cdn.example.com/stream/abc",
			itemID:    "vid1",
			kind:      KindVideo,
			title:     "Hello",
			want:      "vid1_Hello.mp4",
		},
		{
			name:      "overlong extension ignored",
			sourceURL: "https://cdn.example.com/a.manifest",
			itemID:    "vid1",
			kind:      KindThumbnail,
			title:     "",
			want:      "vid1.jpg",
		},
		{
			name:      "no title",
			sourceURL: "https://cdn.example.com/a.jpg",
			itemID:    "vid2",
			kind:      KindThumbnail,
			title:     "",
			want:      "vid2.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, baseFilename(tt.sourceURL, tt.itemID, tt.kind, tt.title))
		})
	}
}

func TestBaseFilename_Deterministic(t *testing.T) {
	first := baseFilename("https://cdn.example.com/a.jpg", "vid1", KindThumbnail, "Title")
	second := baseFilename("https://cdn.example.com/a.jpg", "vid1", KindThumbnail, "Title")

	assert.Equal(t, first, second, "the same task must always map to the same filename")
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "video_1.mp4", withSuffix("video.mp4", 1))
	assert.Equal(t, "video_2.mp4", withSuffix("video.mp4", 2))
	assert.Equal(t, "noext_1", withSuffix("noext", 1))
}
