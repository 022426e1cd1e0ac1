package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "strips ephemeral params",
			raw:  "https://cdn.example.com/a.jpg?token=abc&timestamp=123",
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "keeps and sorts stable params",
			raw:  "https://cdn.example.com/a.jpg?quality=hd&bitrate=320",
			want: "https://cdn.example.com/a.jpg?bitrate=320&quality=hd",
		},
		{
			name: "mixed params",
			raw:  "https://cdn.example.com/a.jpg?sig=zzz&quality=hd&expires=999",
			want: "https://cdn.example.com/a.jpg?quality=hd",
		},
		{
			name: "lowercases host",
			raw:  "https://CDN.Example.COM/a.jpg",
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "drops fragment",
			raw:  "https://cdn.example.com/a.jpg#section",
			want: "https://cdn.example.com/a.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURL_RejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/a.jpg", "not a url at all://", ""} {
		_, err := NormalizeURL(raw)
		assert.Error(t, err, "url %q must be rejected", raw)
	}
}

func TestContentHash_EphemeralParamsCollapse(t *testing.T) {
	h1, err := ContentHash("https://cdn.example.com/a.jpg?token=aaa&ts=1")
	require.NoError(t, err)

	h2, err := ContentHash("https://cdn.example.com/a.jpg?token=bbb&ts=2")
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "URLs differing only in ephemeral params must share a hash")

	h3, err := ContentHash("https://cdn.example.com/b.jpg")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestContentHash_ParamOrderIrrelevant(t *testing.T) {
	h1, err := ContentHash("https://cdn.example.com/a.jpg?x=1&y=2")
	require.NoError(t, err)

	h2, err := ContentHash("https://cdn.example.com/a.jpg?y=2&x=1")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}
