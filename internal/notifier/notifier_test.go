package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/media_archiver/internal/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var received map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &DiscordNotifier{WebhookURL: srv.URL}

	require.NoError(t, n.Notify("hello"))
	assert.Equal(t, "hello", received["content"])
}

func TestDiscordNotifier_NoURL(t *testing.T) {
	n := &DiscordNotifier{}
	assert.Error(t, n.Notify("hello"))
}

func TestDiscordNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &DiscordNotifier{WebhookURL: srv.URL}
	assert.Error(t, n.Notify("hello"))
}

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) Notify(content string) error {
	r.messages = append(r.messages, content)

	return nil
}

func TestWatchDownloadFailures(t *testing.T) {
	events := make(chan download.Task, 2)
	events <- download.Task{ItemID: "vid1", Kind: download.KindVideo, SourceURL: "https://cdn.example.com/a.mp4"}
	events <- download.Task{ItemID: "vid2", Kind: download.KindThumbnail, SourceURL: "https://cdn.example.com/b.jpg"}
	close(events)

	rec := &recordingNotifier{}

	WatchDownloadFailures(context.Background(), rec, events)

	require.Len(t, rec.messages, 2)
	assert.Contains(t, rec.messages[0], "vid1")
	assert.Contains(t, rec.messages[1], "thumbnail")
}
