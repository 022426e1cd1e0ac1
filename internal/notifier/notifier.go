package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/italolelis/media_archiver/internal/download"
	"github.com/italolelis/media_archiver/internal/logctx"
)

type Notifier interface {
	Notify(content string) error
}

type DiscordNotifier struct {
	WebhookURL string
}

func (d *DiscordNotifier) Notify(content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := http.Post(d.WebhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// WatchDownloadFailures drains the manager's failure events and pushes one
// notification per failed task. Returns when the channel closes.
func WatchDownloadFailures(ctx context.Context, notif Notifier, events <-chan download.Task) {
	logger := logctx.LoggerFromContext(ctx)

	for task := range events {
		logger.Error("download failed", "item_id", task.ItemID, "url", task.SourceURL)

		if notif == nil {
			continue
		}

		msg := fmt.Sprintf("❌ Download failed for %s %s (%s)", task.Kind, task.ItemID, task.SourceURL)
		if notifyErr := notif.Notify(msg); notifyErr != nil {
			logger.Error("failed to send notification", "item_id", task.ItemID, "err", notifyErr)
		}
	}
}
