package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"veriflow/internal/config"
	"veriflow/internal/queue"
)

const userAgent = "Veriflow/0.1.0"

// Service defines the notification surface exposed to the sync pipeline.
type Service interface {
	NotifyUploadCompleted(ctx context.Context, item *queue.Item) error
	NotifyUploadFailed(ctx context.Context, item *queue.Item, reason string) error
	NotifyQueueCompleted(ctx context.Context, uploaded, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		uploadEvents: cfg.Notifications.Uploads,
		errorEvents:  cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	uploadEvents bool
	errorEvents  bool
}

func (n *ntfyService) NotifyUploadCompleted(ctx context.Context, item *queue.Item) error {
	if !n.uploadEvents || item == nil {
		return nil
	}
	data := payload{
		title:   "Veriflow - Upload Complete",
		message: fmt.Sprintf("Uploaded %s artifact %s", item.Kind, shortID(item.ID)),
		tags:    []string{"veriflow", "upload", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUploadFailed(ctx context.Context, item *queue.Item, reason string) error {
	if !n.errorEvents || item == nil {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Veriflow - Upload Failed",
		message:  fmt.Sprintf("Upload failed for %s artifact %s: %s", item.Kind, shortID(item.ID), reason),
		tags:     []string{"veriflow", "upload", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueCompleted(ctx context.Context, uploaded, failed int, duration time.Duration) error {
	if !n.uploadEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if failed == 0 {
		title = "Veriflow - Queue Drained"
		message = fmt.Sprintf("Sync complete: %d items uploaded in %s", uploaded, durationText)
	} else {
		title = "Veriflow - Queue Drained (with errors)"
		message = fmt.Sprintf("Sync complete: %d uploaded, %d failed in %s", uploaded, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"veriflow", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errorEvents {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Veriflow - Error",
		message:  builder.String(),
		tags:     []string{"veriflow", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Veriflow - Test",
		message:  "Notification system test",
		tags:     []string{"veriflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyUploadCompleted(context.Context, *queue.Item) error { return nil }

func (noopService) NotifyUploadFailed(context.Context, *queue.Item, string) error { return nil }

func (noopService) NotifyQueueCompleted(context.Context, int, int, time.Duration) error { return nil }

func (noopService) NotifyError(context.Context, error, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
