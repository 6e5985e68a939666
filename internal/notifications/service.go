package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trackreel/internal/config"
)

const userAgent = "trackreel/0.1.0"

// Event names a pipeline milestone.
type Event string

const (
	EventRunStarted     Event = "run_started"
	EventRunCompleted   Event = "run_completed"
	EventRunInterrupted Event = "run_interrupted"
	EventRetryCompleted Event = "retry_completed"
	EventItemFailed     Event = "item_failed"
	EventError          Event = "error"
	EventTest           Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes pipeline events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notifier backed by ntfy when a topic is configured and a
// no-op otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

// format renders an event. Per-item failures and run starts are not pushed;
// the run summary covers them.
func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunCompleted:
		processed := payload.count("processed")
		failed := payload.count("failed")
		duration := payload.elapsed("duration")
		if failed == 0 {
			return message{
				title: "trackreel - Run Complete",
				body:  fmt.Sprintf("✅ Pipeline complete: %d items processed in %s", processed, duration),
				tags:  []string{"trackreel", "run", "completed"},
			}, true
		}
		return message{
			title: "trackreel - Run Complete (with errors)",
			body:  fmt.Sprintf("Pipeline complete: %d succeeded, %d failed in %s", processed, failed, duration),
			tags:  []string{"trackreel", "run", "completed"},
		}, true
	case EventRunInterrupted:
		return message{
			title: "trackreel - Run Interrupted",
			body: fmt.Sprintf("⏸️ Interrupted during %s with %d items remaining; resume with --resume",
				payload.text("stage", "unknown stage"), payload.count("remaining")),
			tags: []string{"trackreel", "run", "interrupted"},
		}, true
	case EventRetryCompleted:
		return message{
			title: "trackreel - Retry Complete",
			body:  fmt.Sprintf("🔁 Retried %d failed tasks: %d succeeded", payload.count("retried"), payload.count("succeeded")),
			tags:  []string{"trackreel", "retry", "completed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.text("context", ""); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		b.WriteString(payload.text("error", "unknown"))
		return message{
			title:    "trackreel - Error",
			body:     b.String(),
			tags:     []string{"trackreel", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "trackreel - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"trackreel", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key, fallback string) string {
	if v, ok := p[key]; ok && v != nil {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return fallback
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) elapsed(key string) string {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
