package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/speedwagon-io/icinga-status/internal/config"
	"github.com/speedwagon-io/icinga-status/internal/lib/logger/sl"
	"github.com/speedwagon-io/icinga-status/internal/model"
)

type Sender interface {
	Send(ctx context.Context, event *model.Event) error
	SendBatch(ctx context.Context, events []*model.Event) error
	Health(ctx context.Context) error
}

// HTTPSender pushes events to a dashboard widget API:
// POST <url>/widgets/<event name> with the payload fields and auth_token.
type HTTPSender struct {
	log     *slog.Logger
	baseURL string
	token   string
	client  *http.Client
	backoff *ExponentialBackoff
	retries int
}

func NewHTTPSender(log *slog.Logger, cfg *config.SenderConfig) *HTTPSender {
	return &HTTPSender{
		log:     log,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		backoff: NewExponentialBackoff(cfg.Retry.InitialDelay, cfg.Retry.MaxDelay),
		retries: cfg.Retry.MaxAttempts,
	}
}

func (s *HTTPSender) Send(ctx context.Context, event *model.Event) error {
	body, err := widgetBody(event, s.token)
	if err != nil {
		return err
	}

	return s.sendWithRetry(ctx, event.Name, body)
}

func (s *HTTPSender) SendBatch(ctx context.Context, events []*model.Event) error {
	for _, event := range events {
		if err := s.Send(ctx, event); err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
	}
	return nil
}

// widgetBody merges auth_token into the event payload object.
func widgetBody(event *model.Event, token string) ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(event.Data, &fields); err != nil {
		return nil, fmt.Errorf("event %s payload is not an object: %w", event.Name, err)
	}

	tok, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	fields["auth_token"] = tok

	return json.Marshal(fields)
}

func (s *HTTPSender) sendWithRetry(ctx context.Context, widget string, data []byte) error {
	var lastErr error

	for attempt := 1; attempt <= s.retries; attempt++ {
		err := s.doSend(ctx, widget, data)
		if err == nil {
			return nil
		}

		lastErr = err
		s.log.Warn("send attempt failed",
			slog.String("event", widget),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.retries),
			sl.Err(err),
		)

		if attempt < s.retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff.NextDelay(attempt - 1)):
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", s.retries, lastErr)
}

func (s *HTTPSender) doSend(ctx context.Context, widget string, data []byte) error {
	url := fmt.Sprintf("%s/widgets/%s", s.baseURL, widget)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

func (s *HTTPSender) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// LogSender logs events instead of sending them (dry-run).
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, event *model.Event) error {
	s.log.Info("SEND",
		slog.String("id", event.ID),
		slog.String("event", event.Name),
		slog.Time("timestamp", event.Timestamp),
		slog.String("payload", string(event.Data)),
	)

	return nil
}

func (s *LogSender) SendBatch(ctx context.Context, events []*model.Event) error {
	for _, event := range events {
		if err := s.Send(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogSender) Health(ctx context.Context) error {
	return nil
}
