package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/speedwagon-io/icinga-status/internal/model"
)

// NATSSender publishes each event as JSON on <prefix>.<event name>.
type NATSSender struct {
	log    *slog.Logger
	conn   *nats.Conn
	prefix string
}

func NewNATSSender(log *slog.Logger, natsURL, subjectPrefix string) (*NATSSender, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("icinga-status"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("url", natsURL))

	return &NATSSender{
		log:    log,
		conn:   conn,
		prefix: subjectPrefix,
	}, nil
}

func Subject(prefix, eventName string) string {
	if prefix == "" {
		return eventName
	}
	return prefix + "." + eventName
}

func (s *NATSSender) Send(ctx context.Context, event *model.Event) error {
	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := Subject(s.prefix, event.Name)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	s.log.Debug("published event", slog.String("subject", subject), slog.String("id", event.ID))
	return nil
}

func (s *NATSSender) SendBatch(ctx context.Context, events []*model.Event) error {
	for _, event := range events {
		if err := s.Send(ctx, event); err != nil {
			return err
		}
	}
	return s.conn.FlushTimeout(5 * time.Second)
}

func (s *NATSSender) Health(ctx context.Context) error {
	if s.conn == nil || !s.conn.IsConnected() {
		return errors.New("not connected to nats")
	}
	return nil
}

func (s *NATSSender) Close() {
	if s.conn != nil {
		s.conn.Close()
		s.log.Info("disconnected from NATS")
	}
}
