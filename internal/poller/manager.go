package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speedwagon-io/icinga-status/internal/buffer"
	"github.com/speedwagon-io/icinga-status/internal/config"
	"github.com/speedwagon-io/icinga-status/internal/icinga"
	"github.com/speedwagon-io/icinga-status/internal/lib/logger/sl"
	"github.com/speedwagon-io/icinga-status/internal/model"
	"github.com/speedwagon-io/icinga-status/internal/sender"
)

const (
	bufferRetryInterval = 30 * time.Second
	bufferBatchSize     = 100
)

type Manager struct {
	log     *slog.Logger
	cfg     *config.Config
	targets []Target
	fetcher Fetcher
	sender  sender.Sender
	buffer  buffer.Buffer
	stopCh  chan struct{}
	wg      sync.WaitGroup

	running atomic.Bool

	// publishMu keeps buffer replay from interleaving with a cycle's
	// sends, so a replayed snapshot never lands after a fresher one.
	publishMu sync.Mutex

	mu        sync.RWMutex
	lastCycle time.Time
	lastErr   error
}

// NewManager wires a poll manager. buf may be nil.
func NewManager(
	log *slog.Logger,
	cfg *config.Config,
	targets []Target,
	fetcher Fetcher,
	sender sender.Sender,
	buf buffer.Buffer,
) *Manager {
	return &Manager{
		log:     log,
		cfg:     cfg,
		targets: targets,
		fetcher: fetcher,
		sender:  sender,
		buffer:  buf,
		stopCh:  make(chan struct{}),
	}
}

// Start runs one cycle immediately and then one per refresh interval
// until ctx is cancelled or Stop is called. It blocks.
func (m *Manager) Start(ctx context.Context) {
	interval := m.cfg.Icinga.RefreshRate

	m.log.Info("starting poll manager",
		slog.String("base_uri", m.cfg.Icinga.BaseURI),
		slog.Duration("interval", interval),
		slog.Int("targets", len(m.targets)),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if m.buffer != nil {
		m.wg.Add(1)
		go m.retryBufferedEvents(ctx)
	}

	m.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("context cancelled, stopping manager")
			return
		case <-m.stopCh:
			m.log.Info("stop signal received, stopping manager")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// tick launches a cycle unless the previous one is still running.
func (m *Manager) tick(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		m.log.Warn("previous poll cycle still running, skipping tick")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.running.Store(false)

		if err := m.RunCycle(ctx); err != nil {
			m.log.Error("poll cycle failed", sl.Err(err))
		}
	}()
}

// LastCycle reports when the last cycle finished and how it ended.
func (m *Manager) LastCycle() (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCycle, m.lastErr
}

type targetResult struct {
	summary icinga.Summary
	err     error
}

// RunCycle performs one refresh: every target is fetched and summarized
// concurrently, then the summaries are published in target order. A
// failed target publishes nothing; the others are unaffected.
func (m *Manager) RunCycle(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		m.mu.Lock()
		m.lastCycle = time.Now()
		m.lastErr = err
		m.mu.Unlock()
	}()

	if timeout := m.cfg.Polling.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	icingaCfg := m.cfg.Icinga
	results := make([]targetResult, len(m.targets))

	var wg sync.WaitGroup
	for i := range m.targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			sum, err := m.pollTarget(ctx, icingaCfg, t)
			results[i] = targetResult{summary: sum, err: err}
		}(i, m.targets[i])
	}
	wg.Wait()

	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	var errs []error
	for i, t := range m.targets {
		res := results[i]
		if res.err != nil {
			m.log.Error("failed to poll target",
				slog.String("target", t.Name),
				sl.Err(res.err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, res.err))
			continue
		}

		if err := m.publish(ctx, t, res.summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}

	m.log.Debug("poll cycle finished",
		slog.Duration("took", time.Since(started)),
		slog.Int("failed", len(errs)),
	)

	return errors.Join(errs...)
}

func (m *Manager) pollTarget(ctx context.Context, cfg config.IcingaConfig, t Target) (icinga.Summary, error) {
	q, err := t.Query(cfg)
	if err != nil {
		return icinga.Summary{}, err
	}

	body, err := m.fetcher.Fetch(ctx, q.URL())
	if err != nil {
		return icinga.Summary{}, err
	}

	sum, err := icinga.Summarize(body, t.States)
	if err != nil {
		return icinga.Summary{}, fmt.Errorf("summarize %s: %w", q.RedactedURL(), err)
	}

	m.log.Debug("target summarized",
		slog.String("target", t.Name),
		slog.String("total", sum.TotalValue()),
	)
	return sum, nil
}

func (m *Manager) publish(ctx context.Context, t Target, sum icinga.Summary) error {
	event, err := model.NewEvent(t.Event, map[string]any{t.PayloadKey: sum})
	if err != nil {
		return err
	}

	sendErr := m.sender.Send(ctx, event)
	if sendErr == nil {
		m.log.Debug("event sent", slog.String("event", event.Name), slog.String("id", event.ID))
		if m.buffer != nil {
			if err := m.buffer.Drop(ctx, event.Name); err != nil {
				m.log.Error("failed to drop superseded event",
					slog.String("event", event.Name),
					sl.Err(err),
				)
			}
		}
		return nil
	}

	m.log.Error("failed to send event",
		slog.String("event", event.Name),
		sl.Err(sendErr),
	)

	if m.buffer == nil {
		return sendErr
	}

	if err := m.buffer.Store(ctx, event); err != nil {
		m.log.Error("failed to buffer event",
			slog.String("event", event.Name),
			sl.Err(err),
		)
		return errors.Join(sendErr, err)
	}

	m.log.Info("event buffered for later retry", slog.String("event", event.Name))
	return nil
}

func (m *Manager) retryBufferedEvents(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(bufferRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.processBufferedEvents(ctx)
		}
	}
}

func (m *Manager) processBufferedEvents(ctx context.Context) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	if err := m.buffer.Cleanup(ctx, m.cfg.Buffer.MaxAge); err != nil {
		m.log.Error("failed to cleanup old buffer events", sl.Err(err))
	}

	pending, err := m.buffer.GetPending(ctx, bufferBatchSize)
	if err != nil {
		m.log.Error("failed to get pending events from buffer", sl.Err(err))
		return
	}

	if len(pending) == 0 {
		return
	}

	m.log.Info("processing buffered events", slog.Int("count", len(pending)))

	if err := m.sender.SendBatch(ctx, pending); err != nil {
		m.log.Debug("failed to send buffered events", sl.Err(err))
		return
	}

	ids := make([]string, 0, len(pending))
	for _, event := range pending {
		ids = append(ids, event.ID)
	}

	if err := m.buffer.MarkSent(ctx, ids); err != nil {
		m.log.Error("failed to mark buffered events as sent", sl.Err(err))
		return
	}

	m.log.Info("buffered events sent successfully", slog.Int("count", len(ids)))
}
