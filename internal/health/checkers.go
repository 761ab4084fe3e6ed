package health

import (
	"context"
	"fmt"
	"time"
)

// DashboardChecker probes the event sink the summaries are pushed to.
// An unreachable dashboard only degrades the poller: undelivered
// snapshots wait in the spool.
type DashboardChecker struct {
	ping func(ctx context.Context) error
}

func NewDashboardChecker(ping func(ctx context.Context) error) *DashboardChecker {
	return &DashboardChecker{ping: ping}
}

func (c *DashboardChecker) Name() string {
	return "dashboard"
}

func (c *DashboardChecker) Check(ctx context.Context) (Status, string) {
	if err := c.ping(ctx); err != nil {
		return StatusDegraded, "dashboard unreachable: " + err.Error()
	}
	return StatusHealthy, ""
}

// SpoolChecker watches the delivery spool. The spool holds at most one
// snapshot per status event, so any pending row means the dashboard is
// showing stale counts.
type SpoolChecker struct {
	pending func(ctx context.Context) (int64, error)
}

func NewSpoolChecker(pending func(ctx context.Context) (int64, error)) *SpoolChecker {
	return &SpoolChecker{pending: pending}
}

func (c *SpoolChecker) Name() string {
	return "spool"
}

func (c *SpoolChecker) Check(ctx context.Context) (Status, string) {
	n, err := c.pending(ctx)
	if err != nil {
		return StatusUnhealthy, "spool unreadable: " + err.Error()
	}
	if n > 0 {
		return StatusDegraded, fmt.Sprintf("%d status snapshots awaiting delivery", n)
	}
	return StatusHealthy, ""
}

type PollerChecker struct {
	lastCycle func() (time.Time, error)
	maxAge    time.Duration
}

// NewPollerChecker reports degraded until the first cycle ends or after
// a failed cycle, and unhealthy when no cycle has finished within maxAge.
func NewPollerChecker(lastCycle func() (time.Time, error), maxAge time.Duration) *PollerChecker {
	return &PollerChecker{lastCycle: lastCycle, maxAge: maxAge}
}

func (c *PollerChecker) Name() string {
	return "poller"
}

func (c *PollerChecker) Check(ctx context.Context) (Status, string) {
	at, err := c.lastCycle()
	switch {
	case at.IsZero():
		return StatusDegraded, "no poll cycle completed yet"
	case c.maxAge > 0 && time.Since(at) > c.maxAge:
		return StatusUnhealthy, fmt.Sprintf("last poll cycle finished %s ago", time.Since(at).Round(time.Second))
	case err != nil:
		return StatusDegraded, "last poll cycle failed: " + err.Error()
	}
	return StatusHealthy, ""
}
