// Package health reports whether the process can serve traffic.
package health

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single readiness probe.
const DefaultTimeout = 2 * time.Second

// Pinger checks connectivity to a dependency (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker probes the process's dependencies. A nil Pinger always reports healthy.
type Checker struct {
	pinger  Pinger
	timeout time.Duration
}

// NewChecker returns a Checker that pings p with DefaultTimeout.
func NewChecker(p Pinger) *Checker {
	return &Checker{pinger: p, timeout: DefaultTimeout}
}

// Check returns nil when every dependency answers within the timeout.
func (c *Checker) Check(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.pinger.PingContext(ctx)
}
