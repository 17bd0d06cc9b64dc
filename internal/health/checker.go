// Package health runs periodic checks over the bridge's dependencies
// and exposes the latest snapshot to the /health endpoint.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/breaker"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/sqlite"
)

// Check defines a single named health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status is the result of one check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Snapshot aggregates the latest results.
type Snapshot struct {
	Healthy bool     `json:"healthy"`
	Checks  []Status `json:"checks"`
}

// Checker runs checks on a fixed interval.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker with the standard checks: database
// reachability, data directory presence, and the provider breaker. The
// breaker check reports unhealthy while the provider circuit is OPEN so
// operators see degradation without reading logs.
func NewChecker(db *sqlite.DB, dataDir string, breakers *breaker.Registry, critical ...string) *Checker {
	return &Checker{
		interval: 60 * time.Second,
		checks: []Check{
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "data_dir",
				CheckFn: func(ctx context.Context) error {
					return checkDataDir(dataDir)
				},
			},
			{
				Name: "breakers",
				CheckFn: func(ctx context.Context) error {
					if !breakers.Healthy(critical...) {
						return fmt.Errorf("a critical circuit is open")
					}
					return nil
				},
			},
		},
	}
}

// Run starts the check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Snapshot returns the latest aggregated results. Before the first run
// completes it reports healthy with no checks.
func (c *Checker) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{Healthy: true, Checks: make([]Status, len(c.statuses))}
	copy(snap.Checks, c.statuses)
	for _, s := range c.statuses {
		if !s.Healthy {
			snap.Healthy = false
		}
	}
	return snap
}

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
