// Package cleanup reclaims storage for finished or abandoned tasks:
// the uploaded source artifact, per-segment audio chunks, and
// optionally the task records themselves.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/metrics"
)

// Config configures the cleanup service.
type Config struct {
	Retention     time.Duration // keep terminal tasks this long (default 24h)
	AbandonWindow time.Duration // non-terminal tasks older than this are abandoned (default 72h)
	DeleteRecords bool          // also drop task/segment rows after releasing files
	Interval      time.Duration // Run loop cadence (default 1h)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Retention:     24 * time.Hour,
		AbandonWindow: 72 * time.Hour,
		DeleteRecords: false,
		Interval:      1 * time.Hour,
	}
}

// Options tune one cleanup invocation.
type Options struct {
	MaxRetries int // per-resource release attempts (default 3)
	BatchSize  int // max tasks per invocation (default 50)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	return o
}

// Report summarizes one PerformCleanup batch. Tasks whose cleanup
// exhausted its retries appear in Failed and are left for the next
// scheduled run, never silently dropped.
type Report struct {
	Scanned   int      `json:"scanned"`
	Cleaned   int      `json:"cleaned"`
	AlreadyOK int      `json:"already_clean"`
	Released  int      `json:"resources_released"`
	Failed    []string `json:"failed_task_ids,omitempty"`
}

// Service releases task artifacts. Safe to re-run: repeating cleanup on
// an already-cleaned task is a no-op returning success.
type Service struct {
	store  domain.Store
	config Config
	now    func() time.Time // injectable clock for testing
	remove func(string) error
}

// New creates a cleanup service.
func New(store domain.Store, cfg Config) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.AbandonWindow <= 0 {
		cfg.AbandonWindow = 72 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	return &Service{
		store:  store,
		config: cfg,
		now:    time.Now,
		remove: os.Remove,
	}
}

// Run performs cleanup on a schedule until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.PerformCleanup(ctx, Options{})
			if err != nil {
				log.Printf("[cleanup] run failed: %v", err)
				continue
			}
			if report.Cleaned > 0 || len(report.Failed) > 0 {
				log.Printf("[cleanup] run done: scanned=%d cleaned=%d released=%d failed=%d",
					report.Scanned, report.Cleaned, report.Released, len(report.Failed))
			}
		}
	}
}

// PerformCleanup scans for eligible tasks and releases their resources.
func (s *Service) PerformCleanup(ctx context.Context, opts Options) (Report, error) {
	opts = opts.withDefaults()

	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list tasks: %w", err)
	}

	var report Report
	for _, task := range tasks {
		if report.Scanned >= opts.BatchSize {
			break
		}
		if !s.eligible(&task) {
			continue
		}
		report.Scanned++

		if task.CleanedUp {
			report.AlreadyOK++
			continue
		}

		released, err := s.cleanupOne(ctx, &task, opts)
		report.Released += released
		if err != nil {
			metrics.CleanupFailures.Inc()
			report.Failed = append(report.Failed, task.ID)
			log.Printf("[cleanup] task %s: %v (left for next run)", task.ID, err)
			continue
		}
		report.Cleaned++
	}
	return report, nil
}

// CleanupTask cleans a single task regardless of retention windows.
// Returns true when the task is clean afterwards (including the no-op
// case of an already-cleaned task).
func (s *Service) CleanupTask(ctx context.Context, taskID string, opts Options) (bool, error) {
	opts = opts.withDefaults()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task.CleanedUp {
		return true, nil
	}
	if _, err := s.cleanupOne(ctx, task, opts); err != nil {
		return false, err
	}
	return true, nil
}

// eligible selects terminal tasks past retention plus abandoned tasks.
func (s *Service) eligible(task *domain.Task) bool {
	now := s.now()
	if task.IsTerminal() {
		return now.Sub(task.CompletedAt) >= s.config.Retention
	}
	return now.Sub(task.CreatedAt) >= s.config.AbandonWindow
}

// cleanupOne releases a task's artifacts and marks it cleaned. Returns
// the number of resources actually released this invocation.
func (s *Service) cleanupOne(ctx context.Context, task *domain.Task, opts Options) (int, error) {
	segments, err := s.store.ListSegments(ctx, task.ID)
	if err != nil {
		return 0, fmt.Errorf("list segments: %w", err)
	}

	released := 0
	paths := make([]string, 0, len(segments)+1)
	if task.SourcePath != "" {
		paths = append(paths, task.SourcePath)
	}
	for _, seg := range segments {
		if seg.AudioPath != "" {
			paths = append(paths, seg.AudioPath)
		}
	}

	for _, path := range paths {
		ok, err := s.releaseWithRetry(path, opts.MaxRetries)
		if err != nil {
			return released, fmt.Errorf("%w: release %s: %v", domain.ErrCleanupExhausted, path, err)
		}
		if ok {
			released++
			metrics.CleanupReleased.Inc()
		}
	}

	if s.config.DeleteRecords {
		if err := s.store.DeleteTask(ctx, task.ID); err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
			return released, fmt.Errorf("delete records: %w", err)
		}
		return released, nil
	}

	cleaned := true
	if err := s.store.UpdateTask(ctx, task.ID, domain.TaskPatch{CleanedUp: &cleaned}); err != nil {
		return released, fmt.Errorf("mark cleaned: %w", err)
	}
	return released, nil
}

// releaseWithRetry removes one file, retrying transient failures within
// this invocation. A missing file counts as already released (false,
// nil): that keeps re-runs idempotent.
func (s *Service) releaseWithRetry(path string, maxRetries int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.remove(path)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		lastErr = err
	}
	return false, lastErr
}
