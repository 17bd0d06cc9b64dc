// Package queue implements the segment queue processor: it loads
// eligible segments (pending, plus processing segments stuck past the
// staleness window), dispatches them to the provider in bounded
// concurrent batches, and records each outcome independently.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/breaker"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/metrics"
)

// Finalizer triggers the completion check for a task after a segment
// reaches a terminal state. Implemented by assembler.Assembler.
type Finalizer interface {
	TryFinalize(ctx context.Context, taskID string) error
}

// Config configures the queue processor.
type Config struct {
	MaxConcurrent int           // batch size / peak in-flight provider calls (default 8)
	StaleWindow   time.Duration // processing older than this is reclaimed (default 60s)
	DispatchDelay time.Duration // pause between same-task dispatches (default 2s)
	RetryBudget   int           // provider attempts per segment per pass (default 2)
	PollInterval  time.Duration // Run loop cadence (default 10s)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
		StaleWindow:   60 * time.Second,
		DispatchDelay: 2 * time.Second,
		RetryBudget:   2,
		PollInterval:  10 * time.Second,
	}
}

// Result reports one ProcessQueue pass.
type Result struct {
	Processed int `json:"processed"` // segments that reached a terminal state or went async
	Remaining int `json:"remaining"` // segments left for a later pass (circuit open, in-flight async)
}

// Processor dispatches eligible segments to the transcription provider.
type Processor struct {
	store     domain.Store
	client    domain.Transcriber
	breaker   *breaker.Breaker
	finalizer Finalizer
	config    Config
	now       func() time.Time // injectable clock for testing
}

// New creates a queue processor. The breaker must be the provider's
// breaker from the process-wide registry.
func New(store domain.Store, client domain.Transcriber, b *breaker.Breaker, fin Finalizer, cfg Config) *Processor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.StaleWindow <= 0 {
		cfg.StaleWindow = 60 * time.Second
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Processor{
		store:     store,
		client:    client,
		breaker:   b,
		finalizer: fin,
		config:    cfg,
		now:       time.Now,
	}
}

// Run polls ProcessQueue until ctx is cancelled. Call in a goroutine.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := p.ProcessQueue(ctx)
			if err != nil {
				log.Printf("[queue] pass failed: %v", err)
				continue
			}
			if res.Processed > 0 || res.Remaining > 0 {
				log.Printf("[queue] pass done: processed=%d remaining=%d", res.Processed, res.Remaining)
			}
		}
	}
}

// ProcessQueue runs one dispatch pass. Individual segment failures never
// surface as errors; the error return is reserved for store-level faults.
func (p *Processor) ProcessQueue(ctx context.Context) (Result, error) {
	eligible, reclaimed, err := p.loadEligible(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load eligible segments: %w", err)
	}
	if reclaimed > 0 {
		metrics.SegmentsReclaimed.Add(float64(reclaimed))
		log.Printf("[queue] reclaimed %d stale processing segments", reclaimed)
	}
	if len(eligible) == 0 {
		return Result{}, nil
	}

	var res Result
	for start := 0; start < len(eligible); start += p.config.MaxConcurrent {
		end := start + p.config.MaxConcurrent
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		outcomes := p.dispatchBatch(ctx, batch)
		for _, o := range outcomes {
			if o == outcomeRemaining {
				res.Remaining++
			} else {
				res.Processed++
			}
		}

		if ctx.Err() != nil {
			res.Remaining += len(eligible) - end
			break
		}
	}
	return res, nil
}

// loadEligible returns pending segments plus stale processing segments,
// ordered by start time for human-observable progress. Stale segments
// count as abandoned and are retried as if pending.
func (p *Processor) loadEligible(ctx context.Context) ([]domain.Segment, int, error) {
	pending, err := p.store.ListSegmentsByStatus(ctx, domain.SegmentPending, time.Time{})
	if err != nil {
		return nil, 0, err
	}
	staleBefore := p.now().Add(-p.config.StaleWindow)
	stale, err := p.store.ListSegmentsByStatus(ctx, domain.SegmentProcessing, staleBefore)
	if err != nil {
		return nil, 0, err
	}

	// Skip async segments that already hold a correlation id: those are
	// legitimately waiting on the provider's webhook, not abandoned,
	// unless they have been waiting well past the window anyway.
	eligible := pending
	reclaimed := 0
	for _, s := range stale {
		if s.CorrelationID != "" && p.now().Sub(s.UpdatedAt) < 10*p.config.StaleWindow {
			continue
		}
		eligible = append(eligible, s)
		reclaimed++
	}
	return eligible, reclaimed, nil
}

// batch outcomes
type outcome int

const (
	outcomeTerminal  outcome = iota // completed or failed this pass
	outcomeAsync                    // correlation id persisted, webhook pending
	outcomeRemaining                // untouched, left for a later pass
)

// dispatchBatch issues all calls in the batch concurrently and waits for
// every outcome before returning. A fixed delay staggers successive
// dispatches of the same task's segments to respect provider rate
// limits; unrelated tasks are not delayed against each other.
func (p *Processor) dispatchBatch(ctx context.Context, batch []domain.Segment) []outcome {
	outcomes := make([]outcome, len(batch))
	var wg sync.WaitGroup

	lastTask := ""
	for i, seg := range batch {
		if p.config.DispatchDelay > 0 && seg.TaskID == lastTask {
			select {
			case <-ctx.Done():
				for j := i; j < len(batch); j++ {
					outcomes[j] = outcomeRemaining
				}
				wg.Wait()
				return outcomes
			case <-time.After(p.config.DispatchDelay):
			}
		}
		lastTask = seg.TaskID

		wg.Add(1)
		go func(i int, seg domain.Segment) {
			defer wg.Done()
			// One segment's panic or failure never aborts its siblings.
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[queue] segment %s: panic during dispatch: %v", seg.ID, r)
					outcomes[i] = outcomeRemaining
				}
			}()
			outcomes[i] = p.dispatchSegment(ctx, seg)
		}(i, seg)
	}

	wg.Wait()
	return outcomes
}

// dispatchSegment drives one segment through the provider.
func (p *Processor) dispatchSegment(ctx context.Context, seg domain.Segment) outcome {
	// Fast-fail before any state change while the provider is down.
	// The segment stays eligible for the next pass.
	if p.breaker.State() == breaker.Open {
		metrics.BreakerRejections.WithLabelValues("provider").Inc()
		return outcomeRemaining
	}

	// Optimistic claim: the status write is the only lock.
	if err := p.markProcessing(ctx, seg.ID); err != nil {
		log.Printf("[queue] segment %s: claim failed: %v", seg.ID, err)
		return outcomeRemaining
	}

	res, err := p.callProvider(ctx, seg)
	switch {
	case err == nil && res.Async():
		// Result arrives later via webhook; persist the correlation id
		// and leave the segment processing.
		if err := p.storeCorrelation(ctx, seg.ID, res.CorrelationID); err != nil {
			log.Printf("[queue] segment %s: persist correlation: %v", seg.ID, err)
			return outcomeRemaining
		}
		metrics.SegmentsDispatched.WithLabelValues("async").Inc()
		return outcomeAsync

	case err == nil:
		metrics.SegmentsDispatched.WithLabelValues("sync").Inc()
		p.completeSync(ctx, seg, res.Text)
		return outcomeTerminal

	case errors.Is(err, domain.ErrCircuitOpen):
		// Dependency down, not this segment's fault: undo the claim.
		p.resetPending(ctx, seg.ID)
		return outcomeRemaining

	default:
		p.failSegment(ctx, seg, err)
		return outcomeTerminal
	}
}

// callProvider calls the provider through the circuit breaker, retrying
// external failures within the local retry budget. Validation errors
// fail fast: no retry, and no breaker side effects, since rejected
// input says nothing about the provider's health. Only external and
// timeout failures count toward tripping the circuit.
func (p *Processor) callProvider(ctx context.Context, seg domain.Segment) (*domain.TranscribeResult, error) {
	var lastErr error

	for attempt := 0; attempt < p.config.RetryBudget; attempt++ {
		if err := p.breaker.Allow(); err != nil {
			return nil, err
		}
		started := p.now()
		res, err := p.client.Transcribe(ctx, domain.TranscribeRequest{AudioPath: seg.AudioPath})
		metrics.DispatchLatency.Observe(p.now().Sub(started).Seconds())
		if err == nil {
			p.breaker.RecordSuccess()
			return res, nil
		}
		lastErr = err
		if domain.IsValidation(err) {
			p.breaker.Discard()
			break
		}
		p.breaker.RecordFailure()
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// ─── State writes ───────────────────────────────────────────────────────────

func (p *Processor) markProcessing(ctx context.Context, segID string) error {
	status := domain.SegmentProcessing
	now := p.now()
	return p.store.UpdateSegment(ctx, segID, domain.SegmentPatch{
		Status:    &status,
		UpdatedAt: &now,
	})
}

func (p *Processor) resetPending(ctx context.Context, segID string) {
	status := domain.SegmentPending
	now := p.now()
	if err := p.store.UpdateSegment(ctx, segID, domain.SegmentPatch{
		Status:    &status,
		UpdatedAt: &now,
	}); err != nil {
		log.Printf("[queue] segment %s: reset to pending failed: %v", segID, err)
	}
}

func (p *Processor) storeCorrelation(ctx context.Context, segID, correlationID string) error {
	now := p.now()
	return p.store.UpdateSegment(ctx, segID, domain.SegmentPatch{
		CorrelationID: &correlationID,
		UpdatedAt:     &now,
	})
}

func (p *Processor) completeSync(ctx context.Context, seg domain.Segment, text string) {
	status := domain.SegmentCompleted
	now := p.now()
	if err := p.store.UpdateSegment(ctx, seg.ID, domain.SegmentPatch{
		Status:    &status,
		Text:      &text,
		UpdatedAt: &now,
	}); err != nil {
		log.Printf("[queue] segment %s: write completed: %v", seg.ID, err)
		return
	}
	metrics.SegmentsCompleted.WithLabelValues("completed").Inc()
	if err := p.store.IncrementCompletedSegments(ctx, seg.TaskID); err != nil {
		log.Printf("[queue] task %s: bump completed counter: %v", seg.TaskID, err)
	}
	p.finalize(ctx, seg.TaskID)
}

func (p *Processor) failSegment(ctx context.Context, seg domain.Segment, cause error) {
	status := domain.SegmentFailed
	msg := cause.Error()
	now := p.now()
	if err := p.store.UpdateSegment(ctx, seg.ID, domain.SegmentPatch{
		Status:    &status,
		Error:     &msg,
		UpdatedAt: &now,
	}); err != nil {
		log.Printf("[queue] segment %s: write failed: %v", seg.ID, err)
		return
	}
	metrics.SegmentsCompleted.WithLabelValues("failed").Inc()
	log.Printf("[queue] segment %s [%.0f-%.0f): failed: %v", seg.ID, seg.StartTime, seg.EndTime, cause)
	if err := p.store.IncrementCompletedSegments(ctx, seg.TaskID); err != nil {
		log.Printf("[queue] task %s: bump completed counter: %v", seg.TaskID, err)
	}
	p.finalize(ctx, seg.TaskID)
}

func (p *Processor) finalize(ctx context.Context, taskID string) {
	if p.finalizer == nil {
		return
	}
	if err := p.finalizer.TryFinalize(ctx, taskID); err != nil {
		log.Printf("[queue] task %s: finalize check: %v", taskID, err)
	}
}
