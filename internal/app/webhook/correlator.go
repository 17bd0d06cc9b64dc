// Package webhook handles both directions of webhook traffic: the
// Correlator maps inbound provider callbacks to segments, and the
// Notifier delivers outbound completion payloads to client systems.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/metrics"
)

// Payload is the provider's asynchronous callback body. Only the
// correlation id and status are required; text and language arrive on
// success.
type Payload struct {
	CorrelationID string `json:"request_id"`
	Status        string `json:"status"` // "completed" | "failed"
	Text          string `json:"text,omitempty"`
	Language      string `json:"language_code,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Outcome classifies how a callback was handled.
type Outcome string

const (
	// OutcomeApplied: the segment took its one terminal transition.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate: the segment was already terminal; the callback
	// was discarded idempotently (at-least-once delivery guard).
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeNotFound: no segment holds the correlation id. Logged and
	// discarded; never surfaced as an error to the provider.
	OutcomeNotFound Outcome = "not_found"
)

// Finalizer triggers the owning task's completion check.
type Finalizer interface {
	TryFinalize(ctx context.Context, taskID string) error
}

// Correlator resolves provider callbacks to segments.
type Correlator struct {
	store     domain.Store
	finalizer Finalizer
	now       func() time.Time // injectable clock for testing
}

// NewCorrelator creates a correlator.
func NewCorrelator(store domain.Store, fin Finalizer) *Correlator {
	return &Correlator{store: store, finalizer: fin, now: time.Now}
}

// HandleProviderCallback applies one provider callback. The error return
// is reserved for store-level faults; unmatched or duplicate callbacks
// return a non-applied outcome with a nil error so the HTTP layer can
// answer 200 (provider webhooks are fire-and-forget).
func (c *Correlator) HandleProviderCallback(ctx context.Context, p Payload) (Outcome, error) {
	if p.CorrelationID == "" {
		metrics.CallbacksReceived.WithLabelValues(string(OutcomeNotFound)).Inc()
		log.Printf("[webhook] callback without correlation id discarded")
		return OutcomeNotFound, nil
	}

	seg, err := c.store.GetSegmentByCorrelation(ctx, p.CorrelationID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownCorrelation) {
			metrics.CallbacksReceived.WithLabelValues(string(OutcomeNotFound)).Inc()
			log.Printf("[webhook] callback for unknown correlation %q discarded", p.CorrelationID)
			return OutcomeNotFound, nil
		}
		return "", fmt.Errorf("lookup correlation %q: %w", p.CorrelationID, err)
	}

	if seg.IsTerminal() {
		// At-least-once delivery: no second transition, no second
		// counter bump, no second assembly trigger.
		metrics.CallbacksReceived.WithLabelValues(string(OutcomeDuplicate)).Inc()
		log.Printf("[webhook] duplicate callback for segment %s (%s) discarded", seg.ID, seg.Status)
		return OutcomeDuplicate, nil
	}

	if err := c.applyResult(ctx, seg, p); err != nil {
		return "", err
	}
	metrics.CallbacksReceived.WithLabelValues(string(OutcomeApplied)).Inc()

	if err := c.store.IncrementCompletedSegments(ctx, seg.TaskID); err != nil {
		log.Printf("[webhook] task %s: bump completed counter: %v", seg.TaskID, err)
	}
	if c.finalizer != nil {
		if err := c.finalizer.TryFinalize(ctx, seg.TaskID); err != nil {
			log.Printf("[webhook] task %s: finalize check: %v", seg.TaskID, err)
		}
	}
	return OutcomeApplied, nil
}

// applyResult writes the segment's single terminal transition.
func (c *Correlator) applyResult(ctx context.Context, seg *domain.Segment, p Payload) error {
	now := c.now()
	var patch domain.SegmentPatch
	patch.UpdatedAt = &now

	if p.Status == "completed" {
		status := domain.SegmentCompleted
		patch.Status = &status
		patch.Text = &p.Text
		metrics.SegmentsCompleted.WithLabelValues("completed").Inc()
	} else {
		status := domain.SegmentFailed
		msg := p.Error
		if msg == "" {
			msg = fmt.Sprintf("provider reported status %q", p.Status)
		}
		patch.Status = &status
		patch.Error = &msg
		metrics.SegmentsCompleted.WithLabelValues("failed").Inc()
	}

	if err := c.store.UpdateSegment(ctx, seg.ID, patch); err != nil {
		return fmt.Errorf("apply callback to segment %s: %w", seg.ID, err)
	}
	return nil
}
