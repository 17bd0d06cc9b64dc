// Package assembler finalizes tasks: once every segment is terminal it
// either assembles the ordered transcript and notifies the client, or
// marks the task failed.
package assembler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/metrics"
)

// Notifier delivers the completion payload to the client's callback URL.
// Implemented by webhook.Notifier; delivery is best-effort and never
// transactional with finalization.
type Notifier interface {
	Notify(ctx context.Context, callbackURL string, n Notification) error
}

// Notification is the outbound completion payload.
type Notification struct {
	TaskID           string    `json:"taskId"`
	Status           string    `json:"status"`
	Transcription    string    `json:"transcription,omitempty"`
	Error            string    `json:"error,omitempty"`
	OriginalFilename string    `json:"originalFilename"`
	CompletedAt      time.Time `json:"completedAt"`
}

// Config controls failure notifications.
type Config struct {
	NotifyOnFailure bool // also deliver a payload when the task fails
}

// Assembler decides when a task is done and emits the final transcript.
type Assembler struct {
	store    domain.Store
	notifier Notifier
	config   Config
	now      func() time.Time // injectable clock for testing
}

// New creates an assembler. notifier may be nil (no outbound delivery).
func New(store domain.Store, notifier Notifier, cfg Config) *Assembler {
	return &Assembler{
		store:    store,
		notifier: notifier,
		config:   cfg,
		now:      time.Now,
	}
}

// TryFinalize checks whether taskID is finished and, if so, finalizes
// it. Idempotent and safe to call after every segment update: a no-op
// while segments remain in flight or once the task is already terminal.
func (a *Assembler) TryFinalize(ctx context.Context, taskID string) error {
	task, err := a.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}

	segments, err := a.store.ListSegments(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list segments: %w", err)
	}

	failed := 0
	for _, s := range segments {
		switch s.Status {
		case domain.SegmentPending, domain.SegmentProcessing:
			return nil // still in flight
		case domain.SegmentFailed:
			failed++
		}
	}

	if failed > 0 {
		return a.finalizeFailed(ctx, task, failed)
	}
	return a.finalizeCompleted(ctx, task, segments)
}

// finalizeCompleted assembles the transcript in ascending start-time
// order, regardless of the order segments actually completed in.
func (a *Assembler) finalizeCompleted(ctx context.Context, task *domain.Task, segments []domain.Segment) error {
	transcript := AssembleTranscript(segments)

	status := domain.TaskCompleted
	done := a.now()
	if err := a.store.UpdateTask(ctx, task.ID, domain.TaskPatch{
		Status:          &status,
		FinalTranscript: &transcript,
		CompletedAt:     &done,
	}); err != nil {
		return fmt.Errorf("finalize task %s: %w", task.ID, err)
	}
	metrics.TasksFinalized.WithLabelValues("completed").Inc()
	log.Printf("[assembler] task %s completed: %d segments, %d chars", task.ID, len(segments), len(transcript))

	a.deliver(ctx, task.CallbackURL, Notification{
		TaskID:           task.ID,
		Status:           string(domain.TaskCompleted),
		Transcription:    transcript,
		OriginalFilename: task.OriginalFilename,
		CompletedAt:      done,
	})
	return nil
}

// finalizeFailed marks the task failed with an error summarizing the
// failed segment count. No transcript is set and no success webhook is
// delivered.
func (a *Assembler) finalizeFailed(ctx context.Context, task *domain.Task, failed int) error {
	status := domain.TaskFailed
	msg := fmt.Sprintf("%d of %d segments failed transcription", failed, task.TotalSegments)
	done := a.now()
	if err := a.store.UpdateTask(ctx, task.ID, domain.TaskPatch{
		Status:      &status,
		Error:       &msg,
		CompletedAt: &done,
	}); err != nil {
		return fmt.Errorf("finalize task %s: %w", task.ID, err)
	}
	metrics.TasksFinalized.WithLabelValues("failed").Inc()
	log.Printf("[assembler] task %s failed: %s", task.ID, msg)

	if a.config.NotifyOnFailure {
		a.deliver(ctx, task.CallbackURL, Notification{
			TaskID:           task.ID,
			Status:           string(domain.TaskFailed),
			Error:            msg,
			OriginalFilename: task.OriginalFilename,
			CompletedAt:      done,
		})
	}
	return nil
}

// deliver sends the notification, best-effort. A failed delivery is
// logged but never reverts the task's terminal status.
func (a *Assembler) deliver(ctx context.Context, callbackURL string, n Notification) {
	if a.notifier == nil || callbackURL == "" {
		return
	}
	if err := a.notifier.Notify(ctx, callbackURL, n); err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		log.Printf("[assembler] task %s: callback delivery failed: %v", n.TaskID, err)
		return
	}
	metrics.NotificationsSent.WithLabelValues("ok").Inc()
}

// AssembleTranscript concatenates segment texts ordered by start time
// ascending, joined with single spaces, skipping empty text. Callers
// pass segments already sorted by the store; the sort here is a
// safeguard for fakes that do not order.
func AssembleTranscript(segments []domain.Segment) string {
	ordered := make([]domain.Segment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StartTime < ordered[j].StartTime })

	parts := make([]string, 0, len(ordered))
	for _, s := range ordered {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
