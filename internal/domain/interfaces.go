package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store abstracts persistent task/segment storage. Implemented by
// infra/sqlite for durable storage and infra/memstore for tests; the
// orchestration engine treats records as the unit of coordination and
// never holds in-process locks across store calls.
type Store interface {
	CreateTask(ctx context.Context, task Task, segments []Segment) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) error
	DeleteTask(ctx context.Context, id string) error // cascades to segments

	// IncrementCompletedSegments atomically bumps a task's completed
	// counter by one. Terminal segment transitions call this exactly once.
	IncrementCompletedSegments(ctx context.Context, id string) error

	GetSegment(ctx context.Context, id string) (*Segment, error)
	GetSegmentByCorrelation(ctx context.Context, correlationID string) (*Segment, error)
	ListSegments(ctx context.Context, taskID string) ([]Segment, error)
	UpdateSegment(ctx context.Context, id string, patch SegmentPatch) error

	// ListSegmentsByStatus returns segments in the given status. If
	// staleBefore is non-zero, only segments last updated before it are
	// returned (used to reclaim abandoned processing segments).
	ListSegmentsByStatus(ctx context.Context, status SegmentStatus, staleBefore time.Time) ([]Segment, error)
}

// Transcriber abstracts the speech-to-text provider. A call returns
// either an inline result or a correlation id for a later webhook.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error)
}

// TranscribeRequest identifies one segment's audio for the provider.
type TranscribeRequest struct {
	AudioPath string
	Language  string
}

// TranscribeResult is the provider's answer. Exactly one of Text or
// CorrelationID is set: Text for a synchronous result, CorrelationID
// when the provider will deliver the result via webhook later.
type TranscribeResult struct {
	Text          string
	Language      string
	CorrelationID string
}

// Async reports whether the provider deferred the result to a webhook.
func (r *TranscribeResult) Async() bool {
	return r.CorrelationID != ""
}
