package domain

import "time"

// SegmentStatus tracks the segment lifecycle.
type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentProcessing SegmentStatus = "processing"
	SegmentCompleted  SegmentStatus = "completed"
	SegmentFailed     SegmentStatus = "failed"
)

// Segment is one time-bounded slice of a task's source file, transcribed
// independently. A task's segments form a contiguous, non-overlapping
// partition of [0, source duration), ordered by start time.
type Segment struct {
	ID            string        `json:"id"`
	TaskID        string        `json:"task_id"`
	StartTime     float64       `json:"start_time"` // seconds from source start
	EndTime       float64       `json:"end_time"`   // seconds, exclusive
	Status        SegmentStatus `json:"status"`
	Text          string        `json:"text,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Error         string        `json:"error,omitempty"`
	AudioPath     string        `json:"audio_path,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsTerminal returns true once the segment has a final outcome.
func (s *Segment) IsTerminal() bool {
	return s.Status == SegmentCompleted || s.Status == SegmentFailed
}

// IsStale reports whether a processing segment has been abandoned:
// stuck in processing with no update for longer than the staleness window.
// Stale segments are eligible for re-dispatch as if pending.
func (s *Segment) IsStale(now time.Time, window time.Duration) bool {
	return s.Status == SegmentProcessing && now.Sub(s.UpdatedAt) > window
}

// SegmentPatch is a partial segment update. Nil fields are left unchanged.
type SegmentPatch struct {
	Status        *SegmentStatus
	Text          *string
	CorrelationID *string
	Error         *string
	AudioPath     *string
	UpdatedAt     *time.Time
}
