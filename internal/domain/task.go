// Package domain holds the core transcription types.
// A Task is one end-to-end transcription request for a single source file:
// submit → split → dispatch segments → collect results → assemble → notify.
package domain

import "time"

// TaskStatus tracks the task lifecycle.
type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one transcription request. The task exclusively owns its
// segments: deleting a task deletes every segment under it.
type Task struct {
	ID                string     `json:"id"`
	Status            TaskStatus `json:"status"`
	OriginalFilename  string     `json:"original_filename"`
	CallbackURL       string     `json:"callback_url,omitempty"`
	TotalSegments     int        `json:"total_segments"`
	CompletedSegments int        `json:"completed_segments"`
	FinalTranscript   string     `json:"final_transcript,omitempty"`
	Error             string     `json:"error,omitempty"`
	SourcePath        string     `json:"source_path,omitempty"`
	SourceDigest      string     `json:"source_digest,omitempty"`
	CleanedUp         bool       `json:"cleaned_up,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       time.Time  `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// Progress returns completion as a percentage in [0, 100].
func (t *Task) Progress() float64 {
	if t.TotalSegments == 0 {
		return 0
	}
	return float64(t.CompletedSegments) / float64(t.TotalSegments) * 100
}

// TaskPatch is a partial task update. Nil fields are left unchanged.
type TaskPatch struct {
	Status            *TaskStatus
	CompletedSegments *int
	FinalTranscript   *string
	Error             *string
	CleanedUp         *bool
	CompletedAt       *time.Time
}
