// Package memstore is an in-memory domain.Store used by tests that
// exercise the application services without paying for a database file.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
)

// Store keeps tasks and segments in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	tasks    map[string]domain.Task
	segments map[string]domain.Segment
}

var _ domain.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tasks:    make(map[string]domain.Task),
		segments: make(map[string]domain.Segment),
	}
}

// CreateTask stores a task with its segments.
func (s *Store) CreateTask(_ context.Context, task domain.Task, segments []domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	for _, seg := range segments {
		s.segments[seg.ID] = seg
	}
	return nil
}

// GetTask returns a copy of the task.
func (s *Store) GetTask(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return &t, nil
}

// ListTasks returns all tasks, newest first.
func (s *Store) ListTasks(_ context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateTask applies a partial update.
func (s *Store) UpdateTask(_ context.Context, id string, patch domain.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.CompletedSegments != nil {
		t.CompletedSegments = *patch.CompletedSegments
	}
	if patch.FinalTranscript != nil {
		t.FinalTranscript = *patch.FinalTranscript
	}
	if patch.Error != nil {
		t.Error = *patch.Error
	}
	if patch.CleanedUp != nil {
		t.CleanedUp = *patch.CleanedUp
	}
	if patch.CompletedAt != nil {
		t.CompletedAt = *patch.CompletedAt
	}
	s.tasks[id] = t
	return nil
}

// IncrementCompletedSegments atomically bumps the completed counter.
func (s *Store) IncrementCompletedSegments(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	t.CompletedSegments++
	s.tasks[id] = t
	return nil
}

// DeleteTask removes the task and, because the task owns them, all of
// its segments.
func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	for segID, seg := range s.segments {
		if seg.TaskID == id {
			delete(s.segments, segID)
		}
	}
	return nil
}

// GetSegment returns a copy of the segment.
func (s *Store) GetSegment(_ context.Context, id string) (*domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return nil, domain.ErrSegmentNotFound
	}
	return &seg, nil
}

// GetSegmentByCorrelation finds the segment holding the correlation id.
func (s *Store) GetSegmentByCorrelation(_ context.Context, correlationID string) (*domain.Segment, error) {
	if correlationID == "" {
		return nil, domain.ErrUnknownCorrelation
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, seg := range s.segments {
		if seg.CorrelationID == correlationID {
			out := seg
			return &out, nil
		}
	}
	return nil, domain.ErrUnknownCorrelation
}

// ListSegments returns a task's segments ordered by start time.
func (s *Store) ListSegments(_ context.Context, taskID string) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Segment
	for _, seg := range s.segments {
		if seg.TaskID == taskID {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

// ListSegmentsByStatus filters by status and optional staleness cutoff,
// ordered by start time.
func (s *Store) ListSegmentsByStatus(_ context.Context, status domain.SegmentStatus, staleBefore time.Time) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Segment
	for _, seg := range s.segments {
		if seg.Status != status {
			continue
		}
		if !staleBefore.IsZero() && !seg.UpdatedAt.Before(staleBefore) {
			continue
		}
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

// UpdateSegment applies a partial update.
func (s *Store) UpdateSegment(_ context.Context, id string, patch domain.SegmentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok {
		return domain.ErrSegmentNotFound
	}
	if patch.Status != nil {
		seg.Status = *patch.Status
	}
	if patch.Text != nil {
		seg.Text = *patch.Text
	}
	if patch.CorrelationID != nil {
		seg.CorrelationID = *patch.CorrelationID
	}
	if patch.Error != nil {
		seg.Error = *patch.Error
	}
	if patch.AudioPath != nil {
		seg.AudioPath = *patch.AudioPath
	}
	if patch.UpdatedAt != nil {
		seg.UpdatedAt = *patch.UpdatedAt
	}
	s.segments[id] = seg
	return nil
}
