// Package tasks creates transcription tasks from source files and
// serves the status/progress query surface.
package tasks

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/metrics"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/media"
)

// Config configures task intake.
type Config struct {
	SegmentLength float64 // seconds per segment (default 900)
	ChunkDir      string  // root directory for per-task audio chunks
	BitrateKbps   int     // assumed bitrate for the advisory duration estimate (default 128)
}

// Service builds tasks and answers status queries.
type Service struct {
	store    domain.Store
	splitter media.Splitter
	config   Config
	now      func() time.Time // injectable clock for testing
}

// New creates a task service.
func New(store domain.Store, splitter media.Splitter, cfg Config) *Service {
	if cfg.SegmentLength <= 0 {
		cfg.SegmentLength = 900
	}
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = 128
	}
	return &Service{store: store, splitter: splitter, config: cfg, now: time.Now}
}

// SubmitRequest describes a new transcription task. Duration comes from
// the caller (upload metadata); when absent it is estimated from file
// size, which is advisory and only shapes segment count, never the
// partition invariant (the splitter's actual chunks define boundaries).
type SubmitRequest struct {
	SourcePath       string
	OriginalFilename string
	CallbackURL      string
	Duration         float64 // seconds; 0 means estimate from size
}

// Submit splits the source and creates the task with all segments
// pending. The task and its segments are created together in one store
// write once splitting information is known.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	if req.SourcePath == "" || req.OriginalFilename == "" {
		return nil, fmt.Errorf("%w: source path and filename are required", domain.ErrInvalidInput)
	}
	info, err := os.Stat(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat source: %v", domain.ErrInvalidInput, err)
	}
	if info.Size() == 0 {
		return nil, domain.ErrEmptySource
	}

	duration := req.Duration
	if duration <= 0 {
		duration = media.EstimateDuration(info.Size(), s.config.BitrateKbps)
		log.Printf("[tasks] %s: estimated duration %.0fs from %d bytes (advisory)",
			req.OriginalFilename, duration, info.Size())
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: cannot determine source duration", domain.ErrInvalidInput)
	}

	ranges, err := media.PartitionDuration(duration, s.config.SegmentLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	digest, err := media.DigestFile(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("digest source: %w", err)
	}

	taskID := uuid.New().String()
	chunkDir := filepath.Join(s.config.ChunkDir, taskID)
	chunks, err := s.splitter.Split(ctx, req.SourcePath, ranges, chunkDir)
	if err != nil {
		return nil, fmt.Errorf("split source: %w", err)
	}

	now := s.now()
	task := domain.Task{
		ID:               taskID,
		Status:           domain.TaskProcessing,
		OriginalFilename: req.OriginalFilename,
		CallbackURL:      req.CallbackURL,
		TotalSegments:    len(chunks),
		SourcePath:       req.SourcePath,
		SourceDigest:     digest,
		CreatedAt:        now,
	}
	segments := make([]domain.Segment, len(chunks))
	for i, c := range chunks {
		segments[i] = domain.Segment{
			ID:        uuid.New().String(),
			TaskID:    taskID,
			StartTime: c.Start,
			EndTime:   c.End,
			Status:    domain.SegmentPending,
			AudioPath: c.Path,
			UpdatedAt: now,
		}
	}

	if err := s.store.CreateTask(ctx, task, segments); err != nil {
		// The chunks are orphans without their task record.
		if rmErr := os.RemoveAll(chunkDir); rmErr != nil {
			log.Printf("[tasks] %s: remove orphaned chunks: %v", taskID, rmErr)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	metrics.TasksCreated.Inc()
	log.Printf("[tasks] created %s: %q, %d segments over %.0fs", taskID, req.OriginalFilename, len(chunks), duration)
	return &task, nil
}

// ─── Status surface ─────────────────────────────────────────────────────────

// SegmentView is one segment's slice of the status query.
type SegmentView struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Status    string  `json:"status"`
	Text      string  `json:"transcriptionText,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// StatusView is the progress query answer. Always reflects the
// best-known state, even mid-failure; never blocks on completion.
type StatusView struct {
	TaskID            string        `json:"taskId"`
	Status            string        `json:"status"`
	OriginalFilename  string        `json:"originalFilename"`
	TotalSegments     int           `json:"totalSegments"`
	CompletedSegments int           `json:"completedSegments"`
	Percentage        float64       `json:"percentage"`
	Transcription     string        `json:"transcription,omitempty"`
	Error             string        `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	Segments          []SegmentView `json:"segments"`
}

// Status answers the progress query for one task.
func (s *Service) Status(ctx context.Context, taskID string) (*StatusView, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	segments, err := s.store.ListSegments(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	view := &StatusView{
		TaskID:            task.ID,
		Status:            string(task.Status),
		OriginalFilename:  task.OriginalFilename,
		TotalSegments:     task.TotalSegments,
		CompletedSegments: task.CompletedSegments,
		Percentage:        task.Progress(),
		Transcription:     task.FinalTranscript,
		Error:             task.Error,
		CreatedAt:         task.CreatedAt,
		Segments:          make([]SegmentView, len(segments)),
	}
	if !task.CompletedAt.IsZero() {
		completedAt := task.CompletedAt
		view.CompletedAt = &completedAt
	}
	for i, seg := range segments {
		view.Segments[i] = SegmentView{
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Status:    string(seg.Status),
			Text:      seg.Text,
			Error:     seg.Error,
		}
	}
	return view, nil
}

// List returns every task, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Task, error) {
	return s.store.ListTasks(ctx)
}
