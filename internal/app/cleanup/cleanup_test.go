package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/memstore"
)

func seedFinishedTask(t *testing.T, store domain.Store, id string, completedAgo time.Duration) (source string, chunks []string) {
	t.Helper()
	dir := t.TempDir()
	source = filepath.Join(dir, "source.mp3")
	if err := os.WriteFile(source, []byte("source"), 0600); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	task := domain.Task{
		ID:               id,
		Status:           domain.TaskCompleted,
		OriginalFilename: "a.mp3",
		TotalSegments:    2,
		SourcePath:       source,
		CreatedAt:        now.Add(-completedAgo - time.Hour),
		CompletedAt:      now.Add(-completedAgo),
	}
	var segments []domain.Segment
	for i := 0; i < 2; i++ {
		chunk := filepath.Join(dir, "chunk"+string(rune('0'+i))+".mp3")
		if err := os.WriteFile(chunk, []byte("chunk"), 0600); err != nil {
			t.Fatal(err)
		}
		chunks = append(chunks, chunk)
		segments = append(segments, domain.Segment{
			ID: id + "-s" + string(rune('0'+i)), TaskID: id,
			StartTime: float64(i) * 900, EndTime: float64(i+1) * 900,
			Status: domain.SegmentCompleted, AudioPath: chunk, UpdatedAt: now,
		})
	}
	if err := store.CreateTask(context.Background(), task, segments); err != nil {
		t.Fatal(err)
	}
	return source, chunks
}

func TestPerformCleanup_ReleasesArtifacts(t *testing.T) {
	store := memstore.New()
	s := New(store, DefaultConfig())
	source, chunks := seedFinishedTask(t, store, "t1", 48*time.Hour)

	report, err := s.PerformCleanup(context.Background(), Options{})
	if err != nil {
		t.Fatalf("PerformCleanup: %v", err)
	}
	if report.Cleaned != 1 || report.Released != 3 {
		t.Errorf("report = %+v, want cleaned=1 released=3", report)
	}

	for _, path := range append(chunks, source) {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should be removed", path)
		}
	}
	task, err := store.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("records must survive when DeleteRecords is off: %v", err)
	}
	if !task.CleanedUp {
		t.Error("task must be marked cleaned")
	}
}

func TestPerformCleanup_Idempotent(t *testing.T) {
	store := memstore.New()
	s := New(store, DefaultConfig())
	seedFinishedTask(t, store, "t1", 48*time.Hour)

	if _, err := s.PerformCleanup(context.Background(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := s.PerformCleanup(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Released != 0 {
		t.Errorf("second run released %d resources, want 0", report.Released)
	}
	if len(report.Failed) != 0 {
		t.Errorf("second run reported failures: %v", report.Failed)
	}
	if report.AlreadyOK != 1 {
		t.Errorf("second run AlreadyOK = %d, want 1", report.AlreadyOK)
	}
}

func TestPerformCleanup_RespectsRetention(t *testing.T) {
	store := memstore.New()
	s := New(store, DefaultConfig()) // 24h retention
	seedFinishedTask(t, store, "recent", 1*time.Hour)

	report, err := s.PerformCleanup(context.Background(), Options{})
	if err != nil {
		t.Fatalf("PerformCleanup: %v", err)
	}
	if report.Scanned != 0 {
		t.Errorf("recently finished task must not be scanned, report = %+v", report)
	}
}

func TestPerformCleanup_AbandonedTask(t *testing.T) {
	store := memstore.New()
	s := New(store, DefaultConfig())

	// Non-terminal task created long ago: abandoned.
	task := domain.Task{
		ID: "stuck", Status: domain.TaskProcessing,
		TotalSegments: 1, CreatedAt: time.Now().Add(-80 * time.Hour),
	}
	if err := store.CreateTask(context.Background(), task, []domain.Segment{
		{ID: "stuck-s0", TaskID: "stuck", EndTime: 900, Status: domain.SegmentProcessing, UpdatedAt: time.Now().Add(-80 * time.Hour)},
	}); err != nil {
		t.Fatal(err)
	}

	report, err := s.PerformCleanup(context.Background(), Options{})
	if err != nil {
		t.Fatalf("PerformCleanup: %v", err)
	}
	if report.Cleaned != 1 {
		t.Errorf("abandoned task should be cleaned, report = %+v", report)
	}
}

func TestPerformCleanup_RetriesThenReportsFailure(t *testing.T) {
	store := memstore.New()
	s := New(store, DefaultConfig())
	seedFinishedTask(t, store, "t1", 48*time.Hour)

	attempts := 0
	s.remove = func(string) error {
		attempts++
		return errors.New("device busy")
	}

	report, err := s.PerformCleanup(context.Background(), Options{MaxRetries: 3})
	if err != nil {
		t.Fatalf("batch itself must not error: %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "t1" {
		t.Errorf("Failed = %v, want [t1]", report.Failed)
	}
	if attempts != 3 {
		t.Errorf("remove attempted %d times, want MaxRetries=3 for the first resource", attempts)
	}

	// The task stays dirty for the next scheduled run.
	task, _ := store.GetTask(context.Background(), "t1")
	if task.CleanedUp {
		t.Error("task must not be marked cleaned after a failed release")
	}
}

func TestCleanupTask_SingleTask(t *testing.T) {
	store := memstore.New()
	s := New(store, DefaultConfig())
	// Recent task: CleanupTask ignores retention windows.
	source, _ := seedFinishedTask(t, store, "t1", 0)

	ok, err := s.CleanupTask(context.Background(), "t1", Options{})
	if err != nil || !ok {
		t.Fatalf("CleanupTask = %v, %v", ok, err)
	}
	if _, err := os.Stat(source); !errors.Is(err, os.ErrNotExist) {
		t.Error("source should be removed")
	}

	// Second invocation is a success no-op.
	ok, err = s.CleanupTask(context.Background(), "t1", Options{})
	if err != nil || !ok {
		t.Errorf("repeat CleanupTask = %v, %v, want true, nil", ok, err)
	}
}

func TestCleanupTask_UnknownTask(t *testing.T) {
	store := memstore.New()
	s := New(store, DefaultConfig())
	if _, err := s.CleanupTask(context.Background(), "missing", Options{}); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("CleanupTask(missing) = %v, want ErrTaskNotFound", err)
	}
}

func TestPerformCleanup_DeleteRecords(t *testing.T) {
	store := memstore.New()
	cfg := DefaultConfig()
	cfg.DeleteRecords = true
	s := New(store, cfg)
	seedFinishedTask(t, store, "t1", 48*time.Hour)

	if _, err := s.PerformCleanup(context.Background(), Options{}); err != nil {
		t.Fatalf("PerformCleanup: %v", err)
	}
	if _, err := store.GetTask(context.Background(), "t1"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("task record should be deleted, got %v", err)
	}
	if segs, _ := store.ListSegments(context.Background(), "t1"); len(segs) != 0 {
		t.Error("segments must cascade with the task")
	}
}
