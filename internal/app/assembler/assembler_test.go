package assembler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/memstore"
)

// recordingNotifier captures deliveries.
type recordingNotifier struct {
	mu       sync.Mutex
	sent     []Notification
	urls     []string
	fail     bool
	failWith error
}

func (n *recordingNotifier) Notify(_ context.Context, url string, payload Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return n.failWith
	}
	n.sent = append(n.sent, payload)
	n.urls = append(n.urls, url)
	return nil
}

func (n *recordingNotifier) deliveries() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

func seedTask(t *testing.T, store domain.Store, callbackURL string, segments []domain.Segment) {
	t.Helper()
	task := domain.Task{
		ID:               "t1",
		Status:           domain.TaskProcessing,
		OriginalFilename: "lecture.mp3",
		CallbackURL:      callbackURL,
		TotalSegments:    len(segments),
		CreatedAt:        time.Now(),
	}
	if err := store.CreateTask(context.Background(), task, segments); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func seg(id string, start, end float64, status domain.SegmentStatus, text string) domain.Segment {
	return domain.Segment{
		ID: id, TaskID: "t1", StartTime: start, EndTime: end,
		Status: status, Text: text, UpdatedAt: time.Now(),
	}
}

func TestTryFinalize_NoOpWhileInFlight(t *testing.T) {
	store := memstore.New()
	n := &recordingNotifier{}
	a := New(store, n, Config{})

	seedTask(t, store, "https://cb", []domain.Segment{
		seg("s0", 0, 900, domain.SegmentCompleted, "one"),
		seg("s1", 900, 1800, domain.SegmentProcessing, ""),
	})

	if err := a.TryFinalize(context.Background(), "t1"); err != nil {
		t.Fatalf("TryFinalize: %v", err)
	}
	task, _ := store.GetTask(context.Background(), "t1")
	if task.Status != domain.TaskProcessing {
		t.Errorf("task = %s, want still processing", task.Status)
	}
	if len(n.deliveries()) != 0 {
		t.Error("no notification while segments are in flight")
	}
}

func TestTryFinalize_AssemblesInStartTimeOrder(t *testing.T) {
	store := memstore.New()
	n := &recordingNotifier{}
	a := New(store, n, Config{})

	// Segment [900,1800) finished before [0,900); assembly must still
	// start with the [0,900) text.
	seedTask(t, store, "https://cb", []domain.Segment{
		seg("s1", 900, 1800, domain.SegmentCompleted, "middle part"),
		seg("s0", 0, 900, domain.SegmentCompleted, "first part"),
		seg("s2", 1800, 2700, domain.SegmentCompleted, "last part"),
	})

	if err := a.TryFinalize(context.Background(), "t1"); err != nil {
		t.Fatalf("TryFinalize: %v", err)
	}

	task, _ := store.GetTask(context.Background(), "t1")
	if task.Status != domain.TaskCompleted {
		t.Fatalf("task = %s, want completed", task.Status)
	}
	want := "first part middle part last part"
	if task.FinalTranscript != want {
		t.Errorf("transcript = %q, want %q", task.FinalTranscript, want)
	}
	if task.CompletedAt.IsZero() {
		t.Error("CompletedAt must be set on finalization")
	}

	sent := n.deliveries()
	if len(sent) != 1 {
		t.Fatalf("got %d notifications, want 1", len(sent))
	}
	if sent[0].TaskID != "t1" || sent[0].Status != "completed" || sent[0].Transcription != want {
		t.Errorf("notification = %+v", sent[0])
	}
	if sent[0].OriginalFilename != "lecture.mp3" {
		t.Errorf("OriginalFilename = %q", sent[0].OriginalFilename)
	}
}

func TestTryFinalize_SkipsEmptyText(t *testing.T) {
	store := memstore.New()
	a := New(store, nil, Config{})

	seedTask(t, store, "", []domain.Segment{
		seg("s0", 0, 900, domain.SegmentCompleted, "speech"),
		seg("s1", 900, 1800, domain.SegmentCompleted, "   "), // silence
		seg("s2", 1800, 2700, domain.SegmentCompleted, "more speech"),
	})

	if err := a.TryFinalize(context.Background(), "t1"); err != nil {
		t.Fatalf("TryFinalize: %v", err)
	}
	task, _ := store.GetTask(context.Background(), "t1")
	if task.FinalTranscript != "speech more speech" {
		t.Errorf("transcript = %q", task.FinalTranscript)
	}
}

func TestTryFinalize_FailedSegmentFailsTask(t *testing.T) {
	store := memstore.New()
	n := &recordingNotifier{}
	a := New(store, n, Config{})

	seedTask(t, store, "https://cb", []domain.Segment{
		seg("s0", 0, 900, domain.SegmentCompleted, "one"),
		seg("s1", 900, 1800, domain.SegmentFailed, ""),
		seg("s2", 1800, 2700, domain.SegmentCompleted, "three"),
	})

	if err := a.TryFinalize(context.Background(), "t1"); err != nil {
		t.Fatalf("TryFinalize: %v", err)
	}

	task, _ := store.GetTask(context.Background(), "t1")
	if task.Status != domain.TaskFailed {
		t.Fatalf("task = %s, want failed", task.Status)
	}
	if task.Error != "1 of 3 segments failed transcription" {
		t.Errorf("error = %q", task.Error)
	}
	if task.FinalTranscript != "" {
		t.Error("no transcript on a failed task")
	}
	if task.CompletedAt.IsZero() {
		t.Error("CompletedAt must be set on failure too")
	}
	if len(n.deliveries()) != 0 {
		t.Error("no success webhook for a failed task (failure notify off)")
	}
}

func TestTryFinalize_FailureNotificationWhenConfigured(t *testing.T) {
	store := memstore.New()
	n := &recordingNotifier{}
	a := New(store, n, Config{NotifyOnFailure: true})

	seedTask(t, store, "https://cb", []domain.Segment{
		seg("s0", 0, 900, domain.SegmentFailed, ""),
	})

	if err := a.TryFinalize(context.Background(), "t1"); err != nil {
		t.Fatalf("TryFinalize: %v", err)
	}
	sent := n.deliveries()
	if len(sent) != 1 || sent[0].Status != "failed" || sent[0].Error == "" {
		t.Errorf("deliveries = %+v, want one failure notification", sent)
	}
}

func TestTryFinalize_Idempotent(t *testing.T) {
	store := memstore.New()
	n := &recordingNotifier{}
	a := New(store, n, Config{})

	seedTask(t, store, "https://cb", []domain.Segment{
		seg("s0", 0, 900, domain.SegmentCompleted, "only"),
	})

	for i := 0; i < 3; i++ {
		if err := a.TryFinalize(context.Background(), "t1"); err != nil {
			t.Fatalf("TryFinalize #%d: %v", i, err)
		}
	}
	if len(n.deliveries()) != 1 {
		t.Errorf("got %d notifications, want exactly 1", len(n.deliveries()))
	}
}

func TestTryFinalize_DeliveryFailureDoesNotRevert(t *testing.T) {
	store := memstore.New()
	n := &recordingNotifier{fail: true, failWith: context.DeadlineExceeded}
	a := New(store, n, Config{})

	seedTask(t, store, "https://cb", []domain.Segment{
		seg("s0", 0, 900, domain.SegmentCompleted, "text"),
	})

	if err := a.TryFinalize(context.Background(), "t1"); err != nil {
		t.Fatalf("TryFinalize should not surface delivery failures, got %v", err)
	}
	task, _ := store.GetTask(context.Background(), "t1")
	if task.Status != domain.TaskCompleted {
		t.Errorf("task = %s, want completed despite failed delivery", task.Status)
	}
}

func TestAssembleTranscript_Unordered(t *testing.T) {
	got := AssembleTranscript([]domain.Segment{
		{StartTime: 1800, Text: "c"},
		{StartTime: 0, Text: "a"},
		{StartTime: 900, Text: "b"},
	})
	if got != "a b c" {
		t.Errorf("AssembleTranscript = %q, want %q", got, "a b c")
	}
}
