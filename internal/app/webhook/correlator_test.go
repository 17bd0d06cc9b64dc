package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/memstore"
)

type recordingFinalizer struct {
	mu    sync.Mutex
	calls []string
}

func (f *recordingFinalizer) TryFinalize(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, taskID)
	return nil
}

func (f *recordingFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func seedAwaitingSegment(t *testing.T, store domain.Store, correlationID string) {
	t.Helper()
	now := time.Now()
	task := domain.Task{
		ID: "t1", Status: domain.TaskProcessing,
		OriginalFilename: "call.mp3", TotalSegments: 2, CreatedAt: now,
	}
	segments := []domain.Segment{
		{
			ID: "s0", TaskID: "t1", StartTime: 0, EndTime: 900,
			Status: domain.SegmentProcessing, CorrelationID: correlationID, UpdatedAt: now,
		},
		{
			ID: "s1", TaskID: "t1", StartTime: 900, EndTime: 1800,
			Status: domain.SegmentPending, UpdatedAt: now,
		},
	}
	if err := store.CreateTask(context.Background(), task, segments); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestHandleProviderCallback_Applies(t *testing.T) {
	store := memstore.New()
	fin := &recordingFinalizer{}
	c := NewCorrelator(store, fin)

	seedAwaitingSegment(t, store, "prov-1")

	outcome, err := c.HandleProviderCallback(context.Background(), Payload{
		CorrelationID: "prov-1",
		Status:        "completed",
		Text:          "transcribed words",
		Language:      "en",
	})
	if err != nil {
		t.Fatalf("HandleProviderCallback: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome = %s, want applied", outcome)
	}

	seg, _ := store.GetSegment(context.Background(), "s0")
	if seg.Status != domain.SegmentCompleted || seg.Text != "transcribed words" {
		t.Errorf("segment = %s %q", seg.Status, seg.Text)
	}
	task, _ := store.GetTask(context.Background(), "t1")
	if task.CompletedSegments != 1 {
		t.Errorf("CompletedSegments = %d, want 1", task.CompletedSegments)
	}
	if fin.count() != 1 {
		t.Errorf("finalizer called %d times, want 1", fin.count())
	}
}

func TestHandleProviderCallback_FailedStatus(t *testing.T) {
	store := memstore.New()
	c := NewCorrelator(store, &recordingFinalizer{})

	seedAwaitingSegment(t, store, "prov-1")

	outcome, err := c.HandleProviderCallback(context.Background(), Payload{
		CorrelationID: "prov-1",
		Status:        "failed",
		Error:         "audio too noisy",
	})
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	seg, _ := store.GetSegment(context.Background(), "s0")
	if seg.Status != domain.SegmentFailed || seg.Error != "audio too noisy" {
		t.Errorf("segment = %s %q", seg.Status, seg.Error)
	}
}

func TestHandleProviderCallback_UnknownCorrelation(t *testing.T) {
	store := memstore.New()
	fin := &recordingFinalizer{}
	c := NewCorrelator(store, fin)

	outcome, err := c.HandleProviderCallback(context.Background(), Payload{
		CorrelationID: "never-issued",
		Status:        "completed",
		Text:          "orphan",
	})
	if err != nil {
		t.Fatalf("unmatched callback must not error, got %v", err)
	}
	if outcome != OutcomeNotFound {
		t.Errorf("outcome = %s, want not_found", outcome)
	}
	if fin.count() != 0 {
		t.Error("no finalize trigger for unmatched callbacks")
	}
}

func TestHandleProviderCallback_MissingCorrelationID(t *testing.T) {
	store := memstore.New()
	c := NewCorrelator(store, &recordingFinalizer{})

	outcome, err := c.HandleProviderCallback(context.Background(), Payload{Status: "completed"})
	if err != nil || outcome != OutcomeNotFound {
		t.Errorf("outcome=%s err=%v, want not_found nil", outcome, err)
	}
}

func TestHandleProviderCallback_DuplicateIsIdempotent(t *testing.T) {
	store := memstore.New()
	fin := &recordingFinalizer{}
	c := NewCorrelator(store, fin)

	seedAwaitingSegment(t, store, "prov-1")
	payload := Payload{CorrelationID: "prov-1", Status: "completed", Text: "once"}

	if _, err := c.HandleProviderCallback(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	outcome, err := c.HandleProviderCallback(context.Background(), payload)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("outcome = %s, want duplicate", outcome)
	}

	task, _ := store.GetTask(context.Background(), "t1")
	if task.CompletedSegments != 1 {
		t.Errorf("CompletedSegments = %d after duplicate, want still 1", task.CompletedSegments)
	}
	if fin.count() != 1 {
		t.Errorf("finalizer called %d times, want 1", fin.count())
	}
}

func TestHandleProviderCallback_DuplicateAfterFailureKeepsState(t *testing.T) {
	store := memstore.New()
	c := NewCorrelator(store, &recordingFinalizer{})

	seedAwaitingSegment(t, store, "prov-1")
	if _, err := c.HandleProviderCallback(context.Background(), Payload{
		CorrelationID: "prov-1", Status: "failed", Error: "boom",
	}); err != nil {
		t.Fatal(err)
	}
	// A late success callback must not overwrite the terminal failure.
	outcome, err := c.HandleProviderCallback(context.Background(), Payload{
		CorrelationID: "prov-1", Status: "completed", Text: "late",
	})
	if err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	seg, _ := store.GetSegment(context.Background(), "s0")
	if seg.Status != domain.SegmentFailed {
		t.Errorf("segment = %s, want failed preserved", seg.Status)
	}
}
