package health

import (
	"context"
	"testing"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/breaker"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/sqlite"
)

func newTestChecker(t *testing.T) (*Checker, *breaker.Registry) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := breaker.NewRegistry(breaker.DefaultConfig())
	reg.Register("provider")
	return NewChecker(db, dir, reg, "provider"), reg
}

func TestChecker_AllHealthy(t *testing.T) {
	c, _ := newTestChecker(t)
	c.runAll(context.Background())

	snap := c.Snapshot()
	if !snap.Healthy {
		t.Fatalf("snapshot unhealthy: %+v", snap)
	}
	if len(snap.Checks) != 3 {
		t.Errorf("got %d checks, want 3", len(snap.Checks))
	}
	for _, s := range snap.Checks {
		if !s.Healthy || s.Error != "" {
			t.Errorf("check %s = %+v, want healthy", s.Name, s)
		}
		if s.CheckedAt.IsZero() {
			t.Errorf("check %s has no timestamp", s.Name)
		}
	}
}

func TestChecker_OpenBreakerIsUnhealthy(t *testing.T) {
	c, reg := newTestChecker(t)

	b := reg.Get("provider")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	c.runAll(context.Background())

	snap := c.Snapshot()
	if snap.Healthy {
		t.Fatal("snapshot should be unhealthy while the provider circuit is open")
	}
	var breakerCheck *Status
	for i := range snap.Checks {
		if snap.Checks[i].Name == "breakers" {
			breakerCheck = &snap.Checks[i]
		}
	}
	if breakerCheck == nil || breakerCheck.Healthy {
		t.Errorf("breakers check = %+v, want unhealthy", breakerCheck)
	}
}

func TestChecker_MissingDataDir(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	reg := breaker.NewRegistry(breaker.DefaultConfig())
	c := NewChecker(db, "/nonexistent/bridge-data", reg)
	c.runAll(context.Background())

	if c.Snapshot().Healthy {
		t.Error("missing data dir must be reported unhealthy")
	}
}

func TestChecker_SnapshotBeforeFirstRun(t *testing.T) {
	c, _ := newTestChecker(t)
	snap := c.Snapshot()
	if !snap.Healthy || len(snap.Checks) != 0 {
		t.Errorf("pre-run snapshot = %+v, want healthy with no checks", snap)
	}
}
