package breaker

import "testing"

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	a := r.Register("provider")
	b := r.Register("provider")
	if a != b {
		t.Error("registering the same name twice should return the same breaker")
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	if r.Get("provider") != nil {
		t.Error("Get before Register should return nil")
	}
	b := r.Register("provider")
	if r.Get("provider") != b {
		t.Error("Get should return the registered breaker")
	}
}

func TestRegistry_Healthy(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1})
	provider := r.Register("provider")
	r.Register("store")

	if !r.Healthy() {
		t.Error("all breakers closed: registry should be healthy")
	}
	if !r.Healthy("provider", "store") {
		t.Error("critical subset closed: should be healthy")
	}

	provider.RecordFailure() // threshold 1: trips immediately
	if r.Healthy() {
		t.Error("open provider breaker should make registry unhealthy")
	}
	if r.Healthy("provider") {
		t.Error("open critical breaker should report unhealthy")
	}
	if !r.Healthy("store") {
		t.Error("store breaker is still closed, subset should be healthy")
	}
}

func TestRegistry_Healthy_UnknownCritical(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	if r.Healthy("missing") {
		t.Error("unknown critical dependency should report unhealthy")
	}
}

func TestRegistry_ForceReset(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1})
	b := r.Register("provider")
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %s, want OPEN", b.State())
	}

	if !r.ForceReset("provider") {
		t.Error("ForceReset on a known breaker should return true")
	}
	if b.State() != Closed {
		t.Errorf("state after reset = %s, want CLOSED", b.State())
	}
	if r.ForceReset("missing") {
		t.Error("ForceReset on an unknown breaker should return false")
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	r.Register("provider")
	r.Register("store")
	stats := r.Stats()
	if len(stats) != 2 {
		t.Errorf("Stats() returned %d entries, want 2", len(stats))
	}
}
