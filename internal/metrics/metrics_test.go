package metrics

import (
	"sync"
	"testing"
)

func TestIncAndValue(t *testing.T) {
	r := NewRegistry()

	r.Inc(LoginSuccess)
	r.Inc(LoginSuccess)
	r.Inc(RefreshReplayDetected)

	if got := r.Value(LoginSuccess); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := r.Value(RefreshReplayDetected); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := r.Value(LoginFailure); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestNilRegistryIsInert(t *testing.T) {
	var r *Registry

	r.Inc(LoginSuccess)
	if got := r.Value(LoginSuccess); got != 0 {
		t.Fatalf("expected 0 from nil registry, got %d", got)
	}
	if s := r.Snapshot(); len(s) != 0 {
		t.Fatalf("expected empty snapshot from nil registry, got %d entries", len(s))
	}
}

func TestSnapshotNames(t *testing.T) {
	r := NewRegistry()
	r.Inc(BackupCodeUsed)

	s := r.Snapshot()
	if s["backup_code_used"] != 1 {
		t.Fatalf("expected backup_code_used=1, got %d", s["backup_code_used"])
	}
	if _, ok := s["unknown"]; ok {
		t.Fatal("snapshot must not contain the unknown placeholder")
	}
}

func TestConcurrentInc(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Inc(LoginFailure)
			}
		}()
	}
	wg.Wait()

	if got := r.Value(LoginFailure); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
}
