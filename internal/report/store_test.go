package report

import (
	"errors"
	"strings"
	"testing"
)

// countingStore is a backing Store that records how often it is hit.
type countingStore struct {
	saved map[string]*RunResult
	loads int
}

func newCountingStore() *countingStore {
	return &countingStore{saved: make(map[string]*RunResult)}
}

func (c *countingStore) Save(r *RunResult) error {
	c.saved[r.ID] = r
	return nil
}

func (c *countingStore) Load(id string) (*RunResult, error) {
	c.loads++
	if r, ok := c.saved[id]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func TestDiskStore_SaveLoad(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	code := 1
	in := &RunResult{
		ID:           "run-1",
		Mode:         "test",
		State:        "failed",
		Failure:      FailureTests,
		TestExitCode: &code,
		Transitions:  []string{"idle", "session_starting"},
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := s.Load("run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Failure != FailureTests || out.TestExitCode == nil || *out.TestExitCode != 1 {
		t.Errorf("Load = %+v, want the saved failure and test exit code", out)
	}
}

func TestDiskStore_LazyTempDir(t *testing.T) {
	s := NewDiskStore("")
	if err := s.Save(&RunResult{ID: "run-2"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Load("run-2"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestDiskStore_RejectsPathInRunID(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	if _, err := s.Load("../etc/passwd"); err == nil {
		t.Fatal("expected error for run id containing a path")
	}
}

func TestLRUStore_HitDoesNotTouchBackingStore(t *testing.T) {
	back := newCountingStore()
	s := NewLRUStore(2, back)

	if err := s.Save(&RunResult{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("a"); err != nil {
		t.Fatal(err)
	}
	if back.loads != 0 {
		t.Errorf("backing loads = %d, want 0", back.loads)
	}
}

func TestLRUStore_EvictsLeastRecentlyUsed(t *testing.T) {
	back := newCountingStore()
	s := NewLRUStore(2, back)

	for _, id := range []string{"a", "b"} {
		_ = s.Save(&RunResult{ID: id})
	}
	_, _ = s.Load("a") // b is now least recently used
	_ = s.Save(&RunResult{ID: "c"})

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if _, err := s.Load("b"); err != nil {
		t.Fatalf("Load(b): %v", err)
	}
	if back.loads != 1 {
		t.Errorf("backing loads = %d, want 1 (b was evicted)", back.loads)
	}
}

func TestLRUStore_MissPropagatesError(t *testing.T) {
	s := NewLRUStore(1, newCountingStore())
	if _, err := s.Load("missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestSummary(t *testing.T) {
	r := &RunResult{
		ID:          "run-3",
		Mode:        "test",
		Project:     "hello_blockchain",
		State:       "failed",
		Failure:     FailureStep,
		FailingStep: "publish",
		Steps: []Step{
			{Name: "compile", Status: "pass"},
			{Name: "fund", Status: "skipped"},
			{Name: "publish", Status: "fail", ExitCode: 1},
		},
		Transitions: []string{"idle", "building", "tearing_down", "failed"},
	}
	out := r.Summary()
	for _, want := range []string{"FAIL", "hello_blockchain", "publish", "FAIL (exit 1)", "step (publish)", "tearing_down → failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary() missing %q:\n%s", want, out)
		}
	}
	if r.Step("publish") == nil || r.Step("tests") != nil {
		t.Error("Step lookup returned the wrong steps")
	}
}
