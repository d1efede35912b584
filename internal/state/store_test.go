package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_SaveAndListRuns(t *testing.T) {
	tmp := t.TempDir()
	s := New(tmp)

	r1 := RunRecord{
		ID:        "r1",
		StartedAt: time.Now().UTC().Add(-time.Minute),
		EndedAt:   time.Now().UTC().Add(-time.Minute + time.Second),
		Status:    RunSucceeded,
		Total:     1,
		Passed:    1,
		Results:   []CaseRun{{Class: "profile::base", Fixture: "centos-7-x86_64", Passed: true}},
	}
	r2 := RunRecord{
		ID:        "r2",
		StartedAt: time.Now().UTC(),
		EndedAt:   time.Now().UTC().Add(time.Second),
		Status:    RunFailed,
		Total:     1,
		Failed:    1,
		Results:   []CaseRun{{Class: "profile::base", Fixture: "ubuntu-20.04-x86_64", Reason: "evaluation", Message: "unsupported"}},
	}
	if err := s.SaveRun(r1); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(r2); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(tmp, ".catalogcheck", "runs", "r1.json")); err != nil {
		t.Fatalf("expected run file under .catalogcheck/runs: %v", err)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "r2" {
		t.Fatalf("expected newest run first, got %s", runs[0].ID)
	}
	if runs[0].Results[0].Reason != "evaluation" {
		t.Fatalf("expected case results to round-trip, got %+v", runs[0].Results)
	}

	got, err := s.GetRun("r1")
	if err != nil {
		t.Fatalf("expected get run to succeed: %v", err)
	}
	if got.ID != "r1" || got.Status != RunSucceeded {
		t.Fatalf("unexpected run %+v", got)
	}
	if _, err := s.GetRun("../r1"); err == nil {
		t.Fatalf("expected path-like run id to be rejected")
	}

	limited, err := s.ListRuns(1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d runs err=%v", len(limited), err)
	}
}

func TestStore_Prune(t *testing.T) {
	s := New(t.TempDir())
	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveRun(RunRecord{ID: id, StartedAt: base.Add(time.Duration(i) * time.Second), Status: RunSucceeded}); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := s.Prune(1)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 runs removed, got %d", removed)
	}
	runs, err := s.ListRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "c" {
		t.Fatalf("expected newest run kept, got %+v", runs)
	}
}

func TestStore_ListRunsEmpty(t *testing.T) {
	runs, err := New(t.TempDir()).ListRuns(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}

func TestStore_SaveRunRequiresID(t *testing.T) {
	if err := New(t.TempDir()).SaveRun(RunRecord{}); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}
