// Package state persists check run records under <dir>/.catalogcheck.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const stateDirName = ".catalogcheck"

type Store struct {
	baseDir string
}

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// CaseRun is the persisted outcome of one class compiled on one fixture.
type CaseRun struct {
	Class      string         `json:"class"`
	Params     map[string]any `json:"params,omitempty"`
	Fixture    string         `json:"fixture"`
	Passed     bool           `json:"passed"`
	Reason     string         `json:"reason,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	Message    string         `json:"message,omitempty"`
	Digest     string         `json:"digest,omitempty"`
	Resources  int            `json:"resources,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

type RunRecord struct {
	ID        string    `json:"id"`
	Module    string    `json:"module,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Status    RunStatus `json:"status"`
	Total     int       `json:"total"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Missing   []string  `json:"missing,omitempty"`
	Results   []CaseRun `json:"results"`
}

func New(baseDir string) *Store {
	return &Store{baseDir: filepath.Join(baseDir, stateDirName)}
}

func (s *Store) runsDir() string { return filepath.Join(s.baseDir, "runs") }

func (s *Store) SaveRun(r RunRecord) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if err := os.MkdirAll(s.runsDir(), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	path := filepath.Join(s.runsDir(), r.ID+".json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}

func (s *Store) GetRun(id string) (RunRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return RunRecord{}, fmt.Errorf("invalid run id %q", id)
	}
	return readRun(filepath.Join(s.runsDir(), id+".json"))
}

// ListRuns returns runs newest first. limit <= 0 returns all of them.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	entries, err := os.ReadDir(s.runsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []RunRecord{}, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}
	records := make([]RunRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		r, err := readRun(filepath.Join(s.runsDir(), e.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Prune keeps the newest keep runs and deletes the rest.
func (s *Store) Prune(keep int) (int, error) {
	runs, err := s.ListRuns(0)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for i := keep; i < len(runs); i++ {
		if err := os.Remove(filepath.Join(s.runsDir(), runs[i].ID+".json")); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove run %s: %w", runs[i].ID, err)
		}
		removed++
	}
	return removed, nil
}

func readRun(path string) (RunRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run file %s: %w", filepath.Base(path), err)
	}
	var r RunRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return RunRecord{}, fmt.Errorf("parse run file %s: %w", filepath.Base(path), err)
	}
	return r, nil
}
