package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const snapshotVersion = "v1"

// Snapshot is a persisted catalog ordering for one class and fixture, used
// as a baseline for later compiles.
type Snapshot struct {
	Version string `json:"version"`
	Class   string `json:"class,omitempty"`
	Fixture string `json:"fixture,omitempty"`
	Plan    *Plan  `json:"plan"`
}

type SnapshotDiff struct {
	Match            bool     `json:"match"`
	AddedResources   []string `json:"added_resources,omitempty"`
	RemovedResources []string `json:"removed_resources,omitempty"`
	ChangedResources []string `json:"changed_resources,omitempty"`
	BaselineHash     string   `json:"baseline_hash"`
	CurrentHash      string   `json:"current_hash"`
}

func SaveSnapshot(path string, snap Snapshot) error {
	snap.Version = snapshotVersion
	if snap.Plan == nil {
		snap.Plan = &Plan{}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadSnapshot(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %q", snap.Version)
	}
	if snap.Plan == nil {
		snap.Plan = &Plan{}
	}
	return snap, nil
}

func CompareSnapshot(path string, current *Plan) (SnapshotDiff, error) {
	snap, err := LoadSnapshot(path)
	if err != nil {
		return SnapshotDiff{}, err
	}
	return DiffPlans(snap.Plan, current), nil
}

func DiffPlans(baseline, current *Plan) SnapshotDiff {
	if baseline == nil {
		baseline = &Plan{}
	}
	if current == nil {
		current = &Plan{}
	}
	baseMap := stepFingerprints(baseline)
	curMap := stepFingerprints(current)

	added := make([]string, 0)
	removed := make([]string, 0)
	changed := make([]string, 0)

	for id, curFP := range curMap {
		baseFP, ok := baseMap[id]
		if !ok {
			added = append(added, id)
			continue
		}
		if curFP != baseFP {
			changed = append(changed, id)
		}
	}
	for id := range baseMap {
		if _, ok := curMap[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)

	return SnapshotDiff{
		Match:            len(added) == 0 && len(removed) == 0 && len(changed) == 0,
		AddedResources:   added,
		RemovedResources: removed,
		ChangedResources: changed,
		BaselineHash:     HashPlan(baseline),
		CurrentHash:      HashPlan(current),
	}
}

// stepFingerprints hashes each step's class and resource. Order is left out
// so an unrelated insertion does not mark every later resource changed.
func stepFingerprints(p *Plan) map[string]string {
	out := map[string]string{}
	for _, step := range p.Steps {
		id := strings.TrimSpace(step.Resource.ID)
		if id == "" {
			continue
		}
		b, _ := json.Marshal(struct {
			Class    string `json:"class"`
			Resource any    `json:"resource"`
		}{step.Class, step.Resource})
		sum := sha256.Sum256(b)
		out[id] = hex.EncodeToString(sum[:])
	}
	return out
}

// HashPlan is a sha256 over the JSON encoding of the plan. encoding/json
// sorts map keys, so equal plans hash equally.
func HashPlan(p *Plan) string {
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
