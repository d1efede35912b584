package facts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/masterchef/catalogcheck/internal/config"
)

// Fixture is a named set of facts simulating one platform.
type Fixture struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	Facts  Facts  `json:"facts" yaml:"facts"`
}

// FixtureName derives the conventional fixture name from facts, e.g.
// "centos-7-x86_64". It returns "" when the facts lack an OS identity.
func FixtureName(f Facts) string {
	n := f.Normalize()
	name := strings.ToLower(strings.ReplaceAll(n.String("os.name"), " ", ""))
	major := n.String("os.release.major")
	hw := n.String("os.hardware")
	if name == "" || major == "" {
		return ""
	}
	if hw == "" {
		return name + "-" + major
	}
	return name + "-" + major + "-" + hw
}

// LoadFixture reads a single fact set file. The fixture is named from its
// facts, falling back to the file stem.
func LoadFixture(path string) (Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read facts: %w", err)
	}
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(b, &raw)
	default:
		err = yaml.Unmarshal(b, &raw)
	}
	if err != nil {
		return Fixture{}, fmt.Errorf("parse facts %s: %w", filepath.Base(path), err)
	}
	f := Facts(raw).Normalize()
	name := FixtureName(f)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		name = strings.TrimSuffix(name, ".facts")
	}
	return Fixture{Name: name, Source: path, Facts: f}, nil
}

// DB is an in-memory collection of fixtures keyed by name.
type DB struct {
	fixtures []Fixture
	byName   map[string]int
}

func NewDB(fixtures ...Fixture) (*DB, error) {
	db := &DB{byName: map[string]int{}}
	for _, fx := range fixtures {
		if err := db.Add(fx); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) Add(fx Fixture) error {
	if strings.TrimSpace(fx.Name) == "" {
		return fmt.Errorf("fixture name is required")
	}
	if i, ok := db.byName[fx.Name]; ok {
		return fmt.Errorf("duplicate fixture %q (%s and %s)", fx.Name, db.fixtures[i].Source, fx.Source)
	}
	db.byName[fx.Name] = len(db.fixtures)
	db.fixtures = append(db.fixtures, fx)
	return nil
}

// LoadDB reads every *.yaml, *.yml and *.json fact set in dir.
func LoadDB(dir string) (*DB, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read facts dir: %w", err)
	}
	db := &DB{byName: map[string]int{}}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fx, err := LoadFixture(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if err := db.Add(fx); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// All returns every fixture sorted by name.
func (db *DB) All() []Fixture {
	out := append([]Fixture{}, db.fixtures...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (db *DB) Get(name string) (Fixture, bool) {
	i, ok := db.byName[name]
	if !ok {
		return Fixture{}, false
	}
	return db.fixtures[i], true
}

// Filter narrows OnSupportedOS. HardwareModels defaults to x86_64; Names,
// when set, keeps only the listed fixtures.
type Filter struct {
	HardwareModels []string
	Names          []string
}

// Selection is the result of OnSupportedOS.
type Selection struct {
	Fixtures []Fixture `json:"fixtures"`
	// Missing lists supported platforms with no matching fact set.
	Missing []string `json:"missing,omitempty"`
}

// OnSupportedOS returns the fixtures matching the supported platforms,
// sorted by name. Each support entry matches on operating system name,
// case-insensitively, and on os.release.major or os.release.full.
func (db *DB) OnSupportedOS(support []config.OSSupport, filter Filter) Selection {
	models := map[string]struct{}{}
	for _, m := range filter.HardwareModels {
		if m = strings.TrimSpace(m); m != "" {
			models[m] = struct{}{}
		}
	}
	if len(models) == 0 {
		models["x86_64"] = struct{}{}
	}
	names := map[string]struct{}{}
	for _, n := range filter.Names {
		if n = strings.TrimSpace(n); n != "" {
			names[n] = struct{}{}
		}
	}

	picked := map[string]Fixture{}
	missing := make([]string, 0)
	for _, s := range support {
		releases := s.Releases
		if len(releases) == 0 {
			releases = []string{""}
		}
		for _, rel := range releases {
			found := false
			for _, fx := range db.fixtures {
				if !matchesSupport(fx.Facts, s.OperatingSystem, rel) {
					continue
				}
				if _, ok := models[fx.Facts.String("os.hardware")]; !ok {
					continue
				}
				found = true
				if len(names) > 0 {
					if _, ok := names[fx.Name]; !ok {
						continue
					}
				}
				picked[fx.Name] = fx
			}
			if !found {
				label := s.OperatingSystem
				if rel != "" {
					label += " " + rel
				}
				missing = append(missing, label)
			}
		}
	}

	out := make([]Fixture, 0, len(picked))
	for _, fx := range picked {
		out = append(out, fx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return Selection{Fixtures: out, Missing: missing}
}

func matchesSupport(f Facts, operatingSystem, release string) bool {
	if !strings.EqualFold(f.String("os.name"), strings.TrimSpace(operatingSystem)) {
		return false
	}
	if release == "" {
		return true
	}
	return f.String("os.release.major") == release || f.String("os.release.full") == release
}
