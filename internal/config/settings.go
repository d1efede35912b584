package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const SettingsFile = ".catalogcheck.yaml"

// Settings are the project-level defaults for a check run.
type Settings struct {
	Module         string       `json:"module" yaml:"module"`
	FactsDir       string       `json:"facts_dir" yaml:"facts_dir"`
	HardwareModels []string     `json:"hardwaremodels,omitempty" yaml:"hardwaremodels,omitempty"`
	Jobs           int          `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	StateDir       string       `json:"state_dir,omitempty" yaml:"state_dir,omitempty"`
	Classes        []ClassCheck `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// ClassCheck selects a class to check and the parameters to declare it with.
type ClassCheck struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Module:         ".",
		FactsDir:       filepath.Join("spec", "facts"),
		HardwareModels: []string{"x86_64"},
		Jobs:           4,
		StateDir:       ".",
	}
}

// LoadSettings reads path over the defaults. A missing file yields the
// defaults. Relative module, facts and state paths are resolved against the
// settings file's directory.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var file Settings
	if err := decode(path, b, &file); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	base := filepath.Dir(path)
	if v := strings.TrimSpace(file.Module); v != "" {
		s.Module = resolveManifestRef(base, v)
	}
	if v := strings.TrimSpace(file.FactsDir); v != "" {
		s.FactsDir = resolveManifestRef(base, v)
	}
	if v := strings.TrimSpace(file.StateDir); v != "" {
		s.StateDir = resolveManifestRef(base, v)
	}
	if len(file.HardwareModels) > 0 {
		s.HardwareModels = file.HardwareModels
	}
	if file.Jobs != 0 {
		s.Jobs = file.Jobs
	}
	s.Classes = file.Classes
	return s, s.Validate()
}

// ApplyEnv overrides settings from CATALOGCHECK_* variables.
func (s *Settings) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("CATALOGCHECK_MODULE")); v != "" {
		s.Module = v
	}
	if v := strings.TrimSpace(getenv("CATALOGCHECK_FACTS_DIR")); v != "" {
		s.FactsDir = v
	}
	if v := strings.TrimSpace(getenv("CATALOGCHECK_STATE_DIR")); v != "" {
		s.StateDir = v
	}
	if v := strings.TrimSpace(getenv("CATALOGCHECK_HARDWAREMODELS")); v != "" {
		models := make([]string, 0)
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		s.HardwareModels = models
	}
	if v := strings.TrimSpace(getenv("CATALOGCHECK_JOBS")); v != "" {
		jobs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CATALOGCHECK_JOBS must be an integer: %w", err)
		}
		s.Jobs = jobs
	}
	return s.Validate()
}

func (s Settings) Validate() error {
	if s.Jobs < 0 {
		return fmt.Errorf("jobs must be >= 0")
	}
	for i, c := range s.Classes {
		if !ValidClassName(strings.TrimSpace(c.Name)) {
			return fmt.Errorf("classes[%d].name %q is not a valid class name", i, c.Name)
		}
	}
	return nil
}
