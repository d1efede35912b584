// Package cli implements the catalogcheck command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/masterchef/catalogcheck/internal/config"
	"github.com/masterchef/catalogcheck/internal/facts"
)

type ExitError struct {
	Code int
	Msg  string
}

func (e ExitError) Error() string {
	return e.Msg
}

func (e ExitError) ExitCode() int {
	return e.Code
}

// Exit codes.
const (
	exitFailedChecks   = 2
	exitSnapshotDrift  = 3
	exitDoctorBlocking = 4
)

type app struct {
	settingsPath string
	verbose      bool
	getenv       func(string) string

	log      *zap.Logger
	settings config.Settings
}

// Run executes the command line in args, without the program name.
func Run(args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.Execute()
}

func NewRootCommand() *cobra.Command {
	a := &app{getenv: os.Getenv, log: zap.NewNop()}
	root := &cobra.Command{
		Use:   "catalogcheck",
		Short: "Compile configuration modules against every supported OS fact set",
		Long: `catalogcheck compiles the classes of a configuration module once per
supported operating system fixture and reports pass or fail per fixture.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if a.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.log = logger
			return a.loadSettings()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&a.settingsPath, "config", config.SettingsFile, "project settings file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.checkCommand(),
		a.compileCommand(),
		a.factsCommand(),
		a.validateCommand(),
		a.doctorCommand(),
		a.runsCommand(),
		a.serveCommand(),
		a.watchCommand(),
		a.initCommand(),
	)
	return root
}

func (a *app) loadSettings() error {
	s, err := config.LoadSettings(a.settingsPath)
	if err != nil {
		return err
	}
	if err := s.ApplyEnv(a.getenv); err != nil {
		return err
	}
	a.settings = s
	return nil
}

// moduleFlags are shared by commands that load a module and fact sets.
type moduleFlags struct {
	module         string
	factsDir       string
	hardwareModels []string
	os             []string
	params         []string
}

func (a *app) bindModuleFlags(cmd *cobra.Command, f *moduleFlags) {
	cmd.Flags().StringVar(&f.module, "module", "", "module directory (default from settings)")
	cmd.Flags().StringVar(&f.factsDir, "facts-dir", "", "fact set directory (default from settings)")
	cmd.Flags().StringSliceVar(&f.hardwareModels, "hardwaremodel", nil, "hardware models to check (default x86_64)")
	cmd.Flags().StringSliceVar(&f.os, "os", nil, "only these fixtures, e.g. centos-7-x86_64")
	cmd.Flags().StringArrayVar(&f.params, "param", nil, "class parameter as key=value (repeatable)")
}

func (a *app) modulePath(f moduleFlags) string {
	if strings.TrimSpace(f.module) != "" {
		return f.module
	}
	return a.settings.Module
}

func (a *app) factsPath(f moduleFlags) string {
	if strings.TrimSpace(f.factsDir) != "" {
		return f.factsDir
	}
	return a.settings.FactsDir
}

// selectFixtures picks the fixtures to check. Without declared OS support the
// fixtures must be named with --os.
func (a *app) selectFixtures(mod *config.Module, db *facts.DB, f moduleFlags) (facts.Selection, error) {
	models := f.hardwareModels
	if len(models) == 0 {
		models = a.settings.HardwareModels
	}
	if len(mod.Metadata.OperatingSystemSupport) > 0 {
		sel := db.OnSupportedOS(mod.Metadata.OperatingSystemSupport, facts.Filter{HardwareModels: models, Names: f.os})
		if len(sel.Fixtures) == 0 {
			return sel, errors.New("no fact set matches the module's supported operating systems")
		}
		return sel, nil
	}
	if len(f.os) == 0 {
		return facts.Selection{}, fmt.Errorf("module %s declares no operatingsystem_support; choose fixtures with --os", mod.Metadata.Name)
	}
	sel := facts.Selection{}
	for _, name := range f.os {
		fx, ok := db.Get(name)
		if !ok {
			return facts.Selection{}, fmt.Errorf("unknown fixture %q", name)
		}
		sel.Fixtures = append(sel.Fixtures, fx)
	}
	return sel, nil
}

// parseParams reads key=value pairs. Values are decoded as YAML so that
// true, 3 and [a, b] keep their types.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		var decoded any
		if err := yaml.Unmarshal([]byte(v), &decoded); err != nil || decoded == nil {
			decoded = v
		}
		if _, isMap := decoded.(map[string]any); isMap {
			decoded = v
		}
		out[k] = decoded
	}
	return out, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
