package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/masterchef/catalogcheck/internal/config"
)

func (a *app) validateCommand() *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate the module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if module == "" {
				module = a.settings.Module
			}
			mod, err := config.LoadModule(module)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "module valid: %s (%d classes)\n", mod.Metadata.Name, len(mod.Classes))
			return nil
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "module directory (default from settings)")
	return cmd
}

func (a *app) doctorCommand() *cobra.Command {
	var module, format string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report likely mistakes in the module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if module == "" {
				module = a.settings.Module
			}
			mod, err := config.LoadModule(module)
			if err != nil {
				return err
			}
			diags := config.Analyze(mod)
			out := cmd.OutOrStdout()
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "json":
				b, _ := json.MarshalIndent(diags, "", "  ")
				fmt.Fprintln(out, string(b))
			case "human", "":
				if len(diags) == 0 {
					pterm.Success.WithWriter(out).Println("doctor: no issues found")
					return nil
				}
				for _, d := range diags {
					p := pterm.Info
					switch d.Severity {
					case config.SeverityError:
						p = pterm.Error
					case config.SeverityWarn:
						p = pterm.Warning
					}
					p.WithWriter(out).Printfln("%s: %s", d.Code, d.Message)
				}
			default:
				return fmt.Errorf("unsupported doctor output format %q", format)
			}
			for _, d := range diags {
				if d.Severity == config.SeverityError {
					return ExitError{Code: exitDoctorBlocking, Msg: "doctor found blocking errors"}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "module directory (default from settings)")
	cmd.Flags().StringVar(&format, "format", "human", "output format: human|json")
	return cmd
}

const (
	sampleMetadata = `{
  "name": "%s",
  "version": "0.1.0",
  "operatingsystem_support": [
    {"operatingsystem": "CentOS", "operatingsystemrelease": ["7"]}
  ]
}
`
	sampleManifest = `version: v0
classes:
  - name: %s
    params:
      - name: editor
        type: string
        default: vim-enhanced
    fail:
      - when: "os.family != RedHat"
        message: "%s does not support {{ os.family }}"
    resources:
      - id: editor
        type: package
        title: "{{ params.editor }}"
        params:
          ensure: installed
`
	sampleFacts = `os:
  name: CentOS
  family: RedHat
  hardware: x86_64
  architecture: x86_64
  release:
    full: "7.9.2009"
    major: "7"
kernel: Linux
networking:
  hostname: foo
`
	sampleSettings = `module: .
facts_dir: spec/facts
hardwaremodels: [x86_64]
state_dir: .
classes:
  - name: %s
`
)

func (a *app) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a module with one class, metadata and a fact set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			name := strings.ToLower(strings.NewReplacer("-", "_", ".", "_").Replace(filepath.Base(abs)))
			if !config.ValidClassName(name) {
				name = "profile"
			}
			manifest := filepath.Join("manifests", "init.yaml")
			factsFile := filepath.Join("spec", "facts", "centos-7-x86_64.yaml")
			files := map[string]string{
				"metadata.json":     fmt.Sprintf(sampleMetadata, name),
				manifest:            fmt.Sprintf(sampleManifest, name, name),
				factsFile:           sampleFacts,
				config.SettingsFile: fmt.Sprintf(sampleSettings, name),
			}
			for _, rel := range sortedKeys(files) {
				if _, err := os.Stat(filepath.Join(dir, rel)); err == nil {
					return fmt.Errorf("refusing to overwrite existing file %q", filepath.Join(dir, rel))
				}
			}
			for _, rel := range sortedKeys(files) {
				path := filepath.Join(dir, rel)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(files[rel]), 0o644); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized module %s in %s\n", name, dir)
			return nil
		},
	}
}
