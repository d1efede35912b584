package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/masterchef/catalogcheck/internal/checker"
	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/config"
	"github.com/masterchef/catalogcheck/internal/facts"
	"github.com/masterchef/catalogcheck/internal/grpcapi"
	"github.com/masterchef/catalogcheck/internal/state"
)

type checkFlags struct {
	moduleFlags
	jobs       int
	idempotent bool
	format     string
	save       bool
	remote     string
}

func (a *app) checkCommand() *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check [class...]",
		Short: "Compile classes on every supported OS fixture",
		Long: `Compiles each class once per fact set matching the module's
operatingsystem_support and reports pass or fail per fixture. Classes default
to the ones listed in the settings file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			rep, err := a.runCheck(ctx, f, args)
			if err != nil {
				return err
			}
			if err := renderReport(cmd.OutOrStdout(), f.format, rep); err != nil {
				return err
			}
			if f.save {
				if err := state.New(a.settings.StateDir).SaveRun(rep.Record()); err != nil {
					return err
				}
				a.log.Info("run saved")
			}
			if rep.Failed > 0 {
				return ExitError{Code: exitFailedChecks, Msg: rep.Err().Error()}
			}
			return nil
		},
	}
	a.bindModuleFlags(cmd, &f.moduleFlags)
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "concurrent compiles (default from settings)")
	cmd.Flags().BoolVar(&f.idempotent, "idempotent", false, "compile each case twice and require identical catalogs")
	cmd.Flags().StringVar(&f.format, "format", "human", "output format: human|json")
	cmd.Flags().BoolVar(&f.save, "save", false, "record the run under the state directory")
	cmd.Flags().StringVar(&f.remote, "remote", "", "compile on a catalogcheck serve instance at this address")
	return cmd
}

// refs returns the classes to check: args with --param, else the settings
// classes with their own params.
func (a *app) refs(args []string, f moduleFlags) ([]compiler.ModuleRef, error) {
	params, err := parseParams(f.params)
	if err != nil {
		return nil, err
	}
	refs := make([]compiler.ModuleRef, 0)
	for _, class := range args {
		refs = append(refs, compiler.ModuleRef{Class: strings.TrimSpace(class), Params: params})
	}
	if len(refs) > 0 {
		return refs, nil
	}
	for _, c := range a.settings.Classes {
		refs = append(refs, compiler.ModuleRef{Class: c.Name, Params: c.Params})
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no classes to check; pass class names or list them in %s", a.settingsPath)
	}
	return refs, nil
}

func (a *app) runCheck(ctx context.Context, f checkFlags, args []string) (checker.Report, error) {
	mod, err := config.LoadModule(a.modulePath(f.moduleFlags))
	if err != nil {
		return checker.Report{}, err
	}
	db, err := facts.LoadDB(a.factsPath(f.moduleFlags))
	if err != nil {
		return checker.Report{}, err
	}
	sel, err := a.selectFixtures(mod, db, f.moduleFlags)
	if err != nil {
		return checker.Report{}, err
	}
	refs, err := a.refs(args, f.moduleFlags)
	if err != nil {
		return checker.Report{}, err
	}

	var c compiler.Compiler = compiler.New(mod, compiler.WithLogger(a.log))
	if f.remote != "" {
		conn, err := grpcapi.Dial(f.remote)
		if err != nil {
			return checker.Report{}, err
		}
		defer conn.Close()
		c = grpcapi.NewClient(conn).Compiler()
	}

	jobs := f.jobs
	if jobs <= 0 {
		jobs = a.settings.Jobs
	}
	return checker.Run(ctx, c, checker.Cases(refs, sel.Fixtures), checker.Options{
		Jobs:             jobs,
		VerifyIdempotent: f.idempotent,
		Logger:           a.log,
		Module:           mod.Metadata.Name,
		Missing:          sel.Missing,
	}), nil
}

func renderReport(w io.Writer, format string, rep checker.Report) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		b, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "human", "":
		data := pterm.TableData{{"CLASS", "FIXTURE", "RESULT", "DETAIL"}}
		for _, r := range rep.Results {
			result, detail := "pass", fmt.Sprintf("%d resources", r.Resources)
			if !r.Passed {
				result = "FAIL"
				detail = string(r.Reason)
				if r.Resource != "" {
					detail += " on " + r.Resource
				}
				if r.Message != "" {
					detail += ": " + r.Message
				}
			}
			data = append(data, []string{r.Class, r.Fixture, result, detail})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(w).Render(); err != nil {
			return err
		}
		for _, m := range rep.Missing {
			pterm.Warning.WithWriter(w).Printfln("no fact set for supported platform %s", m)
		}
		if rep.Failed > 0 {
			pterm.Error.WithWriter(w).Printfln("%d of %d checks failed", rep.Failed, rep.Total)
		} else {
			pterm.Success.WithWriter(w).Printfln("%d checks passed", rep.Passed)
		}
		return nil
	default:
		return fmt.Errorf("unsupported check output format %q", format)
	}
}
