package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/config"
	"github.com/masterchef/catalogcheck/internal/facts"
	"github.com/masterchef/catalogcheck/internal/planner"
	"github.com/masterchef/catalogcheck/internal/provider"
)

type compileFlags struct {
	moduleFlags
	local    bool
	format   string
	summary  bool
	snapshot string
	compare  string

	query       string
	direction   string
	depth       int
	conformance bool
}

func (a *app) compileCommand() *cobra.Command {
	var f compileFlags
	cmd := &cobra.Command{
		Use:   "compile <class>",
		Short: "Compile one class on one fixture and print the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := config.LoadModule(a.modulePath(f.moduleFlags))
			if err != nil {
				return err
			}
			fx, err := a.compileFixture(f)
			if err != nil {
				return err
			}
			params, err := parseParams(f.params)
			if err != nil {
				return err
			}
			ref := compiler.ModuleRef{Class: args[0], Params: params}
			cat, err := compiler.New(mod, compiler.WithLogger(a.log)).Compile(cmd.Context(), ref, fx.Facts)
			if err != nil {
				if ce, ok := compiler.AsCompileError(err); ok {
					return ExitError{Code: exitFailedChecks, Msg: fmt.Sprintf("%s on %s: %v", ref.Class, fx.Name, ce)}
				}
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case f.query != "":
				r, ok := cat.Resource(f.query)
				if !ok {
					return fmt.Errorf("resource %q is not in the catalog", f.query)
				}
				res := planner.QueryGraph(cat.Plan(), planner.GraphQueryRequest{ResourceID: r.ID, Direction: f.direction, Depth: f.depth})
				b, _ := json.MarshalIndent(res, "", "  ")
				fmt.Fprintln(out, string(b))
			case f.conformance:
				reports := conformance(cat)
				b, _ := json.MarshalIndent(reports, "", "  ")
				fmt.Fprintln(out, string(b))
				for _, r := range reports {
					if !r.IdempotentPass {
						return ExitError{Code: exitFailedChecks, Msg: fmt.Sprintf("%s: %s", r.ProviderType, r.Error)}
					}
				}
			case f.summary:
				b, _ := json.MarshalIndent(planner.Summarize(cat.Plan()), "", "  ")
				fmt.Fprintln(out, string(b))
			default:
				b, err := cat.Marshal(f.format)
				if err != nil {
					return err
				}
				fmt.Fprint(out, strings.TrimRight(string(b), "\n")+"\n")
			}

			if f.snapshot != "" {
				snap := planner.Snapshot{Class: ref.Class, Fixture: fx.Name, Plan: cat.Plan()}
				if err := planner.SaveSnapshot(f.snapshot, snap); err != nil {
					return err
				}
				a.log.Info("snapshot written")
			}
			if f.compare != "" {
				diff, err := planner.CompareSnapshot(f.compare, cat.Plan())
				if err != nil {
					return err
				}
				if !diff.Match {
					b, _ := json.MarshalIndent(diff, "", "  ")
					fmt.Fprintln(cmd.ErrOrStderr(), string(b))
					return ExitError{Code: exitSnapshotDrift, Msg: fmt.Sprintf("catalog differs from snapshot %s", f.compare)}
				}
			}
			return nil
		},
	}
	a.bindModuleFlags(cmd, &f.moduleFlags)
	cmd.Flags().BoolVar(&f.local, "local", false, "compile with the facts of this host")
	cmd.Flags().StringVar(&f.format, "format", "json", "catalog format: json|yaml|dot")
	cmd.Flags().BoolVar(&f.summary, "summary", false, "print resource counts instead of the catalog")
	cmd.Flags().StringVar(&f.snapshot, "snapshot", "", "write the catalog ordering to this snapshot file")
	cmd.Flags().StringVar(&f.compare, "compare", "", "compare the catalog against this snapshot file")
	cmd.Flags().StringVar(&f.query, "query", "", "print the dependencies of this resource instead of the catalog")
	cmd.Flags().StringVar(&f.direction, "direction", "both", "query direction: upstream|downstream|both")
	cmd.Flags().IntVar(&f.depth, "depth", 0, "query depth, 0 for unlimited")
	cmd.Flags().BoolVar(&f.conformance, "conformance", false, "re-validate each compiled resource and require stable params")
	return cmd
}

func (a *app) compileFixture(f compileFlags) (facts.Fixture, error) {
	if f.local {
		if len(f.os) > 0 {
			return facts.Fixture{}, errors.New("--local and --os are mutually exclusive")
		}
		return facts.Local(), nil
	}
	if len(f.os) != 1 {
		return facts.Fixture{}, errors.New("compile needs exactly one --os fixture or --local")
	}
	db, err := facts.LoadDB(a.factsPath(f.moduleFlags))
	if err != nil {
		return facts.Fixture{}, err
	}
	fx, ok := db.Get(f.os[0])
	if !ok {
		return facts.Fixture{}, fmt.Errorf("unknown fixture %q", f.os[0])
	}
	return fx, nil
}

// conformance feeds each compiled resource back through its type handler.
func conformance(cat *compiler.Catalog) []provider.ConformanceReport {
	reg := provider.NewBuiltinRegistry()
	out := make([]provider.ConformanceReport, 0, len(cat.Resources))
	for _, r := range cat.Resources {
		h, ok := reg.Lookup(r.Type)
		if !ok {
			out = append(out, provider.ConformanceReport{ProviderType: r.Type, Error: "unknown resource type"})
			continue
		}
		rep := provider.CheckIdempotency(h, config.Resource{ID: r.ID, Type: r.Type, Title: r.Title, Params: r.Params})
		rep.Resource = compiler.Ref(r.Type, r.Title)
		out = append(out, rep)
	}
	return out
}
