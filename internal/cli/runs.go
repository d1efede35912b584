package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/masterchef/catalogcheck/internal/state"
)

func (a *app) runsCommand() *cobra.Command {
	var (
		limit  int
		format string
		prune  int
	)
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List saved check runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.New(a.settings.StateDir)
			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("prune") {
				removed, err := store.Prune(prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "pruned %d runs\n", removed)
				return nil
			}
			if len(args) == 1 {
				run, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				b, _ := json.MarshalIndent(run, "", "  ")
				fmt.Fprintln(out, string(b))
				return nil
			}
			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "json":
				b, _ := json.MarshalIndent(runs, "", "  ")
				fmt.Fprintln(out, string(b))
				return nil
			case "human", "":
				data := pterm.TableData{{"ID", "STARTED", "STATUS", "PASSED", "FAILED", "MODULE"}}
				for _, r := range runs {
					data = append(data, []string{
						r.ID,
						r.StartedAt.Local().Format(time.DateTime),
						string(r.Status),
						fmt.Sprint(r.Passed),
						fmt.Sprint(r.Failed),
						r.Module,
					})
				}
				return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(out).Render()
			default:
				return fmt.Errorf("unsupported runs output format %q", format)
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().StringVar(&format, "format", "human", "output format: human|json")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the newest N runs")
	return cmd
}
