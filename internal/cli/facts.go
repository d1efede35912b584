package cli

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/masterchef/catalogcheck/internal/facts"
)

func (a *app) factsCommand() *cobra.Command {
	var factsDir string
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Inspect OS fact sets",
	}
	cmd.PersistentFlags().StringVar(&factsDir, "facts-dir", "", "fact set directory (default from settings)")
	dir := func() string {
		if factsDir != "" {
			return factsDir
		}
		return a.settings.FactsDir
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List fact sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := facts.LoadDB(dir())
			if err != nil {
				return err
			}
			data := pterm.TableData{{"NAME", "OS", "RELEASE", "HARDWARE", "SOURCE"}}
			for _, fx := range db.All() {
				data = append(data, []string{
					fx.Name,
					fx.Facts.String("os.name"),
					fx.Facts.String("os.release.full"),
					fx.Facts.String("os.hardware"),
					fx.Source,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print one fact set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := facts.LoadDB(dir())
			if err != nil {
				return err
			}
			fx, ok := db.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown fixture %q", args[0])
			}
			return writeYAML(cmd.OutOrStdout(), fx.Facts)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "local",
		Short: "Print the facts of this host as a fact set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeYAML(cmd.OutOrStdout(), facts.Local().Facts)
		},
	})
	return cmd
}
