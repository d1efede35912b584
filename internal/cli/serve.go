package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/facts"
	"github.com/masterchef/catalogcheck/internal/grpcapi"
	"github.com/masterchef/catalogcheck/internal/watch"
)

func (a *app) serveCommand() *cobra.Command {
	var (
		addr string
		f    moduleFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve compiles and run history over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			modDir := a.modulePath(f)
			engine := compiler.Open(modDir, compiler.WithLogger(a.log))
			mod, err := engine.Module()
			if err != nil {
				return err
			}
			opts := []grpcapi.Option{grpcapi.WithLogger(a.log), grpcapi.WithModuleName(mod.Metadata.Name)}
			if db, err := facts.LoadDB(a.factsPath(f)); err == nil {
				opts = append(opts, grpcapi.WithFixtures(db))
			} else {
				a.log.Warn("serving without fact sets", zap.Error(err))
			}
			svc := grpcapi.New(a.settings.StateDir, compiler.Cached(engine), opts...)
			srv, lis, err := grpcapi.Listen(addr, svc)
			if err != nil {
				return err
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve(lis)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "grpc server listening on %s\n", lis.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			select {
			case <-ctx.Done():
				fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
				done := make(chan struct{})
				go func() {
					srv.GracefulStop()
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(5 * time.Second):
					srv.Stop()
				}
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":7443", "bind address")
	cmd.Flags().StringVar(&f.module, "module", "", "module directory (default from settings)")
	cmd.Flags().StringVar(&f.factsDir, "facts-dir", "", "fact set directory (default from settings)")
	return cmd
}

func (a *app) watchCommand() *cobra.Command {
	var (
		f        checkFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch [class...]",
		Short: "Re-run check whenever module or fact files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			run := func(ctx context.Context) {
				rep, err := a.runCheck(ctx, f, args)
				if err != nil {
					pterm.Error.WithWriter(out).Println(err.Error())
					return
				}
				if err := renderReport(out, f.format, rep); err != nil {
					a.log.Warn("render report failed", zap.Error(err))
				}
			}
			run(ctx)
			roots := []string{a.modulePath(f.moduleFlags), a.factsPath(f.moduleFlags)}
			w := watch.New(roots,
				watch.WithFiles(a.settingsPath),
				watch.WithDebounce(debounce),
				watch.WithLogger(a.log),
			)
			return w.Run(ctx, func(ctx context.Context, changed []string) {
				pterm.Info.WithWriter(out).Printfln("changed: %s", strings.Join(changed, ", "))
				if err := a.loadSettings(); err != nil {
					pterm.Error.WithWriter(out).Println(err.Error())
					return
				}
				run(ctx)
			})
		},
	}
	a.bindModuleFlags(cmd, &f.moduleFlags)
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "concurrent compiles (default from settings)")
	cmd.Flags().StringVar(&f.format, "format", "human", "output format: human|json")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before re-running")
	return cmd
}
