// Command policyloop runs the adaptive sales policy loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/adaptive-policy/internal/config"
	"github.com/danielpatrickdp/adaptive-policy/internal/evaluator"
	"github.com/danielpatrickdp/adaptive-policy/internal/logging"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/report"
	"github.com/danielpatrickdp/adaptive-policy/internal/server"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region main

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		var pe *state.PersistenceError
		if errors.As(err, &pe) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

// #endregion main

// #region root

// app carries what PersistentPreRunE resolved for the subcommands.
type app struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:          "policyloop",
		Short:        "policyloop - adaptive sales strategy selection",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")

	root.AddCommand(a.runCmd(), a.resetCmd(), a.inspectCmd(), a.serveCmd(), a.judgeCmd())
	return root
}

// #endregion root

// #region run

func (a *app) runCmd() *cobra.Command {
	var (
		jsonOut   bool
		leadsPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured rounds over the lead set and save memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if leadsPath != "" {
				a.cfg.LeadsPath = leadsPath
			}
			batch, err := loadLeads(a.cfg.LeadsPath)
			if err != nil {
				return err
			}

			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			orch, closeEval, err := buildOrchestrator(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeEval()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := orch.Execute(ctx, store, batch)
			if err != nil {
				return err
			}
			if jsonOut {
				return report.RenderJSON(a.out, rep)
			}
			return report.Render(a.out, rep)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the run report as JSON")
	cmd.Flags().StringVarP(&leadsPath, "leads", "l", "", "leads file (.yaml, .yml or .json); demo leads when empty")
	return cmd
}

// #endregion run

// #region reset

func (a *app) resetCmd() *cobra.Command {
	var drop bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Write baseline policy memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if drop {
				r, ok := store.(state.Resetter)
				if !ok {
					return fmt.Errorf("store driver %s cannot clear memory", a.cfg.Store.Driver)
				}
				if err := r.Reset(); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "policy memory cleared at %s\n", storeLocation(store, a.cfg))
				return nil
			}

			mem := policy.NewMemory(a.cfg.Exploration)
			if err := store.Save(cmd.Context(), mem); err != nil {
				return err
			}
			a.logger.Info("memory reset",
				zap.String("driver", a.cfg.Store.Driver),
				zap.String("path", a.cfg.Store.Path),
				zap.Float64("epsilon", mem.Policy.Epsilon))
			fmt.Fprintf(a.out, "policy memory reset at %s (epsilon=%.4f)\n", storeLocation(store, a.cfg), mem.Policy.Epsilon)
			return nil
		},
	}
	cmd.Flags().BoolVar(&drop, "clear", false, "drop the active memory instead of saving a baseline")
	return cmd
}

// #endregion reset

// #region inspect

func (a *app) inspectCmd() *cobra.Command {
	var (
		last     int
		versions int
		rollback string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the active policy memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			ctx := cmd.Context()

			sq, isSQLite := store.(*state.SQLiteStore)
			if rollback != "" {
				if !isSQLite {
					return fmt.Errorf("rollback requires the %s store driver", config.DriverSQLite)
				}
				if err := sq.Rollback(ctx, rollback); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "active memory is now %s\n", rollback)
			}

			mem, err := store.Load(ctx)
			if errors.Is(err, state.ErrNoState) {
				fmt.Fprintln(a.out, "no policy memory saved yet; run `policyloop reset` or `policyloop run`")
				return nil
			}
			if err != nil {
				return err
			}
			if err := report.RenderMemory(a.out, mem, last); err != nil {
				return err
			}

			if isSQLite && versions > 0 {
				list, err := sq.ListVersions(ctx, versions)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, "\nVERSIONS")
				for _, v := range list {
					parent := v.ParentID
					if parent == "" {
						parent = "-"
					}
					fmt.Fprintf(a.out, "  %s  parent=%s  runs=%d  epsilon=%.4f  %s\n",
						v.VersionID, parent, v.Runs, v.Epsilon, v.CreatedAt.Format(time.RFC3339))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 10, "history entries to show")
	cmd.Flags().IntVar(&versions, "versions", 5, "snapshot versions to list (sqlite only)")
	cmd.Flags().StringVar(&rollback, "rollback", "", "make a saved version active before printing (sqlite only)")
	return cmd
}

// #endregion inspect

// #region serve

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the loop on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			orch, closeEval, err := buildOrchestrator(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer closeEval()

			leadsPath := a.cfg.LeadsPath
			srv := server.New(orch, store, func() ([]policy.Lead, error) {
				return loadLeads(leadsPath)
			}, a.logger)

			if a.cfg.Server.Schedule != "" {
				sched, err := srv.Schedule(a.cfg.Server.Schedule)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
				a.logger.Info("scheduled runs enabled", zap.String("spec", a.cfg.Server.Schedule))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(a.cfg.Server.Addr) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	return cmd
}

// #endregion serve

// #region judge

func (a *app) judgeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "judge",
		Short: "Serve the rule-based judge over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Evaluator.GRPCAddr
			}
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			gs := grpc.NewServer()
			evaluator.RegisterJudgeServer(gs, evaluator.NewRuleJudgeServer())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				gs.GracefulStop()
			}()

			a.logger.Info("judge listening", zap.String("addr", lis.Addr().String()))
			return gs.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to evaluator.grpcAddr)")
	return cmd
}

// #endregion judge
