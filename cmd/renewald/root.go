package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/renewal-engine/api"
	"github.com/warp/renewal-engine/config"
	"github.com/warp/renewal-engine/generic"
)

const shutdownTimeout = 30 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "renewald",
		Short:        "Renewal balance engine",
		Long:         "renewald computes user balances on renewable rights and serves them over HTTP.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newBalanceCmd(&configPath),
		newRollCmd(&configPath),
	)
	return rootCmd
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the renewal roller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	if cfg.Scheduler.Enabled {
		if err := a.roller.Start(cfg.Scheduler.Schedule); err != nil {
			return err
		}
		defer a.roller.Stop()
	}

	handler := api.NewHandler(a.store, a.rights, a.clock, a.logger)
	handler.Roller = a.roller

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
		IdleTimeout:  config.Duration(cfg.Server.IdleTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", server.Addr).
			Str("storage", cfg.Storage.Path).
			Bool("scheduler", cfg.Scheduler.Enabled).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info().Msg("server stopped")
	return nil
}

// =============================================================================
// BALANCE
// =============================================================================

func newBalanceCmd(configPath *string) *cobra.Command {
	var user, right, at string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the beneficiary of a user on a right",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			moment := generic.FromTime(a.clock.Now())
			if at != "" {
				if moment, err = generic.ParseTimePoint(at); err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}
			}

			snap, err := a.rights.Beneficiary(cmd.Context(), generic.UserID(user), generic.RightID(right), moment)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.ToBeneficiaryDTO(snap))
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().StringVar(&right, "right", "", "right ID")
	cmd.Flags().StringVar(&at, "at", "", "moment as YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("right")
	return cmd
}

// =============================================================================
// ROLL
// =============================================================================

func newRollCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "roll",
		Short: "Append the renewals every right is missing up to today",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.roller.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, rn := range result.Created {
				fmt.Fprintf(out, "created %s (%s)\n", rn.ID, rn.Period())
			}
			for _, e := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", e)
			}
			fmt.Fprintf(out, "%d rights checked, %d renewals created\n", result.RightsChecked, len(result.Created))

			if len(result.Errors) > 0 {
				return fmt.Errorf("%d rights failed to roll", len(result.Errors))
			}
			return nil
		},
	}
}
