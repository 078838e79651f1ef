package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	api "github.com/mind-engage/mindengage-clinical/internal/api/http"
	"github.com/mind-engage/mindengage-clinical/internal/caseload"
	"github.com/mind-engage/mindengage-clinical/internal/config"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("seed", "", "case pack to import before serving")
	_ = opts.v.BindPFlag("http_addr", cmd.Flags().Lookup("addr"))
	_ = opts.v.BindPFlag("seed_file", cmd.Flags().Lookup("seed"))
	return cmd
}

func serve(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.DevSecret() {
		slog.Warn("using the development token secret; set AUTH_HMAC_SECRET")
	}
	if cfg.AdminUser != "" {
		created, err := a.users.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassHash)
		if err != nil {
			return err
		}
		if created {
			slog.Info("bootstrap admin created", "username", cfg.AdminUser)
		}
	}
	if cfg.SeedFile != "" {
		if err := seedFrom(ctx, a, cfg.SeedFile); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Engine:          a.engine,
			Cases:           a.store,
			Auth:            a.auth,
			Users:           a.users,
			Events:          a.events,
			DB:              a.db,
			Archive:         a.archive,
			CORSOrigins:     cfg.CORSOrigins,
			EnableLocalAuth: cfg.EnableLocalAuth,
			EnableGuestAuth: cfg.EnableGuestAuth,
			Online:          cfg.Mode == config.ModeOnline,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("clinicald listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
		return err
	}
	return nil
}

func seedFrom(ctx context.Context, a *app, path string) error {
	cases, err := caseload.LoadFile(path)
	if err != nil {
		return err
	}
	n, err := caseload.Import(ctx, a.store, cases)
	if err != nil {
		return err
	}
	slog.Info("case pack imported", "file", path, "cases", n)
	return nil
}
