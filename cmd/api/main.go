package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"rex/api/internal/app"
	"rex/api/internal/auth"
	"rex/api/internal/config"
	"rex/api/internal/gateway"
	"rex/api/internal/logger"
	"rex/api/internal/metrics"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:          "rex",
		Short:        "Rex ideas API",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "bearer token signing secret")

	cmd.AddCommand(newServeCommand(&cfg))
	cmd.AddCommand(newTokenCommand(&cfg))
	return cmd
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flags.StringVar(&cfg.Backend, "backend", cfg.Backend, "store backend (memory|tablestorage|postgres|redis)")
	flags.StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "Access-Control-Allow-Origin value")
	flags.IntVar(&cfg.MaxInFlight, "max-in-flight", cfg.MaxInFlight, "concurrent store operations")
	flags.StringVar(&cfg.TableStorageConnectionString, "table-storage", cfg.TableStorageConnectionString, "table storage connection string")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection URL")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis connection URL")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	gw := gateway.New(backend,
		gateway.WithMaxInFlight(cfg.MaxInFlight),
		gateway.WithMetrics(m),
		gateway.WithLogger(log),
	)
	defer func() {
		if err := gw.Close(); err != nil {
			log.Warnw("Closing store failed", "error", err)
		}
	}()

	service := app.New(gw, cfg.TokenSecret, log)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin,
		app.WithMetricsHandler(m.Handler()),
		app.WithServerLogger(log),
	)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Rex API listening", "addr", cfg.Addr, "backend", gw.BackendName())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Infow("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newTokenCommand signs a bearer token for local use, standing in for an
// identity provider.
func newTokenCommand(cfg *config.Config) *cobra.Command {
	var (
		claims auth.Claims
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(claims.Sub) == "" {
				return errors.New("--sub is required")
			}
			claims.Exp = time.Now().Add(ttl).Unix()
			token, err := auth.IssueToken([]byte(cfg.TokenSecret), claims)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&claims.Sub, "sub", "", "principal id (hex or GUID)")
	flags.StringVar(&claims.Name, "name", "", "display name")
	flags.StringVar(&claims.Email, "email", "", "email address")
	flags.StringSliceVar(&claims.Roles, "roles", []string{auth.RoleUser}, "application roles")
	flags.StringSliceVar(&claims.Scopes, "scopes", []string{
		auth.ScopeIdeasRead, auth.ScopeIdeasWrite,
		auth.ScopeCollectionsRead, auth.ScopeCollectionsWrite,
		auth.ScopeRoleAssignmentsWrite, auth.ScopeUsersRead,
	}, "delegated scopes")
	flags.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
