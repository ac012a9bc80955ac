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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jw6ventures/planner/internal/auth"
	"github.com/jw6ventures/planner/internal/calendar"
	"github.com/jw6ventures/planner/internal/config"
	httpserver "github.com/jw6ventures/planner/internal/http"
	"github.com/jw6ventures/planner/internal/logging"
	"github.com/jw6ventures/planner/internal/recurrence"
	"github.com/jw6ventures/planner/internal/store"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (postgres) or create indexes (mongo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer st.Close(context.Background()) //nolint:errcheck
			logger.Info("migrations complete", zap.String("storage", cfg.Storage))
			return nil
		},
	}
}

func newOccurrencesCommand() *cobra.Command {
	var (
		username string
		year     int
		month    int
	)
	now := time.Now()
	cmd := &cobra.Command{
		Use:   "occurrences",
		Short: "Print the expanded occurrences of a user's month as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer st.Close(context.Background()) //nolint:errcheck

			user, err := st.Users.GetByUsername(ctx, username)
			if err != nil {
				return fmt.Errorf("look up user %q: %w", username, err)
			}
			policy, err := recurrence.ParsePolicy(cfg.MalformedDatePolicy)
			if err != nil {
				return err
			}
			occs, err := calendar.NewService(st.Events, policy, logger).Month(ctx, user.ID, year, time.Month(month))
			if err != nil {
				return err
			}

			type line struct {
				Date       string `json:"date"`
				ID         string `json:"id"`
				Title      string `json:"title"`
				Start      string `json:"start"`
				Type       string `json:"type"`
				Recurrence string `json:"recurrence"`
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, o := range occs {
				if err := enc.Encode(line{
					Date:       o.Date.Format(recurrence.DateLayout),
					ID:         o.ID,
					Title:      o.Title,
					Start:      o.Start,
					Type:       string(o.Type),
					Recurrence: string(o.Recurrence),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username whose events are expanded (required)")
	cmd.Flags().IntVar(&year, "year", now.Year(), "year to expand")
	cmd.Flags().IntVar(&month, "month", int(now.Month()), "month to expand (1-12)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// openStore connects the configured backend. With migrate set, schema
// migrations or indexes are brought up to date first.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) (*store.Store, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("create db pool: %w", err)
		}
		if migrate {
			applied, err := store.ApplyMigrations(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			for _, name := range applied {
				logger.Info("applied migration", zap.String("name", name))
			}
		}
		st := store.NewPostgres(pool)
		st.SetClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		return st, nil

	case config.StorageMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if migrate {
			if err := store.EnsureMongoIndexes(ctx, client, cfg.Mongo.Database); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, err
			}
		}
		return store.NewMongo(client, cfg.Mongo.Database), nil

	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

func runServer(parent context.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting planner server", zap.String("storage", cfg.Storage))
	if len(cfg.TrustedProxies) == 0 {
		logger.Info("no APP_TRUSTED_PROXIES configured; forwarding headers are ignored")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := recurrence.ParsePolicy(cfg.MalformedDatePolicy)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer st.Close(context.Background()) //nolint:errcheck

	sessionManager := auth.NewSessionManager(cfg)
	authService, err := auth.NewService(ctx, cfg, st.Users, sessionManager, logger)
	if err != nil {
		return fmt.Errorf("initialize auth service: %w", err)
	}
	calendarService := calendar.NewService(st.Events, policy, logger)

	router := httpserver.NewRouter(cfg, st, authService, calendarService, logger)
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
