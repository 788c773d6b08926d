package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"roadmapper/api/internal/app"
	"roadmapper/api/internal/config"
	"roadmapper/api/internal/export"
	"roadmapper/api/internal/search"
	"roadmapper/api/internal/session"
	"roadmapper/api/internal/store"
	"roadmapper/api/internal/webhook"
)

const tokenPurgeInterval = time.Hour

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "roadmapper-api",
		Short:        "Roadmapper API server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var addr, migrations string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Apply pending migrations and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.Addr = addr
			}
			if migrations != "" {
				cfg.MigrationsDir = migrations
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ROADMAPPER_ADDR)")
	cmd.Flags().StringVar(&migrations, "migrations", "", "migrations directory (overrides ROADMAPPER_MIGRATIONS_DIR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	pg := store.NewPostgresStore(db)

	var sessions session.Store = pg
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for session storage")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db))
	go searchService.ReindexAllFromPG(ctx)

	var archiver *export.MinioArchiver
	if cfg.ArchiveEnabled() {
		archiver, err = export.NewMinioArchiver(ctx, export.ArchiveConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			LinkTTL:   cfg.S3LinkTTL,
		})
		if err != nil {
			return fmt.Errorf("object storage setup failed: %w", err)
		}
	}

	dispatcher := webhook.NewDispatcher(cfg.WebhookTimeout)
	defer dispatcher.Wait()

	service := app.New(cfg, app.Dependencies{
		Repo:     pg,
		Store:    pg,
		Sessions: sessions,
		Search:   searchService,
		Archiver: archiver,
		Webhooks: dispatcher,
	})
	defer service.Wait()

	go purgeExpiredTokens(ctx, pg)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ExportTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Roadmapper API listening on %s", cfg.Addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

func purgeExpiredTokens(ctx context.Context, pg *store.PostgresStore) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.PurgeExpiredTokens(ctx)
			if err != nil {
				log.Printf("token purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("purged %d expired tokens", n)
			}
		}
	}
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	pool := store.DefaultPoolConfig()
	if cfg.DBMaxOpen > 0 {
		pool.MaxOpenConns = cfg.DBMaxOpen
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

func newMigrateCmd() *cobra.Command {
	var migrations string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	cmd.PersistentFlags().StringVar(&migrations, "migrations", "", "migrations directory (overrides ROADMAPPER_MIGRATIONS_DIR)")

	withDB := func(run func(ctx context.Context, db *sql.DB, dir string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if migrations != "" {
				cfg.MigrationsDir = migrations
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return run(cmd.Context(), db, cfg.MigrationsDir)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *sql.DB, dir string) error {
			if err := store.ApplyMigrations(ctx, db, dir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		}),
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *sql.DB, dir string) error {
			n, err := store.RollbackMigrations(ctx, db, dir, steps)
			if err != nil {
				return err
			}
			fmt.Printf("rolled back %d migration(s)\n", n)
			return nil
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: withDB(func(ctx context.Context, db *sql.DB, dir string) error {
			items, err := store.MigrationStatus(ctx, db, dir)
			if err != nil {
				return err
			}
			for _, m := range items {
				state := "pending"
				if m.Applied {
					state = "applied"
				}
				fmt.Printf("%-8s %s\n", state, m.Version)
			}
			return nil
		}),
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
