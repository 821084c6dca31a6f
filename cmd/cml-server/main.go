package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cmlcare/cml/internal/config"
	"github.com/cmlcare/cml/internal/domain/alerting"
	"github.com/cmlcare/cml/internal/domain/labs"
	"github.com/cmlcare/cml/internal/domain/medication"
	"github.com/cmlcare/cml/internal/platform/auth"
	"github.com/cmlcare/cml/internal/platform/cache"
	"github.com/cmlcare/cml/internal/platform/db"
	"github.com/cmlcare/cml/internal/platform/events"
	"github.com/cmlcare/cml/internal/platform/metrics"
	"github.com/cmlcare/cml/internal/platform/middleware"
	"github.com/cmlcare/cml/migrations"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cml-server",
		Short:        "CML response monitoring API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(alertsCmd())
	return root
}

func newLogger(env string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	log.Logger = logger
	return logger
}

// migrationsFS returns the embedded migrations unless dir points elsewhere.
func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.Files
	}
	return os.DirFS(dir)
}

func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			count, err := db.NewMigrator(pool, migrationsFS(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Alert maintenance",
	}

	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Re-run alert generation over recent BCR-ABL1 results",
		RunE: func(cmd *cobra.Command, args []string) error {
			months, _ := cmd.Flags().GetInt("months")
			ctx := cmd.Context()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			logger := newLogger(cfg.Env)
			since := cfg.BackfillSince(time.Now())
			if months > 0 {
				since = time.Now().AddDate(0, -months, 0)
			}

			gen := alerting.NewGenerator(alerting.NewAlertRepoPG(pool), cfg.AlertDedupWindow, logger)
			b := alerting.NewBackfiller(gen, alerting.NewObservationSourcePG(pool), logger)
			res, err := b.Run(ctx, since)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d created=%d failed=%d\n", res.Processed, res.Created, res.Failed)
			return nil
		},
	}
	backfill.Flags().Int("months", 0, "Look-back window in months (default BACKFILL_WINDOW_MONTHS)")
	cmd.AddCommand(backfill)

	return cmd
}

// services groups the HTTP handlers and the dependencies /health checks.
type services struct {
	alerts      *alerting.Handler
	labs        *labs.Handler
	medications *medication.Handler
	health      map[string]db.Pinger
}

func buildServices(cfg *config.Config, pool *pgxpool.Pool, medCache cache.Cache, publisher alerting.Publisher, logger zerolog.Logger) *services {
	alertRepo := alerting.NewAlertRepoPG(pool)
	var opts []alerting.GeneratorOption
	if publisher != nil {
		opts = append(opts, alerting.WithPublisher(publisher))
	}
	gen := alerting.NewGenerator(alertRepo, cfg.AlertDedupWindow, logger, opts...)
	backfiller := alerting.NewBackfiller(gen, alerting.NewObservationSourcePG(pool), logger)

	labSvc := labs.NewService(labs.NewPatientRepoPG(pool), labs.NewTestResultRepoPG(pool), gen, logger)
	medSvc := medication.NewService(medication.NewRepoPG(pool), medCache, cfg.MedicationCacheTTL, logger)

	return &services{
		alerts:      alerting.NewHandler(alerting.NewService(alertRepo, backfiller, cfg.BackfillWindowMonths)),
		labs:        labs.NewHandler(labSvc),
		medications: medication.NewHandler(medSvc),
		health:      map[string]db.Pinger{},
	}
}

func newEcho(cfg *config.Config, svcs *services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	e.GET("/health", db.HealthHandler(svcs.health))
	e.GET("/metrics", metrics.Handler())

	jwt := auth.JWTMiddleware(auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)})
	authMW := jwt
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwt)
	}

	apiV1 := e.Group("/api/v1", authMW, middleware.Audit(logger))
	svcs.alerts.RegisterRoutes(apiV1)
	svcs.labs.RegisterRoutes(apiV1)
	svcs.medications.RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	health := map[string]db.Pinger{"postgres": pool}

	// Medication cache
	var medCache cache.Cache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		r := cache.NewRedis(rdb, "cml:")
		medCache = r
		health["redis"] = r
		logger.Info().Msg("medication cache backed by redis")
	} else {
		mem := cache.NewMemory()
		mem.StartCleanup(ctx, time.Minute)
		medCache = mem
	}

	// Alert events
	var publisher alerting.Publisher
	if cfg.NatsURL != "" {
		p, err := events.Connect(cfg.NatsURL, logger)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		health["nats"] = p
		logger.Info().Msg("publishing alert events to nats")
	}

	svcs := buildServices(cfg, pool, medCache, publisher, logger)
	svcs.health = health
	e := newEcho(cfg, svcs, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
