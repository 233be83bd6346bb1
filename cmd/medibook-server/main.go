package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medibook/medibook/internal/config"
	"github.com/medibook/medibook/internal/domain/appointment"
	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/domain/identity"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/cache"
	"github.com/medibook/medibook/internal/platform/db"
	"github.com/medibook/medibook/internal/platform/metrics"
	"github.com/medibook/medibook/internal/platform/middleware"
	"github.com/medibook/medibook/internal/platform/notification"
	"github.com/medibook/medibook/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medibook-server",
		Short: "Doctor appointment booking server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
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

			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(os.Stdout, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationFiles(dir)), pool.Close, nil
}

// migrationFiles returns the embedded migrations unless dir is set.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create the administrator named by ADMIN_NAME, ADMIN_EMAIL and ADMIN_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
				return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required")
			}
			name := cfg.AdminName
			if name == "" {
				name = "Administrator"
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			hash, err := auth.HashPassword(cfg.AdminPassword)
			if err != nil {
				return err
			}
			svc := identity.NewService(identity.NewUserRepoPG(pool), doctor.NewRepoPG(pool), db.NewPoolTx(pool))
			created, err := svc.SeedAdmin(ctx, name, cfg.AdminEmail, hash)
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("Administrator %s created.\n", identity.NormalizeEmail(cfg.AdminEmail))
			} else {
				fmt.Printf("Administrator %s already exists.\n", identity.NormalizeEmail(cfg.AdminEmail))
			}
			return nil
		},
	})

	return cmd
}

// newLogger builds the process logger. Development gets human-readable
// console output; an unknown level falls back to info.
func newLogger(w io.Writer, env, level string) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// newSender selects the notification transport and guards it with a circuit
// breaker. The returned closer releases transport resources.
func newSender(cfg *config.Config, logger zerolog.Logger) (notification.Sender, func() error, error) {
	var (
		sender notification.Sender
		closer = func() error { return nil }
	)
	switch cfg.NotifyTransport {
	case config.TransportSMTP:
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	case config.TransportAMQP:
		s, err := notification.NewAMQPSender(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, err
		}
		sender, closer = s, s.Close
	case config.TransportLog, "":
		return notification.NewLogSender(logger), closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown notification transport %q", cfg.NotifyTransport)
	}
	return notification.NewBreakerSender(cfg.NotifyTransport, sender, 30*time.Second, logger), closer, nil
}

func newCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func()) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set, directory cache disabled")
		return cache.Noop{}, func() {}
	}
	rc, err := cache.NewRedis(ctx, cfg.RedisURL, "medibook:")
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, directory cache disabled")
		return cache.Noop{}, func() {}
	}
	logger.Info().Msg("connected to redis")
	return rc, func() { rc.Close() }
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logger
	logger := newLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	tx := db.NewPoolTx(pool)

	directoryCache, closeCache := newCache(ctx, cfg, logger)
	defer closeCache()

	m := metrics.New()

	// Notifications
	sender, closeSender, err := newSender(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up notification transport")
	}
	defer closeSender() //nolint:errcheck
	dispatcher := notification.NewDispatcher(sender, notification.DispatcherConfig{
		Workers:     cfg.NotifyWorkers,
		QueueSize:   cfg.NotifyQueueSize,
		SendTimeout: cfg.NotifySendTimeout,
	}, logger, m)

	// Domain services
	doctorRepo := doctor.NewRepoPG(pool)
	doctorSvc := doctor.NewService(doctorRepo,
		doctor.WithCache(directoryCache, cfg.CacheTTL),
		doctor.WithMetrics(m),
		doctor.WithLogger(logger),
	)
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool), doctorRepo, tx,
		identity.WithDirectoryInvalidator(doctorSvc),
		identity.WithLogger(logger),
	)
	notifier := appointment.NewMailNotifier(identitySvc, dispatcher, notification.NewTemplateEngine(), logger)
	appointmentSvc := appointment.NewService(appointment.NewRepoPG(pool), doctorRepo, tx, notifier,
		appointment.WithLocation(loc),
		appointment.WithMetrics(m),
		appointment.WithLogger(logger),
		appointment.WithDirectoryInvalidator(doctorSvc),
	)

	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(m.Middleware())

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		SigningKey: []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	// API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	identity.NewHandler(identitySvc, tokens).RegisterRoutes(apiV1)
	doctor.NewHandler(doctorSvc).RegisterRoutes(apiV1)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("notification queue not drained")
	}
	logger.Info().Msg("server stopped")
	return nil
}
