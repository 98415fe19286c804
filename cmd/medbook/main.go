package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	v1 "github.com/dmehra2102/prod-golang-projects/medbook/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/repository/postgres"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/storage"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/tracer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "medbook",
		Short:         "Medical appointment booking API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepTokensCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(_ *config.Config, log *zap.Logger, db *gorm.DB) error {
				return database.Migrate(db, log)
			})
		},
	}
}

func sweepTokensCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep-tokens",
		Short: "Delete refresh tokens that expired before now minus --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(_ *config.Config, log *zap.Logger, db *gorm.DB) error {
				n, err := postgres.NewRefreshTokenRepository(db).DeleteExpired(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				log.Info("expired refresh tokens deleted", zap.Int64("count", n))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "grace period after expiry")
	return cmd
}

func withDatabase(fn func(*config.Config, *zap.Logger, *gorm.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	return fn(cfg, log, db)
}

func runServer(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting medbook",
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
		zap.String("storage", cfg.Storage.Driver),
	)

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		return err
	}

	m := metrics.NewCollector(cfg.App.Name, prometheus.DefaultRegisterer)

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if migrate {
		if err := database.Migrate(db, log); err != nil {
			return err
		}
	}
	if err := database.RegisterMetrics(db, m); err != nil {
		return err
	}
	go database.SamplePoolStats(ctx, db, m, 15*time.Second)

	rawStore, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	store := storage.Instrument(rawStore, m)
	uploads := storage.NewValidator(cfg.Upload.MaxFileSize, cfg.Upload.AllowedExtensions)

	// Repositories
	users := postgres.NewUserRepository(db)
	tokens := postgres.NewRefreshTokenRepository(db)
	appts := postgres.NewAppointmentRepository(db)
	records := postgres.NewClinicalRecordRepository(db)
	reviews := postgres.NewReviewRepository(db)

	// Services
	auditSvc := service.NewAuditService(postgres.NewAuditRepository(db), m, log)
	jwtManager := auth.NewJWTManager(cfg.JWT)
	authSvc := service.NewAuthService(users, tokens, jwtManager, auditSvc, m, cfg.App.Name, log)
	userSvc := service.NewUserService(users, store, uploads, auditSvc, log)
	apptSvc := service.NewAppointmentService(appts, users, store, auditSvc, m, log)
	recordSvc := service.NewClinicalRecordService(records, appts, store, uploads, cfg.Upload.MaxFilesPerUpload, auditSvc, m, log)
	reviewSvc := service.NewReviewService(reviews, appts, users, auditSvc, m, log)

	globalLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)
	defer globalLimiter.Stop()
	authLimiter := middleware.PerMinute(cfg.RateLimit.AuthRequestsPerMinute)
	defer authLimiter.Stop()

	expose := !cfg.App.IsProduction()
	router := v1.NewRouter(v1.RouterDeps{
		Config:         cfg,
		Log:            log,
		Metrics:        m,
		Tokens:         jwtManager,
		GlobalLimiter:  globalLimiter,
		AuthLimiter:    authLimiter,
		Auth:           v1.NewAuthHandler(authSvc, log, expose),
		Users:          v1.NewUserHandler(userSvc, reviewSvc, log, expose),
		Appointments:   v1.NewAppointmentHandler(apptSvc, log, expose),
		Reviews:        v1.NewReviewHandler(reviewSvc, log, expose),
		ClinicalRecord: v1.NewClinicalRecordHandler(recordSvc, log, expose),
		Health:         v1.NewHealthHandler(log, cfg.App.Version, map[string]v1.Pinger{"database": database.NewChecker(db)}),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go sweepTokens(ctx, tokens, log, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	// Drain audit entries before the database handle closes.
	auditSvc.Shutdown()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown", zap.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}

type expiredTokenDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

func sweepTokens(ctx context.Context, repo expiredTokenDeleter, log *zap.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx, time.Now())
			if err != nil {
				log.Warn("sweeping refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("expired refresh tokens deleted", zap.Int64("count", n))
			}
		}
	}
}
