package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"frametruth/internal/acl"
	"frametruth/internal/acl/store/grant"
	"frametruth/internal/audit"
	"frametruth/internal/audit/chain"
	"frametruth/internal/audit/publishers/ops"
	"frametruth/internal/audit/store/event"
	"frametruth/internal/auth"
	"frametruth/internal/auth/store/session"
	"frametruth/internal/auth/store/user"
	"frametruth/internal/detection"
	"frametruth/internal/detection/store/finding"
	"frametruth/internal/file"
	"frametruth/internal/file/store/meta"
	"frametruth/internal/jobs"
	"frametruth/internal/platform/config"
	"frametruth/internal/platform/database"
	"frametruth/internal/platform/httpserver"
	"frametruth/internal/platform/logger"
	"frametruth/internal/platform/metrics"
	redisplatform "frametruth/internal/platform/redis"
	"frametruth/internal/storage"
	"frametruth/internal/token"
	httptransport "frametruth/internal/transport/http"
)

// main wires stores, services and the HTTP edge together. Business rules
// live in the internal services; this file only composes them.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	if cfg.JWTSigningKey == "" {
		log.Error("JWT_SIGNING_KEY is not set; refusing to start without a token signing key")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenAndMigrate(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	chainLog, err := chain.New(cfg.AuditLogDir, chain.WithLogger(log), chain.WithMetrics(m))
	if err != nil {
		log.Error("audit chain directory unavailable", "error", err)
		os.Exit(1)
	}

	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	var opsPublisher *ops.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		opsPublisher, err = ops.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, ops.WithLogger(log))
		if err != nil {
			log.Error("kafka publisher unavailable", "error", err)
			os.Exit(1)
		}
		defer opsPublisher.Close()
		auditOpts = append(auditOpts, audit.WithOpsPublisher(opsPublisher))
	}

	auditor, err := audit.New(event.NewPostgres(db), chainLog, auditOpts...)
	if err != nil {
		log.Error("audit service init failed", "error", err)
		os.Exit(1)
	}

	files := meta.NewPostgres(db)
	access, err := acl.New(grant.NewPostgres(db), files, acl.WithLogger(log), acl.WithMetrics(m))
	if err != nil {
		log.Error("access control init failed", "error", err)
		os.Exit(1)
	}

	tokens, err := token.New(cfg.JWTSigningKey, "frametruth", cfg.TokenTTL)
	if err != nil {
		log.Error("token service init failed", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it sessions live in process memory and die
	// with the process.
	var sessions auth.SessionStore = session.NewMemory()
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = session.NewRedis(redisClient.Client)
	}

	authService, err := auth.New(user.NewPostgres(db), sessions, tokens,
		auth.WithLogger(log), auth.WithRecorder(auditor))
	if err != nil {
		log.Error("auth service init failed", "error", err)
		os.Exit(1)
	}

	var analyzer detection.Analyzer = detection.NoopAnalyzer{}
	if cfg.DetectorURL != "" {
		analyzer = detection.NewRemoteAnalyzer(cfg.DetectorURL)
	}
	detector, err := detection.New(analyzer, finding.NewPostgres(db), detection.WithLogger(log))
	if err != nil {
		log.Error("detection service init failed", "error", err)
		os.Exit(1)
	}

	blobs, err := storage.NewFilesystem(cfg.EvidenceRoot)
	if err != nil {
		log.Error("evidence store unavailable", "error", err)
		os.Exit(1)
	}

	gateway, err := file.NewGateway(files, blobs, access, auditor,
		file.WithLogger(log), file.WithMetrics(m), file.WithDetections(detector), file.WithDB(db))
	if err != nil {
		log.Error("file gateway init failed", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(
		httptransport.NewAuthenticator(authService, log),
		httptransport.NewAuthHandler(authService, log),
		httptransport.NewFileHandler(gateway, log),
		httptransport.NewAuditHandler(auditor, gateway, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	sweeper := jobs.New(access, auditor, authService,
		jobs.WithLogger(log),
		jobs.WithInterval(cfg.SweepInterval),
		jobs.WithMirrorRetention(time.Duration(cfg.RetentionDays)*24*time.Hour))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting frametruth", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
