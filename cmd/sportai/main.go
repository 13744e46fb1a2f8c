package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sportai.io/internal/audit"
	"sportai.io/internal/auth"
	"sportai.io/internal/config"
	"sportai.io/internal/facility"
	"sportai.io/internal/httpapi"
	"sportai.io/internal/license"
	"sportai.io/internal/migrate"
	"sportai.io/internal/obs"
	"sportai.io/internal/session"
	"sportai.io/internal/store/sqldb"
	"sportai.io/internal/stream"
	"sportai.io/internal/tools"
)

var version = "3.0.0"

const (
	healthInterval = time.Minute
	purgeInterval  = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		obs.Logger().Fatal("sportai stopped", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("SPORTAI_ENV_FILE"))
	if err != nil {
		return err
	}
	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)
	obs.Init()

	db, err := sqldb.Open(cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := migrate.NewManager(db).Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	hub := stream.New()
	auditLog := audit.NewLog(cfg.Path("audit_logs"),
		audit.WithMirror(sqldb.NewAuditMirror(db)),
		audit.WithMirror(hub),
	)
	fac, err := facility.Open(cfg.Path("configurations"), facility.WithAuditLog(auditLog))
	if err != nil {
		return err
	}
	obs.InitBuildInfo(version, fac.ID())

	salt, err := auth.LoadOrCreateSalt(cfg.Path(".salt"))
	if err != nil {
		return err
	}
	hasher, err := auth.NewHasher(salt)
	if err != nil {
		return err
	}

	var users auth.UserStore = auth.NewFileStore(cfg.Path("database"), fac.ID())
	if cfg.UserStore == "sql" {
		users = sqldb.NewUserStore(db)
	}

	sessions, closeSessions, err := openSessions(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	svc, err := auth.NewService(ctx, users, hasher,
		auth.WithSessionStore(sessions),
		auth.WithSessionTimeout(cfg.SessionTimeout),
		auth.WithTokenSecret(cfg.SecretKey),
		auth.WithAuditLog(auditLog),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	go purgeSessions(ctx, svc)

	lic := license.NewManager(cfg.Path("license.key"), fac)
	health := httpapi.NewHealthServer(lic)
	go health.Run(ctx, healthInterval)

	api := httpapi.New(httpapi.Deps{
		Auth:     svc,
		Facility: fac,
		License:  lic,
		Tools:    tools.NewLoader(tools.Builtin()),
		Audit:    auditLog,
		Health:   health,
		Stream:   hub,
		Ready:    httpapi.ReadyProbe{DB: db.DB},
		Version:  version,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version), zap.String("facility_id", fac.ID()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	grpcSrv := httpapi.NewGRPCServer(health)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("stopped")
	return nil
}

// openSessions picks Redis when REDIS_URL is set, the sessions table when users live in
// SQL, and the in-process map otherwise.
func openSessions(ctx context.Context, cfg config.Config, db *sqldb.DB) (session.Store, func(), error) {
	switch {
	case cfg.RedisURL != "":
		rs, err := session.OpenRedisStore(ctx, cfg.RedisURL, cfg.SessionTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("redis sessions: %w", err)
		}
		return rs, func() { _ = rs.Close() }, nil
	case cfg.UserStore == "sql":
		return sqldb.NewSessionStore(db, cfg.SessionTimeout), func() {}, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}

// purgeSessions drops sessions that timed out more than session.PurgeGrace ago.
// Each one is audited as SESSION_TIMEOUT by the service.
func purgeSessions(ctx context.Context, svc *auth.Service) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				obs.Logger().Warn("purge sessions", zap.Error(err))
			}
			if n > 0 {
				obs.Logger().Info("purged expired sessions", zap.Int("count", n))
			}
		}
	}
}
