package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-tracking/internal/auth"
	"github.com/example/ride-tracking/internal/config"
	"github.com/example/ride-tracking/internal/geo"
	httpapi "github.com/example/ride-tracking/internal/http"
	"github.com/example/ride-tracking/internal/ingest"
	"github.com/example/ride-tracking/internal/locks"
	"github.com/example/ride-tracking/internal/logging"
	"github.com/example/ride-tracking/internal/notify"
	"github.com/example/ride-tracking/internal/patrol"
	"github.com/example/ride-tracking/internal/payments"
	"github.com/example/ride-tracking/internal/rides"
	"github.com/example/ride-tracking/internal/routing"
	"github.com/example/ride-tracking/internal/scheduler"
	"github.com/example/ride-tracking/internal/storage"
	"github.com/example/ride-tracking/internal/tracking"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("server", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger)
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("no PG_DSN configured, using in-memory store")
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	// the mirror itself is fed by cmd/consumer; the server only reads it
	var redisGeo *geo.RedisVehicles
	if cfg.RedisAddr != "" {
		redisGeo = geo.NewRedisVehicles(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer redisGeo.Close()
	}

	arb := locks.NewArbiter(cfg.LockTTL)
	wsreg := notify.NewWSRegistry(logger)

	engine := patrol.NewEngine(store, store, arb, routing.NewOSRMClient(cfg.OSRMEndpoint), logger)
	engine.BBox = geo.BBox{MinLat: cfg.PatrolBBox[0], MinLon: cfg.PatrolBBox[1], MaxLat: cfg.PatrolBBox[2], MaxLon: cfg.PatrolBBox[3]}
	engine.StepMin = cfg.PatrolStepMin
	engine.StepMax = cfg.PatrolStepMax
	engine.MoveProb = cfg.PatrolMoveProb
	if producer != nil {
		engine.Publish = producer
	}

	tracker := tracking.New(store, store, logger)
	tracker.MinMoveMeters = cfg.MinMoveMeters
	tracker.MaxMoveMeters = cfg.MaxMoveMeters

	svc := rides.NewService(store, logger)
	svc.Notify = wsreg
	svc.Patrol = engine
	if os.Getenv("STRIPE_API_KEY") != "" {
		svc.Payments = payments.NewStripeClient()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(logger)
	sched.Every(ctx, cfg.TrackerInterval, tracker)
	sched.Every(ctx, cfg.PatrolInterval, engine)

	authSvc := auth.NewService(cfg.JWTSecret)
	api := httpapi.NewServer(svc, arb, store, authSvc, wsreg, logger)
	if producer != nil {
		api.Events = producer
	}
	if redisGeo != nil {
		api.Nearby = redisGeo
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("ride-tracking listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	sched.Wait()
}

// runMigrations applies the SQL files under migrations/ in name order.
func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("migration db open error", "error", err)
		return
	}
	defer db.Close()
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		logger.Error("migration glob error", "error", err)
		return
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			logger.Error("migration read error", "file", f, "error", err)
			continue
		}
		if _, err := db.Exec(string(b)); err != nil {
			logger.Error("migration exec error", "file", f, "error", err)
			continue
		}
		logger.Info("migration applied", "file", f)
	}
}
