package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/archive"
	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/config"
	"github.com/Tyrowin/tourneychat/internal/fanout"
	"github.com/Tyrowin/tourneychat/internal/history"
	"github.com/Tyrowin/tourneychat/internal/identity"
	"github.com/Tyrowin/tourneychat/internal/logging"
	"github.com/Tyrowin/tourneychat/internal/registry"
	"github.com/Tyrowin/tourneychat/internal/server"
	"github.com/Tyrowin/tourneychat/internal/store"
	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

const serviceName = "tourneychat"

var version = "dev"

// backends are the durable collaborators, Postgres-backed when a database
// URL is configured and in-memory otherwise.
type backends struct {
	authority registry.Authority
	log       store.Log
	ready     func(ctx context.Context) error
	close     func()
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory registry and message log")
		authority := registry.NewMemory()
		if cfg.SeedFile != "" {
			n, err := registry.LoadSeed(cfg.SeedFile, authority)
			if err != nil {
				return nil, err
			}
			logger.Info("seeded in-memory registry", zap.String("file", cfg.SeedFile), zap.Int("tournaments", n))
		}
		return &backends{
			authority: authority,
			log:       store.NewMemory(),
			close:     func() {},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("connected to postgres")

	pg := store.NewPostgres(pool)
	return &backends{
		authority: registry.NewPostgres(pool),
		log:       pg,
		ready:     pg.Ping,
		close:     pool.Close,
	}, nil
}

func main() {
	_ = godotenv.Load()
	logger := logging.InitFromEnv()

	logger.Info("starting tourneychat server", zap.String("version", version))
	if err := run(logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped")
	_ = logger.Sync()
}

// run wires the service and blocks until a shutdown signal or a server
// failure. Every resource it opens is released before it returns.
func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(serviceName, version)
	if err != nil {
		logger.Warn("tracing init failed; continuing without traces", zap.Error(err))
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, startupCancel := context.WithTimeout(ctx, 15*time.Second)
	be, err := openBackends(startupCtx, cfg, logger)
	startupCancel()
	if err != nil {
		return fmt.Errorf("open backends: %w", err)
	}
	defer be.close()

	manager := chat.NewManager(chat.Options{
		BufferCapacity: cfg.Chat.BufferCapacity,
		MaxTextLength:  cfg.Chat.MaxTextLength,
		TombstoneTTL:   cfg.Chat.TombstoneTTL,
		Logger:         logger,
	})

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	writer := archive.NewWriter(be.log, archive.Options{
		QueueSize: cfg.Archive.QueueSize,
		Workers:   cfg.Archive.Workers,
		Logger:    logger,
	})
	writer.Start(workCtx)
	manager.AddSink(writer)
	defer func() {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer drainCancel()
		if err := writer.Close(drainCtx); err != nil {
			logger.Warn("archive drain incomplete", zap.Error(err))
		}
	}()

	if cfg.RedisURL != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 10*time.Second)
		rdb, err := fanout.NewClient(redisCtx, cfg.RedisURL)
		redisCancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}

		bus := fanout.NewBus(rdb, cfg.RedisChannel, manager, logger)
		manager.AddSink(bus)
		busCtx, stopBus := context.WithCancel(workCtx)
		busDone := make(chan struct{})
		go func() {
			defer close(busDone)
			if err := bus.Run(busCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("fan-out bus stopped", zap.Error(err))
			}
		}()
		defer func() {
			stopBus()
			<-busDone
			if err := rdb.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		}()
		logger.Info("cross-instance fan-out enabled",
			zap.String("channel", cfg.RedisChannel),
			zap.String("instance_id", bus.InstanceID()))
	}

	sweeper := chat.NewSweeper(manager, cfg.Chat.SweepInterval)
	go sweeper.Run(workCtx)

	gw := server.NewGateway(*cfg, server.Deps{
		Manager:   manager,
		Authority: be.authority,
		Verifier:  identity.NewJWTManager(identity.JWTConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}),
		History: history.NewService(be.authority, be.log, history.Options{
			Limit:  cfg.History.Limit,
			Grace:  cfg.History.Grace,
			Logger: logger,
		}),
		Logger: logger,
		Ready:  be.ready,
	})
	gw.StartHub()

	httpServer := server.CreateServer(cfg.Port, gw.Handler())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := gw.Hub().Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("hub shutdown", zap.Error(err))
	}
	return runErr
}
