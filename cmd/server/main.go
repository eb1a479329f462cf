package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-checkin/internal/config"
	"github.com/iliyamo/event-checkin/internal/database"
	"github.com/iliyamo/event-checkin/internal/logger"
	"github.com/iliyamo/event-checkin/internal/notify"
	"github.com/iliyamo/event-checkin/internal/queue"
	"github.com/iliyamo/event-checkin/internal/repository"
	"github.com/iliyamo/event-checkin/internal/router"
	"github.com/iliyamo/event-checkin/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load() // a missing .env is fine outside development

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.NewRegistrations(store, newNotifier(cfg, zl), zl,
		service.WithNotifyTimeout(cfg.NotifyTimeout),
		service.WithPublicBaseURL(cfg.PublicBaseURL),
	)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	} else {
		zl.Warn("redis unavailable, rate limiting and caching disabled")
	}

	e := router.New(router.Deps{
		Service:   svc,
		Log:       zl,
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver), zap.String("notify", cfg.NotifyMode))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Queue.ConsumerEnabled {
		consumer := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.Name,
			notify.NewMailer(cfg.SMTP, zl), cfg.NotifyTimeout, zl)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(sctx)
		svc.Wait()
		return err
	})
	return g.Wait()
}

// openStore connects the configured backend.  The returned func releases
// its connections.
func openStore(ctx context.Context, cfg config.Config, zl *zap.Logger) (repository.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		zl.Info("mysql ready", zap.String("host", cfg.DB.Host), zap.String("db", cfg.DB.Name))
		return repository.NewMySQLStore(db), func() { db.Close() }, nil

	case config.DriverMongo:
		mdb, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mdb.Client().Disconnect(dctx)
		}
		st := repository.NewMongoStore(mdb, cfg.Mongo.Transactions)
		if err := st.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		zl.Info("mongo ready", zap.String("db", cfg.Mongo.Database), zap.Bool("transactions", cfg.Mongo.Transactions))
		return st, closeFn, nil
	}
	zl.Warn("using in-memory store, data is lost on restart")
	return repository.NewMemoryStore(), func() {}, nil
}

func newNotifier(cfg config.Config, zl *zap.Logger) notify.Notifier {
	switch cfg.NotifyMode {
	case config.NotifySMTP:
		return notify.NewMailer(cfg.SMTP, zl)
	case config.NotifyQueue:
		return queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Name, zl)
	}
	return notify.NewLogNotifier(zl)
}
