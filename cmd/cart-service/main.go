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

	"github.com/fjod/cartsync/internal/cache"
	"github.com/fjod/cartsync/internal/cart"
	"github.com/fjod/cartsync/internal/catalog"
	"github.com/fjod/cartsync/internal/config"
	cartgrpc "github.com/fjod/cartsync/internal/grpc"
	carthttp "github.com/fjod/cartsync/internal/http"
	"github.com/fjod/cartsync/internal/logger"
	"github.com/fjod/cartsync/internal/notify"
	"github.com/fjod/cartsync/internal/poller"
	"github.com/fjod/cartsync/internal/repository"
	"github.com/fjod/cartsync/pkg/circuitbreaker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := cartgrpc.NewHealthChecker(15*time.Second, log)

	// Product catalog
	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal("failed to open catalog", zap.Error(err))
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		log.Fatal("failed to migrate catalog", zap.Error(err))
	}

	// Remote cart store
	store, closeStore, err := openStore(ctx, cfg, health, log)
	if err != nil {
		log.Fatal("failed to open cart store", zap.String("store", cfg.RemoteStore), zap.Error(err))
	}
	defer closeStore()
	store = repository.NewBreakerStore(store, circuitbreaker.DefaultConfig("cart-store"), log)

	// Local storage
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	localStorage := cache.NewRedisCache(redisClient)
	health.AddProbe("redis", localStorage.Ping)

	// Notifications leave the process only when Kafka is configured.
	var publisher notify.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kp := notify.NewKafkaPublisher(log, cfg.KafkaBrokers...)
		defer kp.Close()
		publisher = kp
	}

	manager := cart.NewManager(products, store, localStorage, publisher, log, cfg.RequestTimeout)
	go manager.RunCleanup(ctx, cfg.SessionSweepInterval, cfg.SessionIdleTTL)

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(store, localStorage, manager, log, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Info("checkout poller started", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	go health.Run(ctx)

	// gRPC health
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	grpcServer := cartgrpc.NewServer(health)
	go func() {
		log.Info("grpc health listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server stopped", zap.Error(err))
		}
	}()

	// HTTP API
	router := carthttp.NewRouter(
		carthttp.NewCartHandler(manager, cfg.RequestTimeout, log),
		carthttp.NewProductHandler(products, cfg.RequestTimeout),
		log,
		cfg.RequestTimeout,
	)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info("cart service starting", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.RemoteStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	log.Info("shutting down cart service")
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	waited := make(chan struct{})
	go func() {
		manager.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		log.Warn("remote cart calls still running at shutdown")
	}
	log.Info("cart service stopped")
}

// openStore connects the configured remote store and registers its health probe.
func openStore(ctx context.Context, cfg *config.Config, health *cartgrpc.HealthChecker, log *zap.Logger) (repository.CartStore, func(), error) {
	switch cfg.RemoteStore {
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		db, err := repository.ConnectMongoDB(connectCtx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewMongoRepository(db)
		if err := repository.EnsureIndexes(connectCtx, store); err != nil {
			return nil, nil, err
		}
		health.AddProbe("mongo", repository.MongoPinger(db))
		log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))
		return store, func() { _ = db.Client().Disconnect(context.Background()) }, nil

	case config.StorePostgres:
		creds := &repository.Credentials{
			Host:              cfg.DBHost,
			Port:              cfg.DBPort,
			User:              cfg.DBUser,
			Password:          cfg.DBPassword,
			DBName:            cfg.DBName,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		store, err := repository.NewPostgresRepository(creds)
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(creds); err != nil {
			store.Close()
			return nil, nil, err
		}
		health.AddProbe("postgres", store.Ping)
		log.Info("connected to Postgres", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
		return store, func() { _ = store.Close() }, nil

	case config.StoreMemory:
		store := repository.NewMemoryStore()
		log.Warn("using in-memory cart store, carts are lost on restart")
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown remote store %q", cfg.RemoteStore)
	}
}
