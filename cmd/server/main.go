package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Brownie44l1/digit-api/internal/cache"
	"github.com/Brownie44l1/digit-api/internal/config"
	"github.com/Brownie44l1/digit-api/internal/handlers"
	"github.com/Brownie44l1/digit-api/internal/logging"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/Brownie44l1/digit-api/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup (session, Redis, log flush) always runs.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	filter, err := preprocess.ParseFilter(cfg.ResampleFilter)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	root, err := projectRoot()
	if err != nil {
		logger.Error("failed to get working directory", zap.Error(err))
		return err
	}
	modelPath := resolvePath(root, cfg.ModelPath)
	metadataPath := resolvePath(root, cfg.MetadataPath)

	logger.Info("loading model", zap.String("model", modelPath), zap.String("metadata", metadataPath))
	modelServer, err := model.NewServer(modelPath, metadataPath, cfg.OnnxRuntimeLib)
	if err != nil {
		logger.Error("failed to initialize model server", zap.Error(err))
		return err
	}
	defer modelServer.Close()

	options := preprocess.DefaultOptions()
	options.Size = modelServer.Metadata.ImageSize
	options.Filter = filter
	options.MaxDimension = int(cfg.MaxImageDimension)

	namespace := cache.Namespace(modelServer.Digest, cfg.ResampleFilter)
	predictionCache, closeCache := initCache(cfg, namespace, logger)
	defer closeCache()

	uc := usecase.NewPredictionUseCase(modelServer, predictionCache, options, cfg.MaxConcurrentInferences, logger)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := handlers.NewHandler(uc, handlers.ModelInfo{
		Path:    modelPath,
		Classes: len(modelServer.Metadata.Classes),
	}, cfg.RequestTimeout, logger)
	router := handlers.NewRouter(handler, cfg.MaxRequestBodySize, logger)

	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting",
		zap.String("addr", cfg.ServerAddress()),
		zap.Strings("classes", modelServer.Metadata.Classes),
		zap.Int64("max_concurrent_inferences", cfg.MaxConcurrentInferences),
		zap.Int64("max_image_dimension", cfg.MaxImageDimension),
		zap.Bool("cache_enabled", cfg.CacheEnabled()))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	logger.Info("server exited")
	return nil
}

// initCache returns a Redis-backed cache when REDIS_ADDR is set. An unreachable Redis
// only disables caching; it never blocks startup.
func initCache(cfg *config.Config, namespace string, logger *zap.Logger) (cache.PredictionCache, func()) {
	if !cfg.CacheEnabled() {
		return cache.Nop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, prediction cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return cache.Nop{}, func() {}
	}

	logger.Info("prediction cache enabled",
		zap.String("addr", cfg.RedisAddr),
		zap.String("namespace", namespace),
		zap.Duration("ttl", cfg.CacheTTL))
	return cache.NewRedisCache(client, cfg.CacheTTL, namespace, logger), func() { _ = client.Close() }
}

// projectRoot is the working directory, or the repository root when run from cmd/server.
func projectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if filepath.Base(wd) == "server" {
		wd = filepath.Join(wd, "../..")
	}
	return wd, nil
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
