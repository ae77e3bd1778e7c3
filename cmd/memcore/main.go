// memcore daemon entry point.
//
// Usage:
//
//	memcore serve                      # run the memory core
//	memcore serve --config config.yaml # with a config file
//	memcore migrate                    # create schema and buckets, then exit
//	memcore version                    # print version info
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mindwell-ai/memcore/config"
	"github.com/mindwell-ai/memcore/internal/metrics"
	"github.com/mindwell-ai/memcore/memory"
	"github.com/mindwell-ai/memcore/reflection"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting memcore",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	store, err := memory.Open(cfg.Storage.Driver, cfg.Storage.DSN, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.InitializeBuckets(ctx); err != nil {
		logger.Fatal("failed to initialize buckets", zap.Error(err))
	}

	collector := metrics.NewCollector("memcore", logger)

	decay := memory.NewDecayScheduler(store, memory.DecayConfig{
		Interval: cfg.Decay.Interval,
		Timeout:  cfg.Decay.Timeout,
		OnResult: func(r memory.DecayResult) {
			collector.RecordDecayRun(r.Decayed, r.Deleted)
		},
	}, logger)
	decay.Start(ctx)
	defer decay.Stop()

	engine := reflection.NewEngine(store, store, store, reflection.EngineConfig{
		Timeout: cfg.Reflection.Timeout,
	}, logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	queue := reflection.NewRedisQueue(rdb, cfg.Redis.KeyPrefix)
	scheduler := reflection.NewScheduler(queue, logger)

	go drainReflectionQueue(ctx, scheduler, queue, engine, collector, logger)

	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
}

// drainReflectionQueue periodically runs due scheduled reflection
// passes.
func drainReflectionQueue(ctx context.Context, scheduler *reflection.Scheduler, queue reflection.Queue, engine *reflection.Engine, collector *metrics.Collector, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ran, err := scheduler.RunDue(ctx, engine)
			if err != nil {
				logger.Warn("reflection queue drain failed", zap.Error(err))
				continue
			}
			for i := 0; i < ran; i++ {
				collector.RecordReflection()
			}
			if depth, err := queue.Len(ctx); err == nil {
				collector.SetQueueDepth(depth)
			}
		case <-ctx.Done():
			return
		}
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	store, err := memory.Open(cfg.Storage.Driver, cfg.Storage.DSN, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	if err := store.InitializeBuckets(context.Background()); err != nil {
		logger.Fatal("failed to initialize buckets", zap.Error(err))
	}

	logger.Info("migration complete",
		zap.String("driver", cfg.Storage.Driver),
		zap.Strings("buckets", memory.CanonicalBucketNames()))
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func printVersion() {
	fmt.Printf("memcore %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Println(`memcore - decaying multi-bucket memory core

Usage:
  memcore serve [--config config.yaml]   Run the memory core
  memcore migrate [--config config.yaml] Create schema and buckets
  memcore version                        Print version info`)
}
