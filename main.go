package main

import (
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"calllog_server/config"
	"calllog_server/internal/bootstrap"
	"calllog_server/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
	triggerLimit    = 30               // refresh/rebuild requests per client per minute
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "calllog-" + *mode,
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(deps, bootstrap.APIOptions{PublishEvents: true, TriggerLimit: triggerLimit}, nil)
	case "worker":
		runWorker(deps)
	case "all":
		// one process, one refresh queue: the API calls the engine directly
		w := bootstrap.NewWorker(deps)
		go w.Start()
		runAPI(deps, bootstrap.APIOptions{TriggerLimit: triggerLimit}, w)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(deps *bootstrap.Dependencies, opts bootstrap.APIOptions, w *bootstrap.Worker) {
	app, stopAPI := bootstrap.NewAPI(deps, opts)
	defer stopAPI()

	var shutdown sync.WaitGroup
	shutdown.Add(1)

	// Graceful shutdown with timeout
	go func() {
		defer shutdown.Done()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Error shutting down: %v", err)
		} else {
			logger.Info("API server shut down gracefully")
		}

		if w != nil {
			stopWorker(w)
		}
	}()

	addr := ":" + deps.Config.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
	shutdown.Wait()
}

func runWorker(deps *bootstrap.Dependencies) {
	w := bootstrap.NewWorker(deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		<-sigChan
		stopWorker(w)
		close(stopped)
	}()

	logger.Info("Starting worker...")
	w.Start()
	<-stopped
}

func stopWorker(w *bootstrap.Worker) {
	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out, forcing exit")
		os.Exit(1)
	}
}
