package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailagent_server/config"
	"mailagent_server/internal/bootstrap"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Maximum time to wait for in-flight requests and jobs on shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env if present (local development).
	_ = godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg)

	// One dependency graph for every mode. The job queue is in-memory, so
	// api and worker must share it inside a single process.
	deps, cleanup, err := bootstrap.NewDependencies(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(cfg, deps, log)
	case "worker":
		runWorker(deps, log)
	case "all":
		worker := bootstrap.NewWorker(deps, log)
		go worker.Start()
		defer worker.Stop()
		runAPI(cfg, deps, log)
	default:
		log.Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(level).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().Timestamp().Logger()
}

func runAPI(cfg *config.Config, deps *bootstrap.Dependencies, log zerolog.Logger) {
	app := bootstrap.NewAPI(cfg, deps, log)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down api server")

		done := make(chan error, 1)
		go func() {
			done <- app.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("error shutting down")
			} else {
				log.Info().Msg("api server shut down gracefully")
			}
		case <-time.After(shutdownTimeout):
			log.Warn().Msg("api shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("starting api server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

func runWorker(deps *bootstrap.Dependencies, log zerolog.Logger) {
	worker := bootstrap.NewWorker(deps, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down worker")

		done := make(chan struct{})
		go func() {
			worker.Stop()
			close(done)
		}()

		select {
		case <-done:
			log.Info().Msg("worker shut down gracefully")
		case <-time.After(shutdownTimeout):
			log.Warn().Msg("worker shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	log.Info().Msg("starting worker")
	worker.Start()
}
