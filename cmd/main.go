package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mdbridge/internal/api"
	"mdbridge/internal/config"
	"mdbridge/internal/extract"
	fileutil "mdbridge/internal/file"
	"mdbridge/internal/job"
)

const configPath = "config.yml"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := config.NewStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build configuration snapshot")
	}
	go watchReload(store)

	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("ensure data dir")
	}

	orchestrator := extract.New(store)
	jobManager := job.NewManager(orchestrator, job.Options{
		DataDir:           cfg.DataDir,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
	})
	if err := jobManager.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("could not restore persisted jobs")
	}

	router := setupRouter()
	api.NewAPI(jobManager, cfg.AllowedTypes, cfg.DataDir).RegisterRoutes(router)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	jobManager.SetBaseContext(baseCtx)

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, jobManager, shutdownTimeout)
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger())
	return r
}

// watchReload re-reads the config file on SIGHUP and swaps the snapshot.
// A reload that fails to parse or validate leaves the running snapshot
// untouched.
func watchReload(store *config.Store) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	for range hup {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Error().Err(err).Msg("config reload: read failed; keeping current snapshot")
			continue
		}
		if err := store.Replace(cfg); err != nil {
			log.Error().Err(err).Msg("config reload: rejected; keeping current snapshot")
			continue
		}
		log.Info().Msg("configuration reloaded")
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, jm *job.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !jm.WaitAll(ctx) {
		log.Warn().Msg("background jobs did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
