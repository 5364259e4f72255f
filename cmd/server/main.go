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

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/collab"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/config"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/handler"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/hub"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/registry"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/service"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/store"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/database"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting deliberation server")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	st, err := store.New(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	reg, err := registry.NewRedisRegistry(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	files, err := newStorage(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	roomSvc := service.NewRoomService(
		wsHub, st, reg,
		collab.StaticFacilitator{},
		collab.StaticSummarizer{},
		collab.TextExporter{},
		collab.LogPushSender{},
		files,
		cfg.Facilitation,
	)
	defer roomSvc.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.GinMiddleware(*logger))

	handler.NewWSHandler(wsHub, roomSvc, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(roomSvc, st, files, collab.TextExporter{}).RegisterRoutes(router)

	if cfg.Storage.Backend == "local" {
		router.Static(cfg.Storage.Local.URLBase, cfg.Storage.Local.BasePath)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("stopped")
}

func newStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Storage(context.Background(), cfg.S3)
	default:
		return storage.NewLocalStorage(cfg.Local)
	}
}
