// cmd/api/main.go

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nexus-community/match-engine/internal/common/database"
	"github.com/nexus-community/match-engine/internal/config"
	"github.com/nexus-community/match-engine/internal/matching"
	"github.com/nexus-community/match-engine/internal/tenant"
)

func main() {
	// .env is a local-development convenience; deployments set real env vars.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("invalid configuration: " + err.Error())
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to postgres")

	// Redis is optional: without it every query reads scores from postgres.
	redisClient, err := database.NewRedisClientFromURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, running without snapshot cache", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		logger.Info("connected to redis")
	}

	repo := matching.NewPostgresRepository(db)
	cache := matching.NewMatchCache(repo, redisClient, cfg.Matching.CacheTTL, logger)
	engine := matching.NewScoreEngine(cfg.Matching, logger)
	classifier := matching.NewClassifier(cfg.Matching)
	prefs := matching.NewPreferencesStore(repo, cfg.Matching, logger)
	recorder := matching.NewRecorder(repo, cache, logger)
	service := matching.NewService(repo, cache, engine, classifier, prefs, recorder, cfg.Matching, logger)

	auth := tenant.NewMiddleware(cfg.JWTSecret)
	handlers := matching.NewHandlers(service, logger)

	router := mux.NewRouter()
	matching.RegisterRoutes(router, handlers, auth)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	scheduler := matching.NewScheduler(service, cfg, logger)
	scheduler.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("match engine listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
