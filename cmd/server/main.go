package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/Luckybob666/wa-bot-sub000/internal/config"
	"github.com/Luckybob666/wa-bot-sub000/internal/database"
	"github.com/Luckybob666/wa-bot-sub000/internal/handler"
	"github.com/Luckybob666/wa-bot-sub000/internal/jobs"
	"github.com/Luckybob666/wa-bot-sub000/internal/middleware"
	"github.com/Luckybob666/wa-bot-sub000/internal/redis"
	"github.com/Luckybob666/wa-bot-sub000/internal/repository"
	"github.com/Luckybob666/wa-bot-sub000/internal/service"
	"github.com/Luckybob666/wa-bot-sub000/internal/sse"
	"github.com/Luckybob666/wa-bot-sub000/internal/store"
	"github.com/Luckybob666/wa-bot-sub000/internal/transport"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	botRepo := repository.NewBotRepository(db.DB)
	groupRepo := repository.NewGroupRepository(db.DB)
	memberRepo := repository.NewMemberRepository(db.DB)
	targetListRepo := repository.NewTargetListRepository(db.DB)
	eventRepo := repository.NewEventRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	registry := service.NewRegistry()
	st := store.New(
		botRepo, groupRepo, memberRepo, targetListRepo, eventRepo,
		broker, registry, cfg.SyncTimeout(),
	)

	container, err := sqlstore.New(context.Background(), "postgres", cfg.DatabaseURL, waLog.Zerolog(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open device store")
	}
	dialer := transport.NewWhatsmeowDialer(container, st, log.Logger)

	reconciler := service.NewReconciler(st, st, cfg.MemberGraceWindow(), log.Logger)
	policy := service.RetryPolicy{
		Restart:   config.RestartReconnectDelay,
		Transient: cfg.ReconnectDelay(),
	}
	manager := service.NewManager(
		registry, botRepo, st, dialer, reconciler, policy, cfg.QRPushInterval(), log.Logger,
	)
	targetListService := service.NewTargetListService(targetListRepo, groupRepo, st, reconciler, log.Logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AdminToken)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)

	botHandler := handler.NewBotHandler(manager)
	targetListHandler := handler.NewTargetListHandler(targetListService)
	eventsHandler := handler.NewEventsHandler(broker, eventRepo)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		r.Get("/bots/{botID}/events", eventsHandler.ServeHTTP)
		r.Mount("/bots", botHandler.Routes())
		r.Mount("/target-lists", targetListHandler.Routes())
		r.Mount("/groups", targetListHandler.GroupRoutes())
	})

	cleanupJob := jobs.NewCleanupJob(eventRepo, botRepo, cfg.EventRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
