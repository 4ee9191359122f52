package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/questline/internal/config"
	"github.com/jwebster45206/questline/internal/game"
	"github.com/jwebster45206/questline/internal/handlers"
	"github.com/jwebster45206/questline/internal/logger"
	"github.com/jwebster45206/questline/internal/middleware"
	"github.com/jwebster45206/questline/internal/observability"
	"github.com/jwebster45206/questline/internal/services"
	"github.com/jwebster45206/questline/internal/services/events"
	"github.com/jwebster45206/questline/internal/storage"
	"github.com/jwebster45206/questline/internal/worker"
	"github.com/jwebster45206/questline/pkg/content"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Questline API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"store", cfg.StoreBackend,
		"oracle_provider", cfg.OracleProvider,
		"model_name", cfg.ModelName)

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, observability.Config{
		ServiceName:    "questline-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
	})
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	c := loadContent(cfg.ContentFile, log)
	catalog := content.New(c, content.WithLogger(logger.WithComponent(log, "content")))
	for _, d := range catalog.Diagnostics() {
		log.Warn("Content diagnostic", "detail", d.String())
	}

	backend := openStore(ctx, cfg, log)
	store := storage.NewSnapshotStore(backend, cfg.SaveKey, logger.WithComponent(log, "storage"))

	bus := newEventBus(cfg, backend, log)

	llm, err := services.NewLLMService(ctx, cfg.OracleProvider, services.Options{
		APIKey:      cfg.OracleAPIKey,
		BaseURL:     cfg.OracleURL,
		Model:       cfg.ModelName,
		MaxTokens:   cfg.OracleMaxTokens,
		Temperature: cfg.OracleTemperature,
		TopP:        cfg.OracleTopP,
	})
	if err != nil {
		log.Error("Failed to initialize oracle provider", "error", err, "provider", cfg.OracleProvider)
		os.Exit(1)
	}
	if cs, ok := llm.(*services.CompletionsService); ok {
		cs.WithAttribution(cfg.SiteURL, cfg.SiteTitle)
	}

	oracle := worker.NewOracle(llm, worker.Options{Delay: cfg.OracleDelay}, logger.WithComponent(log, "oracle"))
	oracle.Start()

	g, err := game.New(game.Options{
		Catalog:          catalog,
		Store:            store,
		Oracle:           oracle,
		Events:           bus,
		Logger:           logger.WithComponent(log, "game"),
		AutosaveInterval: cfg.AutosaveInterval,
		MaxSocialEnergy:  cfg.MaxSocialEnergy,
		EnergyRestore:    cfg.EnergyRestore,
		ConversationCost: cfg.ConversationCost,
		TranscriptLimit:  cfg.TranscriptLimit,
	})
	if err != nil {
		log.Error("Failed to create game", "error", err)
		os.Exit(1)
	}
	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	err = g.Start(startCtx)
	startCancel()
	if err != nil {
		log.Error("Failed to start game", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, llm, log))

	gameStateHandler := handlers.NewGameStateHandler(g, log)
	mux.Handle("/v1/gamestate", gameStateHandler)
	mux.Handle("/v1/gamestate/", gameStateHandler)

	conversationHandler := handlers.NewConversationHandler(g, log)
	mux.Handle("/v1/conversation", conversationHandler)
	mux.Handle("/v1/conversation/", conversationHandler)

	mux.Handle("/v1/locations/", handlers.NewLocationsHandler(g, log))
	mux.Handle("/v1/items/", handlers.NewItemsHandler(g, log))
	mux.Handle("/v1/achievements", handlers.NewAchievementsHandler(g, log))
	mux.Handle("/v1/showdown", handlers.NewShowdownHandler(g, log))
	mux.Handle("/v1/events", handlers.NewEventsHandler(bus, func() string { return g.Status().GameID }, log))

	cors := middleware.NewCORS(
		[]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		cfg.SiteURL, cfg.AllowedOrigins...)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.WithLogger(log, cors.Handler(mux)),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout removed to enable streaming - the events endpoint handles its own keepalive
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Final save happens before the oracle and store go away.
	if err := g.Close(shutdownCtx); err != nil {
		log.Error("Failed to save game on shutdown", "error", err)
	}
	oracle.Stop()

	if err := store.Close(); err != nil {
		log.Error("Error closing store", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("Server exited")
}

// Redis gets this long to come up before the game falls back to memory.
var (
	redisRetries    = 30
	redisRetryDelay = 2 * time.Second
)

// loadContent reads the content file, falling back to the built-in game
// when it cannot be read. With no usable content at all the game starts in
// minimal mode.
func loadContent(path string, log *slog.Logger) content.Content {
	if path != "" {
		c, err := content.LoadFile(path)
		if err == nil {
			return c
		}
		logger.WithError(log, err).Error("Failed to load game content, using the built-in game", "file", path)
	}
	c, err := content.Default()
	if err != nil {
		logger.WithError(log, err).Error("Failed to load built-in content, starting in minimal mode")
		return content.Content{}
	}
	return c
}

// openStore connects the configured backend. A store that cannot be opened
// or reached is replaced by an in-memory one so the game still starts,
// without saves surviving a restart.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) storage.Backend {
	dsn := cfg.RedisURL
	if cfg.StoreBackend == storage.KindSQLite {
		dsn = cfg.SQLitePath
	}
	backend, err := storage.Open(cfg.StoreBackend, dsn, logger.WithComponent(log, "storage"))
	if err != nil {
		logger.WithError(log, err).Error("Failed to open store, saves will not persist", "store", cfg.StoreBackend)
		return storage.NewMemoryBackend()
	}
	if rb, ok := backend.(*storage.RedisBackend); ok {
		err := rb.WaitForConnection(ctx, redisRetries, redisRetryDelay)
		if err != nil {
			logger.WithError(log, err).Error("Failed to connect to Redis, saves will not persist")
			if cerr := rb.Close(); cerr != nil {
				log.Warn("Error closing Redis client", "error", cerr)
			}
			return storage.NewMemoryBackend()
		}
	}
	log.Info("Store connection established successfully", "store", cfg.StoreBackend)
	return backend
}

// newEventBus publishes over Redis pub/sub when configured, sharing the
// store's connection pool if the store is Redis too.
func newEventBus(cfg *config.Config, backend storage.Backend, log *slog.Logger) events.Bus {
	if cfg.EventsBackend != "redis" {
		return events.NewMemoryBus(64)
	}

	var client *redis.Client
	if rb, ok := backend.(*storage.RedisBackend); ok {
		client = rb.Client()
	} else {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			opt = &redis.Options{Addr: cfg.RedisURL}
		}
		client = redis.NewClient(opt)
	}
	log.Info("Publishing events over Redis", "channel", events.Channel(events.DefaultStream))
	return events.NewBroadcaster(client, events.DefaultStream, logger.WithComponent(log, "events"))
}
