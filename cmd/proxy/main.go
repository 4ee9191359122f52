package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/questline/internal/config"
	"github.com/jwebster45206/questline/internal/handlers"
	"github.com/jwebster45206/questline/internal/logger"
	"github.com/jwebster45206/questline/internal/middleware"
)

// The proxy keeps the provider API key off the client. Browser builds of the
// game point their completions URL at /api/chat.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)
	if cfg.UpstreamAPIKey == "" {
		log.Warn("UPSTREAM_API_KEY is not set; every request will fail")
	}

	log.Info("Starting Questline completions proxy",
		"port", cfg.ProxyPort,
		"upstream", cfg.UpstreamURL,
		"site_url", cfg.SiteURL)

	proxy := handlers.NewProxyHandler(handlers.ProxyConfig{
		UpstreamURL: cfg.UpstreamURL,
		APIKey:      cfg.UpstreamAPIKey,
		SiteURL:     cfg.SiteURL,
		SiteTitle:   cfg.SiteTitle,
		Origins:     cfg.AllowedOrigins,
	}, logger.WithComponent(log, "proxy"))

	mux := http.NewServeMux()
	mux.Handle("/api/chat", proxy)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"questline-proxy"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.ProxyPort,
		Handler:      middleware.WithLogger(log, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Proxy starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Proxy failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Proxy is shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Proxy forced to shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("Proxy exited")
}
