package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/questline/internal/middleware"
)

// ProxyConfig configures the completions proxy.
type ProxyConfig struct {
	UpstreamURL string
	APIKey      string
	SiteURL     string
	SiteTitle   string
	Origins     []string // extra allowed origins
}

// ProxyErrorResponse is returned for malformed proxy requests.
type ProxyErrorResponse struct {
	Error    string   `json:"error"`
	Required []string `json:"required,omitempty"`
}

// ProxyHandler forwards chat completion requests to the upstream provider so
// the browser never sees the API key.
// POST /api/chat
type ProxyHandler struct {
	cfg        ProxyConfig
	cors       *middleware.CORS
	httpClient *http.Client
	logger     *slog.Logger
}

func NewProxyHandler(cfg ProxyConfig, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		cfg:        cfg,
		cors:       middleware.NewCORS([]string{http.MethodPost, http.MethodOptions}, cfg.SiteURL, cfg.Origins...),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient replaces the upstream client.
func (h *ProxyHandler) WithHTTPClient(c *http.Client) *ProxyHandler {
	h.httpClient = c
	return h
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	h.cors.SetHeaders(w, r)

	if r.Method == http.MethodOptions {
		h.logger.Debug("CORS preflight", "origin", origin)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed", "method", r.Method, "origin", origin)
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.cfg.APIKey == "" {
		h.logger.Error("Upstream API key not configured")
		writeError(w, h.logger, http.StatusInternalServerError, "Server configuration error: API key not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Failed to read request body")
		return
	}
	var probe struct {
		Model    string          `json:"model"`
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Model == "" || len(probe.Messages) == 0 || string(probe.Messages) == "null" {
		h.logger.Warn("Invalid proxy request body", "has_model", probe.Model != "", "has_messages", len(probe.Messages) > 0)
		writeJSON(w, h.logger, http.StatusBadRequest, ProxyErrorResponse{
			Error:    "Bad request: Missing required fields",
			Required: []string{"model", "messages"},
		})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.cfg.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		h.logger.Error("Failed to build upstream request", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}
	req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", h.referer(origin))
	req.Header.Set("X-Title", h.cfg.SiteTitle)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("Upstream request failed", "error", err)
		writeError(w, h.logger, http.StatusBadGateway, "Upstream request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		h.logger.Warn("Upstream returned an error", "status", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("Failed to relay upstream response", "error", err)
	}
}

// referer echoes itch.io and local origins so the provider attributes
// traffic to the page that embeds the game; anything else uses SiteURL.
func (h *ProxyHandler) referer(origin string) string {
	if origin != "" && (strings.Contains(origin, ".itch.io") ||
		strings.Contains(origin, "localhost") ||
		strings.Contains(origin, "127.0.0.1")) {
		return origin
	}
	return h.cfg.SiteURL
}
