package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// DefaultOrigins are always allowed: local dev servers and the itch.io CDN
// hosts that serve embedded HTML games.
var DefaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"https://v6p9d9t4.ssl.hwcdn.net",
	"https://itch.zone",
	"https://html.itch.zone",
}

// CORS decides which browser origins may call the service.
type CORS struct {
	origins []string
	methods string
}

// NewCORS allows DefaultOrigins plus siteURL and extra. Empty entries are
// ignored.
func NewCORS(methods []string, siteURL string, extra ...string) *CORS {
	origins := slices.Clone(DefaultOrigins)
	for _, o := range append([]string{siteURL}, extra...) {
		if o != "" {
			origins = append(origins, strings.TrimSuffix(o, "/"))
		}
	}
	return &CORS{origins: origins, methods: strings.Join(methods, ", ")}
}

// Allowed reports whether origin is on the list or is an itch.io page or a
// local address.
func (c *CORS) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	return slices.Contains(c.origins, origin) ||
		strings.Contains(origin, ".itch.io") ||
		strings.Contains(origin, "localhost") ||
		strings.Contains(origin, "127.0.0.1")
}

// SetHeaders writes the CORS response headers. Unknown origins get the
// wildcard, which lets non-credentialed requests through.
func (c *CORS) SetHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	h := w.Header()
	if c.Allowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	} else {
		h.Set("Access-Control-Allow-Origin", "*")
	}
	h.Set("Access-Control-Allow-Methods", c.methods)
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
	h.Set("Access-Control-Allow-Credentials", "false")
}

// Handler sets CORS headers on every response and answers preflight
// requests itself.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.SetHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
