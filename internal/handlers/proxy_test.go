package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamCall struct {
	auth, referer, title string
	body                 string
}

func newUpstream(t *testing.T, status int, reply string) (*httptest.Server, *[]upstreamCall) {
	t.Helper()
	var calls []upstreamCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, upstreamCall{
			auth:    r.Header.Get("Authorization"),
			referer: r.Header.Get("HTTP-Referer"),
			title:   r.Header.Get("X-Title"),
			body:    string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func proxyRequest(t *testing.T, h http.Handler, method, origin, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/chat", strings.NewReader(body))
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validCompletion = `{"model":"meta-llama/llama-3.1-8b-instruct","messages":[{"role":"user","content":"Quack?"}]}`

func TestProxyHandler_Forwards(t *testing.T) {
	upstream, calls := newUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"Quack!"}}]}`)
	h := NewProxyHandler(ProxyConfig{
		UpstreamURL: upstream.URL,
		APIKey:      "sk-test",
		SiteURL:     "https://questline.example",
		SiteTitle:   "Questline",
	}, testLogger())

	rec := proxyRequest(t, h, http.MethodPost, "https://someone.itch.io", validCompletion)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"choices":[{"message":{"content":"Quack!"}}]}`, rec.Body.String())
	assert.Equal(t, "https://someone.itch.io", rec.Header().Get("Access-Control-Allow-Origin"))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "Bearer sk-test", call.auth)
	assert.Equal(t, "https://someone.itch.io", call.referer)
	assert.Equal(t, "Questline", call.title)
	assert.JSONEq(t, validCompletion, call.body)

	proxyRequest(t, h, http.MethodPost, "https://elsewhere.example", validCompletion)
	require.Len(t, *calls, 2)
	assert.Equal(t, "https://questline.example", (*calls)[1].referer)
}

func TestProxyHandler_RelaysUpstreamErrors(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`)
	h := NewProxyHandler(ProxyConfig{UpstreamURL: upstream.URL, APIKey: "sk-test"}, testLogger())

	rec := proxyRequest(t, h, http.MethodPost, "", validCompletion)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limited")
}

func TestProxyHandler_Rejects(t *testing.T) {
	upstream, calls := newUpstream(t, http.StatusOK, `{}`)

	tests := []struct {
		name   string
		key    string
		method string
		body   string
		code   int
	}{
		{"preflight", "sk-test", http.MethodOptions, "", http.StatusOK},
		{"get", "sk-test", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"missing key", "", http.MethodPost, validCompletion, http.StatusInternalServerError},
		{"missing model", "sk-test", http.MethodPost, `{"messages":[]}`, http.StatusBadRequest},
		{"missing messages", "sk-test", http.MethodPost, `{"model":"m"}`, http.StatusBadRequest},
		{"not json", "sk-test", http.MethodPost, `hello`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewProxyHandler(ProxyConfig{UpstreamURL: upstream.URL, APIKey: tt.key}, testLogger())
			rec := proxyRequest(t, h, tt.method, "http://localhost:5173", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

			if tt.code == http.StatusBadRequest {
				var resp ProxyErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, []string{"model", "messages"}, resp.Required)
			}
		})
	}
	assert.Empty(t, *calls, "rejected requests never reach the upstream")
}

func TestProxyHandler_UpstreamUnreachable(t *testing.T) {
	upstream, _ := newUpstream(t, http.StatusOK, `{}`)
	url := upstream.URL
	upstream.Close()

	h := NewProxyHandler(ProxyConfig{UpstreamURL: url, APIKey: "sk-test"}, testLogger())
	rec := proxyRequest(t, h, http.MethodPost, "", validCompletion)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
