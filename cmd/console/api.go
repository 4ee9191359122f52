package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jwebster45206/questline/internal/game"
	"github.com/jwebster45206/questline/internal/handlers"
	"github.com/jwebster45206/questline/pkg/actor"
	"github.com/jwebster45206/questline/pkg/chat"
)

// apiClient talks to the questline game API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

type advanceResponse struct {
	Transition string      `json:"transition"`
	Status     game.Status `json:"status"`
}

func (c *apiClient) testConnection() bool {
	resp, err := c.http.Get(c.baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. Non-2xx responses become errors carrying the API's message.
func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *apiClient) status() (*game.Status, error) {
	var s game.Status
	if err := c.do(http.MethodGet, "/v1/gamestate", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *apiClient) advance() (*advanceResponse, error) {
	var r advanceResponse
	if err := c.do(http.MethodPost, "/v1/gamestate/advance", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *apiClient) reset(full bool) error {
	return c.do(http.MethodPost, "/v1/gamestate/reset", handlers.ResetRequest{Full: full}, nil)
}

func (c *apiClient) startConversation(characterID string) (*game.Opening, error) {
	var o game.Opening
	if err := c.do(http.MethodPost, "/v1/conversation", handlers.StartConversationRequest{CharacterID: characterID}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *apiClient) sendMessage(message string) (*chat.ChatResponse, error) {
	var r chat.ChatResponse
	if err := c.do(http.MethodPost, "/v1/conversation/messages", chat.ChatRequest{Message: message}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *apiClient) endConversation() error {
	return c.do(http.MethodDelete, "/v1/conversation", nil, nil)
}

func (c *apiClient) moveTo(locationID string) (*game.Status, error) {
	var s game.Status
	if err := c.do(http.MethodPost, "/v1/locations/"+url.PathEscape(locationID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *apiClient) examine(itemID string) (*game.ItemView, error) {
	var v game.ItemView
	if err := c.do(http.MethodPost, "/v1/items/"+url.PathEscape(itemID)+"/examine", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *apiClient) achievements() (*handlers.AchievementsResponse, error) {
	var r handlers.AchievementsResponse
	if err := c.do(http.MethodGet, "/v1/achievements", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *apiClient) showdown() (*actor.ShowdownResult, error) {
	var r actor.ShowdownResult
	if err := c.do(http.MethodPost, "/v1/showdown", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SSEEvent represents an event from the SSE stream
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// listenToSSE connects to the SSE endpoint and streams events to a channel
func (c *apiClient) listenToSSE(ctx context.Context, eventChan chan<- SSEEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The stream outlives the request timeout of the regular client.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	return readSSE(ctx, resp.Body, eventChan)
}

// readSSE parses "event:" and "data:" lines. The data line carries the whole
// event envelope; its data field is what the UI shows.
func readSSE(ctx context.Context, r io.Reader, eventChan chan<- SSEEvent) error {
	scanner := bufio.NewScanner(r)
	var current SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// Empty line signals end of event
			if current.Type != "" {
				select {
				case eventChan <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			current = SSEEvent{}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var envelope map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &envelope); err != nil {
				continue
			}
			if data, ok := envelope["data"].(map[string]any); ok {
				current.Data = data
			} else {
				current.Data = envelope
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
