package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/contec/internal/config"
	"github.com/kalambet/contec/internal/knowledge"
)

// apiClient talks to a running contec serve.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func(cfg config.Config) *apiClient {
	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Trainer.Password,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is contec serve running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("unhealthy: %q", body.Status)
	}
	return nil
}

func (c *apiClient) knowledgeCount(ctx context.Context) (int, error) {
	resp, err := c.get(ctx, "/v1/knowledge")
	if err != nil {
		return 0, err
	}
	var kb knowledge.Base
	if err := decodeJSON(resp, &kb); err != nil {
		return 0, err
	}
	return kb.Len(), nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
