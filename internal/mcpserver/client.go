package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the connection settings for a txsentinel API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token for gateways in front of the API
}

// Client is a thin HTTP client for the txsentinel API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Stage   string `json:"stage"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			if apiErr.Stage != "" {
				return nil, fmt.Errorf("API error (%d, %s at %s): %s", resp.StatusCode, apiErr.Error, apiErr.Stage, apiErr.Message)
			}
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// SubmitTransaction posts a new transaction for classification.
func (c *Client) SubmitTransaction(ctx context.Context, tx map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/predict", nil, tx)
}

// GetTransaction returns one stored transaction.
func (c *Client) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/transactions/"+url.PathEscape(id), nil, nil)
}

// GetSenderHistory returns a sender's transactions in chronological order.
func (c *Client) GetSenderHistory(ctx context.Context, senderID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/senders/"+url.PathEscape(senderID)+"/transactions", nil, nil)
}

// GetSenderFeatures returns a sender's cached feature snapshot.
func (c *Client) GetSenderFeatures(ctx context.Context, senderID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/features/"+url.PathEscape(senderID), nil, nil)
}

// ListRecentFeatures returns snapshots changed since an RFC3339 time or a
// lookback such as "24h" or "7d".
func (c *Client) ListRecentFeatures(ctx context.Context, since string) (json.RawMessage, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/features", q, nil)
}

// GetStats returns transaction totals.
func (c *Client) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/transactions/stats", nil, nil)
}

// GetModelInfo returns the loaded classifier's metadata.
func (c *Client) GetModelInfo(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/model", nil, nil)
}

// ListNotifications returns recent prediction notifications.
func (c *Client) ListNotifications(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/notifications", q, nil)
}

// ListFlagged returns the queue of Suspicious transactions awaiting review.
func (c *Client) ListFlagged(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/transactions/flagged", q, nil)
}

// ReviewTransaction records an analyst verdict on a classified transaction.
func (c *Client) ReviewTransaction(ctx context.Context, id, status, reviewer string) (json.RawMessage, error) {
	body := map[string]string{"review_status": status, "reviewed_by": reviewer}
	return c.doRequest(ctx, http.MethodPut, "/v1/transactions/"+url.PathEscape(id)+"/review", nil, body)
}
