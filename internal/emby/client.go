// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
client.go - Emby REST API Client

This file implements a REST API client for Emby media server.
It provides methods to fetch session data, user directories, and paginated
library listings.

API Reference: https://dev.emby.media/doc/restapi/index.html
*/

package emby

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/playtally/playtally/internal/models"
)

// API defines the Emby operations the rest of the system depends on.
// Both Client and CircuitBreakerClient implement this interface.
type API interface {
	Ping(ctx context.Context) error
	GetSessions(ctx context.Context) ([]models.EmbySession, error)
	GetUsers(ctx context.Context) ([]models.EmbyUser, error)
	GetItemsPage(ctx context.Context, startIndex, limit int) (*models.EmbyItemsPage, error)
	GetUserPlayedItemsPage(ctx context.Context, userID string, startIndex, limit int) (*models.EmbyItemsPage, error)
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// Client provides access to the Emby REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientConfig holds the settings needed to reach an Emby server.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
}

// NewClient creates a new Emby API client.
//
// Parameters:
//   - cfg.BaseURL: Emby server URL (e.g., http://localhost:8096)
//   - cfg.APIKey: Emby API key from Admin Dashboard > API Keys
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// Ping tests connectivity to the Emby server.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "/System/Ping", nil)
	if err != nil {
		return fmt.Errorf("emby ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &APIError{Endpoint: "/System/Ping", StatusCode: resp.StatusCode}
	}
	return nil
}

// GetSessions retrieves all sessions currently known to Emby, including
// idle ones. Callers filter for active playback themselves.
func (c *Client) GetSessions(ctx context.Context) ([]models.EmbySession, error) {
	var sessions []models.EmbySession
	if err := c.getJSON(ctx, "/Sessions", nil, &sessions); err != nil {
		return nil, fmt.Errorf("emby sessions request failed: %w", err)
	}
	return sessions, nil
}

// GetUsers retrieves the full user directory from Emby.
func (c *Client) GetUsers(ctx context.Context) ([]models.EmbyUser, error) {
	var users []models.EmbyUser
	if err := c.getJSON(ctx, "/Users", nil, &users); err != nil {
		return nil, fmt.Errorf("emby users request failed: %w", err)
	}
	return users, nil
}

// GetItemsPage retrieves one page of the library catalog. The listing is
// recursive over movies, series and episodes and includes the stream
// metadata needed to classify quality.
func (c *Client) GetItemsPage(ctx context.Context, startIndex, limit int) (*models.EmbyItemsPage, error) {
	params := url.Values{}
	params.Set("IncludeItemTypes", "Movie,Series,Episode")
	params.Set("Recursive", "true")
	params.Set("Fields", "DateCreated,MediaStreams,MediaSources")
	params.Set("StartIndex", strconv.Itoa(startIndex))
	params.Set("Limit", strconv.Itoa(limit))

	var page models.EmbyItemsPage
	if err := c.getJSON(ctx, "/Items", params, &page); err != nil {
		return nil, fmt.Errorf("emby items request failed: %w", err)
	}
	return &page, nil
}

// GetUserPlayedItemsPage retrieves one page of the items a user has fully
// played, with runtime and play-count data for lifetime totals.
func (c *Client) GetUserPlayedItemsPage(ctx context.Context, userID string, startIndex, limit int) (*models.EmbyItemsPage, error) {
	params := url.Values{}
	params.Set("IncludeItemTypes", "Movie,Episode")
	params.Set("Recursive", "true")
	params.Set("IsPlayed", "true")
	params.Set("Fields", "RunTimeTicks,UserData")
	params.Set("StartIndex", strconv.Itoa(startIndex))
	params.Set("Limit", strconv.Itoa(limit))

	endpoint := "/Users/" + url.PathEscape(userID) + "/Items"

	var page models.EmbyItemsPage
	if err := c.getJSON(ctx, endpoint, params, &page); err != nil {
		return nil, fmt.Errorf("emby played items request failed: %w", err)
	}
	return &page, nil
}

// getJSON performs a GET request and decodes a JSON response into out.
// Non-2xx responses become an *APIError.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	resp, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen+1))
		if readErr != nil {
			return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode}
		}
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode emby response from %s: %w", endpoint, err)
	}
	return nil
}

// doRequest performs an HTTP GET request against the Emby API.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Emby-Client", "Playtally")
	req.Header.Set("X-Emby-Device-Name", "Playtally")
	req.Header.Set("X-Emby-Device-Id", "playtally")
	req.Header.Set("X-Emby-Client-Version", "1.0.0")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}
