// Package xivapi resolves item and world ids to display names through the
// XIVAPI REST service.
package xivapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"universalis-alerts/internal/cache"
)

// ErrNotFound is returned when XIVAPI has no record for the id.
var ErrNotFound = errors.New("xivapi: not found")

// Config holds XIVAPI client settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, <= 0 disables limiting
	CacheTTL  time.Duration
}

// Client looks up names with a read-through cache in front of XIVAPI.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Cache
	ttl        time.Duration
}

// NewClient creates a client. cache may be nil to disable caching.
func NewClient(cfg Config, c cache.Cache) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://xivapi.com"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		cache:      c,
		ttl:        ttl,
	}
}

// ItemName returns the English name of an item.
func (c *Client) ItemName(ctx context.Context, itemID int32) (string, error) {
	return c.name(ctx, "Item", itemID)
}

// WorldName returns the name of a world.
func (c *Client) WorldName(ctx context.Context, worldID int32) (string, error) {
	return c.name(ctx, "World", worldID)
}

type nameResponse struct {
	ID   int64  `json:"ID"`
	Name string `json:"Name"`
}

func (c *Client) name(ctx context.Context, sheet string, id int32) (string, error) {
	fetch := func() ([]byte, error) {
		name, err := c.fetch(ctx, sheet, id)
		if err != nil {
			return nil, err
		}
		return []byte(name), nil
	}

	if c.cache == nil {
		data, err := fetch()
		return string(data), err
	}

	key := fmt.Sprintf("xivapi:%s:%d", strings.ToLower(sheet), id)
	data, err := c.cache.GetOrSet(ctx, key, c.ttl, fetch)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) fetch(ctx context.Context, sheet string, id int32) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%d?columns=ID,Name", c.baseURL, sheet, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s %d: %w", sheet, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s %d", ErrNotFound, sheet, id)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("xivapi returned %d for %s %d: %s", resp.StatusCode, sheet, id, strings.TrimSpace(string(body)))
	}

	var out nameResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode %s %d: %w", sheet, id, err)
	}
	if out.Name == "" {
		return "", fmt.Errorf("%w: %s %d has no name", ErrNotFound, sheet, id)
	}

	log.Printf("[XIVAPI] Resolved %s %d = %s", sheet, id, out.Name)
	return out.Name, nil
}
