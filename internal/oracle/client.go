// Package oracle fetches token price quotes from an external price API,
// with a short-lived in-memory cache so bursts of plays against the same
// mint do not hammer the upstream.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned when the upstream has no price for a mint.
var ErrNoQuote = errors.New("oracle: no quote for mint")

// Quote is one price observation for a token mint.
type Quote struct {
	Mint         string
	PriceUSD     decimal.Decimal
	PriceSOL     decimal.Decimal
	MarketCapUSD decimal.Decimal
	Timestamp    time.Time
}

// Age reports how stale the quote was at the given instant.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// Config holds oracle client settings.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DefaultConfig returns settings suitable for a public price API.
func DefaultConfig() Config {
	return Config{
		Timeout:  10 * time.Second,
		CacheTTL: 5 * time.Second,
	}
}

// Client queries the price API and caches quotes per mint.
type Client struct {
	baseURL  string
	cacheTTL time.Duration
	http     *http.Client
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]Quote
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		cacheTTL: cfg.CacheTTL,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With("component", "oracle"),
		cache:    make(map[string]Quote),
	}
}

// GetQuote returns the current quote for a token mint, serving from cache
// while the last observation is fresh.
func (c *Client) GetQuote(ctx context.Context, mint string) (Quote, error) {
	c.mu.RLock()
	cached, ok := c.cache[mint]
	c.mu.RUnlock()
	if ok && time.Since(cached.Timestamp) < c.cacheTTL {
		return cached, nil
	}

	quote, err := c.fetch(ctx, mint)
	if err != nil {
		return Quote{}, err
	}

	c.mu.Lock()
	c.cache[mint] = quote
	c.mu.Unlock()

	return quote, nil
}

type quoteResponse struct {
	PriceUSD     string `json:"priceUsd"`
	PriceSOL     string `json:"priceSol"`
	MarketCapUSD string `json:"marketCapUsd"`
	Timestamp    int64  `json:"timestamp"`
}

func (c *Client) fetch(ctx context.Context, mint string) (Quote, error) {
	u := fmt.Sprintf("%s/v1/price?mint=%s", c.baseURL, url.QueryEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build price request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("price request for %s: %w", mint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, mint)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("price api returned %d for %s: %s", resp.StatusCode, mint, body)
	}

	var out quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Quote{}, fmt.Errorf("decode price response for %s: %w", mint, err)
	}

	priceUSD, err := decimal.NewFromString(out.PriceUSD)
	if err != nil {
		return Quote{}, fmt.Errorf("parse priceUsd %q: %w", out.PriceUSD, err)
	}
	if priceUSD.IsZero() {
		return Quote{}, fmt.Errorf("%w: %s priced at zero", ErrNoQuote, mint)
	}

	quote := Quote{
		Mint:      mint,
		PriceUSD:  priceUSD,
		Timestamp: time.Unix(out.Timestamp, 0),
	}
	if out.PriceSOL != "" {
		if v, err := decimal.NewFromString(out.PriceSOL); err == nil {
			quote.PriceSOL = v
		}
	}
	if out.MarketCapUSD != "" {
		if v, err := decimal.NewFromString(out.MarketCapUSD); err == nil {
			quote.MarketCapUSD = v
		}
	}
	if out.Timestamp == 0 {
		quote.Timestamp = time.Now()
	}

	c.logger.Debug("fetched quote",
		"mint", mint,
		"price_usd", quote.PriceUSD.String(),
		"market_cap_usd", quote.MarketCapUSD.String(),
	)

	return quote, nil
}
