package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"quantgate/internal/config"
	"quantgate/internal/domain"
	"quantgate/internal/metrics"
)

// Client fetches market data over HTTP behind a per-host rate limiter
// and a circuit breaker. The breaker trips on 3 consecutive failures or
// a >5% failure rate after 20 requests, and stays open for 60 seconds.
type Client struct {
	baseURL string
	host    string
	http    *http.Client
	limiter *hostLimiter
	breaker *gobreaker.CircuitBreaker

	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewClient builds a client from validated data configuration.
func NewClient(cfg config.DataConfig, reg *metrics.Registry) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid market data base URL %s: %w", cfg.BaseURL, err)
	}

	settings := gobreaker.Settings{
		Name:     "market_data",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		host:    u.Host,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: newHostLimiter(cfg.RPS, cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: reg,
		log:     log.With().Str("component", "market_data_client").Logger(),
	}, nil
}

// FetchIndicators retrieves the indicator mapping for one
// (symbol, timeframe).
func (c *Client) FetchIndicators(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	endpoint := fmt.Sprintf("%s/api/v1/indicators?symbol=%s&timeframe=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(timeframe))

	var snapshot domain.IndicatorSnapshot
	if err := c.getJSON(ctx, "indicators", endpoint, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// tickerResponse is the wire shape of the ticker endpoint.
type tickerResponse struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	SpreadBps float64 `json:"spread_bps"`
	Timestamp int64   `json:"timestamp"`
}

// FetchSnapshot retrieves the current market snapshot for a symbol. The
// result is the base variant; websocket enrichment happens in the feed.
func (c *Client) FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	endpoint := fmt.Sprintf("%s/api/v1/ticker?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	var ticker tickerResponse
	if err := c.getJSON(ctx, "ticker", endpoint, &ticker); err != nil {
		return nil, err
	}

	return domain.NewBaseSnapshot(domain.BaseSnapshot{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(ticker.Timestamp).UTC(),
		Price:     ticker.Price,
		Bid:       ticker.Bid,
		Ask:       ticker.Ask,
	}), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx, c.host); err != nil {
		return fmt.Errorf("rate limit wait aborted: %w", err)
	}

	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
		}

		var decoded json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
		}
		return decoded, nil
	})
	if err != nil {
		c.metrics.RecordFetchFailure(endpoint)
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("market data fetch failed")
		return fmt.Errorf("%s fetch failed: %w", endpoint, err)
	}

	if err := json.Unmarshal(body.(json.RawMessage), out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", endpoint, err)
	}
	return nil
}
