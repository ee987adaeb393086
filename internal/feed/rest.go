package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"asian-sweep-bot/internal/market"
)

// RESTConfig holds broker HTTP API settings
type RESTConfig struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RequestsPerSec int           `json:"requests_per_sec"`
	MaxRetries     uint64        `json:"max_retries"`
}

// RESTFeed fetches bars over HTTP with rate limiting and retry
type RESTFeed struct {
	cfg     RESTConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewRESTFeed(cfg RESTConfig, logger zerolog.Logger) *RESTFeed {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &RESTFeed{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsPerSec),
		logger:  logger.With().Str("component", "rest_feed").Logger(),
	}
}

type barPayload struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open,string"`
	High   float64 `json:"high,string"`
	Low    float64 `json:"low,string"`
	Close  float64 `json:"close,string"`
	Volume float64 `json:"volume,string"`
}

type seriesResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Values  []barPayload `json:"values"`
}

// GetBars fetches bars with open time in [start, end)
func (f *RESTFeed) GetBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(tf))
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("apikey", f.cfg.APIKey)
	reqURL := f.cfg.BaseURL + "/time_series?" + q.Encode()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("series request: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("series request: status %d", resp.StatusCode))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("fetching %s %s bars: %w", symbol, tf, err)
	}

	var parsed seriesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing series response: %w", err)
	}
	if parsed.Status == "error" {
		return nil, fmt.Errorf("series API error: %s", parsed.Message)
	}

	bars := make([]market.Bar, 0, len(parsed.Values))
	for _, v := range parsed.Values {
		t, err := time.Parse(time.RFC3339, v.Time)
		if err != nil {
			f.logger.Warn().Str("time", v.Time).Msg("skipping bar with bad timestamp")
			continue
		}
		t = t.UTC()
		if t.Before(start) || !t.Before(end) {
			continue
		}
		bars = append(bars, market.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  t,
			Open:      v.Open,
			High:      v.High,
			Low:       v.Low,
			Close:     v.Close,
			Volume:    v.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].OpenTime.Before(bars[j].OpenTime)
	})

	f.logger.Debug().Str("symbol", symbol).Str("timeframe", string(tf)).Int("count", len(bars)).Msg("fetched bars")
	return bars, nil
}
