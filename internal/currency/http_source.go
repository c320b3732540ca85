package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"invoices/internal/logger"
)

// HTTPSourceConfig configures an HTTPRateSource.
type HTTPSourceConfig struct {
	// BaseURL is the API root, e.g. https://api.frankfurter.app.
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// RequestsPerSecond caps outgoing requests. Zero means unlimited.
	RequestsPerSecond float64

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration

	// Client is the HTTP client to use. Defaults to a client with a 10s timeout.
	Client *http.Client
}

// DefaultHTTPSourceConfig returns the settings used when nothing is configured.
func DefaultHTTPSourceConfig() HTTPSourceConfig {
	return HTTPSourceConfig{
		BaseURL:           "https://api.frankfurter.app",
		RequestsPerSecond: 5,
		MaxRetries:        3,
		InitialInterval:   100 * time.Millisecond,
	}
}

var retryableStatusCodes = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// StatusError is returned for a non-2xx answer from the rate API.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// HTTPRateSource fetches rates from a Frankfurter-compatible HTTP API.
type HTTPRateSource struct {
	config  HTTPSourceConfig
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ RateSource = (*HTTPRateSource)(nil)

// NewHTTPRateSource creates an HTTPRateSource.
func NewHTTPRateSource(config HTTPSourceConfig) (*HTTPRateSource, error) {
	defaults := DefaultHTTPSourceConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid rate API URL %q: %w", config.BaseURL, err)
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = defaults.InitialInterval
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	limit := rate.Inf
	burst := 1
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
		burst = max(1, int(config.RequestsPerSecond))
	}

	return &HTTPRateSource{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.WithComponent("currency.http"),
	}, nil
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]json.RawMessage `json:"rates"`
}

// Rate queries {base}/latest?from=FROM&to=TO.
func (s *HTTPRateSource) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	endpoint := strings.TrimSuffix(s.config.BaseURL, "/") + "/latest?" + url.Values{
		"from": {from},
		"to":   {to},
	}.Encode()

	var body []byte
	operation := func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		b, err := s.get(ctx, endpoint)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !retryableStatusCodes[statusErr.StatusCode] {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			s.log.Debug().Err(err).Str("url", endpoint).Msg("Retrying rate request")
			return err
		}
		body = b
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.config.InitialInterval
	expBackoff.MaxInterval = 10 * s.config.InitialInterval
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(s.config.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return decimal.Decimal{}, s.classify(err)
	}

	return parseRate(body, to)
}

func (s *HTTPRateSource) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("X-API-Key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (s *HTTPRateSource) classify(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusBadRequest, http.StatusUnprocessableEntity:
			return errors.Join(ErrUnknownCurrency, err)
		}
	}
	return err
}

func parseRate(body []byte, to string) (decimal.Decimal, error) {
	var payload latestResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Decimal{}, errors.Join(ErrInvalidRate, fmt.Errorf("decode rate response: %w", err))
	}

	raw, ok := payload.Rates[to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no %s rate in response", ErrUnknownCurrency, to)
	}

	value, err := decimal.NewFromString(strings.Trim(string(raw), `"`))
	if err != nil {
		return decimal.Decimal{}, errors.Join(ErrInvalidRate, fmt.Errorf("rate %s: %w", raw, err))
	}
	return value, nil
}
