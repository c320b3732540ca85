package currency

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"invoices/internal/logger"
)

var codePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// Target is the reporting currency code.
	Target string

	// Timeout bounds each rate lookup, including retries inside the source.
	Timeout time.Duration

	// CacheTTL is how long a fetched rate is reused. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultGatewayConfig returns a USD gateway with a 5s timeout and 5m cache.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Target:   "USD",
		Timeout:  5 * time.Second,
		CacheTTL: 5 * time.Minute,
	}
}

type cachedRate struct {
	rate      decimal.Decimal
	expiresAt time.Time
}

// Gateway converts amounts into the target currency.
type Gateway struct {
	source RateSource
	config GatewayConfig
	now    func() time.Time
	log    zerolog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedRate
}

// NewGateway creates a Gateway over source.
func NewGateway(source RateSource, config GatewayConfig) *Gateway {
	defaults := DefaultGatewayConfig()
	config.Target = strings.ToUpper(strings.TrimSpace(config.Target))
	if config.Target == "" {
		config.Target = defaults.Target
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Gateway{
		source: source,
		config: config,
		now:    time.Now,
		log:    logger.WithComponent("currency"),
		cache:  make(map[string]cachedRate),
	}
}

// Target returns the reporting currency code.
func (g *Gateway) Target() string {
	return g.config.Target
}

// Convert returns amount expressed in the target currency, rounded to 2 decimals.
// Every failure is a *ConversionError.
func (g *Gateway) Convert(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	if !codePattern.MatchString(code) {
		return decimal.Decimal{}, NewConversionError(code, "currency code must be 3 letters", ErrUnknownCurrency)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, NewConversionError(code, "amount "+amount.String()+" is not positive", ErrInvalidAmount)
	}
	if code == g.config.Target {
		return amount.Round(2), nil
	}

	rate, err := g.rate(ctx, code)
	if err != nil {
		return decimal.Decimal{}, err
	}

	converted := amount.Mul(rate).Round(2)
	g.log.Debug().
		Str("from", code).
		Str("to", g.config.Target).
		Str("rate", rate.String()).
		Str("amount", amount.String()).
		Str("converted", converted.String()).
		Msg("Converted amount")
	return converted, nil
}

// rate returns a cached rate or fetches one, collapsing concurrent fetches
// for the same code into a single upstream call. The shared fetch does not
// inherit any caller's cancellation; each caller stops waiting on its own ctx.
func (g *Gateway) rate(ctx context.Context, code string) (decimal.Decimal, error) {
	if rate, ok := g.cached(code); ok {
		return rate, nil
	}

	ch := g.group.DoChan(code, func() (interface{}, error) {
		return g.fetch(context.WithoutCancel(ctx), code)
	})

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return decimal.Decimal{}, NewConversionError(code, "deadline passed while waiting for rate", errors.Join(ErrTimeout, err))
		}
		return decimal.Decimal{}, NewConversionError(code, "canceled while waiting for rate", err)
	case res := <-ch:
		if res.Err != nil {
			return decimal.Decimal{}, res.Err
		}
		if res.Shared {
			g.log.Debug().Str("from", code).Msg("Shared in-flight rate lookup")
		}
		return res.Val.(decimal.Decimal), nil
	}
}

func (g *Gateway) fetch(ctx context.Context, code string) (decimal.Decimal, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := g.now()
	rate, err := g.source.Rate(fetchCtx, code, g.config.Target)
	if err != nil {
		convErr := g.normalize(fetchCtx, code, err)
		g.log.Warn().
			Err(err).
			Str("from", code).
			Str("to", g.config.Target).
			Dur("elapsed", g.now().Sub(start)).
			Msg("Rate lookup failed")
		return decimal.Decimal{}, convErr
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, NewConversionError(code,
			"rate source returned non-positive rate "+rate.String(), ErrInvalidRate)
	}

	if g.config.CacheTTL > 0 {
		g.mu.Lock()
		g.cache[code] = cachedRate{rate: rate, expiresAt: g.now().Add(g.config.CacheTTL)}
		g.mu.Unlock()
	}
	return rate, nil
}

func (g *Gateway) cached(code string) (decimal.Decimal, bool) {
	if g.config.CacheTTL <= 0 {
		return decimal.Decimal{}, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.cache[code]
	if !ok || !g.now().Before(entry.expiresAt) {
		return decimal.Decimal{}, false
	}
	return entry.rate, true
}

// normalize maps any source failure onto a ConversionError.
func (g *Gateway) normalize(ctx context.Context, code string, err error) error {
	var convErr *ConversionError
	if errors.As(err, &convErr) {
		return convErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewConversionError(code, "no answer within "+g.config.Timeout.String(), errors.Join(ErrTimeout, err))
	case errors.Is(err, ErrUnknownCurrency):
		return NewConversionError(code, "rate source does not know the currency", err)
	case errors.Is(err, ErrInvalidRate):
		return NewConversionError(code, "rate source returned an unusable rate", err)
	default:
		return NewConversionError(code, "rate source failed", errors.Join(ErrUnavailable, err))
	}
}
