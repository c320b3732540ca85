package currency

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// defaultStaticRates maps "FROM/TO" to a rate. Used when FX_PROVIDER=static
// and FX_STATIC_RATES is empty.
var defaultStaticRates = map[string]string{
	"EUR/USD": "1.0850",
	"GBP/USD": "1.2650",
	"USD/JPY": "149.50",
	"USD/CHF": "0.8820",
	"AUD/USD": "0.6520",
	"USD/CAD": "1.3580",
	"USD/INR": "83.20",
	"EUR/GBP": "0.8580",
}

// StaticRateSource serves rates from a fixed table. A missing pair falls back
// to the inverse of the opposite pair.
type StaticRateSource struct {
	rates map[string]decimal.Decimal
}

var _ RateSource = (*StaticRateSource)(nil)

// NewStaticRateSource creates a source over rates keyed "FROM/TO". A nil map
// selects the built-in table.
func NewStaticRateSource(rates map[string]decimal.Decimal) *StaticRateSource {
	if rates == nil {
		rates = make(map[string]decimal.Decimal, len(defaultStaticRates))
		for pair, s := range defaultStaticRates {
			rates[pair] = decimal.RequireFromString(s)
		}
	}
	normalized := make(map[string]decimal.Decimal, len(rates))
	for pair, r := range rates {
		normalized[strings.ToUpper(pair)] = r
	}
	return &StaticRateSource{rates: normalized}
}

// ParseStaticRates parses "EUR=1.08,GBP=1.27" into a table of rates against target.
func ParseStaticRates(raw, target string) (map[string]decimal.Decimal, error) {
	target = strings.ToUpper(strings.TrimSpace(target))
	rates := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid static rate %q: expected CODE=RATE", entry)
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		if !codePattern.MatchString(code) {
			return nil, fmt.Errorf("invalid static rate %q: bad currency code", entry)
		}
		r, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid static rate %q: %w", entry, err)
		}
		if !r.IsPositive() {
			return nil, fmt.Errorf("invalid static rate %q: rate must be positive", entry)
		}
		rates[code+"/"+target] = r
	}
	return rates, nil
}

// Rate returns the configured rate for from/to.
func (s *StaticRateSource) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	if r, ok := s.rates[from+"/"+to]; ok {
		return r, nil
	}
	if r, ok := s.rates[to+"/"+from]; ok && r.IsPositive() {
		return decimal.NewFromInt(1).DivRound(r, 8), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: no static rate for %s/%s", ErrUnknownCurrency, from, to)
}
