// Package currency converts invoice totals into the reporting currency.
//
// A Gateway fronts a RateSource with a bounded per-call timeout, a short-lived
// rate cache and request collapsing, and normalizes every failure into a
// *ConversionError. Two sources are provided:
//   - HTTPRateSource queries a Frankfurter-compatible API
//     (GET {base}/latest?from=EUR&to=USD -> {"rates":{"USD":1.08}}),
//     retrying transient failures with exponential backoff.
//   - StaticRateSource serves a fixed table, for development and offline use.
package currency

import (
	"context"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=source.go -destination=mocks/mock_rate_source.go -package=mocks

// RateSource returns how many units of to one unit of from is worth.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}
