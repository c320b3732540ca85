// Package invoice implements the invoice lifecycle and numbering engine.
//
// The engine composes four parts over a Store:
//   - Sequence allocates INV-<n> numbers; the store's unique constraint on
//     invoice_number closes the race between allocation and insert.
//   - a Converter turns the billed total into the reporting currency before
//     anything is written, so a failed conversion leaves no trace.
//   - Lifecycle owns status transitions: the paid/not-paid toggle, the
//     time-driven overdue sweep and the irreversible soft delete.
//   - Aggregator computes per-status counts and converted sums.
//
// Consistency:
//   - A list call runs the sweep, then the summary, then the page fetch, in
//     that order. Writes from other callers may land between those steps;
//     the summary and the page can then disagree by those writes.
//   - All summary buckets come from a single store call.
//   - A failed sweep does not fail the list; the result carries SweepError.
package invoice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"invoices/internal/logger"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

// Converter converts an amount into the reporting currency.
type Converter interface {
	Convert(ctx context.Context, currencyCode string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Recorder receives engine events for metrics. All methods must be safe for concurrent use.
type Recorder interface {
	InvoiceCreated()
	ConversionFailed(currencyCode string)
	NumberConflict()
	Swept(n int64)
}

type noopRecorder struct{}

func (noopRecorder) InvoiceCreated()         {}
func (noopRecorder) ConversionFailed(string) {}
func (noopRecorder) NumberConflict()         {}
func (noopRecorder) Swept(int64)             {}

// Config holds engine settings.
type Config struct {
	Sequence SequenceConfig

	// ReportingCurrency is the currency of ConvertedTotalAmount and summary sums.
	ReportingCurrency string

	// MaxAllocationRetries bounds re-allocation after a number collision on insert.
	MaxAllocationRetries int

	// RetryInitialInterval is the first backoff delay between allocation retries.
	RetryInitialInterval time.Duration
}

// DefaultConfig returns an engine configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Sequence:             DefaultSequenceConfig(),
		ReportingCurrency:    "USD",
		MaxAllocationRetries: 10,
		RetryInitialInterval: 10 * time.Millisecond,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the engine's notion of the current time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// Engine orchestrates invoice create, update, toggle, delete and list.
type Engine struct {
	store      Store
	converter  Converter
	sequence   *Sequence
	lifecycle  *Lifecycle
	aggregator *Aggregator
	validation *InputValidation
	config     Config
	metrics    Recorder
	now        func() time.Time
	log        zerolog.Logger
}

var _ services.InvoiceService = (*Engine)(nil)

// NewEngine wires the engine over store and converter.
func NewEngine(store Store, converter Converter, config Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if config.ReportingCurrency == "" {
		config.ReportingCurrency = defaults.ReportingCurrency
	}
	config.ReportingCurrency = strings.ToUpper(config.ReportingCurrency)
	if config.MaxAllocationRetries < 1 {
		config.MaxAllocationRetries = defaults.MaxAllocationRetries
	}
	if config.RetryInitialInterval <= 0 {
		config.RetryInitialInterval = defaults.RetryInitialInterval
	}

	e := &Engine{
		store:      store,
		converter:  converter,
		sequence:   NewSequence(store, config.Sequence),
		lifecycle:  NewLifecycle(store),
		aggregator: NewAggregator(store, config.ReportingCurrency),
		validation: NewInputValidation(),
		config:     config,
		metrics:    noopRecorder{},
		now:        time.Now,
		log:        logger.WithComponent("invoice-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates input, allocates a number, converts the total and inserts
// the invoice. When the store rejects an allocated number because another
// creator claimed it first, a fresh number is allocated and the insert retried.
// A caller-supplied number is never replaced; its collision is an ErrConflict.
func (e *Engine) Create(ctx context.Context, input services.InvoiceInput) (*models.Invoice, error) {
	const op = "Create"

	if err := e.validation.Validate(input); err != nil {
		return nil, err
	}

	explicit := strings.TrimSpace(input.InvoiceNumber) != ""
	number, err := e.sequence.Allocate(ctx, input.InvoiceNumber)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.metrics.NumberConflict()
		}
		return nil, err
	}

	converted, err := e.convert(ctx, op, input)
	if err != nil {
		return nil, err
	}

	now := e.now()
	status := input.Status
	if status == "" {
		status = models.StatusPending
	}
	inv := &models.Invoice{
		ID:                   uuid.NewString(),
		ClientID:             strings.TrimSpace(input.ClientID),
		InvoiceDate:          input.InvoiceDate,
		DueDate:              input.DueDate,
		Items:                input.Items,
		SubTotal:             input.SubTotal,
		TaxAmount:            input.TaxAmount,
		TotalAmount:          input.TotalAmount,
		Currency:             normalizeCurrency(input.Currency),
		ConvertedTotalAmount: converted,
		Status:               status,
		Notes:                input.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	attempts := 0
	insert := func() error {
		attempts++
		if number == "" {
			next, err := e.sequence.Allocate(ctx, "")
			if err != nil {
				return backoff.Permanent(err)
			}
			number = next
		}
		inv.InvoiceNumber = number

		err := e.store.Insert(ctx, inv)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return backoff.Permanent(wrapStore(op, err))
		}

		e.metrics.NumberConflict()
		if explicit {
			return backoff.Permanent(Conflict(op, number, err))
		}
		e.log.Debug().
			Str("invoice_number", number).
			Int("attempt", attempts).
			Msg("Invoice number claimed concurrently, allocating again")
		number = ""
		return err
	}

	if err := backoff.Retry(insert, e.allocationBackOff(ctx)); err != nil {
		if errors.Is(err, ErrNumberTaken) && !errors.Is(err, ErrConflict) {
			return nil, Conflict(op, inv.InvoiceNumber, err)
		}
		return nil, err
	}

	e.metrics.InvoiceCreated()
	e.log.Info().
		Str("id", inv.ID).
		Str("invoice_number", inv.InvoiceNumber).
		Str("client_id", inv.ClientID).
		Str("total", inv.TotalAmount.StringFixed(2)).
		Str("currency", inv.Currency.Code).
		Str("converted_total", inv.ConvertedTotalAmount.StringFixed(2)).
		Int("attempts", attempts).
		Msg("Invoice created")

	return inv, nil
}

// Update replaces the mutable fields of a live invoice. The invoice number is
// immutable; an input number that differs from the stored one is rejected.
// The total is converted again before anything is written.
func (e *Engine) Update(ctx context.Context, id string, input services.InvoiceInput) (*models.Invoice, error) {
	const op = "Update"

	if err := e.validation.Validate(input); err != nil {
		return nil, err
	}

	existing, err := e.lifecycle.load(ctx, op, id)
	if err != nil {
		return nil, err
	}

	if number := strings.TrimSpace(input.InvoiceNumber); number != "" && number != existing.InvoiceNumber {
		return nil, NewValidationError("invoice_number", number, "cannot be changed after creation")
	}

	converted, err := e.convert(ctx, op, input)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.ClientID = strings.TrimSpace(input.ClientID)
	updated.InvoiceDate = input.InvoiceDate
	updated.DueDate = input.DueDate
	updated.Items = input.Items
	updated.SubTotal = input.SubTotal
	updated.TaxAmount = input.TaxAmount
	updated.TotalAmount = input.TotalAmount
	updated.Currency = normalizeCurrency(input.Currency)
	updated.ConvertedTotalAmount = converted
	updated.Notes = input.Notes
	updated.UpdatedAt = e.now()
	// empty keeps the stored status, including an overdue set by a concurrent sweep
	updated.Status = input.Status

	stored, err := e.store.Update(ctx, &updated)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFound(op, id)
		}
		return nil, wrapStore(op, err)
	}

	e.log.Info().
		Str("id", id).
		Str("invoice_number", stored.InvoiceNumber).
		Str("status", string(stored.Status)).
		Str("converted_total", stored.ConvertedTotalAmount.StringFixed(2)).
		Msg("Invoice updated")

	return stored, nil
}

// ToggleStatus flips the invoice between paid and not paid.
func (e *Engine) ToggleStatus(ctx context.Context, id string) (*models.Invoice, error) {
	return e.lifecycle.Toggle(ctx, id, e.now())
}

// Delete soft-deletes the invoice.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.lifecycle.Delete(ctx, id, e.now())
}

// Get returns a live invoice.
func (e *Engine) Get(ctx context.Context, id string) (*models.Invoice, error) {
	return e.lifecycle.load(ctx, "Get", id)
}

// NextNumber returns the number the next create without an explicit number
// would try first.
func (e *Engine) NextNumber(ctx context.Context) (string, error) {
	return e.sequence.Allocate(ctx, "")
}

// Sweep runs the overdue sweep at the engine's current time.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	n, err := e.lifecycle.Sweep(ctx, e.now())
	if err != nil {
		return 0, err
	}
	e.metrics.Swept(n)
	return n, nil
}

// List sweeps, summarizes and pages, in that order.
func (e *Engine) List(ctx context.Context, req services.ListRequest) (*services.ListResult, error) {
	const op = "List"

	now := e.now()
	result := &services.ListResult{}

	swept, err := e.lifecycle.Sweep(ctx, now)
	if err != nil {
		e.log.Warn().Err(err).Msg("Overdue sweep failed, listing stored statuses")
		result.SweepError = err.Error()
	} else {
		result.Swept = swept
		e.metrics.Swept(swept)
	}

	base, custom := FiltersFromRequest(req)

	summary, err := e.aggregator.Dashboard(ctx, base, custom, now)
	if err != nil {
		return nil, err
	}
	result.Summary = summary

	opts := PageOptions{Page: req.Page, Limit: req.Limit, SortBy: req.SortBy, Desc: req.Desc}.Normalize()
	page, err := e.store.Page(ctx, custom, opts)
	if err != nil {
		return nil, wrapStore(op, err)
	}

	result.Invoices = page.Invoices
	result.Page = page.Page
	result.Limit = page.Limit
	result.TotalPages = page.TotalPages
	result.TotalRecords = page.TotalRecords

	e.log.Debug().
		Int64("swept", result.Swept).
		Int64("total_records", result.TotalRecords).
		Int("page", result.Page).
		Msg("Invoices listed")

	return result, nil
}

// FiltersFromRequest builds the base filter (everything but the status
// selection) and the custom filter (base plus the status selection).
func FiltersFromRequest(req services.ListRequest) (base, custom Filter) {
	base = Filter{
		ClientID:       strings.TrimSpace(req.ClientID),
		InvoiceFrom:    req.From,
		InvoiceTo:      req.To,
		NumberContains: strings.TrimSpace(req.Search),
	}
	custom = base
	if len(req.Status) > 0 {
		custom = base.WithStatus(req.Status...)
	}
	return base, custom
}

func (e *Engine) convert(ctx context.Context, op string, input services.InvoiceInput) (decimal.Decimal, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Currency.Code))
	converted, err := e.converter.Convert(ctx, code, input.TotalAmount)
	if err != nil {
		e.metrics.ConversionFailed(code)
		e.log.Error().
			Err(err).
			Str("currency", code).
			Str("amount", input.TotalAmount.String()).
			Msg("Currency conversion failed, invoice not written")
		return decimal.Decimal{}, ConversionFailed(op, err)
	}
	return converted, nil
}

func (e *Engine) allocationBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.config.RetryInitialInterval
	b.MaxInterval = 20 * e.config.RetryInitialInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.config.MaxAllocationRetries)), ctx)
}

func normalizeCurrency(c models.Currency) models.Currency {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	return c
}
