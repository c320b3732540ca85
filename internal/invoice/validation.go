package invoice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"invoices/internal/logger"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

var currencyCodePattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// amountTolerance is how far SubTotal+TaxAmount may drift from TotalAmount
// before a warning is logged.
var amountTolerance = decimal.NewFromFloat(0.02)

// InputValidation checks caller input before any side effect
type InputValidation struct {
	log zerolog.Logger
}

// NewInputValidation creates a new input validation service
func NewInputValidation() *InputValidation {
	return &InputValidation{
		log: logger.WithComponent("input-validation"),
	}
}

// Validate returns every field problem joined into one error, or nil.
// The returned error matches ErrValidation.
func (v *InputValidation) Validate(input services.InvoiceInput) error {
	var errs []error

	if strings.TrimSpace(input.ClientID) == "" {
		errs = append(errs, NewValidationError("client_id", input.ClientID, "is required"))
	}
	if input.InvoiceDate.IsZero() {
		errs = append(errs, NewValidationError("invoice_date", input.InvoiceDate, "is required"))
	}
	if input.DueDate.IsZero() {
		errs = append(errs, NewValidationError("due_date", input.DueDate, "is required"))
	}
	if !input.InvoiceDate.IsZero() && !input.DueDate.IsZero() && input.DueDate.Before(input.InvoiceDate) {
		errs = append(errs, NewValidationError("due_date", input.DueDate.Format("2006-01-02"),
			"must be on or after invoice_date"))
	}
	if !currencyCodePattern.MatchString(strings.TrimSpace(input.Currency.Code)) {
		errs = append(errs, NewValidationError("currency.code", input.Currency.Code, "must be a 3-letter ISO code"))
	}
	if !input.TotalAmount.IsPositive() {
		errs = append(errs, NewValidationError("total_amount", input.TotalAmount, "must be greater than zero"))
	}
	if input.SubTotal.IsNegative() {
		errs = append(errs, NewValidationError("sub_total", input.SubTotal, "must not be negative"))
	}
	if input.TaxAmount.IsNegative() {
		errs = append(errs, NewValidationError("tax_amount", input.TaxAmount, "must not be negative"))
	}
	switch input.Status {
	case "", models.StatusPending, models.StatusPaid, models.StatusUnpaid:
	case models.StatusOverdue:
		errs = append(errs, NewValidationError("status", input.Status, "overdue is set by the sweep only"))
	default:
		errs = append(errs, NewValidationError("status", input.Status, "unknown status"))
	}
	for i, item := range input.Items {
		if item.Quantity.IsNegative() {
			errs = append(errs, NewValidationError(fmt.Sprintf("items[%d].quantity", i), item.Quantity, "must not be negative"))
		}
		if item.Amount.IsNegative() {
			errs = append(errs, NewValidationError(fmt.Sprintf("items[%d].amount", i), item.Amount, "must not be negative"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, warning := range v.CrossCheckAmounts(input) {
		v.log.Warn().
			Str("client_id", input.ClientID).
			Str("invoice_number", input.InvoiceNumber).
			Msg(warning)
	}
	return nil
}

// CrossCheckAmounts compares the given totals with each other. Totals are
// accepted as given, so mismatches are only reported.
func (v *InputValidation) CrossCheckAmounts(input services.InvoiceInput) []string {
	var warnings []string

	if !input.SubTotal.IsZero() {
		calculated := input.SubTotal.Add(input.TaxAmount)
		if calculated.Sub(input.TotalAmount).Abs().GreaterThan(amountTolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"Amount calculation mismatch: sub_total(%s) + tax_amount(%s) = %s, but total_amount=%s",
				input.SubTotal.StringFixed(2), input.TaxAmount.StringFixed(2),
				calculated.StringFixed(2), input.TotalAmount.StringFixed(2)))
		}
	}

	if len(input.Items) > 0 && !input.SubTotal.IsZero() {
		itemSum := decimal.Zero
		for _, item := range input.Items {
			itemSum = itemSum.Add(item.Amount)
		}
		if itemSum.Sub(input.SubTotal).Abs().GreaterThan(amountTolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"Item amounts sum to %s, but sub_total=%s",
				itemSum.StringFixed(2), input.SubTotal.StringFixed(2)))
		}
	}

	return warnings
}
