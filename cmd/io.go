package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

// invoiceFile is the JSON shape accepted by create, update and import.
// Dates may be plain dates (2024-03-01) or RFC 3339 timestamps.
type invoiceFile struct {
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      string          `json:"client_id"`
	InvoiceDate   string          `json:"invoice_date"`
	DueDate       string          `json:"due_date"`
	Items         []models.Item   `json:"items"`
	SubTotal      decimal.Decimal `json:"sub_total"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      models.Currency `json:"currency"`
	Status        models.Status   `json:"status"`
	Notes         string          `json:"notes"`
}

func (f invoiceFile) toInput() (services.InvoiceInput, error) {
	invoiceDate, err := parseDate(f.InvoiceDate)
	if err != nil {
		return services.InvoiceInput{}, fmt.Errorf("invoice_date: %w", err)
	}
	dueDate, err := parseDate(f.DueDate)
	if err != nil {
		return services.InvoiceInput{}, fmt.Errorf("due_date: %w", err)
	}
	return services.InvoiceInput{
		InvoiceNumber: f.InvoiceNumber,
		ClientID:      f.ClientID,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Items:         f.Items,
		SubTotal:      f.SubTotal,
		TaxAmount:     f.TaxAmount,
		TotalAmount:   f.TotalAmount,
		Currency:      f.Currency,
		Status:        f.Status,
		Notes:         f.Notes,
	}, nil
}

// parseDate accepts 2006-01-02 or RFC 3339. An empty string is the zero time,
// which input validation then reports.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", raw)
	}
	return t, nil
}

// openInput opens path for reading, or stdin when path is "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	return f, nil
}

// readInvoiceInput reads a single invoice from path.
func readInvoiceInput(path string) (services.InvoiceInput, error) {
	r, err := openInput(path)
	if err != nil {
		return services.InvoiceInput{}, err
	}
	defer r.Close()

	var file invoiceFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return services.InvoiceInput{}, fmt.Errorf("failed to parse invoice JSON: %w", err)
	}
	return file.toInput()
}

// readInvoiceInputs reads a JSON array of invoices from path.
func readInvoiceInputs(path string) ([]invoiceFile, error) {
	r, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var files []invoiceFile
	if err := json.NewDecoder(r).Decode(&files); err != nil {
		return nil, fmt.Errorf("failed to parse invoice list JSON: %w", err)
	}
	return files, nil
}

// writeJSON pretty-prints v to outputPath, or stdout when outputPath is empty.
func writeJSON(v interface{}, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal output to JSON")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(jsonData)).
			Msg("Output written to file")
		return nil
	}

	if _, err := os.Stdout.Write(jsonData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Println()
	return nil
}
