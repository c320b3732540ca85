// Package sheets exports invoice listings and dashboard summaries to Google Sheets.
package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"invoices/internal/logger"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// invoiceHeaders are the columns of the invoice worksheet, A to K.
var invoiceHeaders = []interface{}{
	"Invoice Number", "Client", "Invoice Date", "Due Date", "Status",
	"Currency", "Total", "Converted Total", "Reporting Currency", "Notes", "Updated",
}

// summaryHeaders are the columns of the summary worksheet, A to C.
var summaryHeaders = []interface{}{"Bucket", "Count", "Sum"}

// Service handles Google Sheets operations
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// NewSheetsService creates a Sheets client authenticated with the service
// account from GOOGLE_APPLICATION_CREDENTIALS (a file) or GOOGLE_CREDENTIALS (inline JSON).
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	const op = "NewSheetsService"

	var (
		creds []byte
		err   error
	)
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	return NewWithOptions(ctx, sheetURL, option.WithHTTPClient(config.Client(ctx)))
}

// NewWithOptions creates a Service for the spreadsheet at sheetURL using the
// given client options as is.
func NewWithOptions(ctx context.Context, sheetURL string, opts ...option.ClientOption) (*Service, error) {
	const op = "NewWithOptions"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := ExtractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}
	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func ExtractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format: %q", url)
	}
	return matches[1], nil
}

// WriteReport replaces the contents of sheetName with the listed invoices and
// of "<sheetName> Summary" with the dashboard buckets.
func (s *Service) WriteReport(ctx context.Context, result *services.ListResult, sheetName string) error {
	const op = "WriteReport"

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(result.Invoices)).
		Msg("Writing invoice report to Google Sheet")

	invoiceValues := append([][]interface{}{invoiceHeaders}, InvoiceRows(result.Invoices, result.Summary.Currency)...)
	if err := s.replaceSheet(ctx, sheetName, invoiceValues, len(invoiceHeaders)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	summarySheet := sheetName + " Summary"
	summaryValues := append([][]interface{}{summaryHeaders}, SummaryRows(result.Summary)...)
	if err := s.replaceSheet(ctx, summarySheet, summaryValues, len(summaryHeaders)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info().
		Int("rows_written", len(invoiceValues)-1).
		Str("summary_sheet", summarySheet).
		Msg("Successfully wrote invoice report to Google Sheet")

	return nil
}

// InvoiceRows converts invoices to sheet rows in invoiceHeaders order.
func InvoiceRows(invoices []*models.Invoice, reportingCurrency string) [][]interface{} {
	rows := make([][]interface{}, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []interface{}{
			inv.InvoiceNumber,
			inv.ClientID,
			formatDate(inv.InvoiceDate),
			formatDate(inv.DueDate),
			string(inv.Status),
			inv.Currency.Code,
			inv.TotalAmount.StringFixed(2),
			inv.ConvertedTotalAmount.StringFixed(2),
			reportingCurrency,
			inv.Notes,
			inv.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

// SummaryRows converts the dashboard to one row per bucket.
func SummaryRows(d services.Dashboard) [][]interface{} {
	buckets := []struct {
		name   string
		totals services.BucketTotals
	}{
		{"Total", d.Total},
		{"Paid", d.Paid},
		{"Pending", d.Pending},
		{"Overdue", d.Overdue},
		{"Selected", d.Custom},
	}

	rows := make([][]interface{}, 0, len(buckets)+1)
	for _, b := range buckets {
		rows = append(rows, []interface{}{b.name, b.totals.Count, b.totals.Sum.StringFixed(2)})
	}
	rows = append(rows, []interface{}{"As of", d.AsOf.UTC().Format(time.RFC3339), d.Currency})
	return rows
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// replaceSheet clears sheetName and writes values starting at A1.
func (s *Service) replaceSheet(ctx context.Context, sheetName string, values [][]interface{}, columns int) error {
	const op = "replaceSheet"

	sheetID, created, err := s.ensureSheet(ctx, sheetName)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	fullRange := fmt.Sprintf("%s!A:%s", sheetName, columnLetter(columns))
	_, err = s.sheetsService.Spreadsheets.Values.Clear(s.spreadsheetID, fullRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to clear %s: %w", op, sheetName, err)
	}

	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		sheetName+"!A1",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to write %s: %w", op, sheetName, err)
	}

	if created {
		if err := s.formatHeaders(ctx, sheetID, int64(columns)); err != nil {
			s.log.Warn().Err(err).Str("sheet", sheetName).Msg("Failed to format headers, continuing anyway")
		}
	}
	return nil
}

// ensureSheet returns the id of sheetName, adding the sheet when missing.
func (s *Service) ensureSheet(ctx context.Context, sheetName string) (int64, bool, error) {
	const op = "ensureSheet"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, false, nil
		}
	}

	s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

	resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("%s: failed to create sheet: %w", op, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, false, fmt.Errorf("%s: create sheet %s: empty reply", op, sheetName)
	}

	return resp.Replies[0].AddSheet.Properties.SheetId, true, nil
}

// formatHeaders makes the header row bold and auto-sizes the columns
func (s *Service) formatHeaders(ctx context.Context, sheetID, columns int64) error {
	const op = "formatHeaders"

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}
	return nil
}

// columnLetter maps 1..26 to A..Z.
func columnLetter(n int) string {
	if n < 1 || n > 26 {
		return "Z"
	}
	return string(rune('A' + n - 1))
}
