package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"invoices/internal/invoice"
	"invoices/pkg/models"
)

var importCmd = &cobra.Command{
	Use:   "import [json-file]",
	Short: "Create many invoices from a JSON array in parallel",
	Long: `Create every invoice in a JSON array (same fields as create) using a pool of
parallel workers. Each invoice gets its own number; concurrent creates never
share one. Failures are reported per entry and do not stop the others.

Optional environment variables:
  IMPORT_WORKERS - Number of parallel workers (default: 8)`,
	Example: `  # Import with the default worker count
  invoices import invoices.json

  # Import with 4 workers and save the per-entry results
  invoices import invoices.json --workers 4 -o results.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// ImportResult is the outcome of creating one entry of the import file.
type ImportResult struct {
	Index   int             `json:"index"`
	Status  string          `json:"status"` // "success", "error"
	Invoice *models.Invoice `json:"invoice,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ImportSummary is the JSON output of the import command.
type ImportSummary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ImportResult `json:"results"`
}

// importJob is one entry handed to a worker.
type importJob struct {
	Entry invoiceFile
	Index int
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("workers", 0, "Number of parallel workers (default: IMPORT_WORKERS or 8)")
	importCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	workers, _ := cmd.Flags().GetInt("workers")
	outputPath, _ := cmd.Flags().GetString("output")
	if workers <= 0 {
		workers = getNumWorkers()
	}

	entries, err := readInvoiceInputs(path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No invoices in input file.")
		return nil
	}

	return withApp(cmd, "import", func(ctx context.Context, a *app, log zerolog.Logger) error {
		log.Info().
			Str("file", path).
			Int("invoices", len(entries)).
			Int("workers", workers).
			Msg("Starting invoice import")

		fmt.Fprintf(cmd.ErrOrStderr(), "Importing %d invoices with %d parallel workers...\n", len(entries), workers)

		results := importInParallel(ctx, a.engine, entries, workers, log)

		summary := ImportSummary{Total: len(results), Results: results}
		for _, r := range results {
			if r.Status == "success" {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}

		fmt.Fprintln(cmd.ErrOrStderr(), strings.Repeat("=", 50))
		fmt.Fprintf(cmd.ErrOrStderr(), "Succeeded: %d\n", summary.Succeeded)
		if summary.Failed > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed: %d\n", summary.Failed)
		}

		log.Info().
			Int("total", summary.Total).
			Int("succeeded", summary.Succeeded).
			Int("failed", summary.Failed).
			Msg("Invoice import completed")

		return writeJSON(summary, outputPath, log)
	})
}

// getNumWorkers returns the number of workers from environment or default
func getNumWorkers() int {
	if workersStr := os.Getenv("IMPORT_WORKERS"); workersStr != "" {
		if workers, err := strconv.Atoi(workersStr); err == nil && workers > 0 {
			return workers
		}
	}
	return 8
}

// importInParallel creates entries using a worker pool. Results keep the input order.
func importInParallel(ctx context.Context, engine *invoice.Engine, entries []invoiceFile, numWorkers int, log zerolog.Logger) []ImportResult {
	jobs := make(chan importJob, len(entries))
	results := make([]ImportResult, len(entries))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				log.Debug().
					Int("worker", workerID).
					Int("index", job.Index+1).
					Msg("Worker creating invoice")

				result := importOne(ctx, engine, job)
				results[job.Index] = result

				mu.Lock()
				processedCount++
				fmt.Fprintf(os.Stderr, "[%d/%d] entry %d - %s", processedCount, len(entries), job.Index+1, result.Status)
				if result.Invoice != nil {
					fmt.Fprintf(os.Stderr, " (%s)", result.Invoice.InvoiceNumber)
				} else {
					fmt.Fprintf(os.Stderr, " (%s)", result.Error)
				}
				fmt.Fprintln(os.Stderr)
				mu.Unlock()
			}
		}(w)
	}

	for i, entry := range entries {
		jobs <- importJob{Entry: entry, Index: i}
	}
	close(jobs)

	wg.Wait()

	return results
}

func importOne(ctx context.Context, engine *invoice.Engine, job importJob) ImportResult {
	result := ImportResult{Index: job.Index, Status: "error"}

	input, err := job.Entry.toInput()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	inv, err := engine.Create(ctx, input)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Invoice = inv
	result.Status = "success"
	return result
}
