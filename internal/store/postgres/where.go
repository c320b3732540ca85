package postgres

import (
	"fmt"
	"strings"

	"invoices/internal/invoice"
	"invoices/pkg/models"
)

// args accumulates positional query parameters shared by several clauses.
type args struct {
	values []any
}

// add appends v and returns its placeholder.
func (a *args) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// condition renders f as a boolean SQL expression over the invoices table.
// The deleted flag is always part of it.
func condition(f invoice.Filter, a *args) string {
	clauses := []string{"NOT is_deleted"}

	if f.ClientID != "" {
		clauses = append(clauses, "client_id = "+a.add(f.ClientID))
	}
	if f.Statuses != nil {
		if len(f.Statuses) == 0 {
			return "FALSE"
		}
		clauses = append(clauses, "status = ANY("+a.add(statusStrings(f.Statuses))+")")
	}
	if len(f.ExcludedStatuses) > 0 {
		clauses = append(clauses, "status <> ALL("+a.add(statusStrings(f.ExcludedStatuses))+")")
	}
	if !f.DueBefore.IsZero() {
		clauses = append(clauses, "due_date < "+a.add(f.DueBefore))
	}
	if !f.InvoiceFrom.IsZero() {
		clauses = append(clauses, "invoice_date >= "+a.add(f.InvoiceFrom))
	}
	if !f.InvoiceTo.IsZero() {
		clauses = append(clauses, "invoice_date <= "+a.add(f.InvoiceTo))
	}
	if f.NumberContains != "" {
		clauses = append(clauses, "invoice_number ILIKE "+a.add("%"+likeEscaper.Replace(f.NumberContains)+"%"))
	}

	return "(" + strings.Join(clauses, " AND ") + ")"
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var sortColumns = map[string]string{
	invoice.SortCreatedAt:     "created_at",
	invoice.SortInvoiceDate:   "invoice_date",
	invoice.SortDueDate:       "due_date",
	invoice.SortTotal:         "converted_total_amount",
	invoice.SortInvoiceNumber: "invoice_number",
}

// orderBy renders a whitelisted ORDER BY clause with id as tie-break.
func orderBy(opts invoice.PageOptions) string {
	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", column, dir, dir)
}
