// Package postgres implements invoice.Store on PostgreSQL using pgx.
//
// The schema lives in internal/postgres/migrations. Invoice numbers are kept
// unique among live rows by the partial index invoices_live_number_key, whose
// violations surface from Insert as invoice.ErrNumberTaken.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"invoices/internal/invoice"
	"invoices/internal/logger"
	db "invoices/internal/postgres"
	"invoices/pkg/models"
)

const (
	uniqueViolation     = "23505"
	liveNumberIndexName = "invoices_live_number_key"
)

const columns = `id, invoice_number, client_id, invoice_date, due_date, items,
	sub_total, tax_amount, total_amount, currency, converted_total_amount,
	status, is_deleted, notes, created_at, updated_at`

// Store is a pgx-backed invoice.Store.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ invoice.Store = (*Store)(nil)

// New creates a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		log:  logger.WithComponent("store.postgres"),
	}
}

// Get returns the invoice with id, including soft-deleted ones.
func (s *Store) Get(ctx context.Context, id string) (*models.Invoice, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, invoice.ErrNotFound
	}

	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM invoices WHERE id = $1`, uid)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return inv, nil
}

// NumberTaken reports whether a live invoice holds number.
func (s *Store) NumberTaken(ctx context.Context, number string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_number = $1 AND NOT is_deleted)`,
		number,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check invoice number %s: %w", number, err)
	}
	return taken, nil
}

// LatestNumber returns the highest <prefix><digits> suffix, deleted rows included.
// Suffixes longer than 18 digits are ignored so the value always fits an int64.
func (s *Store) LatestNumber(ctx context.Context, prefix string) (int64, bool, error) {
	pattern := "^" + regexp.QuoteMeta(prefix) + "[0-9]{1,18}$"
	offset := utf8.RuneCountInString(prefix) + 1

	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT substring(invoice_number FROM $2::int)::bigint AS n
		FROM invoices
		WHERE invoice_number ~ $1
		ORDER BY n DESC
		LIMIT 1`,
		pattern, offset,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("latest invoice number for %q: %w", prefix, err)
	}
	return n, true, nil
}

// Insert stores a new invoice.
func (s *Store) Insert(ctx context.Context, inv *models.Invoice) error {
	uid, err := uuid.Parse(inv.ID)
	if err != nil {
		return fmt.Errorf("insert invoice: invalid id %q: %w", inv.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO invoices (`+columns+`, currency_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		uid, inv.InvoiceNumber, inv.ClientID, inv.InvoiceDate, inv.DueDate, items(inv),
		inv.SubTotal, inv.TaxAmount, inv.TotalAmount, inv.Currency, inv.ConvertedTotalAmount,
		string(inv.Status), inv.IsDeleted, inv.Notes, inv.CreatedAt, inv.UpdatedAt,
		strings.ToUpper(inv.Currency.Code),
	)
	if isNumberTaken(err) {
		s.log.Debug().Str("invoice_number", inv.InvoiceNumber).Msg("Insert rejected by unique number index")
		return invoice.ErrNumberTaken
	}
	if err != nil {
		return fmt.Errorf("insert invoice %s: %w", inv.InvoiceNumber, err)
	}
	return nil
}

// Update overwrites the mutable fields of a live invoice.
func (s *Store) Update(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	uid, err := uuid.Parse(inv.ID)
	if err != nil {
		return nil, invoice.ErrNotFound
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE invoices SET
			client_id = $2,
			invoice_date = $3,
			due_date = $4,
			items = $5,
			sub_total = $6,
			tax_amount = $7,
			total_amount = $8,
			currency = $9,
			currency_code = $10,
			converted_total_amount = $11,
			status = COALESCE(NULLIF($12, ''), status),
			notes = $13,
			updated_at = $14
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+columns,
		uid, inv.ClientID, inv.InvoiceDate, inv.DueDate, items(inv),
		inv.SubTotal, inv.TaxAmount, inv.TotalAmount, inv.Currency, strings.ToUpper(inv.Currency.Code),
		inv.ConvertedTotalAmount, string(inv.Status), inv.Notes, inv.UpdatedAt,
	)
	updated, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update invoice %s: %w", inv.ID, err)
	}
	return updated, nil
}

// CompareAndSetStatus moves a live invoice from one status to another in a single statement.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.Invoice, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, invoice.ErrNotFound
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE invoices SET status = $3, updated_at = $4
		WHERE id = $1 AND NOT is_deleted AND status = $2
		RETURNING `+columns,
		uid, string(from), string(to), at,
	)
	inv, err := scanInvoice(row)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("set status of invoice %s: %w", id, err)
	}

	var deleted bool
	err = s.pool.QueryRow(ctx, `SELECT is_deleted FROM invoices WHERE id = $1`, uid).Scan(&deleted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, invoice.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("set status of invoice %s: %w", id, err)
	case deleted:
		return nil, invoice.ErrNotFound
	default:
		return nil, invoice.ErrStatusChanged
	}
}

// SoftDelete flags the invoice as deleted, freeing its number.
func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return invoice.ErrNotFound
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND NOT is_deleted`,
		uid, at,
	)
	if err != nil {
		return fmt.Errorf("delete invoice %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, uid).Scan(&exists); err != nil {
		return fmt.Errorf("delete invoice %s: %w", id, err)
	}
	if !exists {
		return invoice.ErrNotFound
	}
	return invoice.ErrAlreadyDeleted
}

// MarkOverdue moves every live, non-paid invoice due before now to overdue.
// Invoices already overdue are not counted.
func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices SET status = 'overdue', updated_at = $1
		WHERE NOT is_deleted
		  AND status NOT IN ('paid', 'overdue')
		  AND due_date < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Aggregate computes every bucket in one statement, so all totals come from
// the same snapshot.
func (s *Store) Aggregate(ctx context.Context, filters []invoice.Filter) ([]invoice.Totals, error) {
	if len(filters) == 0 {
		return []invoice.Totals{}, nil
	}

	a := &args{}
	selects := make([]string, 0, 2*len(filters))
	for _, f := range filters {
		cond := condition(f, a)
		selects = append(selects,
			"COUNT(*) FILTER (WHERE "+cond+")",
			"COALESCE(SUM(converted_total_amount) FILTER (WHERE "+cond+"), 0)",
		)
	}
	query := "SELECT " + strings.Join(selects, ",\n\t") + "\nFROM invoices WHERE NOT is_deleted"

	totals := make([]invoice.Totals, len(filters))
	dest := make([]any, 0, 2*len(filters))
	for i := range totals {
		dest = append(dest, &totals[i].Count, &totals[i].Sum)
	}
	if err := s.pool.QueryRow(ctx, query, a.values...).Scan(dest...); err != nil {
		return nil, fmt.Errorf("aggregate invoices: %w", err)
	}
	return totals, nil
}

// Page counts and fetches one page inside a repeatable-read transaction.
func (s *Store) Page(ctx context.Context, filter invoice.Filter, opts invoice.PageOptions) (*invoice.Page, error) {
	opts = opts.Normalize()

	a := &args{}
	where := condition(filter, a)
	countArgs := append([]any(nil), a.values...)
	limit := a.add(opts.Limit)
	offset := a.add(opts.Offset())

	var (
		total    int64
		invoices []*models.Invoice
	)
	err := db.WithTransaction(ctx, s.pool, pgx.RepeatableRead, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE `+where, countArgs...).Scan(&total); err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			`SELECT `+columns+` FROM invoices WHERE `+where+` `+orderBy(opts)+` LIMIT `+limit+` OFFSET `+offset,
			a.values...,
		)
		if err != nil {
			return err
		}
		invoices, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Invoice, error) {
			return scanInvoice(row)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("page invoices: %w", err)
	}
	return invoice.NewPage(invoices, opts, total), nil
}

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	var (
		inv    models.Invoice
		id     uuid.UUID
		status string
	)
	err := row.Scan(
		&id, &inv.InvoiceNumber, &inv.ClientID, &inv.InvoiceDate, &inv.DueDate, &inv.Items,
		&inv.SubTotal, &inv.TaxAmount, &inv.TotalAmount, &inv.Currency, &inv.ConvertedTotalAmount,
		&status, &inv.IsDeleted, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.ID = id.String()
	inv.Status = models.Status(status)
	if inv.Items == nil {
		inv.Items = []models.Item{}
	}
	return &inv, nil
}

func items(inv *models.Invoice) []models.Item {
	if inv.Items == nil {
		return []models.Item{}
	}
	return inv.Items
}

func isNumberTaken(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == liveNumberIndexName
}
