package filings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/taxpilot/taxpilot/internal/platform/db"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// Repository defines persistence for filings and their status history.
type Repository interface {
	Create(ctx context.Context, f TaxFiling) (TaxFiling, error)
	Get(ctx context.Context, id int64) (TaxFiling, error)
	ListByYear(ctx context.Context, year int) ([]TaxFiling, error)
	ListByClient(ctx context.Context, clientID string) ([]TaxFiling, error)
	AppendStatus(ctx context.Context, id int64, entry HistoryEntry) (TaxFiling, error)
	Update(ctx context.Context, id int64, patch Patch, at time.Time) (TaxFiling, error)
	Delete(ctx context.Context, id int64) error
	MetricRows(ctx context.Context, year int) ([]MetricRow, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const filingColumns = `id, client_id, tax_year, status, documents_received_at, submitted_at, accepted_at,
	approved_at, funded_at, estimated_refund, actual_refund, service_fee, fee_paid, preparer,
	office_location, filing_type, federal_status, state_status, notes, created_at, updated_at`

func scanFiling(row pgx.Row) (TaxFiling, error) {
	var f TaxFiling
	var status string
	err := row.Scan(&f.ID, &f.ClientID, &f.TaxYear, &status, &f.DocumentsReceivedAt, &f.SubmittedAt,
		&f.AcceptedAt, &f.ApprovedAt, &f.FundedAt, &f.EstimatedRefund, &f.ActualRefund, &f.ServiceFee,
		&f.FeePaid, &f.Preparer, &f.OfficeLocation, &f.FilingType, &f.FederalStatus, &f.StateStatus,
		&f.Notes, &f.CreatedAt, &f.UpdatedAt)
	f.Status = Status(status)
	return f, err
}

// Create inserts the filing together with its initial history entry.
func (r *PGRepository) Create(ctx context.Context, f TaxFiling) (TaxFiling, error) {
	var out TaxFiling
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO tax_filings (client_id, tax_year, status, estimated_refund, actual_refund,
	service_fee, fee_paid, preparer, office_location, filing_type, federal_status, state_status, notes,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
RETURNING `+filingColumns,
			f.ClientID, f.TaxYear, string(f.Status), f.EstimatedRefund, f.ActualRefund, f.ServiceFee, f.FeePaid,
			f.Preparer, f.OfficeLocation, f.FilingType, f.FederalStatus, f.StateStatus, f.Notes, f.CreatedAt)
		created, err := scanFiling(row)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return &shared.PublicError{
					Kind:  shared.ErrConflict,
					Msg:   fmt.Sprintf("filing for client %s and year %d already exists", f.ClientID, f.TaxYear),
					Cause: err,
				}
			}
			return err
		}
		for _, entry := range f.StatusHistory {
			if err := insertHistory(ctx, tx, created.ID, entry); err != nil {
				return err
			}
		}
		created.StatusHistory = append([]HistoryEntry(nil), f.StatusHistory...)
		out = created
		return nil
	})
	return out, err
}

func insertHistory(ctx context.Context, q db.Querier, filingID int64, entry HistoryEntry) error {
	_, err := q.Exec(ctx, `INSERT INTO tax_filing_status_history (filing_id, status, note, changed_by, changed_at)
VALUES ($1, $2, $3, $4, $5)`, filingID, string(entry.Status), entry.Note, entry.ChangedBy, entry.Date)
	return err
}

// Get returns the filing with its full history.
func (r *PGRepository) Get(ctx context.Context, id int64) (TaxFiling, error) {
	f, err := scanFiling(r.pool.QueryRow(ctx, `SELECT `+filingColumns+` FROM tax_filings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaxFiling{}, fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
		}
		return TaxFiling{}, err
	}
	history, err := r.history(ctx, r.pool, []int64{id})
	if err != nil {
		return TaxFiling{}, err
	}
	f.StatusHistory = history[id]
	return f, nil
}

// ListByYear returns filings for the tax year ordered by client.
func (r *PGRepository) ListByYear(ctx context.Context, year int) ([]TaxFiling, error) {
	return r.list(ctx, `SELECT `+filingColumns+` FROM tax_filings WHERE tax_year = $1 ORDER BY client_id`, year)
}

// ListByClient returns a client's filings, newest year first.
func (r *PGRepository) ListByClient(ctx context.Context, clientID string) ([]TaxFiling, error) {
	return r.list(ctx, `SELECT `+filingColumns+` FROM tax_filings WHERE client_id = $1 ORDER BY tax_year DESC`, clientID)
}

func (r *PGRepository) list(ctx context.Context, query string, arg any) ([]TaxFiling, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaxFiling
	var ids []int64
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
		ids = append(ids, f.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	history, err := r.history(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].StatusHistory = history[out[i].ID]
	}
	return out, nil
}

func (r *PGRepository) history(ctx context.Context, q db.Querier, ids []int64) (map[int64][]HistoryEntry, error) {
	rows, err := q.Query(ctx, `SELECT filing_id, status, note, changed_by, changed_at
FROM tax_filing_status_history WHERE filing_id = ANY($1) ORDER BY filing_id, changed_at, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]HistoryEntry, len(ids))
	for rows.Next() {
		var (
			filingID int64
			status   string
			entry    HistoryEntry
		)
		if err := rows.Scan(&filingID, &status, &entry.Note, &entry.ChangedBy, &entry.Date); err != nil {
			return nil, err
		}
		entry.Status = Status(status)
		out[filingID] = append(out[filingID], entry)
	}
	return out, rows.Err()
}

// AppendStatus sets the status and milestone and inserts the history row in one transaction.
func (r *PGRepository) AppendStatus(ctx context.Context, id int64, entry HistoryEntry) (TaxFiling, error) {
	setMilestone := ""
	if m := MilestoneFor(entry.Status); m != MilestoneNone {
		setMilestone = ", " + string(m) + " = $3"
	}
	var out TaxFiling
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		f, err := scanFiling(tx.QueryRow(ctx, `UPDATE tax_filings SET status = $2, updated_at = $3`+setMilestone+`
WHERE id = $1 RETURNING `+filingColumns, id, string(entry.Status), entry.Date))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
			}
			return err
		}
		if err := insertHistory(ctx, tx, id, entry); err != nil {
			return err
		}
		history, err := r.history(ctx, tx, []int64{id})
		if err != nil {
			return err
		}
		f.StatusHistory = history[id]
		out = f
		return nil
	})
	return out, err
}

// Update applies a partial patch without touching status or history.
func (r *PGRepository) Update(ctx context.Context, id int64, patch Patch, at time.Time) (TaxFiling, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, at}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addDecimal := func(column string, value *decimal.Decimal) {
		if value != nil {
			add(column, *value)
		}
	}
	addDecimal("estimated_refund", patch.EstimatedRefund)
	addDecimal("actual_refund", patch.ActualRefund)
	addDecimal("service_fee", patch.ServiceFee)
	if patch.FeePaid != nil {
		add("fee_paid", *patch.FeePaid)
	}
	for column, value := range map[string]*string{
		"preparer":        patch.Preparer,
		"office_location": patch.OfficeLocation,
		"filing_type":     patch.FilingType,
		"federal_status":  patch.FederalStatus,
		"state_status":    patch.StateStatus,
		"notes":           patch.Notes,
	} {
		if value != nil {
			add(column, *value)
		}
	}
	f, err := scanFiling(r.pool.QueryRow(ctx, `UPDATE tax_filings SET `+strings.Join(sets, ", ")+`
WHERE id = $1 RETURNING `+filingColumns, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaxFiling{}, fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
		}
		return TaxFiling{}, err
	}
	history, err := r.history(ctx, r.pool, []int64{id})
	if err != nil {
		return TaxFiling{}, err
	}
	f.StatusHistory = history[id]
	return f, nil
}

// Delete removes the filing row; history rows go with it via ON DELETE CASCADE.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tax_filings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
	}
	return nil
}

// MetricRows aggregates counts and refund sums per status for the year.
func (r *PGRepository) MetricRows(ctx context.Context, year int) ([]MetricRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*),
	COALESCE(SUM(estimated_refund), 0), COALESCE(SUM(actual_refund), 0)
FROM tax_filings WHERE tax_year = $1 GROUP BY status`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MetricRow
	for rows.Next() {
		var (
			row    MetricRow
			status string
		)
		if err := rows.Scan(&status, &row.Count, &row.EstimatedRefund, &row.ActualRefund); err != nil {
			return nil, err
		}
		row.Status = Status(status)
		out = append(out, row)
	}
	return out, rows.Err()
}
