package filings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taxpilot/taxpilot/internal/shared"
)

type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]TaxFiling
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[int64]TaxFiling)}
}

func clone(f TaxFiling) TaxFiling {
	f.StatusHistory = append([]HistoryEntry(nil), f.StatusHistory...)
	return f
}

func (r *fakeRepo) Create(ctx context.Context, f TaxFiling) (TaxFiling, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.ClientID == f.ClientID && existing.TaxYear == f.TaxYear {
			return TaxFiling{}, fmt.Errorf("%w: duplicate filing", shared.ErrConflict)
		}
	}
	r.nextID++
	f.ID = r.nextID
	r.rows[f.ID] = clone(f)
	return clone(f), nil
}

func (r *fakeRepo) Get(ctx context.Context, id int64) (TaxFiling, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	if !ok {
		return TaxFiling{}, fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
	}
	return clone(f), nil
}

func (r *fakeRepo) filter(keep func(TaxFiling) bool) []TaxFiling {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TaxFiling
	for _, f := range r.rows {
		if keep(f) {
			out = append(out, clone(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRepo) ListByYear(ctx context.Context, year int) ([]TaxFiling, error) {
	return r.filter(func(f TaxFiling) bool { return f.TaxYear == year }), nil
}

func (r *fakeRepo) ListByClient(ctx context.Context, clientID string) ([]TaxFiling, error) {
	return r.filter(func(f TaxFiling) bool { return f.ClientID == clientID }), nil
}

func (r *fakeRepo) AppendStatus(ctx context.Context, id int64, entry HistoryEntry) (TaxFiling, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	if !ok {
		return TaxFiling{}, fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
	}
	f.ApplyStatus(entry)
	r.rows[id] = clone(f)
	return clone(f), nil
}

func (r *fakeRepo) Update(ctx context.Context, id int64, patch Patch, at time.Time) (TaxFiling, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	if !ok {
		return TaxFiling{}, fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
	}
	patch.Apply(&f)
	f.UpdatedAt = at
	r.rows[id] = clone(f)
	return clone(f), nil
}

func (r *fakeRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return fmt.Errorf("%w: filing %d", shared.ErrNotFound, id)
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeRepo) MetricRows(ctx context.Context, year int) ([]MetricRow, error) {
	byStatus := make(map[Status]*MetricRow)
	var order []Status
	for _, f := range r.filter(func(f TaxFiling) bool { return f.TaxYear == year }) {
		row, ok := byStatus[f.Status]
		if !ok {
			row = &MetricRow{Status: f.Status, EstimatedRefund: decimal.Zero, ActualRefund: decimal.Zero}
			byStatus[f.Status] = row
			order = append(order, f.Status)
		}
		row.Count++
		if f.EstimatedRefund.Valid {
			row.EstimatedRefund = row.EstimatedRefund.Add(f.EstimatedRefund.Decimal)
		}
		if f.ActualRefund.Valid {
			row.ActualRefund = row.ActualRefund.Add(f.ActualRefund.Decimal)
		}
	}
	out := make([]MetricRow, 0, len(order))
	for _, st := range order {
		out = append(out, *byStatus[st])
	}
	return out, nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []HistoryEntry
	err     error
}

func (n *recordingNotifier) FilingStatusChanged(ctx context.Context, f TaxFiling, entry HistoryEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return n.err
}

// stepClock returns a clock advancing one minute per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Minute)
		return t
	}
}
