package filings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taxpilot/taxpilot/internal/shared"
)

// AuditRecorder persists compliance records.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StatusNotifier is told about every applied status transition.
type StatusNotifier interface {
	FilingStatusChanged(ctx context.Context, f TaxFiling, entry HistoryEntry) error
}

// Service implements the filing lifecycle.
type Service struct {
	repo     Repository
	audit    AuditRecorder
	notifier StatusNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Audit    AuditRecorder
	Notifier StatusNotifier
	Logger   *slog.Logger
	Clock    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{repo: repo, audit: cfg.Audit, notifier: cfg.Notifier, logger: cfg.Logger, now: cfg.Clock}
}

// CreateInput holds the fields accepted when opening a filing.
type CreateInput struct {
	ClientID        string
	TaxYear         int
	Status          Status
	EstimatedRefund *decimal.Decimal
	ActualRefund    *decimal.Decimal
	ServiceFee      *decimal.Decimal
	FeePaid         bool
	Preparer        *string
	OfficeLocation  *string
	FilingType      *string
	FederalStatus   *string
	StateStatus     *string
	Notes           *string
}

// Create opens a filing. Only one filing may exist per client and tax year.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (TaxFiling, error) {
	in.ClientID = strings.TrimSpace(in.ClientID)
	if in.ClientID == "" {
		return TaxFiling{}, fmt.Errorf("%w: client id required", shared.ErrValidation)
	}
	if in.TaxYear <= 0 {
		return TaxFiling{}, fmt.Errorf("%w: tax year must be positive", shared.ErrValidation)
	}
	if in.Status == "" {
		in.Status = StatusNew
	}
	status, err := ParseStatus(string(in.Status))
	if err != nil {
		return TaxFiling{}, err
	}
	in.Status = status
	now := s.now()
	f := TaxFiling{
		ClientID:       in.ClientID,
		TaxYear:        in.TaxYear,
		Status:         in.Status,
		FeePaid:        in.FeePaid,
		Preparer:       in.Preparer,
		OfficeLocation: in.OfficeLocation,
		FilingType:     in.FilingType,
		FederalStatus:  in.FederalStatus,
		StateStatus:    in.StateStatus,
		Notes:          in.Notes,
		StatusHistory:  []HistoryEntry{{Status: in.Status, Date: now, ChangedBy: actorRef(actorID)}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	Patch{EstimatedRefund: in.EstimatedRefund, ActualRefund: in.ActualRefund, ServiceFee: in.ServiceFee}.Apply(&f)
	created, err := s.repo.Create(ctx, f)
	if err != nil {
		return TaxFiling{}, err
	}
	s.record(ctx, actorID, "filing.create", created.ID, map[string]any{
		"clientId": created.ClientID,
		"taxYear":  created.TaxYear,
		"status":   string(created.Status),
	})
	return created, nil
}

// UpdateStatus moves the filing to status, appending history and stamping the
// status milestone. Any status may follow any other.
func (s *Service) UpdateStatus(ctx context.Context, actorID, id int64, status Status, note *string) (TaxFiling, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return TaxFiling{}, err
	}
	if note != nil && strings.TrimSpace(*note) == "" {
		note = nil
	}
	entry := HistoryEntry{Status: status, Date: s.now(), Note: note, ChangedBy: actorRef(actorID)}
	f, err := s.repo.AppendStatus(ctx, id, entry)
	if err != nil {
		return TaxFiling{}, err
	}
	s.record(ctx, actorID, "filing.status", f.ID, map[string]any{"status": string(status)})
	if s.notifier != nil {
		if err := s.notifier.FilingStatusChanged(ctx, f, entry); err != nil {
			s.logger.Warn("notify filing status", slog.Int64("filing_id", f.ID), slog.String("status", string(status)), slog.Any("error", err))
		}
	}
	return f, nil
}

// Update applies a field patch. Status, history and milestones are untouched.
func (s *Service) Update(ctx context.Context, actorID, id int64, patch Patch) (TaxFiling, error) {
	if patch.Empty() {
		return TaxFiling{}, fmt.Errorf("%w: no fields to update", shared.ErrValidation)
	}
	f, err := s.repo.Update(ctx, id, patch, s.now())
	if err != nil {
		return TaxFiling{}, err
	}
	s.record(ctx, actorID, "filing.update", f.ID, nil)
	return f, nil
}

// Get returns one filing.
func (s *Service) Get(ctx context.Context, id int64) (TaxFiling, error) {
	return s.repo.Get(ctx, id)
}

// ListByYear returns every filing for the tax year.
func (s *Service) ListByYear(ctx context.Context, year int) ([]TaxFiling, error) {
	return s.repo.ListByYear(ctx, year)
}

// ListByClient returns every filing of the client.
func (s *Service) ListByClient(ctx context.Context, clientID string) ([]TaxFiling, error) {
	return s.repo.ListByClient(ctx, strings.TrimSpace(clientID))
}

// Delete removes a filing.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "filing.delete", id, nil)
	return nil
}

// Metrics reports per-status counts and refund totals for year. Every known
// status is present in ByStatus, zero when no filing holds it.
func (s *Service) Metrics(ctx context.Context, year int) (Metrics, error) {
	rows, err := s.repo.MetricRows(ctx, year)
	if err != nil {
		return Metrics{}, err
	}
	m := Metrics{
		Year:                 year,
		ByStatus:             make(map[Status]int, len(Statuses())),
		TotalEstimatedRefund: decimal.Zero,
		TotalActualRefund:    decimal.Zero,
	}
	for _, st := range Statuses() {
		m.ByStatus[st] = 0
	}
	for _, row := range rows {
		m.Total += row.Count
		m.ByStatus[row.Status] += row.Count
		m.TotalEstimatedRefund = m.TotalEstimatedRefund.Add(row.EstimatedRefund)
		m.TotalActualRefund = m.TotalActualRefund.Add(row.ActualRefund)
	}
	return m, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, filingID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "tax_filing",
		EntityID: strconv.FormatInt(filingID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Error("record filing audit", slog.String("action", action), slog.Any("error", err))
	}
}

func actorRef(actorID int64) *int64 {
	if actorID == 0 {
		return nil
	}
	return &actorID
}
