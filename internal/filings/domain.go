package filings

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taxpilot/taxpilot/internal/shared"
)

// Status is the lifecycle state of a filing.
type Status string

// Statuses in intended real-world order. Transitions between any two are allowed.
const (
	StatusNew              Status = "new"
	StatusDocumentsPending Status = "documents_pending"
	StatusReview           Status = "review"
	StatusFiled            Status = "filed"
	StatusAccepted         Status = "accepted"
	StatusApproved         Status = "approved"
	StatusPaid             Status = "paid"
)

// Statuses returns every known status in progression order.
func Statuses() []Status {
	return []Status{StatusNew, StatusDocumentsPending, StatusReview, StatusFiled, StatusAccepted, StatusApproved, StatusPaid}
}

// ParseStatus validates raw input against the known statuses.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Statuses() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown filing status %q", shared.ErrValidation, raw)
}

// Milestone names a timestamp column set as a side effect of reaching a status.
type Milestone string

// Milestones.
const (
	MilestoneNone              Milestone = ""
	MilestoneDocumentsReceived Milestone = "documents_received_at"
	MilestoneSubmitted         Milestone = "submitted_at"
	MilestoneAccepted          Milestone = "accepted_at"
	MilestoneApproved          Milestone = "approved_at"
	MilestoneFunded            Milestone = "funded_at"
)

// MilestoneFor maps a status to the single timestamp it sets.
func MilestoneFor(s Status) Milestone {
	switch s {
	case StatusReview:
		return MilestoneDocumentsReceived
	case StatusFiled:
		return MilestoneSubmitted
	case StatusAccepted:
		return MilestoneAccepted
	case StatusApproved:
		return MilestoneApproved
	case StatusPaid:
		return MilestoneFunded
	default:
		return MilestoneNone
	}
}

// HistoryEntry is one transition in a filing's status history.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Date      time.Time `json:"date"`
	Note      *string   `json:"note,omitempty"`
	ChangedBy *int64    `json:"changedBy,omitempty"`
}

// TaxFiling is one client's engagement record for one tax year.
type TaxFiling struct {
	ID                  int64               `json:"id"`
	ClientID            string              `json:"clientId"`
	TaxYear             int                 `json:"taxYear"`
	Status              Status              `json:"status"`
	DocumentsReceivedAt *time.Time          `json:"documentsReceivedAt"`
	SubmittedAt         *time.Time          `json:"submittedAt"`
	AcceptedAt          *time.Time          `json:"acceptedAt"`
	ApprovedAt          *time.Time          `json:"approvedAt"`
	FundedAt            *time.Time          `json:"fundedAt"`
	EstimatedRefund     decimal.NullDecimal `json:"estimatedRefund"`
	ActualRefund        decimal.NullDecimal `json:"actualRefund"`
	ServiceFee          decimal.NullDecimal `json:"serviceFee"`
	FeePaid             bool                `json:"feePaid"`
	Preparer            *string             `json:"preparer"`
	OfficeLocation      *string             `json:"officeLocation"`
	FilingType          *string             `json:"filingType"`
	FederalStatus       *string             `json:"federalStatus"`
	StateStatus         *string             `json:"stateStatus"`
	Notes               *string             `json:"notes"`
	StatusHistory       []HistoryEntry      `json:"statusHistory"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// ApplyStatus records a transition: sets status, appends history and stamps the milestone.
// Re-entering a status overwrites its milestone timestamp.
func (f *TaxFiling) ApplyStatus(entry HistoryEntry) {
	f.Status = entry.Status
	f.StatusHistory = append(f.StatusHistory, entry)
	at := entry.Date
	switch MilestoneFor(entry.Status) {
	case MilestoneDocumentsReceived:
		f.DocumentsReceivedAt = &at
	case MilestoneSubmitted:
		f.SubmittedAt = &at
	case MilestoneAccepted:
		f.AcceptedAt = &at
	case MilestoneApproved:
		f.ApprovedAt = &at
	case MilestoneFunded:
		f.FundedAt = &at
	}
	f.UpdatedAt = at
}

// Patch carries a partial, non-status field update.
type Patch struct {
	EstimatedRefund *decimal.Decimal
	ActualRefund    *decimal.Decimal
	ServiceFee      *decimal.Decimal
	FeePaid         *bool
	Preparer        *string
	OfficeLocation  *string
	FilingType      *string
	FederalStatus   *string
	StateStatus     *string
	Notes           *string
}

// Empty reports whether no field is set.
func (p Patch) Empty() bool {
	return p.EstimatedRefund == nil && p.ActualRefund == nil && p.ServiceFee == nil && p.FeePaid == nil &&
		p.Preparer == nil && p.OfficeLocation == nil && p.FilingType == nil &&
		p.FederalStatus == nil && p.StateStatus == nil && p.Notes == nil
}

// Apply copies set fields onto f.
func (p Patch) Apply(f *TaxFiling) {
	if p.EstimatedRefund != nil {
		f.EstimatedRefund = decimal.NewNullDecimal(*p.EstimatedRefund)
	}
	if p.ActualRefund != nil {
		f.ActualRefund = decimal.NewNullDecimal(*p.ActualRefund)
	}
	if p.ServiceFee != nil {
		f.ServiceFee = decimal.NewNullDecimal(*p.ServiceFee)
	}
	if p.FeePaid != nil {
		f.FeePaid = *p.FeePaid
	}
	if p.Preparer != nil {
		f.Preparer = p.Preparer
	}
	if p.OfficeLocation != nil {
		f.OfficeLocation = p.OfficeLocation
	}
	if p.FilingType != nil {
		f.FilingType = p.FilingType
	}
	if p.FederalStatus != nil {
		f.FederalStatus = p.FederalStatus
	}
	if p.StateStatus != nil {
		f.StateStatus = p.StateStatus
	}
	if p.Notes != nil {
		f.Notes = p.Notes
	}
}

// MetricRow is a per-status aggregate for one year.
type MetricRow struct {
	Status          Status
	Count           int
	EstimatedRefund decimal.Decimal
	ActualRefund    decimal.Decimal
}

// Metrics summarises a year of filings.
type Metrics struct {
	Year                 int             `json:"year"`
	Total                int             `json:"total"`
	ByStatus             map[Status]int  `json:"byStatus"`
	TotalEstimatedRefund decimal.Decimal `json:"totalEstimatedRefund"`
	TotalActualRefund    decimal.Decimal `json:"totalActualRefund"`
}
