package filings

import "github.com/shopspring/decimal"

type createFilingRequest struct {
	ClientID        string           `json:"clientId" validate:"required,max=64"`
	TaxYear         int              `json:"taxYear" validate:"required,gte=1900,lte=2100"`
	Status          string           `json:"status" validate:"omitempty,oneof=new documents_pending review filed accepted approved paid"`
	EstimatedRefund *decimal.Decimal `json:"estimatedRefund"`
	ActualRefund    *decimal.Decimal `json:"actualRefund"`
	ServiceFee      *decimal.Decimal `json:"serviceFee"`
	FeePaid         bool             `json:"feePaid"`
	Preparer        *string          `json:"preparer" validate:"omitempty,max=128"`
	OfficeLocation  *string          `json:"officeLocation" validate:"omitempty,max=128"`
	FilingType      *string          `json:"filingType" validate:"omitempty,max=64"`
	FederalStatus   *string          `json:"federalStatus" validate:"omitempty,max=64"`
	StateStatus     *string          `json:"stateStatus" validate:"omitempty,max=64"`
	Notes           *string          `json:"notes" validate:"omitempty,max=4000"`
}

func (r createFilingRequest) input() CreateInput {
	return CreateInput{
		ClientID:        r.ClientID,
		TaxYear:         r.TaxYear,
		Status:          Status(r.Status),
		EstimatedRefund: r.EstimatedRefund,
		ActualRefund:    r.ActualRefund,
		ServiceFee:      r.ServiceFee,
		FeePaid:         r.FeePaid,
		Preparer:        r.Preparer,
		OfficeLocation:  r.OfficeLocation,
		FilingType:      r.FilingType,
		FederalStatus:   r.FederalStatus,
		StateStatus:     r.StateStatus,
		Notes:           r.Notes,
	}
}

type patchFilingRequest struct {
	EstimatedRefund *decimal.Decimal `json:"estimatedRefund"`
	ActualRefund    *decimal.Decimal `json:"actualRefund"`
	ServiceFee      *decimal.Decimal `json:"serviceFee"`
	FeePaid         *bool            `json:"feePaid"`
	Preparer        *string          `json:"preparer" validate:"omitempty,max=128"`
	OfficeLocation  *string          `json:"officeLocation" validate:"omitempty,max=128"`
	FilingType      *string          `json:"filingType" validate:"omitempty,max=64"`
	FederalStatus   *string          `json:"federalStatus" validate:"omitempty,max=64"`
	StateStatus     *string          `json:"stateStatus" validate:"omitempty,max=64"`
	Notes           *string          `json:"notes" validate:"omitempty,max=4000"`
}

func (r patchFilingRequest) patch() Patch {
	return Patch(r)
}

type statusRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note" validate:"omitempty,max=2000"`
}
