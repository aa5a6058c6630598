package crm

import (
	"github.com/shopspring/decimal"
)

// CreateClientRequest is the payload for registering a client.
type CreateClientRequest struct {
	Name       string  `json:"name" validate:"required,max=255"`
	ExternalID *string `json:"external_id" validate:"omitempty,max=255"`
	Industry   *string `json:"industry" validate:"omitempty,max=128"`
}

// CreateOpportunityRequest is the payload for registering an opportunity.
// Amount is mandatory; amount and probability ranges are checked by the service.
type CreateOpportunityRequest struct {
	ClientID          string           `json:"client_id" validate:"required"`
	Name              string           `json:"name" validate:"required,max=255"`
	Stage             OpportunityStage `json:"stage" validate:"omitempty,oneof=prospect proposal negotiation won lost"`
	Probability       decimal.Decimal  `json:"probability"`
	ExpectedCloseDate *string          `json:"expected_close_date" validate:"omitempty,datetime=2006-01-02"`
	Amount            *decimal.Decimal `json:"amount" validate:"required"`
	Owner             *string          `json:"owner" validate:"omitempty,max=255"`
	ExternalOrderID   *string          `json:"infor_sales_order_id" validate:"omitempty,max=255"`
	Notes             *string          `json:"notes"`
}
