// Package skyline talks to the Infor Skyline order-management system.
package skyline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoicePayload is an invoice as reported by the order-management system.
type InvoicePayload struct {
	ExternalID            string
	OpportunityExternalID string
	Amount                decimal.Decimal
	IssueDate             time.Time
	DueDate               *time.Time
	Status                string
	Currency              string
}

// UpdateOutcome reports the result of a sale-date propagation. Business
// rejections are returned as Success=false rather than as errors.
type UpdateOutcome struct {
	Success   bool
	Reference *string
	Message   *string
}

// Gateway is the contract the reconciliation engine and the sales-date
// workflow depend on.
type Gateway interface {
	FetchInvoices(ctx context.Context, since time.Time) ([]InvoicePayload, error)
	UpdateSaleDate(ctx context.Context, orderID string, newDate time.Time) (UpdateOutcome, error)
}

// Options selects and configures a Gateway implementation.
type Options struct {
	MockMode     bool
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Tenant       string
	Timeout      time.Duration
}

// New returns the deterministic stand-in when MockMode is set, otherwise the live client.
func New(ctx context.Context, opts Options) Gateway {
	if opts.MockMode {
		return NewStandIn()
	}
	return NewClient(ctx, opts)
}
