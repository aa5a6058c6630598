package crm

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// OpportunityStage enumerates the lifecycle phases of an opportunity.
type OpportunityStage string

const (
	StageProspect    OpportunityStage = "prospect"
	StageProposal    OpportunityStage = "proposal"
	StageNegotiation OpportunityStage = "negotiation"
	StageWon         OpportunityStage = "won"
	StageLost        OpportunityStage = "lost"
)

// Valid reports whether s is one of the canonical stages.
func (s OpportunityStage) Valid() bool {
	switch s {
	case StageProspect, StageProposal, StageNegotiation, StageWon, StageLost:
		return true
	}
	return false
}

// InvoiceStatus enumerates invoice statuses.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceIssued  InvoiceStatus = "issued"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// DefaultInvoiceStatus is used when feed status text matches nothing.
const DefaultInvoiceStatus = InvoiceIssued

var invoiceStatuses = map[InvoiceStatus]struct{}{
	InvoiceDraft:   {},
	InvoiceIssued:  {},
	InvoicePaid:    {},
	InvoiceOverdue: {},
}

// ParseInvoiceStatus resolves free-text status from the order-management
// feed: exact match first, then a lowercase match, then DefaultInvoiceStatus.
// The boolean is false when the fallback was used.
func ParseInvoiceStatus(raw string) (InvoiceStatus, bool) {
	if _, ok := invoiceStatuses[InvoiceStatus(raw)]; ok {
		return InvoiceStatus(raw), true
	}
	lowered := InvoiceStatus(strings.ToLower(raw))
	if _, ok := invoiceStatuses[lowered]; ok {
		return lowered, true
	}
	return DefaultInvoiceStatus, false
}

// Client is an organisation that owns opportunities.
type Client struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	ExternalID *string   `json:"external_id"`
	Industry   *string   `json:"industry"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Opportunity is a tracked potential or in-progress sale.
type Opportunity struct {
	ID                uuid.UUID        `json:"id"`
	ClientID          uuid.UUID        `json:"client_id"`
	Name              string           `json:"name"`
	Stage             OpportunityStage `json:"stage"`
	Probability       decimal.Decimal  `json:"probability"`
	ExpectedCloseDate *time.Time       `json:"expected_close_date"`
	ActualCloseDate   *time.Time       `json:"actual_close_date"`
	Amount            decimal.Decimal  `json:"amount"`
	Owner             *string          `json:"owner"`
	ExternalOrderID   *string          `json:"infor_sales_order_id"`
	Notes             *string          `json:"notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// HasExternalOrder reports whether the opportunity is linked to a remote sales order.
func (o Opportunity) HasExternalOrder() bool {
	return o.ExternalOrderID != nil && *o.ExternalOrderID != ""
}

// Invoice mirrors an invoice issued by the order-management system.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	OpportunityID uuid.UUID       `json:"opportunity_id"`
	ExternalID    string          `json:"external_id"`
	Amount        decimal.Decimal `json:"amount"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       *time.Time      `json:"due_date"`
	Status        InvoiceStatus   `json:"status"`
	Currency      string          `json:"currency"`
	LastSyncAt    *time.Time      `json:"last_sync_at"`
}

// InvoiceUpsert carries the fields merged into an invoice keyed by ExternalID.
// OpportunityID is only used when the invoice does not exist yet.
type InvoiceUpsert struct {
	OpportunityID uuid.UUID
	ExternalID    string
	Amount        decimal.Decimal
	IssueDate     time.Time
	DueDate       *time.Time
	Status        InvoiceStatus
	Currency      string
	SyncedAt      time.Time
}

// SalesDateUpdate is an append-only record of one renegotiation.
type SalesDateUpdate struct {
	ID              uuid.UUID  `json:"id"`
	OpportunityID   uuid.UUID  `json:"opportunity_id"`
	PreviousDate    *time.Time `json:"previous_date"`
	NewDate         time.Time  `json:"new_date"`
	UpdatedBy       string     `json:"updated_by"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SyncedWithInfor bool       `json:"synced_with_infor"`
	SyncReference   *string    `json:"sync_reference"`
}

// SyncType labels entries of the sync audit log.
const SyncTypeInvoice = "invoice"

// SyncLog records the outcome of one reconciliation batch.
type SyncLog struct {
	ID         uuid.UUID `json:"id"`
	SyncType   string    `json:"sync_type"`
	ExecutedAt time.Time `json:"executed_at"`
	Success    bool      `json:"success"`
	Details    string    `json:"details"`
}

// ParseID parses an entity identifier. Malformed identifiers resolve to
// shared.ErrNotFound since they can never match a stored record.
func ParseID(entity, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s %q: %w", entity, raw, shared.ErrNotFound)
	}
	return id, nil
}

// DateOnly truncates t to midnight UTC, the representation used for business dates.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
