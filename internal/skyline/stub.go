package skyline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StandIn returns deterministic canned data. It is used in mock mode and
// by tests that only need a well-behaved remote system.
type StandIn struct{}

// NewStandIn builds the stand-in gateway.
func NewStandIn() StandIn {
	return StandIn{}
}

// FetchInvoices returns two fixed invoices dated on since.
func (StandIn) FetchInvoices(_ context.Context, since time.Time) ([]InvoicePayload, error) {
	day := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	due := day
	return []InvoicePayload{
		{
			ExternalID:            "INV-1001",
			OpportunityExternalID: "OPP-100",
			Amount:                decimal.RequireFromString("12500.00"),
			IssueDate:             day,
			DueDate:               &due,
			Status:                "issued",
			Currency:              defaultCurrency,
		},
		{
			ExternalID:            "INV-1002",
			OpportunityExternalID: "OPP-101",
			Amount:                decimal.RequireFromString("9800.50"),
			IssueDate:             day,
			DueDate:               &due,
			Status:                "paid",
			Currency:              defaultCurrency,
		},
	}, nil
}

// UpdateSaleDate always succeeds with a reference derived from its inputs.
func (StandIn) UpdateSaleDate(_ context.Context, orderID string, newDate time.Time) (UpdateOutcome, error) {
	ref := fmt.Sprintf("MOCK-%s-%s", orderID, newDate.Format(time.DateOnly))
	msg := "Mock update successful"
	return UpdateOutcome{Success: true, Reference: &ref, Message: &msg}, nil
}

// UpdateCall records one UpdateSaleDate invocation on a Stub.
type UpdateCall struct {
	OrderID string
	NewDate time.Time
}

// Stub is a programmable Gateway for tests.
type Stub struct {
	mu        sync.Mutex
	Invoices  []InvoicePayload
	FetchErr  error
	Outcome   UpdateOutcome
	UpdateErr error
	// OnFetch, when set, runs before FetchInvoices returns.
	OnFetch func(ctx context.Context)

	fetches []time.Time
	updates []UpdateCall
}

// FetchInvoices returns the configured invoices or error.
func (s *Stub) FetchInvoices(ctx context.Context, since time.Time) ([]InvoicePayload, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, since)
	hook := s.OnFetch
	invoices := append([]InvoicePayload(nil), s.Invoices...)
	err := s.FetchErr
	s.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// UpdateSaleDate records the call and returns the configured outcome or error.
func (s *Stub) UpdateSaleDate(_ context.Context, orderID string, newDate time.Time) (UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, UpdateCall{OrderID: orderID, NewDate: newDate})
	if s.UpdateErr != nil {
		return UpdateOutcome{}, s.UpdateErr
	}
	return s.Outcome, nil
}

// Fetches returns the since values FetchInvoices was called with.
func (s *Stub) Fetches() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.fetches...)
}

// Updates returns the recorded UpdateSaleDate calls.
func (s *Stub) Updates() []UpdateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UpdateCall(nil), s.updates...)
}
