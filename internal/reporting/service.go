// Package reporting builds the sales dashboard and per-opportunity reports.
package reporting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-crm/internal/crm"
)

const dashboardKey = "dashboard"

// Dashboard aggregates pipeline and invoicing figures.
type Dashboard struct {
	OpenPipelineTotal decimal.Decimal `json:"total_open_pipeline"`
	InvoicedTotal     decimal.Decimal `json:"total_invoiced"`
	PaidTotal         decimal.Decimal `json:"total_paid"`
	OverdueCount      int             `json:"overdue_invoices"`
}

// OpportunityReport is an opportunity with all of its invoices.
type OpportunityReport struct {
	Opportunity crm.Opportunity `json:"opportunity"`
	Invoices    []crm.Invoice   `json:"invoices"`
}

// Service computes reports from a consistent snapshot of the store.
type Service struct {
	store crm.Store
	group singleflight.Group
}

// NewService constructs a reporting service.
func NewService(store crm.Store) *Service {
	return &Service{store: store}
}

// BuildDashboard sums the open pipeline (every opportunity not won, lost
// ones included) and invoice totals. Concurrent callers share one build.
func (s *Service) BuildDashboard(ctx context.Context) (Dashboard, error) {
	ch := s.group.DoChan(dashboardKey, func() (any, error) {
		return s.buildDashboard(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Dashboard{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Dashboard{}, res.Err
		}
		return res.Val.(Dashboard), nil
	}
}

func (s *Service) buildDashboard(ctx context.Context) (Dashboard, error) {
	var (
		opportunities []crm.Opportunity
		invoices      []crm.Invoice
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx crm.TxRepository) error {
		var err error
		if opportunities, err = tx.ListOpportunities(ctx); err != nil {
			return err
		}
		invoices, err = tx.ListInvoices(ctx)
		return err
	})
	if err != nil {
		return Dashboard{}, fmt.Errorf("build dashboard: %w", err)
	}
	return Summarise(opportunities, invoices), nil
}

// Summarise computes dashboard figures from already loaded entities.
func Summarise(opportunities []crm.Opportunity, invoices []crm.Invoice) Dashboard {
	d := Dashboard{
		OpenPipelineTotal: decimal.Zero,
		InvoicedTotal:     decimal.Zero,
		PaidTotal:         decimal.Zero,
	}
	for _, o := range opportunities {
		if o.Stage != crm.StageWon {
			d.OpenPipelineTotal = d.OpenPipelineTotal.Add(o.Amount)
		}
	}
	for _, inv := range invoices {
		d.InvoicedTotal = d.InvoicedTotal.Add(inv.Amount)
		switch inv.Status {
		case crm.InvoicePaid:
			d.PaidTotal = d.PaidTotal.Add(inv.Amount)
		case crm.InvoiceOverdue:
			d.OverdueCount++
		}
	}
	return d
}

// BuildOpportunityReport returns the opportunity and its invoices, unfiltered.
func (s *Service) BuildOpportunityReport(ctx context.Context, rawID string) (OpportunityReport, error) {
	id, err := crm.ParseID("opportunity", rawID)
	if err != nil {
		return OpportunityReport{}, err
	}
	var report OpportunityReport
	err = s.store.WithTx(ctx, func(ctx context.Context, tx crm.TxRepository) error {
		opp, err := tx.GetOpportunity(ctx, id)
		if err != nil {
			return err
		}
		invoices, err := tx.ListInvoicesByOpportunity(ctx, id)
		if err != nil {
			return err
		}
		if invoices == nil {
			invoices = []crm.Invoice{}
		}
		report = OpportunityReport{Opportunity: opp, Invoices: invoices}
		return nil
	})
	if err != nil {
		return OpportunityReport{}, fmt.Errorf("opportunity report: %w", err)
	}
	return report, nil
}
