package observability

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-crm/internal/skyline"
)

// InstrumentGateway wraps gw so every Skyline call is counted and timed.
// Outcomes are ok, rejected (a business refusal of a sale-date update) or
// error. A nil Metrics returns gw unchanged.
func (m *Metrics) InstrumentGateway(gw skyline.Gateway) skyline.Gateway {
	if m == nil || gw == nil {
		return gw
	}
	return &instrumentedGateway{next: gw, metrics: m}
}

type instrumentedGateway struct {
	next    skyline.Gateway
	metrics *Metrics
}

func (g *instrumentedGateway) FetchInvoices(ctx context.Context, since time.Time) ([]skyline.InvoicePayload, error) {
	start := time.Now()
	payloads, err := g.next.FetchInvoices(ctx, since)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	g.metrics.observeUpstream("fetch_invoices", outcome, start)
	return payloads, err
}

func (g *instrumentedGateway) UpdateSaleDate(ctx context.Context, orderID string, newDate time.Time) (skyline.UpdateOutcome, error) {
	start := time.Now()
	result, err := g.next.UpdateSaleDate(ctx, orderID, newDate)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !result.Success:
		outcome = "rejected"
	}
	g.metrics.observeUpstream("update_sale_date", outcome, start)
	return result, err
}

func (m *Metrics) observeUpstream(operation, outcome string, start time.Time) {
	m.upstreamCalls.WithLabelValues(operation, outcome).Inc()
	m.upstreamDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
