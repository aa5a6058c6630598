package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-crm/internal/skyline"
)

func TestInstrumentGatewayCountsOutcomes(t *testing.T) {
	metrics := NewMetrics()
	stub := &skyline.Stub{Outcome: skyline.UpdateOutcome{Success: true}}
	gw := metrics.InstrumentGateway(stub)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := gw.FetchInvoices(ctx, now)
	require.NoError(t, err)

	stub.FetchErr = errors.New("connection reset")
	_, err = gw.FetchInvoices(ctx, now)
	require.Error(t, err)

	outcome, err := gw.UpdateSaleDate(ctx, "SO-1", now)
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	stub.Outcome = skyline.UpdateOutcome{Success: false}
	_, err = gw.UpdateSaleDate(ctx, "SO-1", now)
	require.NoError(t, err)

	stub.UpdateErr = errors.New("timeout")
	_, err = gw.UpdateSaleDate(ctx, "SO-1", now)
	require.Error(t, err)

	assert.Len(t, stub.Fetches(), 2)
	assert.Len(t, stub.Updates(), 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.upstreamCalls.WithLabelValues("fetch_invoices", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.upstreamCalls.WithLabelValues("fetch_invoices", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.upstreamCalls.WithLabelValues("update_sale_date", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.upstreamCalls.WithLabelValues("update_sale_date", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.upstreamCalls.WithLabelValues("update_sale_date", "error")))

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_skyline_call_duration_seconds_count{operation="update_sale_date"} 3`)
}

func TestInstrumentGatewayNilMetricsPassesThrough(t *testing.T) {
	var metrics *Metrics
	stub := &skyline.Stub{}
	assert.Same(t, stub, metrics.InstrumentGateway(stub))
}
