package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/odyssey-crm/internal/crm"
	"github.com/odyssey-erp/odyssey-crm/internal/crm/crmtest"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/skyline"
)

type EngineSuite struct {
	suite.Suite
	ctx     context.Context
	store   *crmtest.Store
	gateway *skyline.Stub
	locker  *LocalLocker
	engine  *Engine
	now     time.Time
	oppA    crm.Opportunity
	oppB    crm.Opportunity
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func strPtr(s string) *string { return &s }

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = crmtest.NewStore()
	s.gateway = &skyline.Stub{}
	s.locker = NewLocalLocker(0)
	s.now = time.Date(2024, 4, 10, 2, 0, 0, 0, time.UTC)
	s.engine = NewEngine(s.store, s.gateway, s.locker, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		Now: func() time.Time { return s.now },
	})

	client := s.store.SeedClient("Acme")
	s.oppA = s.store.SeedOpportunity(crm.Opportunity{ClientID: client.ID, Name: "A", ExternalOrderID: strPtr("SO-A")})
	s.oppB = s.store.SeedOpportunity(crm.Opportunity{ClientID: client.ID, Name: "B", ExternalOrderID: strPtr("SO-B")})
}

func payload(id, order, amount, status string) skyline.InvoicePayload {
	issue := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return skyline.InvoicePayload{
		ExternalID:            id,
		OpportunityExternalID: order,
		Amount:                crmtest.Amount(amount),
		IssueDate:             issue,
		Status:                status,
		Currency:              "USD",
	}
}

func (s *EngineSuite) TestIdempotentUpsert() {
	s.gateway.Invoices = []skyline.InvoicePayload{
		payload("INV-1", "SO-A", "100.00", "issued"),
		payload("INV-2", "SO-B", "50.00", "paid"),
	}
	first, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(2, first.Processed)
	s.Empty(first.Warnings)

	s.gateway.Invoices = []skyline.InvoicePayload{
		payload("INV-1", "SO-B", "120.00", "overdue"),
		payload("INV-2", "SO-B", "50.00", "paid"),
	}
	second, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(2, second.Processed)

	s.Len(s.store.Invoices(), 2)
	inv, ok := s.store.Invoice("INV-1")
	s.Require().True(ok)
	s.True(crmtest.Amount("120").Equal(inv.Amount))
	s.Equal(crm.InvoiceOverdue, inv.Status)
	s.Equal(s.oppA.ID, inv.OpportunityID, "owner must not change on update")
	s.Require().NotNil(inv.LastSyncAt)
	s.Equal(s.now, *inv.LastSyncAt)
}

func (s *EngineSuite) TestUnknownOpportunityIsWarning() {
	s.gateway.Invoices = []skyline.InvoicePayload{
		payload("INV-9", "SO-MISSING", "10.00", "issued"),
		payload("INV-1", "SO-A", "100.00", "issued"),
	}
	result, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(1, result.Processed)
	s.Equal([]string{"Unknown opportunity for invoice INV-9"}, result.Warnings)

	_, ok := s.store.Invoice("INV-9")
	s.False(ok)
	_, ok = s.store.Invoice("INV-1")
	s.True(ok)

	logs := s.store.SyncLogs()
	s.Require().Len(logs, 1)
	s.False(logs[0].Success)
	s.Equal("Processed 1 invoices; warnings: Unknown opportunity for invoice INV-9", logs[0].Details)
	s.Equal(crm.SyncTypeInvoice, logs[0].SyncType)
}

func (s *EngineSuite) TestStatusFallback() {
	s.gateway.Invoices = []skyline.InvoicePayload{
		payload("INV-1", "SO-A", "10.00", "PAID"),
		payload("INV-2", "SO-A", "10.00", "bogus"),
	}
	result, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(2, result.Processed)
	s.Equal([]string{`Unrecognised status "bogus" for invoice INV-2; defaulted to issued`}, result.Warnings)

	paid, _ := s.store.Invoice("INV-1")
	s.Equal(crm.InvoicePaid, paid.Status)
	fallback, _ := s.store.Invoice("INV-2")
	s.Equal(crm.InvoiceIssued, fallback.Status)
}

func (s *EngineSuite) TestCurrencyNormalisation() {
	lower := payload("INV-1", "SO-A", "10.00", "issued")
	lower.Currency = "eur"
	empty := payload("INV-2", "SO-A", "10.00", "issued")
	empty.Currency = ""
	bad := payload("INV-3", "SO-A", "10.00", "issued")
	bad.Currency = "EURO"
	s.gateway.Invoices = []skyline.InvoicePayload{lower, empty, bad}

	result, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(3, result.Processed)
	s.Len(result.Warnings, 1)

	inv, _ := s.store.Invoice("INV-1")
	s.Equal("EUR", inv.Currency)
	inv, _ = s.store.Invoice("INV-2")
	s.Equal("USD", inv.Currency)
	inv, _ = s.store.Invoice("INV-3")
	s.Equal("USD", inv.Currency)
}

func (s *EngineSuite) TestSuccessLog() {
	s.gateway.Invoices = []skyline.InvoicePayload{payload("INV-1", "SO-A", "10.00", "issued")}
	_, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)

	logs := s.store.SyncLogs()
	s.Require().Len(logs, 1)
	s.True(logs[0].Success)
	s.Equal("Processed 1 invoices", logs[0].Details)
	s.Equal(s.now, logs[0].ExecutedAt)
}

func (s *EngineSuite) TestFetchFailureIsLogged() {
	s.gateway.FetchErr = errors.New("connection reset")

	_, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().Error(err)
	s.ErrorIs(err, s.gateway.FetchErr)
	s.ErrorIs(err, shared.ErrUpstreamRejected)

	logs := s.store.SyncLogs()
	s.Require().Len(logs, 1)
	s.False(logs[0].Success)
	s.Equal("order-management system unreachable: connection reset", logs[0].Details)
	s.Empty(s.store.Invoices())
}

func (s *EngineSuite) TestMergeFailureRollsBackAndLogs() {
	s.gateway.Invoices = []skyline.InvoicePayload{
		payload("INV-9", "SO-MISSING", "10.00", "issued"),
		payload("INV-1", "SO-A", "100.00", "issued"),
	}
	boom := errors.New("disk full")
	s.store.FailOn(crmtest.OpUpsertInvoice, boom)

	result, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().ErrorIs(err, boom)
	s.Equal([]string{"Unknown opportunity for invoice INV-9"}, result.Warnings)
	s.Empty(s.store.Invoices())

	logs := s.store.SyncLogs()
	s.Require().Len(logs, 1)
	s.False(logs[0].Success)
	s.Equal("Unknown opportunity for invoice INV-9; merge invoice INV-1: disk full", logs[0].Details)
}

func (s *EngineSuite) TestDefaultSinceIsLookback() {
	_, err := s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)

	explicit := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.engine.SynchronizeInvoices(s.ctx, &explicit)
	s.Require().NoError(err)

	fetches := s.gateway.Fetches()
	s.Require().Len(fetches, 2)
	s.Equal(s.now.Add(-24*time.Hour), fetches[0])
	s.Equal(explicit, fetches[1])
}

func (s *EngineSuite) TestHeldLockRejectsRun() {
	release, err := s.locker.Obtain(s.ctx, shared.InvoiceSyncLockKey)
	s.Require().NoError(err)

	_, err = s.engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().ErrorIs(err, shared.ErrSyncInProgress)
	s.Empty(s.store.SyncLogs())
	s.Empty(s.gateway.Fetches())

	s.Require().NoError(release(s.ctx))
	_, err = s.engine.SynchronizeInvoices(s.ctx, nil)
	s.NoError(err)
}

func (s *EngineSuite) TestStandInFeed() {
	client := s.store.SeedClient("Demo")
	s.store.SeedOpportunity(crm.Opportunity{ClientID: client.ID, Name: "Demo 100", ExternalOrderID: strPtr("OPP-100")})
	s.store.SeedOpportunity(crm.Opportunity{ClientID: client.ID, Name: "Demo 101", ExternalOrderID: strPtr("OPP-101")})
	engine := NewEngine(s.store, skyline.NewStandIn(), nil, nil, Options{Now: func() time.Time { return s.now }})

	result, err := engine.SynchronizeInvoices(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(2, result.Processed)

	inv, ok := s.store.Invoice("INV-1002")
	s.Require().True(ok)
	s.Equal(crm.InvoicePaid, inv.Status)
	s.True(crmtest.Amount("9800.50").Equal(inv.Amount))
}

func (s *EngineSuite) TestListSyncLogsNewestFirst() {
	for i := 0; i < 3; i++ {
		s.now = s.now.Add(time.Hour)
		_, err := s.engine.SynchronizeInvoices(s.ctx, nil)
		s.Require().NoError(err)
	}
	logs, err := s.engine.ListSyncLogs(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	s.Equal(s.now, logs[0].ExecutedAt)
	s.True(logs[0].ExecutedAt.After(logs[1].ExecutedAt))
}
