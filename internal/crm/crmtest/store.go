// Package crmtest provides an in-memory crm.Store for tests. Every WithTx
// call works on a snapshot that is only published when the callback succeeds.
package crmtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/crm"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Operation names accepted by Store.FailOn.
const (
	OpUpsertInvoice              = "UpsertInvoice"
	OpInsertSyncLog              = "InsertSyncLog"
	OpInsertSalesDateUpdate      = "InsertSalesDateUpdate"
	OpUpdateOpportunityCloseDate = "UpdateOpportunityCloseDate"
	OpListInvoices               = "ListInvoices"
)

type state struct {
	clients       []crm.Client
	opportunities []crm.Opportunity
	invoices      []crm.Invoice
	updates       []crm.SalesDateUpdate
	logs          []crm.SyncLog
}

func (s state) clone() state {
	return state{
		clients:       append([]crm.Client(nil), s.clients...),
		opportunities: append([]crm.Opportunity(nil), s.opportunities...),
		invoices:      append([]crm.Invoice(nil), s.invoices...),
		updates:       append([]crm.SalesDateUpdate(nil), s.updates...),
		logs:          append([]crm.SyncLog(nil), s.logs...),
	}
}

// Store is an in-memory crm.Store. Transactions are serialised.
type Store struct {
	mu       sync.Mutex
	data     state
	failures map[string]error
	txCount  int
}

var _ crm.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{failures: make(map[string]error)}
}

// FailOn makes every later call to op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// TxCount reports how many transactions were started.
func (s *Store) TxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// WithTx runs fn against a snapshot and commits it only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, crm.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	tx := &txRepo{data: s.data.clone(), failures: s.failures}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// SeedClient stores a client with a generated id.
func (s *Store) SeedClient(name string) crm.Client {
	now := time.Now().UTC()
	c := crm.Client{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.clients = append(s.data.clients, c)
	return c
}

// SeedOpportunity stores opp, filling id, timestamps and stage when unset.
func (s *Store) SeedOpportunity(opp crm.Opportunity) crm.Opportunity {
	if opp.ID == uuid.Nil {
		opp.ID = uuid.New()
	}
	if opp.Stage == "" {
		opp.Stage = crm.StageProspect
	}
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = time.Now().UTC()
		opp.UpdatedAt = opp.CreatedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.opportunities = append(s.data.opportunities, opp)
	return opp
}

// SeedInvoice stores inv, filling the id when unset.
func (s *Store) SeedInvoice(inv crm.Invoice) crm.Invoice {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.invoices = append(s.data.invoices, inv)
	return inv
}

// Opportunity returns the committed state of an opportunity.
func (s *Store) Opportunity(id uuid.UUID) (crm.Opportunity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.data.opportunities {
		if o.ID == id {
			return o, true
		}
	}
	return crm.Opportunity{}, false
}

// Invoices returns all committed invoices.
func (s *Store) Invoices() []crm.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crm.Invoice(nil), s.data.invoices...)
}

// Invoice returns the committed invoice with the given external id.
func (s *Store) Invoice(externalID string) (crm.Invoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.data.invoices {
		if inv.ExternalID == externalID {
			return inv, true
		}
	}
	return crm.Invoice{}, false
}

// SalesDateUpdates returns all committed audit records.
func (s *Store) SalesDateUpdates() []crm.SalesDateUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crm.SalesDateUpdate(nil), s.data.updates...)
}

// SyncLogs returns all committed sync log entries in insertion order.
func (s *Store) SyncLogs() []crm.SyncLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crm.SyncLog(nil), s.data.logs...)
}

type txRepo struct {
	data     state
	failures map[string]error
}

func (t *txRepo) fail(op string) error {
	if err, ok := t.failures[op]; ok {
		return err
	}
	return nil
}

func (t *txRepo) CreateClient(_ context.Context, c crm.Client) error {
	for _, existing := range t.data.clients {
		if existing.ID == c.ID {
			return fmt.Errorf("client: %w", shared.ErrAlreadyExists)
		}
		if c.ExternalID != nil && existing.ExternalID != nil && *existing.ExternalID == *c.ExternalID {
			return fmt.Errorf("client: %w", shared.ErrAlreadyExists)
		}
	}
	t.data.clients = append(t.data.clients, c)
	return nil
}

func (t *txRepo) GetClient(_ context.Context, id uuid.UUID) (crm.Client, error) {
	for _, c := range t.data.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return crm.Client{}, fmt.Errorf("client: %w", shared.ErrNotFound)
}

func (t *txRepo) DeleteClient(_ context.Context, id uuid.UUID) error {
	idx := -1
	for i, c := range t.data.clients {
		if c.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("client: %w", shared.ErrNotFound)
	}
	t.data.clients = append(t.data.clients[:idx], t.data.clients[idx+1:]...)

	removed := make(map[uuid.UUID]bool)
	opps := t.data.opportunities[:0]
	for _, o := range t.data.opportunities {
		if o.ClientID == id {
			removed[o.ID] = true
			continue
		}
		opps = append(opps, o)
	}
	t.data.opportunities = opps

	invoices := t.data.invoices[:0]
	for _, inv := range t.data.invoices {
		if !removed[inv.OpportunityID] {
			invoices = append(invoices, inv)
		}
	}
	t.data.invoices = invoices

	updates := t.data.updates[:0]
	for _, u := range t.data.updates {
		if !removed[u.OpportunityID] {
			updates = append(updates, u)
		}
	}
	t.data.updates = updates
	return nil
}

func (t *txRepo) CreateOpportunity(ctx context.Context, o crm.Opportunity) error {
	if _, err := t.GetClient(ctx, o.ClientID); err != nil {
		return fmt.Errorf("opportunity: owner %w", shared.ErrNotFound)
	}
	for _, existing := range t.data.opportunities {
		if existing.ID == o.ID {
			return fmt.Errorf("opportunity: %w", shared.ErrAlreadyExists)
		}
	}
	t.data.opportunities = append(t.data.opportunities, o)
	return nil
}

func (t *txRepo) GetOpportunity(_ context.Context, id uuid.UUID) (crm.Opportunity, error) {
	for _, o := range t.data.opportunities {
		if o.ID == id {
			return o, nil
		}
	}
	return crm.Opportunity{}, fmt.Errorf("opportunity: %w", shared.ErrNotFound)
}

func (t *txRepo) GetOpportunityForUpdate(ctx context.Context, id uuid.UUID) (crm.Opportunity, error) {
	return t.GetOpportunity(ctx, id)
}

func (t *txRepo) FindOpportunityByExternalOrderID(_ context.Context, orderID string) (crm.Opportunity, error) {
	for _, o := range t.data.opportunities {
		if o.ExternalOrderID != nil && *o.ExternalOrderID == orderID {
			return o, nil
		}
	}
	return crm.Opportunity{}, fmt.Errorf("opportunity: %w", shared.ErrNotFound)
}

func (t *txRepo) ListOpportunities(context.Context) ([]crm.Opportunity, error) {
	out := append([]crm.Opportunity(nil), t.data.opportunities...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *txRepo) UpdateOpportunityCloseDate(_ context.Context, id uuid.UUID, date time.Time, at time.Time) error {
	if err := t.fail(OpUpdateOpportunityCloseDate); err != nil {
		return err
	}
	for i, o := range t.data.opportunities {
		if o.ID == id {
			d := crm.DateOnly(date)
			o.ExpectedCloseDate = &d
			o.UpdatedAt = at
			t.data.opportunities[i] = o
			return nil
		}
	}
	return fmt.Errorf("opportunity: %w", shared.ErrNotFound)
}

func (t *txRepo) UpsertInvoice(ctx context.Context, in crm.InvoiceUpsert) (crm.Invoice, bool, error) {
	if err := t.fail(OpUpsertInvoice); err != nil {
		return crm.Invoice{}, false, err
	}
	syncedAt := in.SyncedAt
	apply := func(inv crm.Invoice) crm.Invoice {
		inv.Amount = in.Amount.Round(2)
		inv.IssueDate = crm.DateOnly(in.IssueDate)
		inv.DueDate = nil
		if in.DueDate != nil {
			d := crm.DateOnly(*in.DueDate)
			inv.DueDate = &d
		}
		inv.Status = in.Status
		inv.Currency = in.Currency
		inv.LastSyncAt = &syncedAt
		return inv
	}
	for i, inv := range t.data.invoices {
		if inv.ExternalID == in.ExternalID {
			merged := apply(inv)
			t.data.invoices[i] = merged
			return merged, false, nil
		}
	}
	if _, err := t.GetOpportunity(ctx, in.OpportunityID); err != nil {
		return crm.Invoice{}, false, fmt.Errorf("invoice: owner %w", shared.ErrNotFound)
	}
	created := apply(crm.Invoice{ID: uuid.New(), OpportunityID: in.OpportunityID, ExternalID: in.ExternalID})
	t.data.invoices = append(t.data.invoices, created)
	return created, true, nil
}

func (t *txRepo) ListInvoices(context.Context) ([]crm.Invoice, error) {
	if err := t.fail(OpListInvoices); err != nil {
		return nil, err
	}
	return append([]crm.Invoice(nil), t.data.invoices...), nil
}

func (t *txRepo) ListInvoicesByOpportunity(_ context.Context, opportunityID uuid.UUID) ([]crm.Invoice, error) {
	var out []crm.Invoice
	for _, inv := range t.data.invoices {
		if inv.OpportunityID == opportunityID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (t *txRepo) InsertSalesDateUpdate(_ context.Context, u crm.SalesDateUpdate) error {
	if err := t.fail(OpInsertSalesDateUpdate); err != nil {
		return err
	}
	t.data.updates = append(t.data.updates, u)
	return nil
}

func (t *txRepo) ListSalesDateUpdates(_ context.Context, opportunityID uuid.UUID) ([]crm.SalesDateUpdate, error) {
	var out []crm.SalesDateUpdate
	for _, u := range t.data.updates {
		if u.OpportunityID == opportunityID {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (t *txRepo) InsertSyncLog(_ context.Context, l crm.SyncLog) error {
	if err := t.fail(OpInsertSyncLog); err != nil {
		return err
	}
	t.data.logs = append(t.data.logs, l)
	return nil
}

func (t *txRepo) ListSyncLogs(_ context.Context, limit int) ([]crm.SyncLog, error) {
	out := make([]crm.SyncLog, 0, len(t.data.logs))
	for i := len(t.data.logs) - 1; i >= 0; i-- {
		out = append(out, t.data.logs[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Amount is a test helper parsing a decimal literal.
func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// AmountPtr is Amount for optional or pointer fields.
func AmountPtr(s string) *decimal.Decimal {
	d := Amount(s)
	return &d
}
