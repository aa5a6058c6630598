package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store is the transactional entry point to CRM persistence.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the entity operations available inside a transaction.
type TxRepository interface {
	// Clients
	CreateClient(ctx context.Context, client Client) error
	GetClient(ctx context.Context, id uuid.UUID) (Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error

	// Opportunities
	CreateOpportunity(ctx context.Context, opp Opportunity) error
	GetOpportunity(ctx context.Context, id uuid.UUID) (Opportunity, error)
	GetOpportunityForUpdate(ctx context.Context, id uuid.UUID) (Opportunity, error)
	FindOpportunityByExternalOrderID(ctx context.Context, orderID string) (Opportunity, error)
	ListOpportunities(ctx context.Context) ([]Opportunity, error)
	UpdateOpportunityCloseDate(ctx context.Context, id uuid.UUID, date time.Time, at time.Time) error

	// Invoices
	UpsertInvoice(ctx context.Context, in InvoiceUpsert) (Invoice, bool, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
	ListInvoicesByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]Invoice, error)

	// Audit
	InsertSalesDateUpdate(ctx context.Context, update SalesDateUpdate) error
	ListSalesDateUpdates(ctx context.Context, opportunityID uuid.UUID) ([]SalesDateUpdate, error)
	InsertSyncLog(ctx context.Context, log SyncLog) error
	ListSyncLogs(ctx context.Context, limit int) ([]SyncLog, error)
}

// Repository provides PostgreSQL backed persistence for CRM entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func mapWriteError(entity string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", entity, shared.ErrAlreadyExists)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: owner %w", entity, shared.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", entity, err)
}

func mapReadError(entity string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", entity, shared.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", entity, err)
}

// ============================================================================
// CLIENTS
// ============================================================================

func (r *txRepo) CreateClient(ctx context.Context, c Client) error {
	_, err := r.tx.Exec(ctx, `
INSERT INTO clients (id, name, external_id, industry, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.ExternalID, c.Industry, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return mapWriteError("client", err)
	}
	return nil
}

func (r *txRepo) GetClient(ctx context.Context, id uuid.UUID) (Client, error) {
	var c Client
	err := r.tx.QueryRow(ctx, `
SELECT id, name, external_id, industry, created_at, updated_at
FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.ExternalID, &c.Industry, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Client{}, mapReadError("client", err)
	}
	return c, nil
}

// DeleteClient removes the client; opportunities, invoices and sales-date
// updates go with it through ON DELETE CASCADE.
func (r *txRepo) DeleteClient(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client: %w", shared.ErrNotFound)
	}
	return nil
}

// ============================================================================
// OPPORTUNITIES
// ============================================================================

const opportunityColumns = `id, client_id, name, stage, probability, expected_close_date, actual_close_date,
amount, owner, infor_sales_order_id, notes, created_at, updated_at`

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var o Opportunity
	err := row.Scan(&o.ID, &o.ClientID, &o.Name, &o.Stage, &o.Probability,
		&o.ExpectedCloseDate, &o.ActualCloseDate, &o.Amount, &o.Owner,
		&o.ExternalOrderID, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *txRepo) CreateOpportunity(ctx context.Context, o Opportunity) error {
	_, err := r.tx.Exec(ctx, `
INSERT INTO opportunities (`+opportunityColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.ClientID, o.Name, o.Stage, o.Probability, o.ExpectedCloseDate,
		o.ActualCloseDate, o.Amount, o.Owner, o.ExternalOrderID, o.Notes,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return mapWriteError("opportunity", err)
	}
	return nil
}

func (r *txRepo) GetOpportunity(ctx context.Context, id uuid.UUID) (Opportunity, error) {
	o, err := scanOpportunity(r.tx.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1`, id))
	if err != nil {
		return Opportunity{}, mapReadError("opportunity", err)
	}
	return o, nil
}

// GetOpportunityForUpdate reads the opportunity and holds its row lock until
// the surrounding transaction ends.
func (r *txRepo) GetOpportunityForUpdate(ctx context.Context, id uuid.UUID) (Opportunity, error) {
	o, err := scanOpportunity(r.tx.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Opportunity{}, mapReadError("opportunity", err)
	}
	return o, nil
}

func (r *txRepo) FindOpportunityByExternalOrderID(ctx context.Context, orderID string) (Opportunity, error) {
	o, err := scanOpportunity(r.tx.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities
WHERE infor_sales_order_id = $1
ORDER BY created_at
LIMIT 1`, orderID))
	if err != nil {
		return Opportunity{}, mapReadError("opportunity", err)
	}
	return o, nil
}

func (r *txRepo) ListOpportunities(ctx context.Context) ([]Opportunity, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+opportunityColumns+` FROM opportunities ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()
	var out []Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *txRepo) UpdateOpportunityCloseDate(ctx context.Context, id uuid.UUID, date time.Time, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE opportunities SET expected_close_date = $2, updated_at = $3 WHERE id = $1`,
		id, DateOnly(date), at)
	if err != nil {
		return fmt.Errorf("opportunity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("opportunity: %w", shared.ErrNotFound)
	}
	return nil
}

// ============================================================================
// INVOICES
// ============================================================================

const invoiceColumns = `id, opportunity_id, external_id, amount, issue_date, due_date, status, currency, last_sync_at`

func scanInvoice(row pgx.Row, extra ...any) (Invoice, error) {
	var inv Invoice
	dest := []any{&inv.ID, &inv.OpportunityID, &inv.ExternalID, &inv.Amount,
		&inv.IssueDate, &inv.DueDate, &inv.Status, &inv.Currency, &inv.LastSyncAt}
	err := row.Scan(append(dest, extra...)...)
	return inv, err
}

// UpsertInvoice merges by external id. The owning opportunity is set on
// insert only. The boolean reports whether a new row was created.
func (r *txRepo) UpsertInvoice(ctx context.Context, in InvoiceUpsert) (Invoice, bool, error) {
	var inserted bool
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `
INSERT INTO invoices (id, opportunity_id, external_id, amount, issue_date, due_date, status, currency, last_sync_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (external_id) DO UPDATE SET
    amount = EXCLUDED.amount,
    issue_date = EXCLUDED.issue_date,
    due_date = EXCLUDED.due_date,
    status = EXCLUDED.status,
    currency = EXCLUDED.currency,
    last_sync_at = EXCLUDED.last_sync_at
RETURNING `+invoiceColumns+`, (xmax = 0)`,
		uuid.New(), in.OpportunityID, in.ExternalID, in.Amount, DateOnly(in.IssueDate),
		datePtr(in.DueDate), in.Status, in.Currency, in.SyncedAt), &inserted)
	if err != nil {
		return Invoice{}, false, mapWriteError("invoice", err)
	}
	return inv, inserted, nil
}

func (r *txRepo) ListInvoices(ctx context.Context) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY issue_date, external_id`)
}

func (r *txRepo) ListInvoicesByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE opportunity_id = $1 ORDER BY issue_date, external_id`, opportunityID)
}

func (r *txRepo) queryInvoices(ctx context.Context, sql string, args ...any) ([]Invoice, error) {
	rows, err := r.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ============================================================================
// AUDIT
// ============================================================================

// InsertSalesDateUpdate appends to the renegotiation audit. There is no update path.
func (r *txRepo) InsertSalesDateUpdate(ctx context.Context, u SalesDateUpdate) error {
	_, err := r.tx.Exec(ctx, `
INSERT INTO sales_date_updates (id, opportunity_id, previous_date, new_date, updated_by, updated_at, synced_with_infor, sync_reference)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.OpportunityID, datePtr(u.PreviousDate), DateOnly(u.NewDate), u.UpdatedBy,
		u.UpdatedAt, u.SyncedWithInfor, u.SyncReference)
	if err != nil {
		return mapWriteError("sales date update", err)
	}
	return nil
}

func (r *txRepo) ListSalesDateUpdates(ctx context.Context, opportunityID uuid.UUID) ([]SalesDateUpdate, error) {
	rows, err := r.tx.Query(ctx, `
SELECT id, opportunity_id, previous_date, new_date, updated_by, updated_at, synced_with_infor, sync_reference
FROM sales_date_updates
WHERE opportunity_id = $1
ORDER BY updated_at, id`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list sales date updates: %w", err)
	}
	defer rows.Close()
	var out []SalesDateUpdate
	for rows.Next() {
		var u SalesDateUpdate
		if err := rows.Scan(&u.ID, &u.OpportunityID, &u.PreviousDate, &u.NewDate, &u.UpdatedBy,
			&u.UpdatedAt, &u.SyncedWithInfor, &u.SyncReference); err != nil {
			return nil, fmt.Errorf("scan sales date update: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertSyncLog(ctx context.Context, l SyncLog) error {
	_, err := r.tx.Exec(ctx, `
INSERT INTO sync_logs (id, sync_type, executed_at, success, details)
VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.SyncType, l.ExecutedAt, l.Success, l.Details)
	if err != nil {
		return mapWriteError("sync log", err)
	}
	return nil
}

// ListSyncLogs returns the most recent entries first.
func (r *txRepo) ListSyncLogs(ctx context.Context, limit int) ([]SyncLog, error) {
	rows, err := r.tx.Query(ctx, `
SELECT id, sync_type, executed_at, success, COALESCE(details, '')
FROM sync_logs
ORDER BY executed_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()
	var out []SyncLog
	for rows.Next() {
		var l SyncLog
		if err := rows.Scan(&l.ID, &l.SyncType, &l.ExecutedAt, &l.Success, &l.Details); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOnly(*t)
	return &d
}
