// Package reconcile merges invoices reported by the order-management system
// into the local store and keeps the sync audit log.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-crm/internal/crm"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/skyline"
)

const (
	// DefaultLookback is the sync window used when no since date is given.
	DefaultLookback = 24 * time.Hour

	defaultCurrency = "USD"
)

// Result summarises one synchronisation batch.
type Result struct {
	Processed int      `json:"processed"`
	Warnings  []string `json:"warnings"`
}

// Options tunes an Engine.
type Options struct {
	Lookback time.Duration
	Now      func() time.Time
}

// Engine runs invoice synchronisation batches.
type Engine struct {
	store    crm.Store
	gateway  skyline.Gateway
	locker   Locker
	logger   *slog.Logger
	lookback time.Duration
	now      func() time.Time
}

// NewEngine constructs an Engine. A nil locker falls back to an in-process lock.
func NewEngine(store crm.Store, gateway skyline.Gateway, locker Locker, logger *slog.Logger, opts Options) *Engine {
	if locker == nil {
		locker = NewLocalLocker(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    store,
		gateway:  gateway,
		locker:   locker,
		logger:   logger,
		lookback: opts.Lookback,
		now:      opts.Now,
	}
}

// SynchronizeInvoices pulls invoices updated since the given instant (default
// now minus the lookback) and merges them by external id. Per-record problems
// become warnings; any other failure aborts the batch, rolls back its merges
// and is recorded in the sync log before being returned.
func (e *Engine) SynchronizeInvoices(ctx context.Context, since *time.Time) (Result, error) {
	release, err := e.locker.Obtain(ctx, shared.InvoiceSyncLockKey)
	if err != nil {
		return Result{Warnings: []string{}}, fmt.Errorf("synchronise invoices: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("release invoice sync lock", slog.Any("error", err))
		}
	}()

	from := e.now().Add(-e.lookback)
	if since != nil {
		from = *since
	}

	payloads, err := e.gateway.FetchInvoices(ctx, from)
	if err != nil {
		return e.fail(ctx, nil, shared.NewUpstreamError("order-management system unreachable: "+err.Error(), err))
	}

	var result Result
	err = e.store.WithTx(ctx, func(ctx context.Context, tx crm.TxRepository) error {
		result = Result{Warnings: []string{}}
		syncedAt := e.now().UTC()
		for _, p := range payloads {
			merged, warnings, err := e.merge(ctx, tx, p, syncedAt)
			result.Warnings = append(result.Warnings, warnings...)
			if err != nil {
				return err
			}
			if merged {
				result.Processed++
			}
		}
		return tx.InsertSyncLog(ctx, crm.SyncLog{
			ID:         uuid.New(),
			SyncType:   crm.SyncTypeInvoice,
			ExecutedAt: syncedAt,
			Success:    len(result.Warnings) == 0,
			Details:    summary(result),
		})
	})
	if err != nil {
		return e.fail(ctx, result.Warnings, err)
	}

	e.logger.Info("invoice sync completed",
		slog.Int("processed", result.Processed),
		slog.Int("warnings", len(result.Warnings)))
	return result, nil
}

func (e *Engine) merge(ctx context.Context, tx crm.TxRepository, p skyline.InvoicePayload, syncedAt time.Time) (bool, []string, error) {
	if strings.TrimSpace(p.ExternalID) == "" {
		return false, []string{fmt.Sprintf("Missing invoice number for opportunity %s", p.OpportunityExternalID)}, nil
	}
	opp, err := tx.FindOpportunityByExternalOrderID(ctx, p.OpportunityExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		return false, []string{fmt.Sprintf("Unknown opportunity for invoice %s", p.ExternalID)}, nil
	}
	if err != nil {
		return false, nil, err
	}

	var warnings []string
	status, ok := crm.ParseInvoiceStatus(p.Status)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("Unrecognised status %q for invoice %s; defaulted to %s", p.Status, p.ExternalID, status))
	}
	code, ok := normaliseCurrency(p.Currency)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("Unrecognised currency %q for invoice %s; defaulted to %s", p.Currency, p.ExternalID, code))
	}

	_, _, err = tx.UpsertInvoice(ctx, crm.InvoiceUpsert{
		OpportunityID: opp.ID,
		ExternalID:    p.ExternalID,
		Amount:        p.Amount.Round(2),
		IssueDate:     p.IssueDate,
		DueDate:       p.DueDate,
		Status:        status,
		Currency:      code,
		SyncedAt:      syncedAt,
	})
	if err != nil {
		return false, warnings, fmt.Errorf("merge invoice %s: %w", p.ExternalID, err)
	}
	return true, warnings, nil
}

// fail records a failed batch in its own transaction and returns the cause.
func (e *Engine) fail(ctx context.Context, warnings []string, cause error) (Result, error) {
	if warnings == nil {
		warnings = []string{}
	}
	details := strings.Join(append(append([]string(nil), warnings...), cause.Error()), "; ")
	logCtx := context.WithoutCancel(ctx)
	err := e.store.WithTx(logCtx, func(ctx context.Context, tx crm.TxRepository) error {
		return tx.InsertSyncLog(ctx, crm.SyncLog{
			ID:         uuid.New(),
			SyncType:   crm.SyncTypeInvoice,
			ExecutedAt: e.now().UTC(),
			Success:    false,
			Details:    details,
		})
	})
	if err != nil {
		e.logger.Error("record failed invoice sync", slog.Any("error", err), slog.String("details", details))
	}
	e.logger.Error("invoice sync failed", slog.Any("error", cause), slog.Int("warnings", len(warnings)))
	return Result{Warnings: warnings}, fmt.Errorf("synchronise invoices: %w", cause)
}

// ListSyncLogs returns the most recent sync log entries.
func (e *Engine) ListSyncLogs(ctx context.Context, limit int) ([]crm.SyncLog, error) {
	var logs []crm.SyncLog
	err := e.store.WithTx(ctx, func(ctx context.Context, tx crm.TxRepository) error {
		var err error
		logs, err = tx.ListSyncLogs(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	if logs == nil {
		logs = []crm.SyncLog{}
	}
	return logs, nil
}

func summary(r Result) string {
	details := fmt.Sprintf("Processed %d invoices", r.Processed)
	if len(r.Warnings) > 0 {
		details = fmt.Sprintf("%s; warnings: %s", details, strings.Join(r.Warnings, " | "))
	}
	return details
}

// normaliseCurrency maps feed currency text onto an ISO 4217 code.
func normaliseCurrency(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultCurrency, true
	}
	unit, err := currency.ParseISO(strings.ToUpper(trimmed))
	if err != nil {
		return defaultCurrency, false
	}
	return unit.String(), true
}
