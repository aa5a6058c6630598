package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
	"github.com/odyssey-erp/odyssey-crm/internal/reconcile"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// Synchronizer runs one invoice synchronisation batch.
type Synchronizer interface {
	SynchronizeInvoices(ctx context.Context, since *time.Time) (reconcile.Result, error)
}

// InvoiceSyncJob executes the daily invoice reconciliation.
type InvoiceSyncJob struct {
	Engine  Synchronizer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInvoiceSyncJob wires the invoice-sync handler.
func NewInvoiceSyncJob(engine Synchronizer, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvoiceSyncJob {
	return &InvoiceSyncJob{Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle processes TaskInvoiceSync tasks. A run that finds the lock taken is
// skipped rather than retried.
func (j *InvoiceSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("invoice sync: handler not configured")
	}
	var payload InvoiceSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("invoice sync: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskInvoiceSync)
	logger := j.logger()

	result, err := j.Engine.SynchronizeInvoices(ctx, payload.Since)
	if errors.Is(err, shared.ErrSyncInProgress) {
		tracker.Skip()
		logger.Info("invoice sync skipped", slog.String("reason", err.Error()))
		return nil
	}
	if err != nil {
		logger.Error("invoice sync failed", slog.Any("error", err))
		return tracker.End(err)
	}

	j.Metrics.AddInvoiceSync(result.Processed, len(result.Warnings))
	logger.Info(SyncMessage(result),
		slog.Int("processed", result.Processed),
		slog.Int("warnings", len(result.Warnings)),
	)
	return tracker.End(nil)
}

// SyncMessage renders a one-line summary of a batch.
func SyncMessage(r reconcile.Result) string {
	msg := fmt.Sprintf("Synced %d invoices", r.Processed)
	if len(r.Warnings) > 0 {
		msg += " (warnings: " + strings.Join(r.Warnings, " | ") + ")"
	}
	return msg
}

func (j *InvoiceSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInvoiceSync))
	}
	return slog.Default().With(slog.String("job", TaskInvoiceSync))
}
