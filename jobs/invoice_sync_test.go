package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
	"github.com/odyssey-erp/odyssey-crm/internal/reconcile"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

type fakeSynchronizer struct {
	result reconcile.Result
	err    error
	since  *time.Time
	calls  int
}

func (f *fakeSynchronizer) SynchronizeInvoices(_ context.Context, since *time.Time) (reconcile.Result, error) {
	f.calls++
	f.since = since
	return f.result, f.err
}

func newJob(sync Synchronizer) *InvoiceSyncJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewInvoiceSyncJob(sync, logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestInvoiceSyncJobPassesSince(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	task, err := NewInvoiceSyncTask(&since)
	require.NoError(t, err)

	sync := &fakeSynchronizer{result: reconcile.Result{Processed: 2, Warnings: []string{}}}
	require.NoError(t, newJob(sync).Handle(context.Background(), task))
	require.NotNil(t, sync.since)
	assert.True(t, since.Equal(*sync.since))
}

func TestInvoiceSyncJobDefaultsSinceWhenPayloadEmpty(t *testing.T) {
	sync := &fakeSynchronizer{}
	require.NoError(t, newJob(sync).Handle(context.Background(), asynq.NewTask(TaskInvoiceSync, nil)))
	assert.Equal(t, 1, sync.calls)
	assert.Nil(t, sync.since)
}

func TestInvoiceSyncJobSkipsWhenLocked(t *testing.T) {
	sync := &fakeSynchronizer{err: shared.ErrSyncInProgress}
	task, err := NewInvoiceSyncTask(nil)
	require.NoError(t, err)
	assert.NoError(t, newJob(sync).Handle(context.Background(), task))
}

func TestInvoiceSyncJobReturnsFailure(t *testing.T) {
	boom := errors.New("remote down")
	sync := &fakeSynchronizer{err: boom}
	task, err := NewInvoiceSyncTask(nil)
	require.NoError(t, err)
	assert.ErrorIs(t, newJob(sync).Handle(context.Background(), task), boom)
}

func TestInvoiceSyncJobRejectsMalformedPayload(t *testing.T) {
	err := newJob(&fakeSynchronizer{}).Handle(context.Background(), asynq.NewTask(TaskInvoiceSync, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSyncMessage(t *testing.T) {
	assert.Equal(t, "Synced 3 invoices", SyncMessage(reconcile.Result{Processed: 3}))
	assert.Equal(t, "Synced 1 invoices (warnings: a | b)",
		SyncMessage(reconcile.Result{Processed: 1, Warnings: []string{"a", "b"}}))
}

type fakeEnqueuer struct {
	err error
}

func (f fakeEnqueuer) EnqueueInvoiceSync(context.Context, *time.Time) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

type fakeInspector struct{ pending int }

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: f.pending}, nil
}

func serve(h *Handler, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandlerHealthReportsPending(t *testing.T) {
	rec := serve(NewHandler(fakeInspector{pending: 4}, nil, nil), http.MethodGet, "/jobs/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, queueHealth{Queue: QueueDefault, Pending: 4}, body)
}

func TestHandlerEnqueuesInvoiceSync(t *testing.T) {
	rec := serve(NewHandler(nil, fakeEnqueuer{}, nil), http.MethodPost, "/jobs/invoice-sync")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "task-1")

	rec = serve(NewHandler(nil, fakeEnqueuer{err: asynq.ErrDuplicateTask}, nil), http.MethodPost, "/jobs/invoice-sync")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(NewHandler(nil, nil, nil), http.MethodPost, "/jobs/invoice-sync")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInvoiceSyncOptions(t *testing.T) {
	assert.Len(t, InvoiceSyncOptions(0), 2)
	assert.Len(t, InvoiceSyncOptions(time.Minute), 3)
}
