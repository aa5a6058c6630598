package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceSync is the task type for the scheduled invoice synchronisation.
	TaskInvoiceSync = "invoice-sync"
)

// InvoiceSyncPayload carries an optional lower bound for the sync window.
type InvoiceSyncPayload struct {
	Since *time.Time `json:"since,omitempty"`
}

// NewInvoiceSyncTask constructs an invoice-sync task. A nil since lets the
// engine apply its default lookback.
func NewInvoiceSyncTask(since *time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(InvoiceSyncPayload{Since: since})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceSync, data), nil
}
