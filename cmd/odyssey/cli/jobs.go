package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-crm/jobs"
)

// Enqueuer is the subset of asynq.Client used by the CLI.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Inspector is the subset of asynq.Inspector used by the CLI.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
	uniqueFor time.Duration
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string, uniqueFor time.Duration) (*JobsCLI, error) {
	if strings.TrimSpace(redisAddr) == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts), uniqueFor: uniqueFor}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name. since is optional.
func (c *JobsCLI) Trigger(ctx context.Context, name string, since *time.Time) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskInvoiceSync:
		task, err := jobs.NewInvoiceSyncTask(since)
		if err != nil {
			return nil, err
		}
		return c.client.EnqueueContext(ctx, task, jobs.InvoiceSyncOptions(c.uniqueFor)...)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// Run dispatches "jobs <trigger|stats|scheduled>" and returns the process exit code.
func (c *JobsCLI) Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: odyssey jobs <trigger [since YYYY-MM-DD]|stats|scheduled>")
		return 2
	}
	switch args[0] {
	case "trigger":
		var since *time.Time
		if len(args) > 1 {
			parsed, err := time.Parse(time.DateOnly, args[1])
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "jobs trigger: invalid since %q: expected YYYY-MM-DD\n", args[1])
				return 2
			}
			since = &parsed
		}
		info, err := c.Trigger(ctx, jobs.TaskInvoiceSync, since)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		tasks, err := c.ListScheduled(ctx, 10)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s %s %s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		_, _ = fmt.Fprintf(stderr, "jobs: unknown command %q\n", args[0])
		return 2
	}
	return 0
}
