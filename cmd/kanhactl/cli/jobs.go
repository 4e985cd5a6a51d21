package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/mpk-pharma/kanha/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector jobs.QueueInspector
	closers   []func() error
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client := jobs.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector, closers: []func() error{client.Close, inspector.Close}}
}

// NewJobsCLIWith builds the helpers over prepared dependencies.
func NewJobsCLIWith(client *jobs.Client, inspector jobs.QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closeFn := range c.closers {
		err = errors.Join(err, closeFn())
	}
	return err
}

// LowStockScanCommand enqueues a scan of one user, or of every user for zero.
func (c *JobsCLI) LowStockScanCommand(ctx context.Context, userID int64, out Output) int {
	out = out.withDefaults()
	if c == nil || c.client == nil {
		_, _ = fmt.Fprintln(out.Stderr, "low-stock-scan: client not configured")
		return 1
	}
	if userID < 0 {
		_, _ = fmt.Fprintln(out.Stderr, "low-stock-scan: --user must not be negative")
		return 1
	}
	info, err := c.client.EnqueueLowStockScan(ctx, userID)
	if err != nil {
		return fail(out, "low-stock-scan", err)
	}
	if out.JSON {
		return encode(out, "low-stock-scan", map[string]string{"task_id": info.ID, "queue": info.Queue})
	}
	_, _ = fmt.Fprintf(out.Stdout, "enqueued %s on %s\n", info.ID, info.Queue)
	return 0
}

// QueueCommand prints the default queue counters.
func (c *JobsCLI) QueueCommand(ctx context.Context, out Output) int {
	out = out.withDefaults()
	if c == nil || c.inspector == nil {
		_, _ = fmt.Fprintln(out.Stderr, "queue: inspector not configured")
		return 1
	}
	health, err := jobs.ReadQueueHealth(c.inspector)
	if err != nil {
		return fail(out, "queue", err)
	}
	if out.JSON {
		return encode(out, "queue", health)
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		health.Queue, health.Pending, health.Active, health.Scheduled, health.Retry, health.Archived)
	return 0
}
