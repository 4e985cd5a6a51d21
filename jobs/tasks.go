package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mpk-pharma/kanha/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoicePosted follows up on a committed invoice.
	TaskInvoicePosted = "invoice:posted"
	// TaskLowStockScan scans stock for items at or below the threshold.
	TaskLowStockScan = "stock:low-scan"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// InvoicePostedPayload identifies a committed invoice.
type InvoicePostedPayload struct {
	InvoiceID int64 `json:"invoice_id"`
	UserID    int64 `json:"user_id"`
}

// LowStockScanPayload limits a scan to one user. Zero scans every user.
type LowStockScanPayload struct {
	UserID int64 `json:"user_id,omitempty"`
}

// IdempotencyCleanupPayload sets how long keys are kept.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the retention window, defaulting to seven days.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	if p.RetentionHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewInvoicePostedTask constructs the follow-up task of an invoice.
func NewInvoicePostedTask(invoiceID, userID int64) (*asynq.Task, error) {
	return newTask(TaskInvoicePosted, InvoicePostedPayload{InvoiceID: invoiceID, UserID: userID})
}

// NewLowStockScanTask constructs a scan task.
func NewLowStockScanTask(userID int64) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, LowStockScanPayload{UserID: userID})
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
}

func newTask(typename string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}
