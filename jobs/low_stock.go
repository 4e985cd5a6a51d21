package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mpk-pharma/kanha/internal/jobs"
	"github.com/mpk-pharma/kanha/internal/platform/db"
)

// DefaultLowStockThreshold is the quantity at or below which an item raises an alert.
const DefaultLowStockThreshold = 5

// StockLevel is an item found at or below the threshold.
type StockLevel struct {
	UserID   int64
	ItemID   int64
	CatNo    string
	Quantity int
}

// AlertStore reads stock levels and records alerts.
type AlertStore interface {
	InvoiceItemsAtOrBelow(ctx context.Context, invoiceID int64, threshold int) ([]StockLevel, error)
	ItemsAtOrBelow(ctx context.Context, userID int64, threshold int) ([]StockLevel, error)
	RecordAlerts(ctx context.Context, levels []StockLevel, threshold int) (int, error)
}

// StockInvalidator drops cached stock listings of a user.
type StockInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// LowStockJob raises low-stock alerts after invoices and on schedule.
type LowStockJob struct {
	Store     AlertStore
	Stock     StockInvalidator
	Threshold int
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockJob initialises the low-stock handlers.
func NewLowStockJob(store AlertStore, stock StockInvalidator, threshold int, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	if threshold < 0 {
		threshold = DefaultLowStockThreshold
	}
	return &LowStockJob{Store: store, Stock: stock, Threshold: threshold, Logger: logger, Metrics: metrics}
}

// HandleInvoicePosted checks the items sold on one invoice.
func (j *LowStockJob) HandleInvoicePosted(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("low stock: handler not configured")
	}
	var payload InvoicePostedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.InvoiceID <= 0 {
		return fmt.Errorf("invoice posted payload: %w", asynq.SkipRetry)
	}
	tracker := j.metrics().Track(TaskInvoicePosted)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger(TaskInvoicePosted).With(slog.Int64("invoice_id", payload.InvoiceID), slog.Int64("user_id", payload.UserID))
	levels, err := j.Store.InvoiceItemsAtOrBelow(ctx, payload.InvoiceID, j.Threshold)
	if err != nil {
		logger.Error("load invoice stock", slog.Any("error", err))
		return err
	}
	if _, err := j.raise(ctx, logger, TaskInvoicePosted, levels); err != nil {
		return err
	}
	if j.Stock != nil && payload.UserID > 0 {
		if err := j.Stock.Invalidate(ctx, payload.UserID); err != nil {
			logger.Warn("invalidate stock cache", slog.Any("error", err))
		}
	}
	return nil
}

// HandleScan scans every item of one user, or of all users.
func (j *LowStockJob) HandleScan(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("low stock: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("low stock payload: %w", asynq.SkipRetry)
		}
	}
	tracker := j.metrics().Track(TaskLowStockScan)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	logger := j.logger(TaskLowStockScan).With(slog.Int64("user_id", payload.UserID), slog.Int("threshold", j.Threshold))
	logger.Info("starting low stock scan")
	levels, err := j.Store.ItemsAtOrBelow(ctx, payload.UserID, j.Threshold)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	raised, err := j.raise(ctx, logger, TaskLowStockScan, levels)
	if err != nil {
		return err
	}
	logger.Info("completed low stock scan",
		slog.Int("low_items", len(levels)),
		slog.Int("alerts", raised),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockJob) raise(ctx context.Context, logger *slog.Logger, source string, levels []StockLevel) (int, error) {
	if len(levels) == 0 {
		return 0, nil
	}
	raised, err := j.Store.RecordAlerts(ctx, levels, j.Threshold)
	if err != nil {
		logger.Error("record stock alerts", slog.Any("error", err))
		return 0, err
	}
	for _, l := range levels {
		logger.Warn("low stock",
			slog.Int64("user_id", l.UserID),
			slog.Int64("item_id", l.ItemID),
			slog.String("cat_no", l.CatNo),
			slog.Int("quantity", l.Quantity),
		)
	}
	j.metrics().AddStockAlerts(source, raised)
	return raised, nil
}

func (j *LowStockJob) logger(job string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (j *LowStockJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// PGAlertStore implements AlertStore on PostgreSQL.
type PGAlertStore struct {
	db db.DBTX
}

// NewPGAlertStore wraps a connection or pool.
func NewPGAlertStore(conn db.DBTX) *PGAlertStore {
	return &PGAlertStore{db: conn}
}

// InvoiceItemsAtOrBelow returns the invoice's items whose stock is now low.
func (s *PGAlertStore) InvoiceItemsAtOrBelow(ctx context.Context, invoiceID int64, threshold int) ([]StockLevel, error) {
	return s.query(ctx, `SELECT DISTINCT i.user_id, i.id, i.cat_no, i.quantity
FROM cart_items ci
JOIN carts c ON c.id = ci.cart_id
JOIN items i ON i.id = ci.item_id
WHERE c.invoice_id = $1 AND i.quantity <= $2
ORDER BY i.id`, invoiceID, threshold)
}

// ItemsAtOrBelow returns low items of userID, or of every user when zero.
func (s *PGAlertStore) ItemsAtOrBelow(ctx context.Context, userID int64, threshold int) ([]StockLevel, error) {
	return s.query(ctx, `SELECT user_id, id, cat_no, quantity FROM items
WHERE quantity <= $1 AND ($2::bigint = 0 OR user_id = $2)
ORDER BY user_id, quantity, cat_no`, threshold, userID)
}

func (s *PGAlertStore) query(ctx context.Context, sql string, args ...any) ([]StockLevel, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []StockLevel
	for rows.Next() {
		var l StockLevel
		if err := rows.Scan(&l.UserID, &l.ItemID, &l.CatNo, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RecordAlerts inserts one alert per item unless the same level was already
// reported during the last day. It returns the number of rows written.
func (s *PGAlertStore) RecordAlerts(ctx context.Context, levels []StockLevel, threshold int) (int, error) {
	written := 0
	for _, l := range levels {
		tag, err := s.db.Exec(ctx, `INSERT INTO stock_alerts (user_id, item_id, cat_no, quantity, threshold)
SELECT $1, $2, $3, $4, $5
WHERE NOT EXISTS (
	SELECT 1 FROM stock_alerts
	WHERE item_id = $2 AND quantity = $4 AND raised_at > NOW() - INTERVAL '1 day'
)`, l.UserID, l.ItemID, l.CatNo, l.Quantity, threshold)
		if err != nil {
			return written, db.Classify(err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}
