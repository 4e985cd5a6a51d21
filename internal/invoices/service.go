package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/mpk-pharma/kanha/internal/numbering"
	"github.com/mpk-pharma/kanha/internal/platform/db"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

// StockCache drops cached stock listings of a user.
type StockCache interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Publisher announces committed invoices to background workers.
type Publisher interface {
	InvoicePosted(ctx context.Context, invoiceID, userID int64) error
}

// Metrics receives invoice outcomes.
type Metrics interface {
	InvoiceCreated(units int)
	InvoiceRejected(reason string)
}

// Options configure Service. Every port is optional.
type Options struct {
	Scheme        numbering.Scheme
	ClampOversell bool
	Stock         StockCache
	Publisher     Publisher
	Metrics       Metrics
	Logger        *slog.Logger
}

// Service implements invoice submission, numbering and retrieval.
type Service struct {
	repo      Repository
	opts      Options
	validator *validator.Validate
	logger    *slog.Logger
	numbers   singleflight.Group
}

// NewService builds Service.
func NewService(repo Repository, opts Options) *Service {
	if opts.Scheme.Prefix == "" {
		opts.Scheme = numbering.DefaultScheme()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, opts: opts, validator: shared.NewValidator(), logger: logger}
}

// Scheme returns the numbering scheme in use.
func (s *Service) Scheme() numbering.Scheme {
	return s.opts.Scheme
}

// Create validates a submission and stores invoice, cart and lines while
// taking the sold quantities off stock, all in one transaction. A non-empty
// idempotencyKey is claimed in the same transaction.
func (s *Service) Create(ctx context.Context, principal shared.Principal, idempotencyKey string, req CreateRequest) (CreateResult, error) {
	req.Invoice.normalize()
	if req.Invoice.UserID == 0 {
		req.Invoice.UserID = principal.UserID
	}
	if req.Invoice.UserID != principal.UserID {
		s.reject("forbidden")
		return CreateResult{}, httpx.Forbidden("Invoices can only be created for your own shop")
	}

	problems := shared.ValidationProblems(s.validator.Struct(req))
	problems = append(problems, headerProblems(req.Invoice)...)
	totals, cartProblems := checkCart(req.Cart, req.Invoice.Rates())
	problems = append(problems, cartProblems...)
	if len(problems) > 0 {
		s.reject("validation")
		return CreateResult{}, httpx.Validation("Missing or invalid invoice fields", problems...)
	}

	var result CreateResult
	units := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if idempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, idempotencyKey); err != nil {
				return err
			}
		}
		invoiceID, err := tx.InsertInvoice(ctx, req.Invoice)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		cartID, err := tx.InsertCart(ctx, NewCart{InvoiceID: invoiceID, Totals: totals})
		if err != nil {
			return fmt.Errorf("insert cart: %w", err)
		}
		for _, line := range req.Cart.Items {
			err := tx.InsertLine(ctx, NewLine{
				CartID:           cartID,
				ItemID:           line.ItemID,
				HSNCode:          blankToNil(line.HSNCode),
				AddonPercent:     line.AddonPercent,
				SelectedQuantity: line.SelectedQuantity,
				SellingPrice:     line.SellingPrice.Decimal.Round(2),
				Total:            line.Total.Decimal.Round(2),
			})
			if err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
			if s.opts.ClampOversell {
				err = tx.ClampStock(ctx, principal.UserID, line.ItemID, line.SelectedQuantity)
			} else {
				err = tx.DecrementStock(ctx, principal.UserID, line.ItemID, line.SelectedQuantity)
			}
			if err != nil {
				return err
			}
			units += line.SelectedQuantity
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  principal.UserID,
			Action:   "invoice.create",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(invoiceID, 10),
			Meta: map[string]any{
				"invoice_no": req.Invoice.InvoiceNo,
				"lines":      len(req.Cart.Items),
				"net":        totals.NetPayable.String(),
			},
		}); err != nil {
			return fmt.Errorf("audit invoice: %w", err)
		}
		result = CreateResult{
			Message:          MsgCreated,
			InvoiceID:        invoiceID,
			CartID:           cartID,
			InvoiceNo:        req.Invoice.InvoiceNo,
			CartTotal:        totals.CartTotal,
			NetAmount:        totals.NetAmount,
			NetPayableAmount: totals.NetPayable,
		}
		return nil
	})
	if err != nil {
		return CreateResult{}, s.createFailed(err)
	}

	s.afterCreate(ctx, principal.UserID, result.InvoiceID, units)
	return result, nil
}

func (s *Service) createFailed(err error) error {
	var stockErr *InsufficientStockError
	switch {
	case errors.Is(err, shared.ErrIdempotencyConflict):
		s.reject("idempotent_replay")
		return httpx.Conflict(shared.ErrIdempotencyConflict.Error())
	case errors.As(err, &stockErr):
		s.reject("insufficient_stock")
		return httpx.Conflict(stockErr.Error())
	case errors.Is(err, httpx.ErrDuplicate):
		s.reject("duplicate")
		if db.ConstraintName(err) == "invoices_order_no_key" {
			return httpx.Duplicate(MsgDuplicateOrderNo)
		}
		return httpx.Duplicate(MsgDuplicateInvoiceNo)
	case errors.Is(err, httpx.ErrReference):
		s.reject("reference")
		return err
	case errors.Is(err, httpx.ErrConflict):
		s.reject("conflict")
		return err
	default:
		s.reject("error")
		return err
	}
}

func (s *Service) afterCreate(ctx context.Context, userID, invoiceID int64, units int) {
	if s.opts.Stock != nil {
		if err := s.opts.Stock.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("invalidate stock cache", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.InvoicePosted(ctx, invoiceID, userID); err != nil {
			s.logger.Warn("enqueue invoice posted", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
		}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.InvoiceCreated(units)
	}
	s.logger.Info("invoice created", slog.Int64("invoice_id", invoiceID), slog.Int64("user_id", userID), slog.Int("units", units))
}

func (s *Service) reject(reason string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.InvoiceRejected(reason)
	}
}

// Get returns the full invoice document.
func (s *Service) Get(ctx context.Context, userID, id int64) (Detail, error) {
	return s.repo.Get(ctx, userID, id)
}

// List returns the user's invoice summaries newest first. A zero PerPage
// returns every invoice.
func (s *Service) List(ctx context.Context, userID int64, req shared.PageRequest) ([]Summary, int, error) {
	if req.PerPage == 0 {
		return s.repo.ListByUser(ctx, userID, 0, 0)
	}
	return s.repo.ListByUser(ctx, userID, req.Limit(), req.Offset())
}

// Delete removes an invoice with its cart and lines. Sold quantities are not
// returned to stock.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteInvoice(ctx, userID, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  userID,
			Action:   "invoice.delete",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(id, 10),
		})
	})
}

// NextNumber derives the next invoice number from the latest one issued under
// the scheme. Two callers may receive the same number; the unique constraint
// rejects the second submission.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	v, err, _ := s.numbers.Do(s.opts.Scheme.LeadingPart(), func() (any, error) {
		last, err := s.repo.LatestNumber(ctx, s.opts.Scheme.LeadingPart())
		if err != nil {
			return "", err
		}
		return s.opts.Scheme.Next(last), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func headerProblems(h Header) []string {
	var problems []string
	for _, f := range h.textFields() {
		if v, ok := shared.PresentText(f.value); ok && len(v) > f.maxLen {
			problems = append(problems, fmt.Sprintf("invoice.%s must be at most %d characters", f.name, f.maxLen))
		}
	}
	return problems
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v, ok := shared.PresentText(shared.Some(*s))
	if !ok {
		return nil
	}
	return &v
}
