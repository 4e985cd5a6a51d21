package items

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mpk-pharma/kanha/internal/platform/cache"
	"github.com/mpk-pharma/kanha/internal/platform/db"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

const (
	catNoConstraint = "items_user_cat_no_key"
	catNoMaxLen     = 25
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock item operations.
type Service struct {
	repo      Repository
	cache     *cache.Versioned
	audit     AuditPort
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService builds Service. cache and audit may be nil.
func NewService(repo Repository, pageCache *cache.Versioned, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: pageCache, audit: audit, validator: shared.NewValidator(), logger: logger}
}

// Create validates and stores a new item.
func (s *Service) Create(ctx context.Context, req CreateItemRequest) (Item, error) {
	req.normalize()
	problems := shared.ValidationProblems(s.validator.Struct(req))
	problems = append(problems, checkCreatePrices(req)...)
	if len(problems) > 0 {
		return Item{}, httpx.Validation("Missing or invalid item fields", problems...)
	}
	item, err := s.repo.Create(ctx, req)
	if err != nil {
		if isDuplicateCatNo(err) {
			return Item{}, httpx.Duplicate(MsgDuplicateCatNo)
		}
		return Item{}, err
	}
	s.afterWrite(ctx, item.UserID, "item.create", item.ID, map[string]any{"cat_no": item.CatNo, "quantity": item.Quantity})
	return item, nil
}

// Get returns one item of the user.
func (s *Service) Get(ctx context.Context, userID, id int64) (Item, error) {
	return s.repo.Get(ctx, userID, id)
}

// GetByCatNo returns the user's item with an exactly matching catalog number.
func (s *Service) GetByCatNo(ctx context.Context, userID int64, catNo string) (Item, error) {
	catNo = strings.TrimSpace(catNo)
	if catNo == "" {
		return Item{}, httpx.Validation("Catalog number is required")
	}
	return s.repo.GetByCatNo(ctx, userID, catNo)
}

// Search runs a case-insensitive prefix search over one column of the user's
// items.
func (s *Service) Search(ctx context.Context, userID int64, searchType SearchType, term string) (SearchResult, error) {
	var problems []string
	if userID <= 0 {
		problems = append(problems, "userId must be a positive number")
	}
	if !searchType.Valid() {
		problems = append(problems, "searchType must be one of: cat_no, product_name")
	}
	term = strings.TrimSpace(term)
	if term == "" {
		problems = append(problems, "searchTerm must not be empty")
	}
	if len(problems) > 0 {
		return SearchResult{}, httpx.Validation("Invalid search parameters", problems...)
	}
	found, err := s.repo.Search(ctx, userID, searchType, term)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Count: len(found), Items: found}, nil
}

// List returns one page of the user's stock, served from cache when fresh.
func (s *Service) List(ctx context.Context, userID int64, req shared.PageRequest) (Page, error) {
	if userID <= 0 {
		return Page{}, httpx.Validation("Invalid user ID format.")
	}
	scope := strconv.FormatInt(userID, 10)
	key, err := s.cache.Key(ctx, scope, "page", strconv.Itoa(req.Page), strconv.Itoa(req.Limit()))
	if err != nil {
		s.logger.Warn("items cache key", slog.Any("error", err))
		return s.loadPage(ctx, userID, req)
	}
	var page Page
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		return s.loadPage(ctx, userID, req)
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

func (s *Service) loadPage(ctx context.Context, userID int64, req shared.PageRequest) (Page, error) {
	list, total, err := s.repo.List(ctx, userID, req.Limit(), req.Offset())
	if err != nil {
		return Page{}, err
	}
	return Page{Items: list, Pagination: shared.NewPagination(req.Page, req.Limit(), total)}, nil
}

// Update applies a partial update. A catalog number clash with another item
// of the same user is a validation error and leaves the item unchanged.
func (s *Service) Update(ctx context.Context, userID, id int64, patch ItemPatch) (Item, error) {
	if owner, ok := patch.UserID.Get(); ok && owner != userID {
		return Item{}, httpx.Forbidden("Items cannot be moved to another user")
	}
	if problems := checkPatch(patch); len(problems) > 0 {
		return Item{}, httpx.Validation("Invalid item update", problems...)
	}
	item, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		if isDuplicateCatNo(err) {
			return Item{}, httpx.Validation(MsgDuplicateCatNo, MsgDuplicateCatNo)
		}
		return Item{}, err
	}
	s.afterWrite(ctx, userID, "item.update", item.ID, map[string]any{"fields": patchColumns(patch)})
	return item, nil
}

// Delete removes an item. Items still referenced by invoice lines stay.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, httpx.ErrReference) {
			return httpx.Conflict(MsgItemReferenced)
		}
		return err
	}
	s.afterWrite(ctx, userID, "item.delete", id, nil)
	return nil
}

// ListAll returns the user's whole stock.
func (s *Service) ListAll(ctx context.Context, userID int64) ([]Item, error) {
	return s.repo.ListAll(ctx, userID)
}

// LowStock lists items at or below threshold; userID 0 covers every user.
func (s *Service) LowStock(ctx context.Context, userID int64, threshold int) ([]Item, error) {
	return s.repo.LowStock(ctx, userID, threshold)
}

// Invalidate drops cached listings of the user after stock changed elsewhere.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	return s.cache.Bump(ctx, strconv.FormatInt(userID, 10))
}

func (s *Service) afterWrite(ctx context.Context, userID int64, action string, itemID int64, meta map[string]any) {
	if err := s.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("items cache bump", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit item write", slog.String("action", action), slog.Any("error", err))
	}
}

func isDuplicateCatNo(err error) bool {
	if !errors.Is(err, httpx.ErrDuplicate) {
		return false
	}
	name := db.ConstraintName(err)
	return name == "" || name == catNoConstraint
}

func checkCreatePrices(req CreateItemRequest) []string {
	var problems []string
	if !req.MRP.Valid {
		problems = append(problems, "mrp is required")
	} else if !req.MRP.Decimal.IsPositive() {
		problems = append(problems, "mrp must be greater than 0")
	}
	if req.WRate.Valid && req.WRate.Decimal.IsNegative() {
		problems = append(problems, "w_rate must be 0 or more")
	}
	if req.SellingPrice.Valid && req.SellingPrice.Decimal.IsNegative() {
		problems = append(problems, "selling_price must be 0 or more")
	}
	return problems
}

func checkPatch(p ItemPatch) []string {
	var problems []string
	if len(p.Assignments()) == 0 {
		return []string{"at least one field must be provided"}
	}
	if p.CatNo.IsNull() {
		problems = append(problems, "cat_no cannot be null")
	} else if v, ok := p.CatNo.Get(); ok {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
			problems = append(problems, "cat_no must not be blank")
		case len(v) > catNoMaxLen:
			problems = append(problems, "cat_no must be at most 25 characters")
		}
	}
	if p.ProductName.IsNull() {
		problems = append(problems, "product_name cannot be null")
	} else if v, ok := p.ProductName.Get(); ok && strings.TrimSpace(v) == "" {
		problems = append(problems, "product_name must not be blank")
	}
	if p.Quantity.IsNull() {
		problems = append(problems, "quantity cannot be null")
	} else if v, ok := p.Quantity.Get(); ok && v < 0 {
		problems = append(problems, "quantity must be 0 or more")
	}
	if p.MRP.IsNull() {
		problems = append(problems, "mrp cannot be null")
	} else if v, ok := p.MRP.Get(); ok && !v.IsPositive() {
		problems = append(problems, "mrp must be greater than 0")
	}
	problems = append(problems, nonNegative("w_rate", p.WRate)...)
	problems = append(problems, nonNegative("selling_price", p.SellingPrice)...)
	return problems
}

func nonNegative(field string, o shared.Optional[decimal.Decimal]) []string {
	if v, ok := o.Get(); ok && v.IsNegative() {
		return []string{field + " must be 0 or more"}
	}
	return nil
}

func patchColumns(p ItemPatch) []string {
	assignments := p.Assignments()
	cols := make([]string, 0, len(assignments))
	for _, a := range assignments {
		cols = append(cols, a.Column)
	}
	return cols
}
