package items

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

// Messages surfaced to the stock entry screens.
const (
	MsgDuplicateCatNo = "A product with this catalog number already exists."
	MsgItemNotFound   = "Item not found"
	MsgItemReferenced = "Item is referenced by existing invoices and cannot be deleted."
)

// ErrItemNotFound is returned for unknown items or items owned by another user.
var ErrItemNotFound = httpx.NotFound(MsgItemNotFound)

// Item is a stock-keeping unit owned by one shop user.
type Item struct {
	ID           int64               `json:"id"`
	UserID       int64               `json:"user_id"`
	CatNo        string              `json:"cat_no"`
	ProductName  string              `json:"product_name"`
	LotNo        *string             `json:"lot_no"`
	HSNNo        *string             `json:"hsn_no"`
	Quantity     int                 `json:"quantity"`
	WRate        decimal.NullDecimal `json:"w_rate"`
	SellingPrice decimal.NullDecimal `json:"selling_price"`
	MRP          decimal.Decimal     `json:"mrp"`
	CreatedAt    time.Time           `json:"created_at"`
}

// BasePrice is the price a sale starts from: the selling price when set,
// otherwise the MRP.
func (i Item) BasePrice() decimal.Decimal {
	if i.SellingPrice.Valid && i.SellingPrice.Decimal.IsPositive() {
		return i.SellingPrice.Decimal
	}
	return i.MRP
}

// CreateItemRequest is the stock entry payload.
type CreateItemRequest struct {
	UserID       int64               `json:"user_id" validate:"required,gt=0"`
	CatNo        string              `json:"cat_no" validate:"required,max=25"`
	ProductName  string              `json:"product_name" validate:"required,max=255"`
	LotNo        *string             `json:"lot_no" validate:"omitempty,max=25"`
	HSNNo        *string             `json:"hsn_no" validate:"omitempty,max=25"`
	Quantity     *int                `json:"quantity" validate:"required,gte=0"`
	WRate        decimal.NullDecimal `json:"w_rate"`
	SellingPrice decimal.NullDecimal `json:"selling_price"`
	MRP          decimal.NullDecimal `json:"mrp"`
}

func (r *CreateItemRequest) normalize() {
	r.CatNo = strings.TrimSpace(r.CatNo)
	r.ProductName = strings.TrimSpace(r.ProductName)
	r.LotNo = trimmedOrNil(r.LotNo)
	r.HSNNo = trimmedOrNil(r.HSNNo)
}

// ItemPatch is a partial update. Only present fields are written; an explicit
// null clears a nullable column.
type ItemPatch struct {
	UserID       shared.Optional[int64]           `json:"user_id,omitzero"`
	CatNo        shared.Optional[string]          `json:"cat_no,omitzero"`
	ProductName  shared.Optional[string]          `json:"product_name,omitzero"`
	LotNo        shared.Optional[string]          `json:"lot_no,omitzero"`
	HSNNo        shared.Optional[string]          `json:"hsn_no,omitzero"`
	Quantity     shared.Optional[int]             `json:"quantity,omitzero"`
	WRate        shared.Optional[decimal.Decimal] `json:"w_rate,omitzero"`
	SellingPrice shared.Optional[decimal.Decimal] `json:"selling_price,omitzero"`
	MRP          shared.Optional[decimal.Decimal] `json:"mrp,omitzero"`
}

// Assignment is one column write produced by a patch.
type Assignment struct {
	Column string
	Value  any
}

// Assignments lists the column writes of the patch in a stable order. Nullable
// text columns treat a blank string like null. UserID never appears because
// ownership cannot change.
func (p ItemPatch) Assignments() []Assignment {
	var out []Assignment
	if v, ok := p.CatNo.Get(); ok {
		out = append(out, Assignment{"cat_no", strings.TrimSpace(v)})
	}
	if v, ok := p.ProductName.Get(); ok {
		out = append(out, Assignment{"product_name", strings.TrimSpace(v)})
	}
	if p.LotNo.Present() {
		out = append(out, Assignment{"lot_no", nullableText(p.LotNo)})
	}
	if p.HSNNo.Present() {
		out = append(out, Assignment{"hsn_no", nullableText(p.HSNNo)})
	}
	if v, ok := p.Quantity.Get(); ok {
		out = append(out, Assignment{"quantity", v})
	}
	if p.WRate.Present() {
		out = append(out, Assignment{"w_rate", nullableDecimal(p.WRate)})
	}
	if p.SellingPrice.Present() {
		out = append(out, Assignment{"selling_price", nullableDecimal(p.SellingPrice)})
	}
	if v, ok := p.MRP.Get(); ok {
		out = append(out, Assignment{"mrp", v})
	}
	return out
}

// Apply returns item with the patch merged in. The in-memory repository used in
// tests relies on it; PostgreSQL applies Assignments directly.
func (p ItemPatch) Apply(item Item) Item {
	if v, ok := p.CatNo.Get(); ok {
		item.CatNo = strings.TrimSpace(v)
	}
	if v, ok := p.ProductName.Get(); ok {
		item.ProductName = strings.TrimSpace(v)
	}
	if p.LotNo.Present() {
		item.LotNo = textPtr(p.LotNo)
	}
	if p.HSNNo.Present() {
		item.HSNNo = textPtr(p.HSNNo)
	}
	if v, ok := p.Quantity.Get(); ok {
		item.Quantity = v
	}
	if p.WRate.Present() {
		item.WRate = nullDecimal(p.WRate)
	}
	if p.SellingPrice.Present() {
		item.SellingPrice = nullDecimal(p.SellingPrice)
	}
	if v, ok := p.MRP.Get(); ok {
		item.MRP = v
	}
	return item
}

// SearchType selects the column a prefix search matches against.
type SearchType string

const (
	SearchByCatNo       SearchType = "cat_no"
	SearchByProductName SearchType = "product_name"
)

// Valid reports whether t names a searchable column.
func (t SearchType) Valid() bool {
	return t == SearchByCatNo || t == SearchByProductName
}

// SearchResult is the response of a prefix search.
type SearchResult struct {
	Count int    `json:"count"`
	Items []Item `json:"items"`
}

// Page is one page of a user's stock listing.
type Page struct {
	Items []Item `json:"items"`
	shared.Pagination
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func textPtr(o shared.Optional[string]) *string {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return trimmedOrNil(&v)
}

func nullableText(o shared.Optional[string]) any {
	if p := textPtr(o); p != nil {
		return *p
	}
	return nil
}

func nullDecimal(o shared.Optional[decimal.Decimal]) decimal.NullDecimal {
	v, ok := o.Get()
	return decimal.NullDecimal{Decimal: v, Valid: ok}
}

func nullableDecimal(o shared.Optional[decimal.Decimal]) any {
	if v, ok := o.Get(); ok {
		return v
	}
	return nil
}
