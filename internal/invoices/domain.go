package invoices

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

// Messages returned to the invoice screens.
const (
	MsgCreated            = "Invoice created successfully"
	MsgInvoiceNotFound    = "Invoice not found"
	MsgCartNotFound       = "Cart not found for this invoice"
	MsgDuplicateInvoiceNo = "An invoice with this number already exists."
	MsgDuplicateOrderNo   = "An invoice with this order number already exists."
)

// ErrInvoiceNotFound is returned for unknown invoices and invoices of other users.
var ErrInvoiceNotFound = httpx.NotFound(MsgInvoiceNotFound)

// InsufficientStockError reports a line that would take an item below zero.
type InsufficientStockError struct {
	ItemID    int64
	CatNo     string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s: %d available, %d requested", e.CatNo, e.Available, e.Requested)
}

// Is makes the error a conflict for status mapping.
func (e *InsufficientStockError) Is(target error) bool {
	return target == httpx.ErrConflict
}

// Invoice is a stored invoice header.
type Invoice struct {
	ID                int64               `json:"id"`
	InvoiceNo         string              `json:"invoice_no"`
	UserID            int64               `json:"user_id"`
	PartyName         string              `json:"party_name"`
	OrderNo           *string             `json:"order_no"`
	DoctorName        *string             `json:"doctor_name"`
	PatientName       *string             `json:"patient_name"`
	Address           *string             `json:"address"`
	City              *string             `json:"city"`
	State             *string             `json:"state"`
	Pincode           *string             `json:"pincode"`
	MobileNo          *string             `json:"mobile_no"`
	GSTIN             *string             `json:"gstin"`
	RoadPermit        *string             `json:"road_permit"`
	PaymentMode       *string             `json:"payment_mode"`
	AdjustmentPercent decimal.NullDecimal `json:"adjustment_percent"`
	CGST              decimal.NullDecimal `json:"cgst"`
	SGST              decimal.NullDecimal `json:"sgst"`
	IGST              decimal.NullDecimal `json:"igst"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Rates returns the stored percentages with column defaults for nulls.
func (i Invoice) Rates() Rates {
	d := DefaultRates()
	return Rates{
		Adjustment: orDefault(i.AdjustmentPercent, d.Adjustment),
		CGST:       orDefault(i.CGST, d.CGST),
		SGST:       orDefault(i.SGST, d.SGST),
		IGST:       orDefault(i.IGST, d.IGST),
	}
}

// Cart is the financial summary of one invoice.
type Cart struct {
	ID               int64               `json:"id"`
	InvoiceID        int64               `json:"invoice_id"`
	CartTotal        decimal.Decimal     `json:"cart_total"`
	NetAmount        decimal.Decimal     `json:"net_amount"`
	NetPayableAmount decimal.NullDecimal `json:"net_payable_amount"`
}

// CartItem is one stored invoice line joined with its item details.
type CartItem struct {
	ID               int64               `json:"id"`
	CartID           int64               `json:"cart_id"`
	ItemID           int64               `json:"item_id"`
	HSNCode          *string             `json:"hsn_code"`
	AddonPercent     decimal.NullDecimal `json:"addon_percent"`
	SelectedQuantity int                 `json:"selected_quantity"`
	SellingPrice     decimal.Decimal     `json:"selling_price"`
	Total            decimal.Decimal     `json:"total"`
	ProductName      string              `json:"product_name"`
	LotNo            *string             `json:"lot_no"`
	CatNo            string              `json:"cat_no"`
	MRP              decimal.Decimal     `json:"mrp"`
}

// CartDetail is a cart with its lines.
type CartDetail struct {
	Cart
	Items []CartItem `json:"items"`
}

// Detail is the full invoice document.
type Detail struct {
	Invoice Invoice    `json:"invoice"`
	Cart    CartDetail `json:"cart"`
}

// Summary is one row of a user's invoice list.
type Summary struct {
	ID          int64               `json:"id"`
	InvoiceNo   string              `json:"invoice_no"`
	PartyName   string              `json:"party_name"`
	CreatedAt   time.Time           `json:"created_at"`
	PaymentMode *string             `json:"payment_mode"`
	NetPayable  decimal.NullDecimal `json:"net_payable"`
}

// Header is the invoice part of a submission. Optional fields that are absent
// are left out of the insert so column defaults apply.
type Header struct {
	InvoiceNo         string                              `json:"invoice_no" validate:"required,max=25"`
	UserID            int64                               `json:"user_id" validate:"gte=0"`
	PartyName         string                              `json:"party_name" validate:"required,max=100"`
	OrderNo           shared.Optional[string]             `json:"order_no,omitzero"`
	DoctorName        shared.Optional[string]             `json:"doctor_name,omitzero"`
	PatientName       shared.Optional[string]             `json:"patient_name,omitzero"`
	Address           shared.Optional[string]             `json:"address,omitzero"`
	City              shared.Optional[string]             `json:"city,omitzero"`
	State             shared.Optional[string]             `json:"state,omitzero"`
	Pincode           shared.Optional[string]             `json:"pincode,omitzero"`
	MobileNo          shared.Optional[shared.NumericText] `json:"mobile_no,omitzero"`
	GSTIN             shared.Optional[string]             `json:"gstin,omitzero"`
	RoadPermit        shared.Optional[string]             `json:"road_permit,omitzero"`
	PaymentMode       shared.Optional[string]             `json:"payment_mode,omitzero"`
	AdjustmentPercent shared.Optional[decimal.Decimal]    `json:"adjustment_percent,omitzero"`
	CGST              shared.Optional[decimal.Decimal]    `json:"cgst,omitzero"`
	SGST              shared.Optional[decimal.Decimal]    `json:"sgst,omitzero"`
	IGST              shared.Optional[decimal.Decimal]    `json:"igst,omitzero"`
	// UserShopName is sent by the invoice form for printing and is not stored.
	UserShopName      string                              `json:"user_shop_name,omitempty"`
}

// Column is one optional header column written on insert.
type Column struct {
	Name  string
	Value any
}

type textField struct {
	name   string
	value  shared.Optional[string]
	maxLen int
}

func (h Header) textFields() []textField {
	return []textField{
		{"order_no", h.OrderNo, 25},
		{"doctor_name", h.DoctorName, 100},
		{"patient_name", h.PatientName, 100},
		{"address", h.Address, 255},
		{"city", h.City, 100},
		{"state", h.State, 100},
		{"pincode", h.Pincode, 10},
		{"mobile_no", shared.TextOf(h.MobileNo), 10},
		{"gstin", h.GSTIN, 15},
		{"road_permit", h.RoadPermit, 25},
		{"payment_mode", h.PaymentMode, 25},
	}
}

type rateField struct {
	name  string
	value shared.Optional[decimal.Decimal]
}

func (h Header) rateFields() []rateField {
	return []rateField{
		{"adjustment_percent", h.AdjustmentPercent},
		{"cgst", h.CGST},
		{"sgst", h.SGST},
		{"igst", h.IGST},
	}
}

// OptionalColumns lists the present optional columns in a stable order. Blank
// text counts as absent.
func (h Header) OptionalColumns() []Column {
	var out []Column
	for _, f := range h.textFields() {
		if v, ok := shared.PresentText(f.value); ok {
			out = append(out, Column{f.name, v})
		}
	}
	for _, f := range h.rateFields() {
		if v, ok := f.value.Get(); ok {
			out = append(out, Column{f.name, v})
		}
	}
	return out
}

// Rates returns the percentages the invoice will be stored with.
func (h Header) Rates() Rates {
	d := DefaultRates()
	return Rates{
		Adjustment: h.AdjustmentPercent.OrElse(d.Adjustment),
		CGST:       h.CGST.OrElse(d.CGST),
		SGST:       h.SGST.OrElse(d.SGST),
		IGST:       h.IGST.OrElse(d.IGST),
	}
}

// Invoice returns the header as it will be stored, applying column defaults.
func (h Header) Invoice() Invoice {
	inv := Invoice{InvoiceNo: h.InvoiceNo, UserID: h.UserID, PartyName: h.PartyName}
	texts := map[string]**string{
		"order_no": &inv.OrderNo, "doctor_name": &inv.DoctorName, "patient_name": &inv.PatientName,
		"address": &inv.Address, "city": &inv.City, "state": &inv.State, "pincode": &inv.Pincode,
		"mobile_no": &inv.MobileNo, "gstin": &inv.GSTIN, "road_permit": &inv.RoadPermit,
		"payment_mode": &inv.PaymentMode,
	}
	for _, f := range h.textFields() {
		if v, ok := shared.PresentText(f.value); ok {
			*texts[f.name] = &v
		}
	}
	if inv.PaymentMode == nil {
		mode := DefaultPaymentMode
		inv.PaymentMode = &mode
	}
	r := h.Rates()
	inv.AdjustmentPercent = decimal.NewNullDecimal(r.Adjustment)
	inv.CGST = decimal.NewNullDecimal(r.CGST)
	inv.SGST = decimal.NewNullDecimal(r.SGST)
	inv.IGST = decimal.NewNullDecimal(r.IGST)
	return inv
}

func (h *Header) normalize() {
	h.InvoiceNo = strings.TrimSpace(h.InvoiceNo)
	h.PartyName = strings.TrimSpace(h.PartyName)
}

// LineRequest is one submitted invoice line.
type LineRequest struct {
	ItemID           int64               `json:"item_id" validate:"gt=0"`
	SelectedQuantity int                 `json:"selected_quantity" validate:"gt=0"`
	SellingPrice     decimal.NullDecimal `json:"selling_price"`
	Total            decimal.NullDecimal `json:"total"`
	HSNCode          *string             `json:"hsn_code" validate:"omitempty,max=20"`
	AddonPercent     decimal.NullDecimal `json:"addon_percent"`

	// Item details the invoice form echoes back with each line. The stored
	// line references the item instead.
	CatNo       string              `json:"cat_no,omitempty"`
	ProductName string              `json:"product_name,omitempty"`
	LotNo       *string             `json:"lot_no,omitempty"`
	MRP         decimal.NullDecimal `json:"mrp"`
	Expiry      *string             `json:"expiry,omitempty"`
}

// CartRequest is the submitted cart.
type CartRequest struct {
	CartTotal        decimal.NullDecimal `json:"cart_total"`
	NetAmount        decimal.NullDecimal `json:"net_amount"`
	NetPayableAmount decimal.NullDecimal `json:"net_payable_amount"`
	Items            []LineRequest       `json:"items" validate:"required,min=1,dive"`
}

// CreateRequest is the body of an invoice submission.
type CreateRequest struct {
	Invoice Header      `json:"invoice"`
	Cart    CartRequest `json:"cart"`
}

// CreateResult is returned after an invoice was stored.
type CreateResult struct {
	Message          string          `json:"message"`
	InvoiceID        int64           `json:"invoice_id"`
	CartID           int64           `json:"cart_id"`
	InvoiceNo        string          `json:"invoice_no"`
	CartTotal        decimal.Decimal `json:"cart_total"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	NetPayableAmount decimal.Decimal `json:"net_payable_amount"`
}

// NewCart is the cart row written with an invoice.
type NewCart struct {
	InvoiceID int64
	Totals    Totals
}

// NewLine is a cart item row written with an invoice.
type NewLine struct {
	CartID           int64
	ItemID           int64
	HSNCode          *string
	AddonPercent     decimal.NullDecimal
	SelectedQuantity int
	SellingPrice     decimal.Decimal
	Total            decimal.Decimal
}

func orDefault(v decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if v.Valid {
		return v.Decimal
	}
	return fallback
}
