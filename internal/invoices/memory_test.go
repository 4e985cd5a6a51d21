package invoices_test

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mpk-pharma/kanha/internal/invoices"
	"github.com/mpk-pharma/kanha/internal/numbering"
	"github.com/mpk-pharma/kanha/internal/platform/db"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

type stockRow struct {
	userID      int64
	catNo       string
	productName string
	quantity    int
	mrp         decimal.Decimal
}

type state struct {
	stock    map[int64]stockRow
	invoices map[int64]invoices.Invoice
	carts    map[int64]invoices.Cart
	lines    map[int64][]invoices.NewLine
	keys     map[string]bool
	audits   []shared.AuditLog
	nextID   int64
}

func (s state) clone() state {
	out := s
	out.stock = maps.Clone(s.stock)
	out.invoices = maps.Clone(s.invoices)
	out.carts = maps.Clone(s.carts)
	out.lines = make(map[int64][]invoices.NewLine, len(s.lines))
	for k, v := range s.lines {
		out.lines[k] = append([]invoices.NewLine(nil), v...)
	}
	out.keys = maps.Clone(s.keys)
	out.audits = append([]shared.AuditLog(nil), s.audits...)
	return out
}

// memoryRepo applies a transaction to a copy of the state and swaps it in on
// success, so a failed submission leaves nothing behind.
type memoryRepo struct {
	mu      sync.Mutex
	st      state
	txCalls int
	failOn  string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{st: state{
		stock:    map[int64]stockRow{},
		invoices: map[int64]invoices.Invoice{},
		carts:    map[int64]invoices.Cart{},
		lines:    map[int64][]invoices.NewLine{},
		keys:     map[string]bool{},
	}}
}

func (m *memoryRepo) addItem(id, userID int64, catNo string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.stock[id] = stockRow{userID: userID, catNo: catNo, productName: "Product " + catNo, quantity: qty, mrp: decimal.NewFromInt(120)}
}

func (m *memoryRepo) quantity(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.stock[id].quantity
}

func (m *memoryRepo) invoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.invoices)
}

func (m *memoryRepo) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.st.audits {
		out = append(out, a.Action)
	}
	return out
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, invoices.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++
	work := m.st.clone()
	if err := fn(ctx, &memoryTx{st: &work, failOn: m.failOn}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *memoryRepo) Get(_ context.Context, userID, id int64) (invoices.Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.st.invoices[id]
	if !ok || inv.UserID != userID {
		return invoices.Detail{}, invoices.ErrInvoiceNotFound
	}
	var cart invoices.Cart
	found := false
	for _, c := range m.st.carts {
		if c.InvoiceID == id {
			cart, found = c, true
		}
	}
	if !found {
		return invoices.Detail{}, httpx.NotFound(invoices.MsgCartNotFound)
	}
	d := invoices.Detail{Invoice: inv, Cart: invoices.CartDetail{Cart: cart, Items: []invoices.CartItem{}}}
	for i, l := range m.st.lines[cart.ID] {
		row := m.st.stock[l.ItemID]
		d.Cart.Items = append(d.Cart.Items, invoices.CartItem{
			ID: int64(i + 1), CartID: cart.ID, ItemID: l.ItemID, HSNCode: l.HSNCode, AddonPercent: l.AddonPercent,
			SelectedQuantity: l.SelectedQuantity, SellingPrice: l.SellingPrice, Total: l.Total,
			ProductName: row.productName, CatNo: row.catNo, MRP: row.mrp,
		})
	}
	return d, nil
}

func (m *memoryRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]invoices.Summary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []invoices.Summary
	for _, inv := range m.st.invoices {
		if inv.UserID != userID {
			continue
		}
		s := invoices.Summary{ID: inv.ID, InvoiceNo: inv.InvoiceNo, PartyName: inv.PartyName, CreatedAt: inv.CreatedAt, PaymentMode: inv.PaymentMode}
		for _, c := range m.st.carts {
			if c.InvoiceID == inv.ID {
				s.NetPayable = c.NetPayableAmount
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	total := len(out)
	if limit > 0 {
		if offset > len(out) {
			offset = len(out)
		}
		end := min(offset+limit, len(out))
		out = out[offset:end]
	}
	return out, total, nil
}

func (m *memoryRepo) LatestNumber(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest, latestSeq := "", -1
	for _, inv := range m.st.invoices {
		if !strings.HasPrefix(inv.InvoiceNo, prefix) {
			continue
		}
		if seq, ok := numbering.Sequence(inv.InvoiceNo); ok && seq > latestSeq {
			latest, latestSeq = inv.InvoiceNo, seq
		}
	}
	return latest, nil
}

type memoryTx struct {
	st     *state
	failOn string
}

func (t *memoryTx) fail(step string) error {
	if t.failOn == step {
		return fmt.Errorf("%s: connection reset", step)
	}
	return nil
}

func (t *memoryTx) ClaimIdempotencyKey(_ context.Context, key string) error {
	if t.st.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	t.st.keys[key] = true
	return nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, h invoices.Header) (int64, error) {
	if err := t.fail("invoice"); err != nil {
		return 0, err
	}
	inv := h.Invoice()
	for _, existing := range t.st.invoices {
		if existing.InvoiceNo == inv.InvoiceNo {
			return 0, &db.ConstraintError{Kind: httpx.ErrDuplicate, Constraint: "invoices_invoice_no_key"}
		}
		if inv.OrderNo != nil && existing.OrderNo != nil && *existing.OrderNo == *inv.OrderNo {
			return 0, &db.ConstraintError{Kind: httpx.ErrDuplicate, Constraint: "invoices_order_no_key"}
		}
	}
	t.st.nextID++
	inv.ID = t.st.nextID
	inv.CreatedAt = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(inv.ID) * time.Minute)
	t.st.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *memoryTx) InsertCart(_ context.Context, cart invoices.NewCart) (int64, error) {
	if err := t.fail("cart"); err != nil {
		return 0, err
	}
	t.st.nextID++
	t.st.carts[t.st.nextID] = invoices.Cart{
		ID:               t.st.nextID,
		InvoiceID:        cart.InvoiceID,
		CartTotal:        cart.Totals.CartTotal,
		NetAmount:        cart.Totals.NetAmount,
		NetPayableAmount: decimal.NewNullDecimal(cart.Totals.NetPayable),
	}
	return t.st.nextID, nil
}

func (t *memoryTx) InsertLine(_ context.Context, line invoices.NewLine) error {
	if err := t.fail("line"); err != nil {
		return err
	}
	if _, ok := t.st.stock[line.ItemID]; !ok {
		return &db.ConstraintError{Kind: httpx.ErrReference, Constraint: "cart_items_item_id_fkey"}
	}
	t.st.lines[line.CartID] = append(t.st.lines[line.CartID], line)
	return nil
}

func (t *memoryTx) DecrementStock(_ context.Context, userID, itemID int64, quantity int) error {
	row, ok := t.st.stock[itemID]
	if !ok || row.userID != userID {
		return fmt.Errorf("%w: item %d", httpx.ErrReference, itemID)
	}
	if row.quantity < quantity {
		return &invoices.InsufficientStockError{ItemID: itemID, CatNo: row.catNo, Available: row.quantity, Requested: quantity}
	}
	row.quantity -= quantity
	t.st.stock[itemID] = row
	return nil
}

func (t *memoryTx) ClampStock(_ context.Context, userID, itemID int64, quantity int) error {
	row, ok := t.st.stock[itemID]
	if !ok || row.userID != userID {
		return fmt.Errorf("%w: item %d", httpx.ErrReference, itemID)
	}
	row.quantity = max(row.quantity-quantity, 0)
	t.st.stock[itemID] = row
	return nil
}

func (t *memoryTx) DeleteInvoice(_ context.Context, userID, id int64) error {
	inv, ok := t.st.invoices[id]
	if !ok || inv.UserID != userID {
		return invoices.ErrInvoiceNotFound
	}
	delete(t.st.invoices, id)
	for cid, c := range t.st.carts {
		if c.InvoiceID == id {
			delete(t.st.carts, cid)
			delete(t.st.lines, cid)
		}
	}
	return nil
}

func (t *memoryTx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	t.st.audits = append(t.st.audits, log)
	return nil
}

type recordingPorts struct {
	mu          sync.Mutex
	invalidated []int64
	posted      []int64
	created     int
	units       int
	rejections  []string
	publishErr  error
}

func (p *recordingPorts) Invalidate(_ context.Context, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated = append(p.invalidated, userID)
	return nil
}

func (p *recordingPorts) InvoicePosted(_ context.Context, invoiceID, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, invoiceID)
	return p.publishErr
}

func (p *recordingPorts) InvoiceCreated(units int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	p.units += units
}

func (p *recordingPorts) InvoiceRejected(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejections = append(p.rejections, reason)
}
