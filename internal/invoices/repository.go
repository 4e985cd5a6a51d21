package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mpk-pharma/kanha/internal/platform/db"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

const idempotencyModule = "invoices"

// Repository defines invoice persistence. Reads are scoped to the owning user.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, userID, id int64) (Detail, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Summary, int, error)
	LatestNumber(ctx context.Context, prefix string) (string, error)
}

// TxRepository holds the writes that make up one invoice submission or
// deletion. All of them run in the same transaction.
type TxRepository interface {
	ClaimIdempotencyKey(ctx context.Context, key string) error
	InsertInvoice(ctx context.Context, h Header) (int64, error)
	InsertCart(ctx context.Context, cart NewCart) (int64, error)
	InsertLine(ctx context.Context, line NewLine) error
	DecrementStock(ctx context.Context, userID, itemID int64, quantity int) error
	ClampStock(ctx context.Context, userID, itemID int64, quantity int) error
	DeleteInvoice(ctx context.Context, userID, id int64) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool db.Beginner
	db   db.DBTX
}

type poolLike interface {
	db.Beginner
	db.DBTX
}

// NewRepository constructs a PostgreSQL repository over a pool.
func NewRepository(pool poolLike) *PGRepository {
	return &PGRepository{pool: pool, db: pool}
}

// WithTx runs fn in a read committed transaction, so a conditional decrement
// waits for concurrent writers and re-checks the committed quantity.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invoiceColumns = `id, invoice_no, user_id, party_name, order_no, doctor_name, patient_name, address, city, state,
pincode, mobile_no, gstin, road_permit, payment_mode, adjustment_percent, cgst, sgst, igst, created_at`

// Get loads the invoice with its cart and lines.
func (r *PGRepository) Get(ctx context.Context, userID, id int64) (Detail, error) {
	var d Detail
	inv := &d.Invoice
	err := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND user_id = $2`, id, userID).Scan(
		&inv.ID, &inv.InvoiceNo, &inv.UserID, &inv.PartyName, &inv.OrderNo, &inv.DoctorName, &inv.PatientName,
		&inv.Address, &inv.City, &inv.State, &inv.Pincode, &inv.MobileNo, &inv.GSTIN, &inv.RoadPermit,
		&inv.PaymentMode, &inv.AdjustmentPercent, &inv.CGST, &inv.SGST, &inv.IGST, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, ErrInvoiceNotFound
		}
		return Detail{}, db.Classify(err)
	}

	c := &d.Cart.Cart
	err = r.db.QueryRow(ctx, `SELECT id, invoice_id, cart_total, net_amount, net_payable_amount FROM carts WHERE invoice_id = $1`, id).
		Scan(&c.ID, &c.InvoiceID, &c.CartTotal, &c.NetAmount, &c.NetPayableAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, httpx.NotFound(MsgCartNotFound)
		}
		return Detail{}, db.Classify(err)
	}

	rows, err := r.db.Query(ctx, `SELECT ci.id, ci.cart_id, ci.item_id, ci.hsn_code, ci.addon_percent, ci.selected_quantity,
	ci.selling_price, ci.total, COALESCE(i.product_name, ''), i.lot_no, COALESCE(i.cat_no, ''), COALESCE(i.mrp, 0)
FROM cart_items ci
LEFT JOIN items i ON i.id = ci.item_id
WHERE ci.cart_id = $1
ORDER BY ci.id`, c.ID)
	if err != nil {
		return Detail{}, db.Classify(err)
	}
	defer rows.Close()
	d.Cart.Items = []CartItem{}
	for rows.Next() {
		var line CartItem
		if err := rows.Scan(&line.ID, &line.CartID, &line.ItemID, &line.HSNCode, &line.AddonPercent, &line.SelectedQuantity,
			&line.SellingPrice, &line.Total, &line.ProductName, &line.LotNo, &line.CatNo, &line.MRP); err != nil {
			return Detail{}, err
		}
		d.Cart.Items = append(d.Cart.Items, line)
	}
	return d, rows.Err()
}

// ListByUser returns invoice summaries newest first. A limit of zero returns
// every invoice.
func (r *PGRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Summary, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}
	query := `SELECT inv.id, inv.invoice_no, inv.party_name, inv.created_at, inv.payment_mode, c.net_payable_amount
FROM invoices inv
LEFT JOIN carts c ON c.invoice_id = inv.id
WHERE inv.user_id = $1
ORDER BY inv.created_at DESC, inv.id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer rows.Close()
	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.InvoiceNo, &s.PartyName, &s.CreatedAt, &s.PaymentMode, &s.NetPayable); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// LatestNumber returns the invoice number starting with prefix that has the
// highest numeric suffix, or "" when none exists.
func (r *PGRepository) LatestNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.db.QueryRow(ctx, `SELECT invoice_no FROM invoices WHERE invoice_no LIKE $1 ESCAPE '\'
ORDER BY substring(invoice_no from '(\d+)$')::numeric DESC NULLS LAST, invoice_no DESC LIMIT 1`,
		db.EscapeLike(prefix)+"%").Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", db.Classify(err)
	}
	return number, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) ClaimIdempotencyKey(ctx context.Context, key string) error {
	return shared.ClaimIdempotencyKey(ctx, t.tx, key, idempotencyModule)
}

func (t *txRepo) InsertInvoice(ctx context.Context, h Header) (int64, error) {
	cols := []string{"invoice_no", "user_id", "party_name"}
	args := []any{h.InvoiceNo, h.UserID, h.PartyName}
	for _, c := range h.OptionalColumns() {
		cols = append(cols, c.Name)
		args = append(args, c.Value)
	}
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO invoices (%s) VALUES (%s) RETURNING id`, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	var id int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, db.Classify(err)
	}
	return id, nil
}

func (t *txRepo) InsertCart(ctx context.Context, cart NewCart) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO carts (invoice_id, cart_total, net_amount, net_payable_amount) VALUES ($1, $2, $3, $4) RETURNING id`,
		cart.InvoiceID, cart.Totals.CartTotal, cart.Totals.NetAmount, cart.Totals.NetPayable).Scan(&id)
	if err != nil {
		return 0, db.Classify(err)
	}
	return id, nil
}

func (t *txRepo) InsertLine(ctx context.Context, line NewLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO cart_items (cart_id, item_id, hsn_code, addon_percent, selected_quantity, selling_price, total)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		line.CartID, line.ItemID, line.HSNCode, line.AddonPercent, line.SelectedQuantity, line.SellingPrice, line.Total)
	return db.Classify(err)
}

// DecrementStock takes quantity off the item only when enough is on hand.
func (t *txRepo) DecrementStock(ctx context.Context, userID, itemID int64, quantity int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE items SET quantity = quantity - $3 WHERE id = $1 AND user_id = $2 AND quantity >= $3`,
		itemID, userID, quantity)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var catNo string
	var available int
	err = t.tx.QueryRow(ctx, `SELECT cat_no, quantity FROM items WHERE id = $1 AND user_id = $2`, itemID, userID).Scan(&catNo, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: item %d", httpx.ErrReference, itemID)
	}
	if err != nil {
		return db.Classify(err)
	}
	return &InsufficientStockError{ItemID: itemID, CatNo: catNo, Available: available, Requested: quantity}
}

// ClampStock is the legacy decrement that floors the quantity at zero.
func (t *txRepo) ClampStock(ctx context.Context, userID, itemID int64, quantity int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE items SET quantity = GREATEST(quantity - $3, 0) WHERE id = $1 AND user_id = $2`,
		itemID, userID, quantity)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d", httpx.ErrReference, itemID)
	}
	return nil
}

// DeleteInvoice removes the invoice; carts and cart items cascade. Stock is
// left as it is.
func (t *txRepo) DeleteInvoice(ctx context.Context, userID, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, t.tx, log)
}

var _ Repository = (*PGRepository)(nil)
