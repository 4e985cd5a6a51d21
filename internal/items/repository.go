package items

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mpk-pharma/kanha/internal/platform/db"
)

// Repository defines persistence operations for stock items. Every lookup is
// scoped to the owning user.
type Repository interface {
	Create(ctx context.Context, req CreateItemRequest) (Item, error)
	Get(ctx context.Context, userID, id int64) (Item, error)
	GetByCatNo(ctx context.Context, userID int64, catNo string) (Item, error)
	Search(ctx context.Context, userID int64, field SearchType, prefix string) ([]Item, error)
	List(ctx context.Context, userID int64, limit, offset int) ([]Item, int, error)
	ListAll(ctx context.Context, userID int64) ([]Item, error)
	Update(ctx context.Context, userID, id int64, patch ItemPatch) (Item, error)
	Delete(ctx context.Context, userID, id int64) error
	LowStock(ctx context.Context, userID int64, threshold int) ([]Item, error)
}

const itemColumns = `id, user_id, cat_no, product_name, lot_no, hsn_no, quantity, w_rate, selling_price, mrp, created_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.UserID, &it.CatNo, &it.ProductName, &it.LotNo, &it.HSNNo,
		&it.Quantity, &it.WRate, &it.SellingPrice, &it.MRP, &it.CreatedAt)
	return it, err
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	out := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrItemNotFound
	}
	return db.Classify(err)
}

// Create inserts a new item.
func (r *PGRepository) Create(ctx context.Context, req CreateItemRequest) (Item, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO items (user_id, cat_no, product_name, lot_no, hsn_no, quantity, w_rate, selling_price, mrp)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+itemColumns,
		req.UserID, req.CatNo, req.ProductName, req.LotNo, req.HSNNo, *req.Quantity, req.WRate, req.SellingPrice, req.MRP.Decimal)
	it, err := scanItem(row)
	if err != nil {
		return Item{}, db.Classify(err)
	}
	return it, nil
}

// Get fetches one item.
func (r *PGRepository) Get(ctx context.Context, userID, id int64) (Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return Item{}, notFound(err)
	}
	return it, nil
}

// GetByCatNo fetches an item by exact catalog number.
func (r *PGRepository) GetByCatNo(ctx context.Context, userID int64, catNo string) (Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE user_id = $1 AND cat_no = $2`, userID, catNo))
	if err != nil {
		return Item{}, notFound(err)
	}
	return it, nil
}

// Search runs a case-insensitive prefix match on one column.
func (r *PGRepository) Search(ctx context.Context, userID int64, field SearchType, prefix string) ([]Item, error) {
	var column string
	switch field {
	case SearchByCatNo:
		column = "cat_no"
	case SearchByProductName:
		column = "product_name"
	default:
		return nil, fmt.Errorf("items: unsupported search type %q", field)
	}
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM items
WHERE user_id = $1 AND `+column+` ILIKE $2 ESCAPE '\'
ORDER BY `+column+` ASC, id ASC`, userID, db.EscapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// List returns one page of the user's items plus the total count.
func (r *PGRepository) List(ctx context.Context, userID int64, limit, offset int) ([]Item, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE user_id = $1
ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	list, err := collectItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAll returns every item of the user ordered by catalog number.
func (r *PGRepository) ListAll(ctx context.Context, userID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE user_id = $1 ORDER BY cat_no ASC`, userID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// Update writes the present fields of patch.
func (r *PGRepository) Update(ctx context.Context, userID, id int64, patch ItemPatch) (Item, error) {
	assignments := patch.Assignments()
	if len(assignments) == 0 {
		return r.Get(ctx, userID, id)
	}
	setClauses := make([]string, 0, len(assignments))
	args := make([]any, 0, len(assignments)+2)
	for i, a := range assignments {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", a.Column, i+1))
		args = append(args, a.Value)
	}
	argPos := len(args) + 1
	args = append(args, id, userID)
	query := fmt.Sprintf(`UPDATE items SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argPos, argPos+1, itemColumns)
	it, err := scanItem(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Item{}, notFound(err)
	}
	return it, nil
}

// Delete removes the item.
func (r *PGRepository) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// LowStock lists items at or below threshold. userID 0 scans every user.
func (r *PGRepository) LowStock(ctx context.Context, userID int64, threshold int) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM items
WHERE quantity <= $1 AND ($2::bigint = 0 OR user_id = $2)
ORDER BY user_id, quantity ASC, cat_no ASC`, threshold, userID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

var _ Repository = (*PGRepository)(nil)
