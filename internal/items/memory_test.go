package items_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mpk-pharma/kanha/internal/items"
	"github.com/mpk-pharma/kanha/internal/platform/db"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
)

type memoryRepo struct {
	mu         sync.Mutex
	nextID     int64
	rows       map[int64]items.Item
	referenced map[int64]bool
	listCalls  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]items.Item{}, referenced: map[int64]bool{}}
}

func duplicateCatNo() error {
	return &db.ConstraintError{Kind: httpx.ErrDuplicate, Constraint: "items_user_cat_no_key"}
}

func (m *memoryRepo) clash(userID, skipID int64, catNo string) bool {
	for _, it := range m.rows {
		if it.UserID == userID && it.ID != skipID && it.CatNo == catNo {
			return true
		}
	}
	return false
}

func (m *memoryRepo) Create(_ context.Context, req items.CreateItemRequest) (items.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clash(req.UserID, 0, req.CatNo) {
		return items.Item{}, duplicateCatNo()
	}
	m.nextID++
	it := items.Item{
		ID:           m.nextID,
		UserID:       req.UserID,
		CatNo:        req.CatNo,
		ProductName:  req.ProductName,
		LotNo:        req.LotNo,
		HSNNo:        req.HSNNo,
		Quantity:     *req.Quantity,
		WRate:        req.WRate,
		SellingPrice: req.SellingPrice,
		MRP:          req.MRP.Decimal,
		CreatedAt:    time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(m.nextID) * time.Minute),
	}
	m.rows[it.ID] = it
	return it, nil
}

func (m *memoryRepo) Get(_ context.Context, userID, id int64) (items.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.rows[id]
	if !ok || it.UserID != userID {
		return items.Item{}, items.ErrItemNotFound
	}
	return it, nil
}

func (m *memoryRepo) GetByCatNo(_ context.Context, userID int64, catNo string) (items.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.rows {
		if it.UserID == userID && it.CatNo == catNo {
			return it, nil
		}
	}
	return items.Item{}, items.ErrItemNotFound
}

func (m *memoryRepo) Search(_ context.Context, userID int64, field items.SearchType, prefix string) ([]items.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []items.Item{}
	for _, it := range m.sorted(userID) {
		value := it.CatNo
		if field == items.SearchByProductName {
			value = it.ProductName
		}
		if strings.HasPrefix(strings.ToLower(value), strings.ToLower(prefix)) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memoryRepo) List(_ context.Context, userID int64, limit, offset int) ([]items.Item, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	all := m.sorted(userID)
	if offset >= len(all) {
		return []items.Item{}, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (m *memoryRepo) ListAll(_ context.Context, userID int64) ([]items.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(userID), nil
}

func (m *memoryRepo) Update(_ context.Context, userID, id int64, patch items.ItemPatch) (items.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.rows[id]
	if !ok || it.UserID != userID {
		return items.Item{}, items.ErrItemNotFound
	}
	updated := patch.Apply(it)
	if updated.CatNo != it.CatNo && m.clash(userID, id, updated.CatNo) {
		return items.Item{}, duplicateCatNo()
	}
	m.rows[id] = updated
	return updated, nil
}

func (m *memoryRepo) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.rows[id]
	if !ok || it.UserID != userID {
		return items.ErrItemNotFound
	}
	if m.referenced[id] {
		return &db.ConstraintError{Kind: httpx.ErrReference, Constraint: "cart_items_item_id_fkey"}
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryRepo) LowStock(_ context.Context, userID int64, threshold int) ([]items.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []items.Item{}
	for _, it := range m.sorted(userID) {
		if it.Quantity <= threshold {
			out = append(out, it)
		}
	}
	return out, nil
}

// sorted returns the user's items newest first; userID 0 returns everything.
func (m *memoryRepo) sorted(userID int64) []items.Item {
	out := []items.Item{}
	for _, it := range m.rows {
		if userID == 0 || it.UserID == userID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

var _ items.Repository = (*memoryRepo)(nil)
