package items_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"github.com/mpk-pharma/kanha/internal/items"
	"github.com/mpk-pharma/kanha/internal/platform/cache"
	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
	_ "github.com/mpk-pharma/kanha/testing"
)

func newService(t *testing.T) (*items.Service, *memoryRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newMemoryRepo()
	return items.NewService(repo, cache.NewVersioned(client, "items", 5*time.Minute), nil, nil), repo
}

func qty(n int) *int { return &n }

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func createItem(t *testing.T, svc *items.Service, userID int64, catNo, name string, quantity int) items.Item {
	t.Helper()
	item, err := svc.Create(context.Background(), items.CreateItemRequest{
		UserID:      userID,
		CatNo:       catNo,
		ProductName: name,
		Quantity:    qty(quantity),
		MRP:         money("100"),
	})
	require.NoError(t, err)
	return item
}

func TestCreateItemReportsEveryProblem(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), items.CreateItemRequest{
		UserID:       1,
		CatNo:        "   ",
		SellingPrice: money("-1"),
	})

	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.ElementsMatch(t, []string{
		"cat_no is required",
		"product_name is required",
		"quantity is required",
		"mrp is required",
		"selling_price must be 0 or more",
	}, httpx.ProblemsFor(err))
}

func TestCreateItemRejectsNonPositiveMRP(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), items.CreateItemRequest{
		UserID: 1, CatNo: "AB100", ProductName: "Paracetamol", Quantity: qty(1), MRP: money("0"),
	})

	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Equal(t, []string{"mrp must be greater than 0"}, httpx.ProblemsFor(err))
}

func TestCreateDuplicateCatalogNumberConflicts(t *testing.T) {
	svc, _ := newService(t)
	createItem(t, svc, 1, "AB100", "Paracetamol 500", 50)

	_, err := svc.Create(context.Background(), items.CreateItemRequest{
		UserID: 1, CatNo: "AB100", ProductName: "Other", Quantity: qty(1), MRP: money("10"),
	})

	require.ErrorIs(t, err, httpx.ErrDuplicate)
	assert.Equal(t, items.MsgDuplicateCatNo, httpx.MessageFor(err))

	other, err := svc.Create(context.Background(), items.CreateItemRequest{
		UserID: 2, CatNo: "AB100", ProductName: "Other shop", Quantity: qty(1), MRP: money("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), other.UserID)
}

func TestUpdateToTakenCatalogNumberKeepsOriginal(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	createItem(t, svc, 1, "AB100", "Paracetamol 500", 50)
	second := createItem(t, svc, 1, "CD200", "Cetirizine", 20)

	_, err := svc.Update(ctx, 1, second.ID, items.ItemPatch{CatNo: shared.Some("AB100")})

	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Equal(t, items.MsgDuplicateCatNo, httpx.MessageFor(err))
	stored, err := svc.Get(ctx, 1, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "CD200", stored.CatNo)
}

func TestUpdateWritesOnlyPresentFields(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	lot := "L-9"
	item, err := svc.Create(ctx, items.CreateItemRequest{
		UserID: 1, CatNo: "AB100", ProductName: "Paracetamol", LotNo: &lot,
		Quantity: qty(50), MRP: money("100"), SellingPrice: money("90"),
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, 1, item.ID, items.ItemPatch{
		Quantity: shared.Some(45),
		LotNo:    shared.Null[string](),
	})
	require.NoError(t, err)

	assert.Equal(t, 45, updated.Quantity)
	assert.Nil(t, updated.LotNo)
	assert.Equal(t, "Paracetamol", updated.ProductName)
	assert.True(t, updated.SellingPrice.Valid)
	assert.True(t, updated.SellingPrice.Decimal.Equal(decimal.NewFromInt(90)))
}

func TestUpdateRejectsEmptyAndInvalidPatches(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	item := createItem(t, svc, 1, "AB100", "Paracetamol", 5)

	_, err := svc.Update(ctx, 1, item.ID, items.ItemPatch{})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Update(ctx, 1, item.ID, items.ItemPatch{
		Quantity: shared.Some(-1),
		MRP:      shared.Null[decimal.Decimal](),
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.ElementsMatch(t, []string{"quantity must be 0 or more", "mrp cannot be null"}, httpx.ProblemsFor(err))

	_, err = svc.Update(ctx, 1, item.ID, items.ItemPatch{UserID: shared.Some(int64(2)), Quantity: shared.Some(1)})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestSearchByProductNamePrefixIsScopedToUser(t *testing.T) {
	svc, _ := newService(t)
	createItem(t, svc, 1, "AB100", "Paracetamol 500", 50)
	createItem(t, svc, 1, "AB101", "paracip syrup", 10)
	createItem(t, svc, 1, "CD200", "Cetirizine", 20)
	createItem(t, svc, 2, "XY900", "Paracetamol 650", 5)

	result, err := svc.Search(context.Background(), 1, items.SearchByProductName, "Para")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count)
	for _, it := range result.Items {
		assert.Equal(t, int64(1), it.UserID)
	}
}

func TestSearchValidatesParameters(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Search(context.Background(), 1, items.SearchType("lot_no"), "  ")

	require.ErrorIs(t, err, httpx.ErrValidation)
	assert.Len(t, httpx.ProblemsFor(err), 2)
}

func TestGetByCatNoUnknownIsNotFound(t *testing.T) {
	svc, _ := newService(t)
	createItem(t, svc, 2, "AB100", "Paracetamol", 1)

	_, err := svc.GetByCatNo(context.Background(), 1, "AB100")

	require.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Equal(t, items.MsgItemNotFound, httpx.MessageFor(err))
}

func TestListIsCachedUntilAWrite(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	createItem(t, svc, 1, "AB100", "Paracetamol", 50)
	req := shared.PageRequest{Page: 1, PerPage: 10}

	first, err := svc.List(ctx, 1, req)
	require.NoError(t, err)
	_, err = svc.List(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 1, first.TotalPages)

	createItem(t, svc, 1, "CD200", "Cetirizine", 20)
	second, err := svc.List(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	assert.Equal(t, 2, second.Total)
	assert.Equal(t, "CD200", second.Items[0].CatNo)
}

func TestDeleteRemovesItemFromListingAndSearch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	item := createItem(t, svc, 1, "AB100", "Paracetamol", 50)
	req := shared.PageRequest{Page: 1, PerPage: 10}
	_, err := svc.List(ctx, 1, req)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, item.ID))

	page, err := svc.List(ctx, 1, req)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	result, err := svc.Search(ctx, 1, items.SearchByCatNo, "AB")
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.ErrorIs(t, svc.Delete(ctx, 1, item.ID), httpx.ErrNotFound)
}

func TestDeleteReferencedItemConflicts(t *testing.T) {
	svc, repo := newService(t)
	item := createItem(t, svc, 1, "AB100", "Paracetamol", 50)
	repo.referenced[item.ID] = true

	err := svc.Delete(context.Background(), 1, item.ID)

	require.ErrorIs(t, err, httpx.ErrConflict)
	assert.Equal(t, items.MsgItemReferenced, httpx.MessageFor(err))
}

func TestLowStockListsItemsAtOrBelowThreshold(t *testing.T) {
	svc, _ := newService(t)
	createItem(t, svc, 1, "AB100", "Paracetamol", 5)
	createItem(t, svc, 1, "CD200", "Cetirizine", 6)
	createItem(t, svc, 2, "EF300", "Dolo", 0)

	low, err := svc.LowStock(context.Background(), 0, 5)
	require.NoError(t, err)

	assert.Len(t, low, 2)
}

func TestWriteWorkbook(t *testing.T) {
	lot := "L1"
	list := []items.Item{{
		CatNo: "AB100", ProductName: "Paracetamol", LotNo: &lot, Quantity: 40,
		MRP: decimal.NewFromInt(100), CreatedAt: time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	require.NoError(t, items.WriteWorkbook(&buf, list))

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)
	rows := file.Sheets[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "Cat No", rows[0].Cells[0].Value)
	assert.Equal(t, "AB100", rows[1].Cells[0].Value)
	assert.Equal(t, "L1", rows[1].Cells[2].Value)
	assert.Equal(t, "40", rows[1].Cells[4].Value)
}
