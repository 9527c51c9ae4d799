package inventory

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memKey struct {
	productID int64
	branch    Branch
}

type memoryInventoryRepo struct {
	rows map[memKey]BranchInventory
}

func newMemoryInventoryRepo() *memoryInventoryRepo {
	return &memoryInventoryRepo{rows: make(map[memKey]BranchInventory)}
}

func (r *memoryInventoryRepo) Upsert(ctx context.Context, row BranchInventory) error {
	row.UpdatedAt = time.Now()
	r.rows[memKey{row.ProductID, row.Branch}] = row
	return nil
}

func (r *memoryInventoryRepo) Get(ctx context.Context, productID int64, branch Branch) (BranchInventory, error) {
	row, ok := r.rows[memKey{productID, branch}]
	if !ok {
		return BranchInventory{}, ErrRowNotFound
	}
	return row, nil
}

func (r *memoryInventoryRepo) List(ctx context.Context, branch Branch, limit, offset int) ([]BranchInventory, int, error) {
	var out []BranchInventory
	for _, row := range r.rows {
		if branch != "" && row.Branch != branch {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, len(out), nil
}

func (r *memoryInventoryRepo) ListLowStock(ctx context.Context, branch Branch) ([]BranchInventory, error) {
	var out []BranchInventory
	for _, row := range r.rows {
		if branch != "" && row.Branch != branch {
			continue
		}
		if row.LowStock() {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryInventoryRepo) Reserve(ctx context.Context, productID int64, branch Branch, qty int64) error {
	key := memKey{productID, branch}
	row, ok := r.rows[key]
	if !ok || row.Quantity < qty {
		return ErrInsufficientStock
	}
	row.Quantity -= qty
	r.rows[key] = row
	return nil
}

func (r *memoryInventoryRepo) Restock(ctx context.Context, productID int64, branch Branch, qty int64) error {
	key := memKey{productID, branch}
	row := r.rows[key]
	row.ProductID = productID
	row.Branch = branch
	row.Quantity += qty
	r.rows[key] = row
	return nil
}

func TestUpsertAndGet(t *testing.T) {
	svc := NewService(newMemoryInventoryRepo(), nil)

	row, err := svc.Upsert(context.Background(), UpsertInput{
		ProductID:         10,
		Branch:            BranchA,
		Quantity:          25,
		LowStockThreshold: 5,
	})
	require.NoError(t, err)
	require.EqualValues(t, 25, row.Quantity)

	got, err := svc.Get(context.Background(), 10, BranchA)
	require.NoError(t, err)
	require.EqualValues(t, 25, got.Quantity)
	require.EqualValues(t, 5, got.LowStockThreshold)
}

func TestUpsertRejectsInvalidInput(t *testing.T) {
	svc := NewService(newMemoryInventoryRepo(), nil)

	_, err := svc.Upsert(context.Background(), UpsertInput{ProductID: 1, Branch: "Warehouse", Quantity: 5})
	require.ErrorIs(t, err, ErrInvalidBranch)

	_, err = svc.Upsert(context.Background(), UpsertInput{ProductID: 1, Branch: BranchA, Quantity: -1})
	require.Error(t, err)

	_, err = svc.Upsert(context.Background(), UpsertInput{Branch: BranchA, Quantity: 1})
	require.Error(t, err)
}

func TestSameProductTrackedPerBranch(t *testing.T) {
	repo := newMemoryInventoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Upsert(context.Background(), UpsertInput{ProductID: 10, Branch: BranchA, Quantity: 7})
	require.NoError(t, err)
	_, err = svc.Upsert(context.Background(), UpsertInput{ProductID: 10, Branch: BranchB, Quantity: 3})
	require.NoError(t, err)

	a, err := svc.Get(context.Background(), 10, BranchA)
	require.NoError(t, err)
	b, err := svc.Get(context.Background(), 10, BranchB)
	require.NoError(t, err)
	require.EqualValues(t, 7, a.Quantity)
	require.EqualValues(t, 3, b.Quantity)
}

func TestGetMissingRow(t *testing.T) {
	svc := NewService(newMemoryInventoryRepo(), nil)
	_, err := svc.Get(context.Background(), 99, BranchA)
	require.ErrorIs(t, err, ErrRowNotFound)
}

func TestListLowStockHonoursThreshold(t *testing.T) {
	repo := newMemoryInventoryRepo()
	svc := NewService(repo, nil)

	seed := []UpsertInput{
		{ProductID: 1, Branch: BranchA, Quantity: 2, LowStockThreshold: 5},
		{ProductID: 2, Branch: BranchA, Quantity: 5, LowStockThreshold: 5},
		{ProductID: 3, Branch: BranchA, Quantity: 6, LowStockThreshold: 5},
		{ProductID: 4, Branch: BranchB, Quantity: 0, LowStockThreshold: 1},
	}
	for _, input := range seed {
		_, err := svc.Upsert(context.Background(), input)
		require.NoError(t, err)
	}

	low, err := svc.ListLowStock(context.Background(), BranchA)
	require.NoError(t, err)
	require.Len(t, low, 2) // quantity <= threshold, boundary included

	all, err := svc.ListLowStock(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestListFiltersByBranch(t *testing.T) {
	repo := newMemoryInventoryRepo()
	svc := NewService(repo, nil)
	for _, input := range []UpsertInput{
		{ProductID: 1, Branch: BranchA, Quantity: 1},
		{ProductID: 2, Branch: BranchB, Quantity: 1},
	} {
		_, err := svc.Upsert(context.Background(), input)
		require.NoError(t, err)
	}

	rows, total, err := svc.List(context.Background(), BranchB, 50, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, BranchB, rows[0].Branch)

	_, _, err = svc.List(context.Background(), "Depot", 50, 0)
	require.ErrorIs(t, err, ErrInvalidBranch)
}
