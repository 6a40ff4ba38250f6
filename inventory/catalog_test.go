package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/inventory/store"
	"github.com/dapurkue/stockledger/store/sqlite"
)

func TestCreateProduct_GeneratesIDAndRejectsDuplicateCode(t *testing.T) {
	forEachStore(t, func(t *testing.T, s inventory.Store) {
		ctx := context.Background()
		rec := newReconciler(t, s, inventory.ReconcilerOptions{})

		p, err := rec.CreateProduct(ctx, admin, inventory.Product{
			Code:      " TPG-01 ",
			Name:      "Tepung terigu",
			UnitCost:  decimal.NewFromInt(12000),
			UnitPrice: decimal.NewFromInt(15000),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "TPG-01", p.Code)
		assert.Equal(t, fixedAt, p.CreatedAt)

		_, err = rec.CreateProduct(ctx, admin, inventory.Product{Code: "tpg-01", Name: "Other"})
		assert.ErrorIs(t, err, inventory.ErrDuplicateCode)

		found, err := rec.FindProductByCode(ctx, "TPG-01")
		require.NoError(t, err)
		assert.Equal(t, p.ID, found.ID)
	})
}

func TestCreateProduct_Validation(t *testing.T) {
	rec := newReconciler(t, store.NewMemory(), inventory.ReconcilerOptions{})
	ctx := context.Background()

	cases := map[string]inventory.Product{
		"missing code":   {Name: "x"},
		"missing name":   {Code: "x"},
		"negative stock": {Code: "x", Name: "x", QuantityOnHand: -1},
		"negative cost":  {Code: "x", Name: "x", UnitCost: decimal.NewFromInt(-5)},
		"bad image url":  {Code: "x", Name: "x", ImageURL: "not a url"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rec.CreateProduct(ctx, admin, p)
			assert.ErrorIs(t, err, inventory.ErrValidation)
		})
	}
}

func TestFindProductByCode_Blank(t *testing.T) {
	rec := newReconciler(t, store.NewMemory(), inventory.ReconcilerOptions{})
	_, err := rec.FindProductByCode(context.Background(), "   ")
	assert.ErrorIs(t, err, inventory.ErrValidation)

	_, err = rec.FindProductByCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestDeleteProduct_KeepsLedgerEntries(t *testing.T) {
	s := store.NewTxMemory()
	ctx := context.Background()
	seedProduct(t, s, "oil", 5, 100, 200)
	rec := newReconciler(t, s, inventory.ReconcilerOptions{})

	_, err := rec.RecordOutbound(ctx, admin, inventory.OutboundInput{ProductID: "oil", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, rec.DeleteProduct(ctx, admin, "oil"))

	entries, err := rec.ListOutbound(ctx, inventory.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.ErrorIs(t, rec.DeleteProduct(ctx, admin, "oil"), inventory.ErrNotFound)
}

func TestSuppliers_CRUD(t *testing.T) {
	forEachStore(t, func(t *testing.T, s inventory.Store) {
		ctx := context.Background()
		rec := newReconciler(t, s, inventory.ReconcilerOptions{})

		sup, err := rec.CreateSupplier(ctx, admin, inventory.Supplier{Name: "CV Sumber Rasa", Contact: "0812"})
		require.NoError(t, err)
		require.NotEmpty(t, sup.ID)

		_, err = rec.CreateSupplier(ctx, admin, inventory.Supplier{Name: " "})
		assert.ErrorIs(t, err, inventory.ErrValidation)

		updated, err := rec.UpdateSupplier(ctx, admin, sup.ID, inventory.Supplier{Name: "CV Sumber Rasa", Address: "Jl. Melati 3"})
		require.NoError(t, err)
		assert.Equal(t, "Jl. Melati 3", updated.Address)

		_, err = rec.UpdateSupplier(ctx, admin, "ghost", inventory.Supplier{Name: "x"})
		assert.ErrorIs(t, err, inventory.ErrNotFound)

		all, err := rec.ListSuppliers(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		require.NoError(t, rec.DeleteSupplier(ctx, admin, sup.ID))
		_, err = rec.GetSupplier(ctx, sup.ID)
		assert.ErrorIs(t, err, inventory.ErrNotFound)
	})
}

func TestListInbound_FilterAndOrder(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	seedProduct(t, s, "flour", 0, 100, 200)

	day := func(d int) time.Time { return time.Date(2025, time.May, d, 14, 0, 0, 0, time.UTC) }
	clock := day(1)
	rec := newReconciler(t, s, inventory.ReconcilerOptions{Clock: func() time.Time { return clock }})

	for _, d := range []int{1, 2, 3, 4} {
		clock = day(d)
		_, err := rec.RecordInbound(ctx, admin, inventory.InboundInput{ProductID: "flour", Quantity: int64(d)})
		require.NoError(t, err)
	}

	f := inventory.DayRange(day(2), day(3), time.UTC)
	f.Order = inventory.OrderNewestFirst
	entries, err := rec.ListInbound(ctx, f)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Quantity)
	assert.Equal(t, int64(2), entries[1].Quantity)
}

func TestListInbound_TiesOrderedAlikeOnEveryBackend(t *testing.T) {
	// GIVEN: Two receipts booked at the same instant
	// WHEN: Listing them from the memory and sqlite stores
	// THEN: Both backends agree, with ids following the requested direction

	sqliteStore, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	backends := map[string]inventory.Store{
		"memory": store.NewMemory(),
		"sqlite": sqliteStore,
	}
	at := time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)
	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []inventory.EntryID{"a", "b"} {
				require.NoError(t, s.InsertInbound(ctx, inventory.InboundEntry{
					ID: id, ProductID: "flour", Quantity: 1, TotalCost: decimal.Zero, Timestamp: at,
				}))
			}

			ids := func(order inventory.Order) []inventory.EntryID {
				entries, err := s.ListInbound(ctx, inventory.EntryFilter{Order: order})
				require.NoError(t, err)
				var out []inventory.EntryID
				for _, e := range entries {
					out = append(out, e.ID)
				}
				return out
			}
			assert.Equal(t, []inventory.EntryID{"b", "a"}, ids(inventory.OrderNewestFirst))
			assert.Equal(t, []inventory.EntryID{"a", "b"}, ids(inventory.OrderOldestFirst))
		})
	}
}
