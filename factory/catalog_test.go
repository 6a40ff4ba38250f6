package factory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/inventory/store"
)

var admin = inventory.Actor{ID: "u-1", Name: "Sari", Role: inventory.RoleAdmin}

const bakeryCatalog = `{
  "suppliers": [
    {"key": "sumber", "name": "CV Sumber Rejeki", "contact": "0812-1111", "address": "Bandung"}
  ],
  "products": [
    {"code": "TPG-01", "name": "Tepung Terigu", "stock": 20, "unit_cost": 500, "unit_price": "1000"},
    {"code": "MTG-01", "name": "Mentega", "unit_cost": "12000.50", "unit_price": 15000}
  ],
  "inbound": [
    {"product_code": "tpg-01", "supplier": "sumber", "quantity": 10}
  ],
  "outbound": [
    {"product_code": "TPG-01", "quantity": 5}
  ]
}`

func newFactory() (*CatalogFactory, *inventory.Reconciler) {
	r := inventory.NewReconciler(store.NewTxMemory(), inventory.ReconcilerOptions{})
	return NewCatalogFactory(r), r
}

func TestImport_SeedsCatalogAndMovements(t *testing.T) {
	// GIVEN: A catalog with opening stock, a receipt and a sale
	// WHEN: Importing into an empty store
	// THEN: Quantities follow the ledger rules (20 + 10 - 5)

	f, r := newFactory()
	ctx := context.Background()

	cj, err := ParseCatalog([]byte(bakeryCatalog))
	require.NoError(t, err)

	res, err := f.Import(ctx, admin, cj)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{SuppliersCreated: 1, ProductsCreated: 2, InboundRecorded: 1, OutboundRecorded: 1}, res)

	flour, err := r.FindProductByCode(ctx, "TPG-01")
	require.NoError(t, err)
	assert.Equal(t, int64(25), flour.QuantityOnHand)

	butter, err := r.FindProductByCode(ctx, "MTG-01")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12000.5").Equal(butter.UnitCost))
	assert.Equal(t, int64(0), butter.QuantityOnHand)

	inbound, err := r.ListInbound(ctx, inventory.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	assert.True(t, decimal.NewFromInt(5000).Equal(inbound[0].TotalCost))
	assert.NotEmpty(t, inbound[0].SupplierID)
}

func TestImport_UpdatesExistingProductsWithoutTouchingStock(t *testing.T) {
	f, r := newFactory()
	ctx := context.Background()
	_, err := r.CreateProduct(ctx, admin, inventory.Product{Code: "TPG-01", Name: "Terigu lama", QuantityOnHand: 7})
	require.NoError(t, err)

	res, err := f.Import(ctx, admin, CatalogJSON{Products: []ProductJSON{
		{Code: "TPG-01", Name: "Tepung Terigu", Stock: 100, UnitCost: decimal.NewFromInt(550), UnitPrice: decimal.NewFromInt(1100)},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProductsUpdated)

	p, err := r.FindProductByCode(ctx, "TPG-01")
	require.NoError(t, err)
	assert.Equal(t, "Tepung Terigu", p.Name)
	assert.Equal(t, int64(7), p.QuantityOnHand)
	assert.True(t, decimal.NewFromInt(1100).Equal(p.UnitPrice))
}

func TestImport_OutboundBeyondStockStops(t *testing.T) {
	f, _ := newFactory()
	_, err := f.Import(context.Background(), admin, CatalogJSON{
		Products: []ProductJSON{{Code: "GUL-01", Name: "Gula", Stock: 2}},
		Outbound: []OutboundJSON{{ProductCode: "GUL-01", Quantity: 3}},
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.ErrorContains(t, err, "outbound[0]")
}

func TestParseCatalog_Rejections(t *testing.T) {
	cases := map[string]string{
		"bad json":           `{"products": [`,
		"missing code":       `{"products": [{"name": "X"}]}`,
		"duplicate code":     `{"products": [{"code": "A", "name": "X"}, {"code": "a", "name": "Y"}]}`,
		"undefined supplier": `{"products": [{"code": "A", "name": "X"}], "inbound": [{"product_code": "A", "supplier": "nope", "quantity": 1}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.ErrorIs(t, err, inventory.ErrValidation)
		})
	}
}

func TestToJSON_RoundTripsThroughImport(t *testing.T) {
	f, r := newFactory()
	ctx := context.Background()
	cj, err := ParseCatalog([]byte(bakeryCatalog))
	require.NoError(t, err)
	_, err = f.Import(ctx, admin, cj)
	require.NoError(t, err)

	products, err := r.ListProducts(ctx)
	require.NoError(t, err)
	suppliers, err := r.ListSuppliers(ctx)
	require.NoError(t, err)

	data, err := json.Marshal(ToJSON(products, suppliers))
	require.NoError(t, err)

	copyFactory, copyReconciler := newFactory()
	exported, err := ParseCatalog(data)
	require.NoError(t, err)
	_, err = copyFactory.Import(ctx, admin, exported)
	require.NoError(t, err)

	flour, err := copyReconciler.FindProductByCode(ctx, "TPG-01")
	require.NoError(t, err)
	assert.Equal(t, int64(25), flour.QuantityOnHand)
}
