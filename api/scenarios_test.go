package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapurkue/stockledger/inventory"
)

func TestScenarios_LoadAndReset(t *testing.T) {
	// GIVEN: Scenarios enabled and a product created by hand
	// WHEN: Loading "toko-kue"
	// THEN: The store is replaced by the scenario catalog with quantities
	//       that follow the ledger rules

	e := newTestEnv(t, nil)
	e.createProduct(CreateProductRequest{Code: "OLD-01", Name: "Old"})

	var list []ScenarioDTO
	e.decode(e.do(http.MethodGet, "/api/scenarios", e.admin, nil), &list)
	assert.Len(t, list, len(scenarios))

	rr := e.do(http.MethodPost, "/api/scenarios/load", e.admin, LoadScenarioRequest{ScenarioID: "toko-kue"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	products, err := e.rec.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 5)
	flour, err := e.rec.FindProductByCode(context.Background(), "TPG-01")
	require.NoError(t, err)
	assert.Equal(t, int64(25), flour.QuantityOnHand)
	_, err = e.rec.FindProductByCode(context.Background(), "OLD-01")
	assert.True(t, inventory.IsNotFound(err))

	var current ScenarioDTO
	e.decode(e.do(http.MethodGet, "/api/scenarios/current", e.admin, nil), &current)
	assert.Equal(t, "toko-kue", current.ID)

	rr = e.do(http.MethodPost, "/api/scenarios/reset", e.admin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	products, err = e.rec.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, "null\n", e.do(http.MethodGet, "/api/scenarios/current", e.admin, nil).Body.String())

	// Accounts survive a reset.
	assert.NotEmpty(t, e.login("sari@dapur.test", "rahasia123"))
}

func TestScenarios_EveryCatalogLoads(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			e := newTestEnv(t, nil)
			rr := e.do(http.MethodPost, "/api/scenarios/load", e.admin, LoadScenarioRequest{ScenarioID: s.ID})
			assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		})
	}
}

func TestScenarios_LowStockScenarioShowsOnDashboard(t *testing.T) {
	e := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/scenarios/load", e.admin, LoadScenarioRequest{ScenarioID: "stok-menipis"}).Code)

	var resp DashboardResponse
	e.decode(e.do(http.MethodGet, "/api/dashboard", e.manager, nil), &resp)
	// KJU-01 is used up entirely, TPG-01 drops to 8.
	assert.Len(t, resp.Summary.LowStock, 4)
}

func TestScenarios_Access(t *testing.T) {
	e := newTestEnv(t, nil)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/scenarios", e.manager, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/scenarios/load", e.admin, LoadScenarioRequest{ScenarioID: "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/scenarios/load", e.admin, `{}`).Code)

	disabled := newTestEnv(t, func(_ *Deps, o *RouterOptions) { o.Scenarios = false })
	assert.Equal(t, http.StatusNotFound, disabled.do(http.MethodGet, "/api/scenarios", disabled.admin, nil).Code)
}

type failingReset struct{}

func (failingReset) Reset(context.Context) error {
	return inventory.Persistence("reset", errors.New("locked"))
}

func TestScenarios_ResetFailures(t *testing.T) {
	e := newTestEnv(t, func(d *Deps, _ *RouterOptions) { d.Resetter = nil })
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodPost, "/api/scenarios/reset", e.admin, nil).Code)

	e = newTestEnv(t, func(d *Deps, _ *RouterOptions) { d.Resetter = failingReset{} })
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodPost, "/api/scenarios/load", e.admin, LoadScenarioRequest{ScenarioID: "kosong"}).Code)
}
