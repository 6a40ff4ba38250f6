/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built cake shop catalogs that populate the store with
	realistic data for demos. Each scenario is a factory.CatalogJSON, so
	it goes through the same Reconciler rules as real entries: opening
	stock, receipts from suppliers, then consumptions.

AVAILABLE SCENARIOS:

	toko-kue:       Baking staples with a week of receipts and usage
	stok-menipis:   Several items below the low stock threshold
	kosong:         Suppliers only, no products

HOW SCENARIOS WORK:
 1. Reset the store (stock data only, accounts are kept)
 2. Import the scenario catalog as the calling actor

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "toko-kue"}

NOTE:

	Scenarios reset the store. The routes are mounted only when
	STOCK_SCENARIOS is enabled.

SEE ALSO:
  - factory/catalog.go: Catalog JSON format and import rules
*/
package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dapurkue/stockledger/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "toko-kue",
		Name:        "Toko Kue",
		Description: "Baking staples with receipts from two suppliers and daily usage",
	},
	{
		ID:          "stok-menipis",
		Name:        "Stok Menipis",
		Description: "Several ingredients below the low stock threshold",
	},
	{
		ID:          "kosong",
		Name:        "Kosong",
		Description: "Suppliers only, an empty catalog",
	},
}

var suppliers = []factory.SupplierJSON{
	{Key: "sumber", Name: "CV Sumber Rejeki", Contact: "0812-2233-4455", Address: "Jl. Pasir Kaliki 12, Bandung"},
	{Key: "makmur", Name: "UD Makmur Jaya", Contact: "0813-9988-7766", Address: "Jl. Cibadak 40, Bandung"},
}

func rp(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func scenarioCatalog(id string) (factory.CatalogJSON, bool) {
	switch id {
	case "toko-kue":
		return factory.CatalogJSON{
			Suppliers: suppliers,
			Products: []factory.ProductJSON{
				{Code: "TPG-01", Name: "Tepung Terigu 1kg", Stock: 20, UnitCost: rp(12000), UnitPrice: rp(15000)},
				{Code: "GUL-01", Name: "Gula Pasir 1kg", Stock: 15, UnitCost: rp(14000), UnitPrice: rp(17000)},
				{Code: "MTG-01", Name: "Mentega 200g", Stock: 12, UnitCost: rp(9500), UnitPrice: rp(12000)},
				{Code: "TLR-01", Name: "Telur Ayam (butir)", Stock: 60, UnitCost: rp(2000), UnitPrice: rp(2500)},
				{Code: "CKL-01", Name: "Cokelat Batang 250g", Stock: 8, UnitCost: rp(22000), UnitPrice: rp(28000)},
			},
			Inbound: []factory.InboundJSON{
				{ProductCode: "TPG-01", Supplier: "sumber", Quantity: 10},
				{ProductCode: "GUL-01", Supplier: "sumber", Quantity: 10},
				{ProductCode: "TLR-01", Supplier: "makmur", Quantity: 90},
				{ProductCode: "CKL-01", Supplier: "makmur", Quantity: 6},
			},
			Outbound: []factory.OutboundJSON{
				{ProductCode: "TPG-01", Quantity: 5},
				{ProductCode: "GUL-01", Quantity: 4},
				{ProductCode: "MTG-01", Quantity: 3},
				{ProductCode: "TLR-01", Quantity: 36},
			},
		}, true
	case "stok-menipis":
		return factory.CatalogJSON{
			Suppliers: suppliers,
			Products: []factory.ProductJSON{
				{Code: "TPG-01", Name: "Tepung Terigu 1kg", Stock: 12, UnitCost: rp(12000), UnitPrice: rp(15000)},
				{Code: "VNL-01", Name: "Vanili Bubuk", Stock: 3, UnitCost: rp(5000), UnitPrice: rp(7000)},
				{Code: "SPR-01", Name: "Sprinkle Warna", Stock: 9, UnitCost: rp(8000), UnitPrice: rp(11000)},
				{Code: "KJU-01", Name: "Keju Cheddar 170g", Stock: 6, UnitCost: rp(18000), UnitPrice: rp(23000)},
			},
			Outbound: []factory.OutboundJSON{
				{ProductCode: "TPG-01", Quantity: 4},
				{ProductCode: "KJU-01", Quantity: 6},
			},
		}, true
	case "kosong":
		return factory.CatalogJSON{Suppliers: suppliers}, true
	default:
		return factory.CatalogJSON{}, false
	}
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and imports a predefined catalog.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	cj, ok := scenarioCatalog(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.reset(w, r) {
		return
	}
	res, err := h.catalog.Import(r.Context(), actor(r), cj)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.log.Info(h.log.WithField(r.Context(), "scenario", req.ScenarioID), "scenario loaded")

	writeJSON(w, http.StatusOK, map[string]any{"status": "loaded", "scenario": req.ScenarioID, "result": res})
}

// ResetDatabase clears all stock data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.reset(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// reset clears the store; callers hold h.mu.
func (h *Handler) reset(w http.ResponseWriter, r *http.Request) bool {
	if h.resetter == nil {
		writeError(w, http.StatusServiceUnavailable, "Reset is not supported by this store", nil)
		return false
	}
	if err := h.resetter.Reset(r.Context()); err != nil {
		h.writeFailure(w, r, err)
		return false
	}
	h.currentScenario = ""
	return true
}
