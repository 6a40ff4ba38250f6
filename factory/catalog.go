/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into Products, Suppliers and opening
  stock movements, and imports them through the Reconciler. Shops can keep
  their catalog in a file, seed a fresh database, or move a catalog
  between installations.

JSON SCHEMA:
  {
    "suppliers": [
      {"key": "sumber", "name": "CV Sumber Rejeki", "contact": "0812...", "address": "Bandung"}
    ],
    "products": [
      {"code": "TPG-01", "name": "Tepung Terigu", "stock": 20,
       "unit_cost": 12000, "unit_price": 15000, "image_url": ""}
    ],
    "inbound": [
      {"product_code": "TPG-01", "supplier": "sumber", "quantity": 10}
    ],
    "outbound": [
      {"product_code": "TPG-01", "quantity": 3}
    ]
  }

  Money accepts JSON numbers or strings ("12000.50").
  Movements reference products by code and suppliers by key.

IMPORT RULES:
  - Suppliers are always created.
  - A product whose code already exists is updated in place (name, prices,
    image). Its quantity is left alone; "stock" only seeds new products.
  - Movements go through RecordInbound and RecordOutbound, so they obey
    the same availability rules as manual entries.

SEE ALSO:
  - inventory/reconciler.go: the operations used by Import
  - api/scenarios.go: demo catalogs built on this format
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dapurkue/stockledger/inventory"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type CatalogJSON struct {
	Suppliers []SupplierJSON `json:"suppliers,omitempty"`
	Products  []ProductJSON  `json:"products"`
	Inbound   []InboundJSON  `json:"inbound,omitempty"`
	Outbound  []OutboundJSON `json:"outbound,omitempty"`
}

type SupplierJSON struct {
	Key     string `json:"key,omitempty"` // defaults to the name
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	Address string `json:"address,omitempty"`
}

type ProductJSON struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Stock     int64           `json:"stock,omitempty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty"`
}

type InboundJSON struct {
	ProductCode string `json:"product_code"`
	Supplier    string `json:"supplier,omitempty"`
	Quantity    int64  `json:"quantity"`
}

type OutboundJSON struct {
	ProductCode string `json:"product_code"`
	Quantity    int64  `json:"quantity"`
}

// ImportResult counts what Import changed.
type ImportResult struct {
	SuppliersCreated int `json:"suppliersCreated"`
	ProductsCreated  int `json:"productsCreated"`
	ProductsUpdated  int `json:"productsUpdated"`
	InboundRecorded  int `json:"inboundRecorded"`
	OutboundRecorded int `json:"outboundRecorded"`
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalogs and imports them.
type CatalogFactory struct {
	reconciler *inventory.Reconciler
}

func NewCatalogFactory(r *inventory.Reconciler) *CatalogFactory {
	return &CatalogFactory{reconciler: r}
}

// ParseCatalog decodes and checks a catalog document.
func ParseCatalog(data []byte) (CatalogJSON, error) {
	var cj CatalogJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return cj, &inventory.ValidationError{Field: "catalog", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return cj, cj.check()
}

// check verifies cross references before anything is written.
func (cj CatalogJSON) check() error {
	codes := make(map[string]bool, len(cj.Products))
	for i, p := range cj.Products {
		code := strings.ToLower(strings.TrimSpace(p.Code))
		if code == "" {
			return &inventory.ValidationError{Field: fmt.Sprintf("products[%d].code", i), Reason: "is required"}
		}
		if codes[code] {
			return &inventory.ValidationError{Field: fmt.Sprintf("products[%d].code", i), Reason: "is duplicated"}
		}
		codes[code] = true
	}
	keys := make(map[string]bool, len(cj.Suppliers))
	for _, s := range cj.Suppliers {
		keys[s.key()] = true
	}
	for i, in := range cj.Inbound {
		if in.Supplier != "" && !keys[in.Supplier] {
			return &inventory.ValidationError{Field: fmt.Sprintf("inbound[%d].supplier", i), Reason: "is not defined"}
		}
	}
	return nil
}

func (s SupplierJSON) key() string {
	if s.Key != "" {
		return s.Key
	}
	return s.Name
}

// Import writes cj through the reconciler as actor. It stops at the first
// failure; what was written before stays written.
func (f *CatalogFactory) Import(ctx context.Context, actor inventory.Actor, cj CatalogJSON) (ImportResult, error) {
	var res ImportResult
	if err := cj.check(); err != nil {
		return res, err
	}

	supplierIDs := make(map[string]inventory.SupplierID, len(cj.Suppliers))
	for i, sj := range cj.Suppliers {
		s, err := f.reconciler.CreateSupplier(ctx, actor, inventory.Supplier{
			Name:    sj.Name,
			Contact: sj.Contact,
			Address: sj.Address,
		})
		if err != nil {
			return res, fmt.Errorf("suppliers[%d]: %w", i, err)
		}
		supplierIDs[sj.key()] = s.ID
		res.SuppliersCreated++
	}

	productIDs := make(map[string]inventory.ProductID, len(cj.Products))
	for i, pj := range cj.Products {
		id, created, err := f.upsertProduct(ctx, actor, pj)
		if err != nil {
			return res, fmt.Errorf("products[%d]: %w", i, err)
		}
		productIDs[strings.ToLower(strings.TrimSpace(pj.Code))] = id
		if created {
			res.ProductsCreated++
		} else {
			res.ProductsUpdated++
		}
	}

	for i, in := range cj.Inbound {
		id, err := f.resolveProduct(ctx, productIDs, in.ProductCode)
		if err != nil {
			return res, fmt.Errorf("inbound[%d]: %w", i, err)
		}
		_, err = f.reconciler.RecordInbound(ctx, actor, inventory.InboundInput{
			ProductID:  id,
			SupplierID: supplierIDs[in.Supplier],
			Quantity:   in.Quantity,
		})
		if err != nil {
			return res, fmt.Errorf("inbound[%d]: %w", i, err)
		}
		res.InboundRecorded++
	}

	for i, out := range cj.Outbound {
		id, err := f.resolveProduct(ctx, productIDs, out.ProductCode)
		if err != nil {
			return res, fmt.Errorf("outbound[%d]: %w", i, err)
		}
		_, err = f.reconciler.RecordOutbound(ctx, actor, inventory.OutboundInput{ProductID: id, Quantity: out.Quantity})
		if err != nil {
			return res, fmt.Errorf("outbound[%d]: %w", i, err)
		}
		res.OutboundRecorded++
	}
	return res, nil
}

func (f *CatalogFactory) upsertProduct(ctx context.Context, actor inventory.Actor, pj ProductJSON) (inventory.ProductID, bool, error) {
	existing, err := f.reconciler.FindProductByCode(ctx, pj.Code)
	switch {
	case err == nil:
		name, cost, price, image := pj.Name, pj.UnitCost, pj.UnitPrice, pj.ImageURL
		_, err := f.reconciler.AdjustCatalog(ctx, actor, existing.ID, inventory.ProductFields{
			Name:      &name,
			UnitCost:  &cost,
			UnitPrice: &price,
			ImageURL:  &image,
		})
		return existing.ID, false, err
	case inventory.IsNotFound(err):
		p, err := f.reconciler.CreateProduct(ctx, actor, inventory.Product{
			Code:           pj.Code,
			Name:           pj.Name,
			QuantityOnHand: pj.Stock,
			UnitCost:       pj.UnitCost,
			UnitPrice:      pj.UnitPrice,
			ImageURL:       pj.ImageURL,
		})
		return p.ID, true, err
	default:
		return "", false, err
	}
}

// resolveProduct prefers products from this import, then the catalog.
func (f *CatalogFactory) resolveProduct(ctx context.Context, ids map[string]inventory.ProductID, code string) (inventory.ProductID, error) {
	if id, ok := ids[strings.ToLower(strings.TrimSpace(code))]; ok {
		return id, nil
	}
	p, err := f.reconciler.FindProductByCode(ctx, code)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// ToJSON exports products and suppliers as a catalog without movements.
// Supplier keys are their ids.
func ToJSON(products []inventory.Product, suppliers []inventory.Supplier) CatalogJSON {
	cj := CatalogJSON{Products: make([]ProductJSON, 0, len(products))}
	for _, s := range suppliers {
		cj.Suppliers = append(cj.Suppliers, SupplierJSON{
			Key:     string(s.ID),
			Name:    s.Name,
			Contact: s.Contact,
			Address: s.Address,
		})
	}
	for _, p := range products {
		cj.Products = append(cj.Products, ProductJSON{
			Code:      p.Code,
			Name:      p.Name,
			Stock:     p.QuantityOnHand,
			UnitCost:  p.UnitCost,
			UnitPrice: p.UnitPrice,
			ImageURL:  p.ImageURL,
		})
	}
	return cj
}
