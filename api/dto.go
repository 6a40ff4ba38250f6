/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validator tags; handlers decode and validate them in one step with
  decode(). Domain types (Product, Supplier, ledger entries) already carry
  JSON tags and are returned as they are.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/types.go: Domain types returned by handlers
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/factory"
	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/report"
)

// maxBodyBytes bounds JSON request bodies. Catalog imports are the largest.
const maxBodyBytes = 4 << 20

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string          `json:"token"`
	User  UserResponse    `json:"user"`
	Menu  []auth.MenuItem `json:"menu"`
}

type RegisterRequest struct {
	Email    string         `json:"email" validate:"required,email"`
	Name     string         `json:"name" validate:"required,max=200"`
	Password string         `json:"password" validate:"min=8,max=72"`
	Role     inventory.Role `json:"role" validate:"required,oneof=admin manager"`
}

// UserResponse never includes the password hash.
type UserResponse struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Role      inventory.Role `json:"role"`
	CreatedAt string         `json:"createdAt,omitempty"`
}

func toUserResponse(u auth.User) UserResponse {
	resp := UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

type MeResponse struct {
	User UserResponse    `json:"user"`
	Menu []auth.MenuItem `json:"menu"`
}

// =============================================================================
// CATALOG
// =============================================================================

type CreateProductRequest struct {
	Code           string          `json:"code" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	QuantityOnHand int64           `json:"quantityOnHand" validate:"gte=0"`
	UnitCost       decimal.Decimal `json:"unitCost" validate:"gte=0"`
	UnitPrice      decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	ImageURL       string          `json:"imageUrl" validate:"omitempty,url"`
}

func (req CreateProductRequest) product() inventory.Product {
	return inventory.Product{
		Code:           req.Code,
		Name:           req.Name,
		QuantityOnHand: req.QuantityOnHand,
		UnitCost:       req.UnitCost,
		UnitPrice:      req.UnitPrice,
		ImageURL:       req.ImageURL,
	}
}

// AdjustProductRequest is a partial edit; absent fields stay unchanged.
type AdjustProductRequest struct {
	Code           *string          `json:"code" validate:"omitempty,max=64"`
	Name           *string          `json:"name" validate:"omitempty,max=200"`
	QuantityOnHand *int64           `json:"quantityOnHand" validate:"omitempty,gte=0"`
	UnitCost       *decimal.Decimal `json:"unitCost"`
	UnitPrice      *decimal.Decimal `json:"unitPrice"`
	ImageURL       *string          `json:"imageUrl"`
}

func (req AdjustProductRequest) fields() inventory.ProductFields {
	return inventory.ProductFields{
		Code:           req.Code,
		Name:           req.Name,
		QuantityOnHand: req.QuantityOnHand,
		UnitCost:       req.UnitCost,
		UnitPrice:      req.UnitPrice,
		ImageURL:       req.ImageURL,
	}
}

type SupplierRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Contact string `json:"contact" validate:"max=200"`
	Address string `json:"address" validate:"max=500"`
}

func (req SupplierRequest) supplier() inventory.Supplier {
	return inventory.Supplier{Name: req.Name, Contact: req.Contact, Address: req.Address}
}

// =============================================================================
// LEDGER
// =============================================================================

type InboundRequest struct {
	ProductID  inventory.ProductID  `json:"productId" validate:"required"`
	SupplierID inventory.SupplierID `json:"supplierId"`
	Quantity   int64                `json:"quantity" validate:"gt=0"`
}

func (req InboundRequest) input() inventory.InboundInput {
	return inventory.InboundInput{ProductID: req.ProductID, SupplierID: req.SupplierID, Quantity: req.Quantity}
}

type OutboundRequest struct {
	ProductID inventory.ProductID `json:"productId" validate:"required"`
	Quantity  int64               `json:"quantity" validate:"gt=0"`
}

func (req OutboundRequest) input() inventory.OutboundInput {
	return inventory.OutboundInput{ProductID: req.ProductID, Quantity: req.Quantity}
}

// =============================================================================
// DASHBOARD, UPLOADS, IMPORT
// =============================================================================

// FeedResponse is the live part of the dashboard, present when an event
// feed is configured.
type FeedResponse struct {
	Counters map[inventory.EventKind]int64 `json:"counters"`
	LowStock *LowStockResponse             `json:"lowStock,omitempty"`
}

type LowStockResponse struct {
	Threshold int64               `json:"threshold"`
	Products  []inventory.Product `json:"products"`
	TakenAt   time.Time           `json:"takenAt"`
}

type DashboardResponse struct {
	Summary report.Dashboard `json:"summary"`
	Feed    *FeedResponse    `json:"feed,omitempty"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

type ImportResponse struct {
	Result factory.ImportResult `json:"result"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &inventory.ValidationError{Field: "body", Reason: "is empty"}
		}
		return &inventory.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return inventory.Validate(dst)
}
