package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/inventory"
)

// InsufficientStockDetails is the body detail for a 409 on stock.
type InsufficientStockDetails struct {
	ProductID inventory.ProductID `json:"productId"`
	Available int64               `json:"available"`
	Requested int64               `json:"requested"`
}

// PersistenceDetails tells the client whether a partial write happened.
type PersistenceDetails struct {
	Inconsistent bool `json:"inconsistent"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeFailure maps a domain or auth error onto a status and logs the
// server-side ones.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", err)
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	var (
		ise *inventory.InsufficientStockError
		pe  *inventory.PersistenceError
	)
	switch {
	case errors.As(err, &ise):
		return http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "insufficient_stock",
			Details: InsufficientStockDetails{
				ProductID: ise.ProductID,
				Available: ise.Available,
				Requested: ise.Requested,
			},
		}
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "insufficient_stock"}
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"}
	case errors.Is(err, inventory.ErrDuplicateCode):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "duplicate_code"}
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "email_taken"}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "invalid_credentials"}
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"}
	case errors.As(err, &pe):
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:   "storage unavailable",
			Code:    "persistence",
			Details: PersistenceDetails{Inconsistent: pe.Inconsistent},
		}
	case errors.Is(err, inventory.ErrPersistence):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Code: "persistence"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}
