package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/provenance/internal/codes"
	"github.com/erazemk/provenance/internal/model"
	"github.com/erazemk/provenance/internal/store"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	DB    *sql.DB
	Codes codes.Generator
}

type createTransferRequest struct {
	ArtworkID    int64  `json:"artwork_id"`
	ToOwnerID    *int64 `json:"to_owner_id,omitempty"`
	ToOwnerEmail string `json:"to_owner_email,omitempty"`
}

// Create handles POST /api/transfers. The authenticated user is the
// sending party and must be the artwork's current owner.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ArtworkID <= 0 {
		jsonError(w, http.StatusBadRequest, "artwork_id required")
		return
	}

	transfer, err := store.CreateTransfer(r.Context(), h.DB, h.Codes, req.ArtworkID, claims.UserID, req.ToOwnerID, req.ToOwnerEmail)
	if err != nil {
		storeError(w, err, "create transfer")
		return
	}

	slog.Info("transfer created", "user", claims.Username,
		"artwork", transfer.ArtworkID, "transfer", transfer.Code)
	jsonResponse(w, http.StatusCreated, transfer)
}

// List handles GET /api/transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", model.TransferStatusPending, model.TransferStatusConfirmed, model.TransferStatusCancelled:
	default:
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	transfers, err := store.ListTransfers(r.Context(), h.DB, status)
	if err != nil {
		storeError(w, err, "list transfers")
		return
	}
	if transfers == nil {
		transfers = []model.TransferRequest{}
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Lookup handles GET /api/transfers/{code}.
func (h *TransfersHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	detail, err := store.LookupTransfer(r.Context(), h.DB, r.PathValue("code"))
	if err != nil {
		storeError(w, err, "get transfer")
		return
	}
	jsonResponse(w, http.StatusOK, detail)
}

// Confirm handles POST /api/transfers/{code}/confirm. Holding the code is
// what entitles the receiving party to confirm.
func (h *TransfersHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	transfer, err := store.ConfirmTransfer(r.Context(), h.DB, r.PathValue("code"))
	if err != nil {
		storeError(w, err, "confirm transfer")
		return
	}

	if transfer.Deferred() {
		slog.Info("transfer confirmed, awaiting recipient account",
			"artwork", transfer.ArtworkID, "transfer", transfer.Code)
	} else {
		slog.Info("transfer confirmed", "artwork", transfer.ArtworkID,
			"transfer", transfer.Code, "owner", *transfer.ToOwnerID)
	}
	jsonResponse(w, http.StatusOK, transfer)
}

// Cancel handles POST /api/transfers/{code}/cancel. Only the sending party
// or an admin may cancel.
func (h *TransfersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	existing, err := store.GetTransfer(r.Context(), h.DB, r.PathValue("code"))
	if err != nil {
		storeError(w, err, "get transfer")
		return
	}
	if existing.FromOwnerID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	transfer, err := store.CancelTransfer(r.Context(), h.DB, existing.Code)
	if err != nil {
		storeError(w, err, "cancel transfer")
		return
	}

	slog.Info("transfer cancelled", "user", claims.Username,
		"artwork", transfer.ArtworkID, "transfer", transfer.Code)
	jsonResponse(w, http.StatusOK, transfer)
}
