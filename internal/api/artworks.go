package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/provenance/internal/codes"
	"github.com/erazemk/provenance/internal/model"
	"github.com/erazemk/provenance/internal/store"
)

// ArtworksHandler handles artwork registry and ownership endpoints.
type ArtworksHandler struct {
	DB    *sql.DB
	Codes codes.Generator
}

type createArtworkRequest struct {
	model.ArtworkFields
	InitialOwner *model.NewOwner `json:"initial_owner,omitempty"`
}

type createArtworkResponse struct {
	Artwork *model.Artwork   `json:"artwork"`
	Owner   *model.Ownership `json:"current_ownership,omitempty"`
}

type artworkDetail struct {
	Artwork      *model.Artwork    `json:"artwork"`
	Ownerships   []model.Ownership `json:"ownerships"`
	CurrentOwner *model.Ownership  `json:"current_ownership"`
}

type scanCodeRequest struct {
	// ScanCode assigns a pre-printed code; empty generates one.
	ScanCode string `json:"scan_code"`
}

type verifiedRequest struct {
	Verified bool `json:"verified"`
}

// List handles GET /api/artworks.
func (h *ArtworksHandler) List(w http.ResponseWriter, r *http.Request) {
	artworks, err := store.ListArtworks(r.Context(), h.DB)
	if err != nil {
		storeError(w, err, "list artworks")
		return
	}
	if artworks == nil {
		artworks = []model.Artwork{}
	}
	jsonResponse(w, http.StatusOK, artworks)
}

// Create handles POST /api/artworks.
func (h *ArtworksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createArtworkRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	artwork, owner, err := store.RegisterArtworkWithOwner(r.Context(), h.DB, req.ArtworkFields, req.InitialOwner)
	if err != nil {
		storeError(w, err, "register artwork")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("artwork registered", "user", claims.Username, "artwork", artwork.ID, "title", artwork.Title)
	if owner != nil {
		slog.Info("ownership recorded", "user", claims.Username, "artwork", artwork.ID, "owner", owner.OwnerID)
	}

	resp := createArtworkResponse{Artwork: artwork, Owner: owner}
	jsonResponse(w, http.StatusCreated, resp)
}

// Get handles GET /api/artworks/{id}.
func (h *ArtworksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	artwork, err := store.GetArtwork(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get artwork")
		return
	}

	history, err := store.OwnershipHistory(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get ownership history")
		return
	}
	if history == nil {
		history = []model.Ownership{}
	}

	current, err := store.CurrentOwner(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "get current owner")
		return
	}

	jsonResponse(w, http.StatusOK, artworkDetail{Artwork: artwork, Ownerships: history, CurrentOwner: current})
}

// SetScanCode handles PUT /api/artworks/{id}/scan-code.
func (h *ArtworksHandler) SetScanCode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	var req scanCodeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var artwork *model.Artwork
	var err error
	if req.ScanCode == "" {
		artwork, err = store.AssignScanCode(r.Context(), h.DB, h.Codes, id)
	} else {
		artwork, err = store.SetScanCode(r.Context(), h.DB, id, req.ScanCode)
	}
	if err != nil {
		storeError(w, err, "assign scan code")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("scan code assigned", "user", claims.Username, "artwork", artwork.ID, "code", artwork.ScanCode)
	jsonResponse(w, http.StatusOK, artwork)
}

// SetVerified handles PUT /api/artworks/{id}/verified.
func (h *ArtworksHandler) SetVerified(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	var req verifiedRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	artwork, err := store.SetArtworkVerified(r.Context(), h.DB, id, req.Verified)
	if err != nil {
		storeError(w, err, "update artwork")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("artwork verification updated", "user", claims.Username, "artwork", artwork.ID, "verified", artwork.Verified)
	jsonResponse(w, http.StatusOK, artwork)
}

// RecordOwner handles POST /api/artworks/{id}/owners.
func (h *ArtworksHandler) RecordOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	var req model.NewOwner
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OwnerID <= 0 {
		jsonError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	owner, err := store.RecordNewOwner(r.Context(), h.DB, id, req)
	if err != nil {
		storeError(w, err, "record owner")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("ownership recorded", "user", claims.Username, "artwork", id, "owner", owner.OwnerID)
	jsonResponse(w, http.StatusCreated, owner)
}

// Mine handles GET /api/users/me/artworks.
func (h *ArtworksHandler) Mine(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	artworks, err := store.ListOwnedArtworks(r.Context(), h.DB, claims.UserID)
	if err != nil {
		storeError(w, err, "list artworks")
		return
	}
	if artworks == nil {
		artworks = []model.Artwork{}
	}
	jsonResponse(w, http.StatusOK, artworks)
}
