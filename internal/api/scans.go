package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/provenance/internal/model"
	"github.com/erazemk/provenance/internal/store"
)

// ScansHandler resolves scanned codes and exposes the scan log.
type ScansHandler struct {
	DB        *sql.DB
	Redirects Redirects
}

type resolveResponse struct {
	ArtworkID int64 `json:"artwork_id"`
}

// Resolve handles GET /api/qr/{code}.
func (h *ScansHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	artwork, err := store.ScanArtwork(r.Context(), h.DB, r.PathValue("code"),
		claimsUserID(r.Context()), r.RemoteAddr, r.UserAgent())
	if err != nil {
		storeError(w, err, "process scan")
		return
	}
	jsonResponse(w, http.StatusOK, resolveResponse{ArtworkID: artwork.ID})
}

// Redirect handles GET /qr/{code}, the URL printed on labels. Unknown codes
// send the browser to registration rather than an error page.
func (h *ScansHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	artwork, err := store.ScanArtwork(r.Context(), h.DB, r.PathValue("code"),
		claimsUserID(r.Context()), r.RemoteAddr, r.UserAgent())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("failed to process scan", "error", err)
		}
		http.Redirect(w, r, h.Redirects.Register, http.StatusFound)
		return
	}

	target := strings.ReplaceAll(h.Redirects.Artwork, "{id}", strconv.FormatInt(artwork.ID, 10))
	http.Redirect(w, r, target, http.StatusFound)
}

// List handles GET /api/artworks/{id}/scans.
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	if _, err := store.GetArtwork(r.Context(), h.DB, id); err != nil {
		storeError(w, err, "get artwork")
		return
	}

	scans, err := store.ListScans(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, err, "list scans")
		return
	}
	if scans == nil {
		scans = []model.ScanLogEntry{}
	}
	jsonResponse(w, http.StatusOK, scans)
}
