package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/provenance/internal/store"
)

// AdminHandler serves the admin dashboard.
type AdminHandler struct {
	DB *sql.DB
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetStats(r.Context(), h.DB, time.Now())
	if err != nil {
		storeError(w, err, "compute stats")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}
