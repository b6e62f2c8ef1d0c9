package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/provenance/internal/model"
)

// GetStats counts artworks, scans since midnight UTC, pending transfers and
// users who scanned an artwork in the last 30 days or hold one.
func GetStats(ctx context.Context, db *sql.DB, now time.Time) (*model.Stats, error) {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthAgo := now.AddDate(0, 0, -30)

	s := &model.Stats{}
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM artworks),
			(SELECT COUNT(*) FROM artworks WHERE verified = 1),
			(SELECT COUNT(*) FROM scan_log WHERE scanned_at >= ?),
			(SELECT COUNT(*) FROM transfer_requests WHERE status = 'pending'),
			(SELECT COUNT(*) FROM users u WHERE u.deleted_at IS NULL AND (
				EXISTS (SELECT 1 FROM scan_log s WHERE s.scanned_by = u.id AND s.scanned_at >= ?)
				OR EXISTS (SELECT 1 FROM ownership_records o WHERE o.owner_id = u.id AND o.is_current = 1)))`,
		midnight.Format(time.DateTime), monthAgo.Format(time.DateTime),
	).Scan(&s.TotalArtworks, &s.VerifiedArtworks, &s.ScansToday, &s.PendingTransfers, &s.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("computing stats: %w", err)
	}
	return s, nil
}
