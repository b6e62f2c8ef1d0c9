package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/provenance/internal/model"
)

// RecordScan appends a scan log entry for an artwork.
func RecordScan(ctx context.Context, db *sql.DB, artworkID int64, scannedBy *int64, address, agent string) (*model.ScanLogEntry, error) {
	if err := artworkExists(ctx, db, artworkID); err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO scan_log (artwork_id, scanned_by, address, agent) VALUES (?, ?, ?, ?)`,
		artworkID, scannedBy, nullString(address), nullString(agent),
	)
	if err != nil {
		return nil, fmt.Errorf("recording scan: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting scan id: %w", err)
	}

	e, err := scanLogEntry(db.QueryRowContext(ctx,
		`SELECT id, artwork_id, scanned_by, address, agent, scanned_at FROM scan_log WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("reading scan: %w", err)
	}
	return e, nil
}

// ListScans returns an artwork's scan log, newest first.
func ListScans(ctx context.Context, db *sql.DB, artworkID int64) ([]model.ScanLogEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, artwork_id, scanned_by, address, agent, scanned_at
		 FROM scan_log
		 WHERE artwork_id = ?
		 ORDER BY scanned_at DESC, id DESC`, artworkID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var entries []model.ScanLogEntry
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scan log: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ScanArtwork resolves a scanned code and logs the scan. An unknown code
// returns ErrNotFound and logs nothing.
func ScanArtwork(ctx context.Context, db *sql.DB, code string, scannedBy *int64, address, agent string) (*model.Artwork, error) {
	artwork, err := GetArtworkByScanCode(ctx, db, code)
	if err != nil {
		return nil, err
	}

	if _, err := RecordScan(ctx, db, artwork.ID, scannedBy, address, agent); err != nil {
		return nil, err
	}
	return artwork, nil
}

func scanLogEntry(row rowScanner) (*model.ScanLogEntry, error) {
	e := &model.ScanLogEntry{}
	var address, agent sql.NullString
	if err := row.Scan(&e.ID, &e.ArtworkID, &e.ScannedBy, &address, &agent, &e.ScannedAt); err != nil {
		return nil, err
	}
	e.Address = address.String
	e.Agent = agent.String
	return e, nil
}
