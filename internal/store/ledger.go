package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/provenance/internal/model"
)

const ownershipColumns = `id, artwork_id, owner_id, owner_name, owner_type, acquired_at, details,
	is_current, created_at`

// CurrentOwner returns the artwork's current ownership record, or nil if the
// artwork has no registered owner yet.
func CurrentOwner(ctx context.Context, db *sql.DB, artworkID int64) (*model.Ownership, error) {
	return currentOwner(ctx, db, artworkID)
}

func currentOwner(ctx context.Context, q queryer, artworkID int64) (*model.Ownership, error) {
	o, err := scanOwnership(q.QueryRowContext(ctx,
		`SELECT `+ownershipColumns+` FROM ownership_records
		 WHERE artwork_id = ? AND is_current = 1`, artworkID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting current owner: %w", err)
	}
	return o, nil
}

// OwnershipHistory returns all ownership records for an artwork, newest first.
func OwnershipHistory(ctx context.Context, db *sql.DB, artworkID int64) ([]model.Ownership, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+ownershipColumns+` FROM ownership_records
		 WHERE artwork_id = ?
		 ORDER BY created_at DESC, id DESC`, artworkID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting ownership history: %w", err)
	}
	defer rows.Close()

	var history []model.Ownership
	for rows.Next() {
		o, err := scanOwnership(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ownership: %w", err)
		}
		history = append(history, *o)
	}
	return history, rows.Err()
}

// RecordNewOwner makes owner the artwork's current owner. The previous
// current record, if any, is superseded in the same transaction.
func RecordNewOwner(ctx context.Context, db *sql.DB, artworkID int64, owner model.NewOwner) (*model.Ownership, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	o, err := recordNewOwnerTx(ctx, tx, artworkID, owner)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ownership: %w", err)
	}
	return o, nil
}

// recordNewOwnerTx is the only code path that writes is_current.
// The caller's transaction must hold the write lock.
func recordNewOwnerTx(ctx context.Context, tx *sql.Tx, artworkID int64, owner model.NewOwner) (*model.Ownership, error) {
	owner.OwnerType = strings.TrimSpace(owner.OwnerType)
	owner.OwnerName = plainText(owner.OwnerName)
	owner.Details = plainText(owner.Details)
	if owner.OwnerType == "" {
		return nil, fmt.Errorf("%w: owner type required", ErrValidation)
	}

	if err := artworkExists(ctx, tx, artworkID); err != nil {
		return nil, err
	}

	var username string
	err := tx.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = ? AND deleted_at IS NULL`, owner.OwnerID,
	).Scan(&username)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("owner %d: %w", owner.OwnerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking owner: %w", err)
	}
	if owner.OwnerName == "" {
		owner.OwnerName = username
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ownership_records SET is_current = 0 WHERE artwork_id = ? AND is_current = 1`,
		artworkID,
	); err != nil {
		return nil, fmt.Errorf("superseding current owner: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO ownership_records (artwork_id, owner_id, owner_name, owner_type, acquired_at, details, is_current)
		 VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), ?, 1)`,
		artworkID, owner.OwnerID, owner.OwnerName, owner.OwnerType, owner.AcquiredAt, nullString(owner.Details),
	)
	if err != nil {
		return nil, fmt.Errorf("recording ownership: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting ownership id: %w", err)
	}

	o, err := scanOwnership(tx.QueryRowContext(ctx,
		`SELECT `+ownershipColumns+` FROM ownership_records WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("reading ownership: %w", err)
	}
	return o, nil
}

func scanOwnership(row rowScanner) (*model.Ownership, error) {
	o := &model.Ownership{}
	var details sql.NullString
	if err := row.Scan(&o.ID, &o.ArtworkID, &o.OwnerID, &o.OwnerName, &o.OwnerType, &o.AcquiredAt,
		&details, &o.IsCurrent, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Details = details.String
	return o, nil
}
