package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"

	"github.com/erazemk/provenance/internal/codes"
	"github.com/erazemk/provenance/internal/model"
)

const transferColumns = `id, artwork_id, from_owner_id, to_owner_id, to_owner_email, transfer_code,
	status, created_at, confirmed_at`

// CreateTransfer opens a pending transfer of an artwork from its current
// owner to another user, or to an email address that may not have an
// account yet. An artwork has at most one pending transfer at a time.
func CreateTransfer(ctx context.Context, db *sql.DB, gen codes.Generator, artworkID, fromOwnerID int64, toOwnerID *int64, toOwnerEmail string) (*model.TransferRequest, error) {
	toOwnerEmail = strings.TrimSpace(toOwnerEmail)
	if toOwnerID == nil && toOwnerEmail == "" {
		return nil, fmt.Errorf("%w: recipient user or email required", ErrValidation)
	}
	if toOwnerEmail != "" && !validEmail(toOwnerEmail) {
		return nil, fmt.Errorf("%w: invalid recipient email", ErrValidation)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := artworkExists(ctx, tx, artworkID); err != nil {
		return nil, err
	}

	current, err := currentOwner(ctx, tx, artworkID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.OwnerID != fromOwnerID {
		return nil, fmt.Errorf("user %d cannot transfer artwork %d: %w", fromOwnerID, artworkID, ErrInvalidOwner)
	}

	// An invite to an address that already has an account goes to that account.
	if toOwnerID == nil {
		toOwnerID, err = userIDByEmail(ctx, tx, toOwnerEmail)
		if err != nil {
			return nil, err
		}
	} else if err := userExists(ctx, tx, *toOwnerID); err != nil {
		return nil, err
	}
	if toOwnerID != nil && *toOwnerID == fromOwnerID {
		return nil, fmt.Errorf("%w: cannot transfer to the current owner", ErrValidation)
	}

	// Requests opened by a previous owner can no longer be confirmed.
	if _, err := tx.ExecContext(ctx,
		`UPDATE transfer_requests SET status = 'cancelled'
		 WHERE artwork_id = ? AND status = 'pending' AND from_owner_id != ?`,
		artworkID, fromOwnerID,
	); err != nil {
		return nil, fmt.Errorf("cancelling stale transfers: %w", err)
	}

	var pending string
	err = tx.QueryRowContext(ctx,
		`SELECT transfer_code FROM transfer_requests WHERE artwork_id = ? AND status = 'pending'`,
		artworkID,
	).Scan(&pending)
	if err == nil {
		return nil, fmt.Errorf("%w: artwork %d already has pending transfer %s", ErrInvalidState, artworkID, pending)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("checking pending transfers: %w", err)
	}

	var id int64
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return nil, fmt.Errorf("generating transfer code after %d attempts: %w", maxCodeAttempts, ErrConflict)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO transfer_requests (artwork_id, from_owner_id, to_owner_id, to_owner_email, transfer_code)
			 VALUES (?, ?, ?, ?, ?)`,
			artworkID, fromOwnerID, toOwnerID, nullString(toOwnerEmail), gen.TransferCode(),
		)
		if isUniqueViolation(err, "transfer_requests.transfer_code") {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating transfer: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("getting transfer id: %w", err)
		}
		break
	}

	t, err := scanTransfer(tx.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfer_requests WHERE id = ?`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("reading transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}
	return t, nil
}

// GetTransfer returns a transfer request by its code.
func GetTransfer(ctx context.Context, db *sql.DB, code string) (*model.TransferRequest, error) {
	return getTransfer(ctx, db, code)
}

func getTransfer(ctx context.Context, q queryer, code string) (*model.TransferRequest, error) {
	t, err := scanTransfer(q.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfer_requests WHERE transfer_code = ?`,
		strings.TrimSpace(code),
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transfer %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// LookupTransfer returns a transfer request with its artwork and the
// artwork's current ownership record.
func LookupTransfer(ctx context.Context, db *sql.DB, code string) (*model.TransferDetail, error) {
	t, err := GetTransfer(ctx, db, code)
	if err != nil {
		return nil, err
	}

	artwork, err := GetArtwork(ctx, db, t.ArtworkID)
	if err != nil {
		return nil, err
	}

	current, err := CurrentOwner(ctx, db, t.ArtworkID)
	if err != nil {
		return nil, err
	}

	return &model.TransferDetail{Transfer: t, Artwork: artwork, CurrentOwner: current}, nil
}

// ConfirmTransfer confirms a pending transfer and, when the recipient has an
// account, records the recipient as the artwork's new current owner.
//
// Confirming an already confirmed transfer returns it unchanged. An invite to
// an email address without an account is confirmed without a ledger entry;
// ClaimDeferredTransfers applies it once the account exists.
func ConfirmTransfer(ctx context.Context, db *sql.DB, code string) (*model.TransferRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := getTransfer(ctx, tx, code)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case model.TransferStatusConfirmed:
		return t, nil
	case model.TransferStatusCancelled:
		return nil, fmt.Errorf("%w: transfer %s is cancelled", ErrInvalidState, t.Code)
	}

	toOwnerID := t.ToOwnerID
	if toOwnerID == nil {
		toOwnerID, err = userIDByEmail(ctx, tx, t.ToOwnerEmail)
		if err != nil {
			return nil, err
		}
	}

	if toOwnerID != nil {
		if *toOwnerID == t.FromOwnerID {
			return nil, fmt.Errorf("%w: cannot transfer to the current owner", ErrValidation)
		}
		current, err := currentOwner(ctx, tx, t.ArtworkID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.OwnerID != t.FromOwnerID {
			return nil, fmt.Errorf("transfer %s was opened by a previous owner: %w", t.Code, ErrInvalidOwner)
		}
	}

	// The status guard decides which confirmation applies the ledger change.
	result, err := tx.ExecContext(ctx,
		`UPDATE transfer_requests
		 SET status = 'confirmed', confirmed_at = CURRENT_TIMESTAMP, to_owner_id = ?
		 WHERE id = ? AND status = 'pending'`,
		toOwnerID, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("confirming transfer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("confirming transfer: %w", err)
	}
	if n == 0 {
		return getTransfer(ctx, tx, t.Code)
	}

	if toOwnerID != nil {
		if _, err := recordNewOwnerTx(ctx, tx, t.ArtworkID, transferOwner(*toOwnerID, t.Code)); err != nil {
			return nil, err
		}
	}

	confirmed, err := getTransfer(ctx, tx, t.Code)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing confirmation: %w", err)
	}
	return confirmed, nil
}

// CancelTransfer cancels a pending transfer.
func CancelTransfer(ctx context.Context, db *sql.DB, code string) (*model.TransferRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := getTransfer(ctx, tx, code)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE transfer_requests SET status = 'cancelled' WHERE id = ? AND status = 'pending'`,
		t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("cancelling transfer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cancelling transfer: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: transfer %s is %s", ErrInvalidState, t.Code, t.Status)
	}

	cancelled, err := getTransfer(ctx, tx, t.Code)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cancellation: %w", err)
	}
	return cancelled, nil
}

// ListTransfers returns transfer requests, newest first, optionally filtered
// by status.
func ListTransfers(ctx context.Context, db *sql.DB, status string) ([]model.TransferRequest, error) {
	query := `SELECT ` + transferColumns + ` FROM transfer_requests WHERE 1=1`
	var args []any

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// ClaimDeferredTransfers applies confirmed email invites addressed to email
// now that userID holds that address. An invite is applied only if its
// sender still owns the artwork; the applied transfers are returned.
//
// The caller vouches for the address. Self-service sign-up, where it is
// unverified, uses ClaimDeferredTransfersByCode instead.
func ClaimDeferredTransfers(ctx context.Context, db *sql.DB, userID int64, email string) ([]model.TransferRequest, error) {
	return claimDeferredTransfers(ctx, db, userID, email, nil)
}

// ClaimDeferredTransfersByCode is ClaimDeferredTransfers restricted to the
// invites whose transfer codes the user presents. Knowing the address alone
// claims nothing.
func ClaimDeferredTransfersByCode(ctx context.Context, db *sql.DB, userID int64, email string, codes []string) ([]model.TransferRequest, error) {
	allowed := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			allowed[c] = true
		}
	}
	if len(allowed) == 0 {
		return nil, nil
	}
	return claimDeferredTransfers(ctx, db, userID, email, allowed)
}

// claimDeferredTransfers claims every matching invite when allowed is nil,
// otherwise only those whose code is in allowed.
func claimDeferredTransfers(ctx context.Context, db *sql.DB, userID int64, email string, allowed map[string]bool) ([]model.TransferRequest, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfer_requests
		 WHERE status = 'confirmed' AND to_owner_id IS NULL AND to_owner_email = ?
		 ORDER BY confirmed_at, id`, email,
	)
	if err != nil {
		return nil, fmt.Errorf("listing deferred transfers: %w", err)
	}
	deferred, err := scanTransfers(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	var claimed []model.TransferRequest
	for _, t := range deferred {
		if allowed != nil && !allowed[t.Code] {
			continue
		}
		current, err := currentOwner(ctx, tx, t.ArtworkID)
		if err != nil {
			return nil, err
		}
		if current == nil || current.OwnerID != t.FromOwnerID || current.OwnerID == userID {
			continue
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE transfer_requests SET to_owner_id = ? WHERE id = ? AND to_owner_id IS NULL`,
			userID, t.ID,
		); err != nil {
			return nil, fmt.Errorf("binding transfer recipient: %w", err)
		}
		if _, err := recordNewOwnerTx(ctx, tx, t.ArtworkID, transferOwner(userID, t.Code)); err != nil {
			return nil, err
		}

		id := userID
		t.ToOwnerID = &id
		claimed = append(claimed, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claimed transfers: %w", err)
	}
	return claimed, nil
}

// transferOwner is the ledger entry written for a transfer recipient.
func transferOwner(ownerID int64, code string) model.NewOwner {
	return model.NewOwner{
		OwnerID:   ownerID,
		OwnerType: model.OwnerTypePrivateCollector,
		Details:   "Transfer confirmed via code: " + code,
	}
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func scanTransfer(row rowScanner) (*model.TransferRequest, error) {
	t := &model.TransferRequest{}
	var toEmail sql.NullString
	if err := row.Scan(&t.ID, &t.ArtworkID, &t.FromOwnerID, &t.ToOwnerID, &toEmail, &t.Code,
		&t.Status, &t.CreatedAt, &t.ConfirmedAt); err != nil {
		return nil, err
	}
	t.ToOwnerEmail = toEmail.String
	return t, nil
}

func scanTransfers(rows *sql.Rows) ([]model.TransferRequest, error) {
	var transfers []model.TransferRequest
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}
