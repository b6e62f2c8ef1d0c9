package model

import "time"

// TransferRequest is a proposed custody change awaiting confirmation by the
// receiving party.
type TransferRequest struct {
	ID           int64      `json:"id"`
	ArtworkID    int64      `json:"artwork_id"`
	FromOwnerID  int64      `json:"from_owner_id"`
	ToOwnerID    *int64     `json:"to_owner_id,omitempty"`
	ToOwnerEmail string     `json:"to_owner_email,omitempty"`
	Code         string     `json:"transfer_code"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

// Deferred reports whether the transfer was confirmed for an invitee that
// has no account yet, so no ledger entry has been written.
func (t *TransferRequest) Deferred() bool {
	return t.Status == TransferStatusConfirmed && t.ToOwnerID == nil
}

// Transfer statuses.
const (
	TransferStatusPending   = "pending"
	TransferStatusConfirmed = "confirmed"
	TransferStatusCancelled = "cancelled"
)

// TransferDetail is a transfer request together with the artwork it
// concerns and that artwork's current ownership record.
type TransferDetail struct {
	Transfer     *TransferRequest `json:"transfer"`
	Artwork      *Artwork         `json:"artwork"`
	CurrentOwner *Ownership       `json:"current_ownership"`
}
