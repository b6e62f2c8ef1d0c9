package model

import "time"

// Ownership is one interval of custody in an artwork's provenance.
// Only IsCurrent ever changes after the record is written.
type Ownership struct {
	ID         int64     `json:"id"`
	ArtworkID  int64     `json:"artwork_id"`
	OwnerID    int64     `json:"owner_id"`
	OwnerName  string    `json:"owner_name"`
	OwnerType  string    `json:"owner_type"`
	AcquiredAt time.Time `json:"acquired_at"`
	Details    string    `json:"details,omitempty"`
	IsCurrent  bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewOwner describes the owner recorded by a ledger entry. An empty
// OwnerName defaults to the owner's username and a nil AcquiredAt to the
// time of recording.
type NewOwner struct {
	OwnerID    int64      `json:"owner_id"`
	OwnerName  string     `json:"owner_name,omitempty"`
	OwnerType  string     `json:"owner_type"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	Details    string     `json:"details,omitempty"`
}

// Common owner types. The set is open; any non-empty value is accepted.
const (
	OwnerTypeArtist           = "artist"
	OwnerTypeGallery          = "gallery"
	OwnerTypePrivateCollector = "private_collector"
	OwnerTypeInstitution      = "institution"
)
