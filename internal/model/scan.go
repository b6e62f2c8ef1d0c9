package model

import "time"

// ScanLogEntry records one resolution of an artwork's scan code.
type ScanLogEntry struct {
	ID        int64     `json:"id"`
	ArtworkID int64     `json:"artwork_id"`
	ScannedBy *int64    `json:"scanned_by,omitempty"`
	Address   string    `json:"address,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}
