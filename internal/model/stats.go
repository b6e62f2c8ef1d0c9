package model

// Stats summarizes registry activity for the admin dashboard.
type Stats struct {
	TotalArtworks    int `json:"total_artworks"`
	VerifiedArtworks int `json:"verified_artworks"`
	ScansToday       int `json:"scans_today"`
	PendingTransfers int `json:"pending_transfers"`
	ActiveUsers      int `json:"active_users"`
}
