package model

import "time"

// Artwork is a registered physical artwork.
type Artwork struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Year        *int      `json:"year,omitempty"`
	Medium      string    `json:"medium,omitempty"`
	Dimensions  string    `json:"dimensions,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	ScanCode    string    `json:"scan_code,omitempty"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtworkFields are the attributes supplied when registering an artwork.
type ArtworkFields struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Year        *int   `json:"year,omitempty"`
	Medium      string `json:"medium,omitempty"`
	Dimensions  string `json:"dimensions,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Verified    bool   `json:"verified,omitempty"`
}
