package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/erazemk/provenance/internal/codes"
	"github.com/erazemk/provenance/internal/model"
)

const artworkColumns = `a.id, a.title, a.artist, a.year, a.medium, a.dimensions, a.description,
	a.image_url, a.scan_code, a.verified, a.created_at`

// RegisterArtwork creates a new artwork. The scan code is assigned separately.
func RegisterArtwork(ctx context.Context, db *sql.DB, f model.ArtworkFields) (*model.Artwork, error) {
	a, _, err := RegisterArtworkWithOwner(ctx, db, f, nil)
	return a, err
}

// RegisterArtworkWithOwner creates a new artwork and, if owner is non-nil,
// records its first owner. Both are written in one transaction, so a failed
// owner leaves no artwork behind.
func RegisterArtworkWithOwner(ctx context.Context, db *sql.DB, f model.ArtworkFields, owner *model.NewOwner) (*model.Artwork, *model.Ownership, error) {
	f.Title = plainText(f.Title)
	f.Artist = plainText(f.Artist)
	f.Medium = plainText(f.Medium)
	f.Dimensions = plainText(f.Dimensions)
	f.Description = plainText(f.Description)
	if f.Title == "" {
		return nil, nil, fmt.Errorf("%w: title required", ErrValidation)
	}
	if f.Artist == "" {
		return nil, nil, fmt.Errorf("%w: artist required", ErrValidation)
	}
	if f.Year != nil && *f.Year <= 0 {
		return nil, nil, fmt.Errorf("%w: year must be positive", ErrValidation)
	}

	var year sql.NullInt64
	if f.Year != nil {
		year = sql.NullInt64{Int64: int64(*f.Year), Valid: true}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO artworks (title, artist, year, medium, dimensions, description, image_url, verified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Title, f.Artist, year, nullString(f.Medium), nullString(f.Dimensions),
		nullString(f.Description), nullString(f.ImageURL), f.Verified,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating artwork: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("getting artwork id: %w", err)
	}

	var o *model.Ownership
	if owner != nil {
		if o, err = recordNewOwnerTx(ctx, tx, id, *owner); err != nil {
			return nil, nil, err
		}
	}

	a, err := getArtwork(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing artwork: %w", err)
	}
	return a, o, nil
}

// GetArtwork returns an artwork by ID.
func GetArtwork(ctx context.Context, db *sql.DB, id int64) (*model.Artwork, error) {
	return getArtwork(ctx, db, id)
}

func getArtwork(ctx context.Context, q queryer, id int64) (*model.Artwork, error) {
	a, err := scanArtwork(q.QueryRowContext(ctx,
		`SELECT `+artworkColumns+` FROM artworks a WHERE a.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artwork %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting artwork: %w", err)
	}
	return a, nil
}

// GetArtworkByScanCode resolves a scan code to its artwork.
func GetArtworkByScanCode(ctx context.Context, db *sql.DB, code string) (*model.Artwork, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty scan code: %w", ErrNotFound)
	}

	a, err := scanArtwork(db.QueryRowContext(ctx,
		`SELECT `+artworkColumns+` FROM artworks a WHERE a.scan_code = ?`, code,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan code %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving scan code: %w", err)
	}
	return a, nil
}

// ListArtworks returns all artworks in registration order.
func ListArtworks(ctx context.Context, db *sql.DB) ([]model.Artwork, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+artworkColumns+` FROM artworks a ORDER BY a.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing artworks: %w", err)
	}
	defer rows.Close()

	return scanArtworks(rows)
}

// ListOwnedArtworks returns the artworks a user currently owns.
func ListOwnedArtworks(ctx context.Context, db *sql.DB, userID int64) ([]model.Artwork, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+artworkColumns+`
		 FROM ownership_records o
		 JOIN artworks a ON a.id = o.artwork_id
		 WHERE o.owner_id = ? AND o.is_current = 1
		 ORDER BY a.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing owned artworks: %w", err)
	}
	defer rows.Close()

	return scanArtworks(rows)
}

// AssignScanCode gives an artwork a freshly generated scan code, retrying
// with a new code if the generated one is already taken.
func AssignScanCode(ctx context.Context, db *sql.DB, gen codes.Generator, id int64) (*model.Artwork, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		err := setScanCode(ctx, db, id, gen.ScanCode())
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return GetArtwork(ctx, db, id)
	}
	return nil, fmt.Errorf("assigning scan code after %d attempts: %w", maxCodeAttempts, ErrConflict)
}

// SetScanCode assigns a caller-chosen scan code, such as one pre-printed on
// a label.
func SetScanCode(ctx context.Context, db *sql.DB, id int64, code string) (*model.Artwork, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: scan code required", ErrValidation)
	}
	if err := setScanCode(ctx, db, id, code); err != nil {
		return nil, err
	}
	return GetArtwork(ctx, db, id)
}

// setScanCode sets the scan code only if none is assigned yet.
func setScanCode(ctx context.Context, db *sql.DB, id int64, code string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE artworks SET scan_code = ? WHERE id = ? AND scan_code IS NULL`,
		code, id,
	)
	if isUniqueViolation(err, "artworks.scan_code") {
		return fmt.Errorf("scan code %q already in use: %w", code, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("setting scan code: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting scan code: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := GetArtwork(ctx, db, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: artwork %d already has a scan code", ErrInvalidState, id)
}

// SetArtworkVerified sets or clears an artwork's verification flag.
func SetArtworkVerified(ctx context.Context, db *sql.DB, id int64, verified bool) (*model.Artwork, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE artworks SET verified = ? WHERE id = ?`, verified, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating artwork verification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating artwork verification: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("artwork %d: %w", id, ErrNotFound)
	}
	return GetArtwork(ctx, db, id)
}

// artworkExists returns ErrNotFound if the artwork does not exist.
func artworkExists(ctx context.Context, q queryer, id int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM artworks WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("artwork %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking artwork: %w", err)
	}
	return nil
}

func scanArtwork(row rowScanner) (*model.Artwork, error) {
	a := &model.Artwork{}
	var year sql.NullInt64
	var medium, dimensions, description, imageURL, scanCode sql.NullString
	if err := row.Scan(&a.ID, &a.Title, &a.Artist, &year, &medium, &dimensions, &description,
		&imageURL, &scanCode, &a.Verified, &a.CreatedAt); err != nil {
		return nil, err
	}
	if year.Valid {
		y := int(year.Int64)
		a.Year = &y
	}
	a.Medium = medium.String
	a.Dimensions = dimensions.String
	a.Description = description.String
	a.ImageURL = imageURL.String
	a.ScanCode = scanCode.String
	return a, nil
}

func scanArtworks(rows *sql.Rows) ([]model.Artwork, error) {
	var artworks []model.Artwork
	for rows.Next() {
		a, err := scanArtwork(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artwork: %w", err)
		}
		artworks = append(artworks, *a)
	}
	return artworks, rows.Err()
}
