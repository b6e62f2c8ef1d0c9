package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/erazemk/provenance/internal/model"
)

// fixedCodes hands out codes from a list, repeating the last one once the
// list is exhausted.
type fixedCodes struct {
	mu    sync.Mutex
	codes []string
	n     int
}

func (f *fixedCodes) next() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.n, len(f.codes)-1)
	f.n++
	return f.codes[i]
}

func (f *fixedCodes) ScanCode() string     { return f.next() }
func (f *fixedCodes) TransferCode() string { return f.next() }

// sequentialCodes never repeats.
type sequentialCodes struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialCodes) next(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-TEST-%04d", prefix, s.n)
}

func (s *sequentialCodes) ScanCode() string     { return s.next("ART") }
func (s *sequentialCodes) TransferCode() string { return s.next("TXN") }

func mustUser(t *testing.T, database *sql.DB, username string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, username+"@example.com", username, "hash", model.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func mustArtwork(t *testing.T, database *sql.DB, title, artist string) *model.Artwork {
	t.Helper()
	a, err := RegisterArtwork(context.Background(), database, model.ArtworkFields{Title: title, Artist: artist})
	if err != nil {
		t.Fatalf("RegisterArtwork(%s): %v", title, err)
	}
	return a
}

func mustOwn(t *testing.T, database *sql.DB, artworkID, ownerID int64) *model.Ownership {
	t.Helper()
	o, err := RecordNewOwner(context.Background(), database, artworkID, model.NewOwner{
		OwnerID:   ownerID,
		OwnerType: model.OwnerTypeArtist,
	})
	if err != nil {
		t.Fatalf("RecordNewOwner: %v", err)
	}
	return o
}

func countRows(t *testing.T, database *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := database.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return n
}
