package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/provenance/internal/db"
	"github.com/erazemk/provenance/internal/model"
)

func TestRegisterArtwork(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	year := 2021
	a, err := RegisterArtwork(ctx, database, model.ArtworkFields{
		Title:  "  Digital Harmony ",
		Artist: "Marina Chen",
		Year:   &year,
		Medium: "Digital print",
	})
	if err != nil {
		t.Fatalf("RegisterArtwork: %v", err)
	}
	if a.Title != "Digital Harmony" {
		t.Errorf("expected trimmed title, got %q", a.Title)
	}
	if a.Year == nil || *a.Year != 2021 {
		t.Errorf("expected year 2021, got %v", a.Year)
	}
	if a.ScanCode != "" {
		t.Errorf("expected no scan code, got %q", a.ScanCode)
	}
	if a.Verified {
		t.Error("expected unverified artwork")
	}
}

func TestRegisterArtworkValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	zero := 0
	tests := []struct {
		name   string
		fields model.ArtworkFields
	}{
		{"missing title", model.ArtworkFields{Artist: "A"}},
		{"missing artist", model.ArtworkFields{Title: "T"}},
		{"bad year", model.ArtworkFields{Title: "T", Artist: "A", Year: &zero}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RegisterArtwork(ctx, database, tt.fields)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}

	if n := countRows(t, database, `SELECT COUNT(*) FROM artworks`); n != 0 {
		t.Errorf("expected no artworks, got %d", n)
	}
}

func TestRegisterArtworkWithOwner(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	artist := mustUser(t, database, "marina")

	a, o, err := RegisterArtworkWithOwner(ctx, database, model.ArtworkFields{Title: "Digital Harmony", Artist: "Marina Chen"},
		&model.NewOwner{OwnerID: artist.ID, OwnerType: model.OwnerTypeArtist})
	if err != nil {
		t.Fatalf("RegisterArtworkWithOwner: %v", err)
	}
	if o == nil || o.ArtworkID != a.ID || o.OwnerID != artist.ID || !o.IsCurrent {
		t.Fatalf("unexpected first owner: %+v", o)
	}

	current, err := CurrentOwner(ctx, database, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current == nil || current.ID != o.ID {
		t.Errorf("expected current owner %d, got %+v", o.ID, current)
	}
}

func TestRegisterArtworkWithOwnerRollsBack(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	artist := mustUser(t, database, "marina")
	fields := model.ArtworkFields{Title: "Digital Harmony", Artist: "Marina Chen"}

	tests := []struct {
		name  string
		owner model.NewOwner
		want  error
	}{
		{"unknown owner", model.NewOwner{OwnerID: 9999, OwnerType: model.OwnerTypeArtist}, ErrNotFound},
		{"missing owner type", model.NewOwner{OwnerID: artist.ID}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := RegisterArtworkWithOwner(ctx, database, fields, &tt.owner)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if n := countRows(t, database, `SELECT COUNT(*) FROM artworks`); n != 0 {
				t.Errorf("expected no artwork after failed create, got %d", n)
			}
			if n := countRows(t, database, `SELECT COUNT(*) FROM ownership_records`); n != 0 {
				t.Errorf("expected no ownership records, got %d", n)
			}
		})
	}
}

func TestGetArtworkNotFound(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := GetArtwork(context.Background(), database, 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignScanCodeResolves(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := mustArtwork(t, database, "Digital Harmony", "Marina Chen")

	assigned, err := AssignScanCode(ctx, database, &sequentialCodes{}, a.ID)
	if err != nil {
		t.Fatalf("AssignScanCode: %v", err)
	}
	if assigned.ScanCode == "" {
		t.Fatal("expected scan code to be assigned")
	}

	got, err := GetArtworkByScanCode(ctx, database, assigned.ScanCode)
	if err != nil {
		t.Fatalf("GetArtworkByScanCode: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("expected artwork %d, got %d", a.ID, got.ID)
	}

	if _, err := GetArtworkByScanCode(ctx, database, "ART-NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown code, got %v", err)
	}
	if _, err := GetArtworkByScanCode(ctx, database, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty code, got %v", err)
	}
}

func TestAssignScanCodeRetriesCollision(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first := mustArtwork(t, database, "First", "A")
	second := mustArtwork(t, database, "Second", "A")

	gen := &fixedCodes{codes: []string{"ART-DUP", "ART-DUP", "ART-FRESH"}}
	if _, err := AssignScanCode(ctx, database, gen, first.ID); err != nil {
		t.Fatalf("AssignScanCode first: %v", err)
	}

	got, err := AssignScanCode(ctx, database, gen, second.ID)
	if err != nil {
		t.Fatalf("AssignScanCode second: %v", err)
	}
	if got.ScanCode != "ART-FRESH" {
		t.Errorf("expected retry to use ART-FRESH, got %q", got.ScanCode)
	}
}

func TestAssignScanCodeGivesUp(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first := mustArtwork(t, database, "First", "A")
	second := mustArtwork(t, database, "Second", "A")

	gen := &fixedCodes{codes: []string{"ART-DUP"}}
	if _, err := AssignScanCode(ctx, database, gen, first.ID); err != nil {
		t.Fatal(err)
	}

	_, err := AssignScanCode(ctx, database, gen, second.ID)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestSetScanCode(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := mustArtwork(t, database, "Labelled", "A")
	b := mustArtwork(t, database, "Other", "A")

	if _, err := SetScanCode(ctx, database, a.ID, " "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank code, got %v", err)
	}

	got, err := SetScanCode(ctx, database, a.ID, "LABEL-001")
	if err != nil {
		t.Fatalf("SetScanCode: %v", err)
	}
	if got.ScanCode != "LABEL-001" {
		t.Errorf("expected LABEL-001, got %q", got.ScanCode)
	}

	if _, err := SetScanCode(ctx, database, a.ID, "LABEL-002"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reassigning: expected ErrInvalidState, got %v", err)
	}
	if _, err := SetScanCode(ctx, database, b.ID, "LABEL-001"); !errors.Is(err, ErrConflict) {
		t.Errorf("taken code: expected ErrConflict, got %v", err)
	}
	if _, err := SetScanCode(ctx, database, 999, "LABEL-003"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing artwork: expected ErrNotFound, got %v", err)
	}
}

func TestSetArtworkVerified(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a := mustArtwork(t, database, "Verify me", "A")

	got, err := SetArtworkVerified(ctx, database, a.ID, true)
	if err != nil {
		t.Fatalf("SetArtworkVerified: %v", err)
	}
	if !got.Verified {
		t.Error("expected artwork to be verified")
	}

	if _, err := SetArtworkVerified(ctx, database, 999, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListOwnedArtworks(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	x := mustUser(t, database, "x")
	y := mustUser(t, database, "y")
	a := mustArtwork(t, database, "A", "Artist")
	b := mustArtwork(t, database, "B", "Artist")
	mustArtwork(t, database, "Unowned", "Artist")

	mustOwn(t, database, a.ID, x.ID)
	mustOwn(t, database, b.ID, x.ID)
	mustOwn(t, database, b.ID, y.ID)

	owned, err := ListOwnedArtworks(ctx, database, x.ID)
	if err != nil {
		t.Fatalf("ListOwnedArtworks: %v", err)
	}
	if len(owned) != 1 || owned[0].ID != a.ID {
		t.Errorf("expected only artwork %d for x, got %+v", a.ID, owned)
	}

	all, err := ListArtworks(ctx, database)
	if err != nil {
		t.Fatalf("ListArtworks: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 artworks, got %d", len(all))
	}
}
