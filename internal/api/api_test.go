package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/erazemk/provenance/internal/auth"
	"github.com/erazemk/provenance/internal/db"
	"github.com/erazemk/provenance/internal/model"
	"github.com/erazemk/provenance/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password"
)

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

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	admin  string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret, &sequentialCodes{}, DefaultRedirects)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	env := &testEnv{server: server, db: database}
	createUser(t, env, "admin", model.RoleAdmin)
	env.admin = login(t, env, "admin")
	return env
}

func createUser(t *testing.T, env *testEnv, username, role string) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatal(err)
	}
	user, err := store.CreateUser(context.Background(), env.db, username+"@example.com", username, hash, role)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return user
}

func login(t *testing.T, env *testEnv, username string) string {
	t.Helper()
	resp := do(t, env, "POST", "/api/auth/login", "", map[string]string{"username": username, "password": testPassword})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}
	return loginResp.Token
}

func do(t *testing.T, env *testEnv, method, path, token string, body any) *http.Response {
	t.Helper()
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, env.server.URL+path, bodyReader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		t.Fatalf("expected %d, got %d (%v)", want, resp.StatusCode, body)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp := do(t, env, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, env, "POST", "/api/auth/login", "", map[string]string{"email": "ADMIN@example.com", "password": testPassword})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for login by email, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegisterAndLogout(t *testing.T) {
	env := setupTestServer(t)

	resp := do(t, env, "POST", "/api/auth/register", "", map[string]string{
		"email": "new@example.com", "username": "newbie", "password": "short",
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = do(t, env, "POST", "/api/auth/register", "", map[string]string{
		"email": "new@example.com", "username": "newbie", "password": "long enough",
	})
	expectStatus(t, resp, http.StatusCreated)
	reg := decode[registerResponse](t, resp)
	if reg.User == nil || reg.User.Role != model.RoleUser || reg.Token == "" {
		t.Fatalf("unexpected register response %+v", reg)
	}

	resp = do(t, env, "POST", "/api/auth/register", "", map[string]string{
		"email": "NEW@example.com", "username": "other", "password": "long enough",
	})
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/users/me/artworks", reg.Token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, env, "POST", "/api/auth/logout", reg.Token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/users/me/artworks", reg.Token, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestRoleChecks(t *testing.T) {
	env := setupTestServer(t)
	createUser(t, env, "plain", model.RoleUser)
	token := login(t, env, "plain")

	resp := do(t, env, "POST", "/api/artworks", "", model.ArtworkFields{Title: "T", Artist: "A"})
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = do(t, env, "POST", "/api/artworks", token, model.ArtworkFields{Title: "T", Artist: "A"})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/users", token, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/transfers", token, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestArtworkAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	artist := createUser(t, env, "marina", model.RoleUser)

	resp := do(t, env, "POST", "/api/artworks", env.admin, map[string]any{"artist": "Marina Chen"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = do(t, env, "POST", "/api/artworks", env.admin, map[string]any{
		"title":         "Digital Harmony",
		"artist":        "Marina Chen",
		"initial_owner": map[string]any{"owner_id": 9999, "owner_type": model.OwnerTypeArtist},
	})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
	var stored int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM artworks`).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored != 0 {
		t.Fatalf("expected failed create to store no artwork, got %d", stored)
	}

	resp = do(t, env, "POST", "/api/artworks", env.admin, map[string]any{
		"title":  "Digital Harmony",
		"artist": "Marina Chen",
		"year":   2023,
		"initial_owner": map[string]any{
			"owner_id":   artist.ID,
			"owner_name": "Marina Chen",
			"owner_type": model.OwnerTypeArtist,
		},
	})
	expectStatus(t, resp, http.StatusCreated)
	created := decode[createArtworkResponse](t, resp)
	if created.Owner == nil || created.Owner.OwnerID != artist.ID {
		t.Fatalf("expected initial owner %d, got %+v", artist.ID, created.Owner)
	}
	id := created.Artwork.ID

	resp = do(t, env, "PUT", fmt.Sprintf("/api/artworks/%d/scan-code", id), env.admin, nil)
	expectStatus(t, resp, http.StatusOK)
	artwork := decode[model.Artwork](t, resp)
	if artwork.ScanCode == "" {
		t.Fatal("expected generated scan code")
	}

	resp = do(t, env, "PUT", fmt.Sprintf("/api/artworks/%d/scan-code", id), env.admin, map[string]string{"scan_code": "QR001"})
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/qr/"+artwork.ScanCode, "", nil)
	expectStatus(t, resp, http.StatusOK)
	resolved := decode[resolveResponse](t, resp)
	if resolved.ArtworkID != id {
		t.Errorf("expected artwork %d, got %d", id, resolved.ArtworkID)
	}

	resp = do(t, env, "GET", "/api/qr/ART-UNKNOWN", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = do(t, env, "GET", fmt.Sprintf("/api/artworks/%d/scans", id), env.admin, nil)
	expectStatus(t, resp, http.StatusOK)
	scans := decode[[]model.ScanLogEntry](t, resp)
	if len(scans) != 1 {
		t.Errorf("expected 1 scan, got %d", len(scans))
	}

	resp = do(t, env, "PUT", fmt.Sprintf("/api/artworks/%d/verified", id), env.admin, map[string]bool{"verified": true})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, env, "GET", fmt.Sprintf("/api/artworks/%d", id), "", nil)
	expectStatus(t, resp, http.StatusOK)
	detail := decode[artworkDetail](t, resp)
	if !detail.Artwork.Verified {
		t.Error("expected artwork to be verified")
	}
	if len(detail.Ownerships) != 1 || detail.CurrentOwner == nil || detail.CurrentOwner.OwnerID != artist.ID {
		t.Errorf("unexpected ownership detail %+v", detail)
	}

	resp = do(t, env, "GET", "/api/artworks/999", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/artworks/abc", "", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestQRRedirect(t *testing.T) {
	env := setupTestServer(t)

	a, err := store.RegisterArtwork(context.Background(), env.db, model.ArtworkFields{Title: "T", Artist: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetScanCode(context.Background(), env.db, a.ID, "QR001"); err != nil {
		t.Fatal(err)
	}

	client := env.server.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	tests := []struct {
		code     string
		location string
	}{
		{"QR001", fmt.Sprintf("/artwork/%d", a.ID)},
		{"QR404", "/register"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			resp, err := client.Get(env.server.URL + "/qr/" + tt.code)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusFound {
				t.Fatalf("expected 302, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Location"); got != tt.location {
				t.Errorf("expected redirect to %q, got %q", tt.location, got)
			}
		})
	}

	scans, _ := store.ListScans(context.Background(), env.db, a.ID)
	if len(scans) != 1 {
		t.Errorf("expected 1 logged scan, got %d", len(scans))
	}
}

func TestTransferAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	seller := createUser(t, env, "seller", model.RoleUser)
	buyer := createUser(t, env, "buyer", model.RoleUser)
	sellerToken := login(t, env, "seller")
	buyerToken := login(t, env, "buyer")

	a, _ := store.RegisterArtwork(ctx, env.db, model.ArtworkFields{Title: "T", Artist: "A"})
	if _, err := store.RecordNewOwner(ctx, env.db, a.ID, model.NewOwner{OwnerID: seller.ID, OwnerType: model.OwnerTypeArtist}); err != nil {
		t.Fatal(err)
	}

	// Only the current owner may open a transfer.
	resp := do(t, env, "POST", "/api/transfers", buyerToken, map[string]any{"artwork_id": a.ID, "to_owner_id": buyer.ID})
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = do(t, env, "POST", "/api/transfers", sellerToken, map[string]any{"artwork_id": a.ID, "to_owner_id": buyer.ID})
	expectStatus(t, resp, http.StatusCreated)
	transfer := decode[model.TransferRequest](t, resp)

	resp = do(t, env, "POST", "/api/transfers", sellerToken, map[string]any{"artwork_id": a.ID, "to_owner_email": "x@example.com"})
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/transfers/"+transfer.Code, "", nil)
	expectStatus(t, resp, http.StatusOK)
	detail := decode[model.TransferDetail](t, resp)
	if detail.Transfer.Status != model.TransferStatusPending || detail.CurrentOwner.OwnerID != seller.ID {
		t.Errorf("unexpected lookup %+v", detail)
	}

	resp = do(t, env, "POST", "/api/transfers/"+transfer.Code+"/cancel", buyerToken, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		resp = do(t, env, "POST", "/api/transfers/"+transfer.Code+"/confirm", "", nil)
		expectStatus(t, resp, http.StatusOK)
		confirmed := decode[model.TransferRequest](t, resp)
		if confirmed.Status != model.TransferStatusConfirmed {
			t.Errorf("expected confirmed, got %q", confirmed.Status)
		}
	}

	resp = do(t, env, "POST", "/api/transfers/"+transfer.Code+"/cancel", sellerToken, nil)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/users/me/artworks", buyerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	owned := decode[[]model.Artwork](t, resp)
	if len(owned) != 1 || owned[0].ID != a.ID {
		t.Errorf("expected buyer to own artwork %d, got %+v", a.ID, owned)
	}

	history, _ := store.OwnershipHistory(ctx, env.db, a.ID)
	if len(history) != 2 {
		t.Errorf("expected 2 ownership records, got %d", len(history))
	}

	resp = do(t, env, "GET", "/api/transfers?status=confirmed", env.admin, nil)
	expectStatus(t, resp, http.StatusOK)
	listed := decode[[]model.TransferRequest](t, resp)
	if len(listed) != 1 {
		t.Errorf("expected 1 confirmed transfer, got %d", len(listed))
	}

	resp = do(t, env, "POST", "/api/transfers/TXN-NOPE/confirm", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestEmailInviteClaimedOnRegister(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	seller := createUser(t, env, "seller", model.RoleUser)
	sellerToken := login(t, env, "seller")

	a, _ := store.RegisterArtwork(ctx, env.db, model.ArtworkFields{Title: "T", Artist: "A"})
	store.RecordNewOwner(ctx, env.db, a.ID, model.NewOwner{OwnerID: seller.ID, OwnerType: model.OwnerTypeArtist})

	resp := do(t, env, "POST", "/api/transfers", sellerToken, map[string]any{"artwork_id": a.ID, "to_owner_email": "invitee@example.com"})
	expectStatus(t, resp, http.StatusCreated)
	transfer := decode[model.TransferRequest](t, resp)

	resp = do(t, env, "POST", "/api/transfers/"+transfer.Code+"/confirm", "", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// Knowing the address is not enough to take the invite.
	resp = do(t, env, "POST", "/api/auth/register", "", map[string]any{
		"email": "invitee@example.com", "username": "squatter", "password": "long enough",
	})
	expectStatus(t, resp, http.StatusCreated)
	squat := decode[registerResponse](t, resp)
	if len(squat.Transfers) != 0 {
		t.Fatalf("expected nothing claimed without a transfer code, got %+v", squat.Transfers)
	}
	current, _ := store.CurrentOwner(ctx, env.db, a.ID)
	if current == nil || current.OwnerID != seller.ID {
		t.Fatalf("expected seller to stay owner, got %+v", current)
	}
	resp = do(t, env, "DELETE", fmt.Sprintf("/api/users/%d", squat.User.ID), env.admin, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, env, "POST", "/api/auth/register", "", map[string]any{
		"email": "invitee@example.com", "username": "invitee", "password": "long enough",
		"transfer_codes": []string{transfer.Code},
	})
	expectStatus(t, resp, http.StatusCreated)
	reg := decode[registerResponse](t, resp)
	if len(reg.Transfers) != 1 || reg.Transfers[0].Code != transfer.Code {
		t.Fatalf("expected transfer %s claimed, got %+v", transfer.Code, reg.Transfers)
	}

	current, _ = store.CurrentOwner(ctx, env.db, a.ID)
	if current == nil || current.OwnerID != reg.User.ID {
		t.Errorf("expected invitee to be current owner, got %+v", current)
	}
}

func TestUsersAPI(t *testing.T) {
	env := setupTestServer(t)
	user := createUser(t, env, "someone", model.RoleUser)
	token := login(t, env, "someone")

	resp := do(t, env, "PUT", fmt.Sprintf("/api/users/%d", user.ID), env.admin, map[string]string{"role": model.RoleRegistrar})
	expectStatus(t, resp, http.StatusOK)
	updated := decode[model.User](t, resp)
	if updated.Role != model.RoleRegistrar {
		t.Errorf("expected registrar, got %q", updated.Role)
	}

	resp = do(t, env, "PUT", fmt.Sprintf("/api/users/%d", user.ID), env.admin, map[string]string{"role": "boss"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	// The promotion applies to tokens issued before it.
	resp = do(t, env, "POST", "/api/artworks", token, model.ArtworkFields{Title: "T", Artist: "A"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = do(t, env, "DELETE", fmt.Sprintf("/api/users/%d", user.ID), env.admin, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/users/me/artworks", token, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = do(t, env, "GET", "/api/users", env.admin, nil)
	expectStatus(t, resp, http.StatusOK)
	users := decode[[]model.User](t, resp)
	if len(users) != 1 {
		t.Errorf("expected only admin left, got %d users", len(users))
	}
}

func TestAdminStats(t *testing.T) {
	env := setupTestServer(t)
	store.RegisterArtwork(context.Background(), env.db, model.ArtworkFields{Title: "T", Artist: "A"})

	resp := do(t, env, "GET", "/api/admin/stats", env.admin, nil)
	expectStatus(t, resp, http.StatusOK)
	stats := decode[model.Stats](t, resp)
	if stats.TotalArtworks != 1 {
		t.Errorf("expected 1 artwork, got %d", stats.TotalArtworks)
	}
}
