package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/provenance/internal/codes"
	"github.com/erazemk/provenance/internal/model"
)

// Redirects are the page locations the QR redirect endpoint sends browsers
// to. "{id}" in Artwork is replaced with the artwork ID.
type Redirects struct {
	Artwork  string
	Register string
}

// DefaultRedirects match the web client's routes.
var DefaultRedirects = Redirects{
	Artwork:  "/artwork/{id}",
	Register: "/register",
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, gen codes.Generator, redirects Redirects) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	artworksHandler := &ArtworksHandler{DB: db, Codes: gen}
	transfersHandler := &TransfersHandler{DB: db, Codes: gen}
	scansHandler := &ScansHandler{DB: db, Redirects: redirects}
	adminHandler := &AdminHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	optionalAuth := OptionalAuth(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireRegistrar := RequireRole(model.RoleRegistrar)

	// Public: account creation and login.
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Artworks: read (public), write (registrar+).
	mux.HandleFunc("GET /api/artworks", artworksHandler.List)
	mux.Handle("POST /api/artworks", authMW(requireRegistrar(http.HandlerFunc(artworksHandler.Create))))
	mux.HandleFunc("GET /api/artworks/{id}", artworksHandler.Get)
	mux.Handle("PUT /api/artworks/{id}/scan-code", authMW(requireRegistrar(http.HandlerFunc(artworksHandler.SetScanCode))))
	mux.Handle("PUT /api/artworks/{id}/verified", authMW(requireAdmin(http.HandlerFunc(artworksHandler.SetVerified))))
	mux.Handle("POST /api/artworks/{id}/owners", authMW(requireRegistrar(http.HandlerFunc(artworksHandler.RecordOwner))))
	mux.Handle("GET /api/artworks/{id}/scans", authMW(requireRegistrar(http.HandlerFunc(scansHandler.List))))

	// The caller's own collection.
	mux.Handle("GET /api/users/me/artworks", authMW(http.HandlerFunc(artworksHandler.Mine)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Scanning: anonymous, attributed to the caller when a token is sent.
	mux.Handle("GET /api/qr/{code}", optionalAuth(http.HandlerFunc(scansHandler.Resolve)))
	mux.Handle("GET /qr/{code}", optionalAuth(http.HandlerFunc(scansHandler.Redirect)))

	// Transfers: open and cancel (owner), review and confirm (code holder).
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("GET /api/transfers", authMW(requireAdmin(http.HandlerFunc(transfersHandler.List))))
	mux.HandleFunc("GET /api/transfers/{code}", transfersHandler.Lookup)
	mux.HandleFunc("POST /api/transfers/{code}/confirm", transfersHandler.Confirm)
	mux.Handle("POST /api/transfers/{code}/cancel", authMW(http.HandlerFunc(transfersHandler.Cancel)))

	// Admin dashboard.
	mux.Handle("GET /api/admin/stats", authMW(requireAdmin(http.HandlerFunc(adminHandler.Stats))))

	return mux
}
