package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/erazemk/provenance/internal/api"
	"github.com/erazemk/provenance/internal/auth"
	"github.com/erazemk/provenance/internal/codes"
	"github.com/erazemk/provenance/internal/config"
	"github.com/erazemk/provenance/internal/db"
	"github.com/erazemk/provenance/internal/logging"
	"github.com/erazemk/provenance/internal/model"
	"github.com/erazemk/provenance/internal/store"
)

const usage = `Usage: provenance [flags]

Flags:
  -c, --config <path>      YAML config file (default: $PROVENANCE_CONFIG)
  -e, --env <path>         .env file with PROVENANCE_* variables (default: .env)
  -d, --db <path>          SQLite database path (default: provenance.sqlite3)
  -a, --addr <host:port>   listen address (default: :8080)
  -u, --user <name>        admin username on first run (default: Admin)
      --email <address>    admin email on first run (default: admin@localhost)
  -l, --log <path>         log file path (default: no file, stdout/stderr only)
      --log-level <level>  debug, info, warn or error (default: info)
  -h, --help               show this help and exit
`

// parseConfig resolves the configuration from args, config file and
// environment. Flags given explicitly on the command line win over every
// other source.
func parseConfig(args []string) (*config.Config, error) {
	fs := pflag.NewFlagSet("provenance", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	configPath := fs.StringP("config", "c", "", "")
	envPath := fs.StringP("env", "e", ".env", "")
	dbPath := fs.StringP("db", "d", "", "")
	addr := fs.StringP("addr", "a", "", "")
	adminUser := fs.StringP("user", "u", "", "")
	adminEmail := fs.String("email", "", "")
	logPath := fs.StringP("log", "l", "", "")
	logLevel := fs.String("log-level", "", "")

	// pflag prints the usage itself for -h and --help.
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if err := config.LoadDotEnv(*envPath); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	overrides := map[string]struct {
		value *string
		field *string
	}{
		"db":        {dbPath, &cfg.Database},
		"addr":      {addr, &cfg.Addr},
		"user":      {adminUser, &cfg.Admin.Username},
		"email":     {adminEmail, &cfg.Admin.Email},
		"log":       {logPath, &cfg.Log},
		"log-level": {logLevel, &cfg.LogLevel},
	}
	for name, o := range overrides {
		if fs.Changed(name) {
			*o.field = *o.value
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel) // checked by Validate
	closeLog, err := logging.Setup(cfg.Log, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(cfg.Database); os.IsNotExist(err) {
		database, password, err := initDatabase(cfg.Database, cfg.Admin)
		if err != nil {
			slog.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		database.Close()

		printInitResult(cfg.Database, cfg.Admin, password)
		fmt.Println()
	}

	// Open database.
	database, err := db.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	slog.Info("database ready", "path", cfg.Database)

	ctx := context.Background()

	// Load JWT secret from database (auto-generated on first run).
	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	if n, err := store.PurgeExpiredTokens(ctx, database, time.Now()); err != nil {
		slog.Error("failed to purge expired tokens", "error", err)
	} else if n > 0 {
		slog.Info("purged expired token revocations", "count", n)
	}

	gen := codes.New(cfg.Codes.ScanPrefix, cfg.Codes.TransferPrefix)
	router := api.NewRouter(database, jwtSecret, gen, api.Redirects{
		Artwork:  cfg.Redirects.Artwork,
		Register: cfg.Redirects.Register,
	})

	handler := api.LoggingMiddleware(router)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing database")
}

// initDatabase creates a new database, ensures the schema, and creates the admin user.
func initDatabase(path string, admin config.AdminConfig) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	fail := func(err error) (*sql.DB, string, error) {
		database.Close()
		os.Remove(path)
		return nil, "", err
	}

	if err := db.EnsureSchema(database); err != nil {
		return fail(fmt.Errorf("ensuring schema: %w", err))
	}

	password, err := generatePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fail(err)
	}

	_, err = store.CreateUser(context.Background(), database, admin.Email, admin.Username, hash, model.RoleAdmin)
	if err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath string, admin config.AdminConfig, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", admin.Username)
	fmt.Printf("  Email:    %s\n", admin.Email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
