package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/brewloyal/api/internal/config"
	"github.com/brewloyal/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// defaultStaff is seeded for the bootstrap outlet. Passcodes are 4 digits.
var defaultStaff = []struct {
	name     string
	role     string
	passcode string
	outlet   bool
}{
	{name: "Head Office", role: enum.StaffRoleSuperadmin, passcode: "9999", outlet: false},
	{name: "Store Manager", role: enum.StaffRoleManager, passcode: "2468", outlet: true},
	{name: "Barista", role: enum.StaffRoleCrew, passcode: "1357", outlet: true},
}

func main() {
	// CLI flags
	email := flag.String("email", "", "Owner email address")
	password := flag.String("password", "", "Owner password")
	name := flag.String("name", "", "Owner full name")
	outletName := flag.String("outlet", "", "Bootstrap outlet name")
	flag.Parse()

	// Fall back to environment variables
	if *email == "" {
		*email = os.Getenv("SEED_EMAIL")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *name == "" {
		*name = os.Getenv("SEED_NAME")
	}
	if *outletName == "" {
		*outletName = os.Getenv("SEED_OUTLET")
	}

	// Fall back to defaults
	if *email == "" {
		*email = "admin@brewloyal.local"
	}
	if *password == "" {
		*password = "password123"
		log.Println("WARNING: Using default password 'password123'. Change immediately in production!")
	}
	if *name == "" {
		*name = "Admin Brew"
	}
	if *outletName == "" {
		*outletName = "Kemang"
	}

	cfg := config.Load()

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Seed in a transaction: outlet, owner and staff or nothing
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	outletID, err := seedOutlet(ctx, tx, *outletName)
	if err != nil {
		log.Fatalf("Failed to seed outlet: %v", err)
	}

	userID, err := seedOwner(ctx, tx, outletID, *email, *password, *name)
	if err != nil {
		log.Fatalf("Failed to seed owner: %v", err)
	}

	for _, s := range defaultStaff {
		var scope *uuid.UUID
		if s.outlet {
			scope = &outletID
		}
		if err := seedStaff(ctx, tx, scope, s.name, s.role, s.passcode); err != nil {
			log.Fatalf("Failed to seed staff %q: %v", s.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Println("Seed completed successfully")
	log.Printf("Outlet ID: %s", outletID)
	log.Printf("Owner ID: %s", userID)
}

// seedOutlet creates the initial outlet if it doesn't exist.
func seedOutlet(ctx context.Context, tx pgx.Tx, name string) (uuid.UUID, error) {
	var existingID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM outlets WHERE name = $1 LIMIT 1`, name).Scan(&existingID)
	if err == nil {
		log.Printf("Outlet '%s' already exists (ID: %s), skipping", name, existingID)
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check outlet: %w", err)
	}

	var newID uuid.UUID
	err = tx.QueryRow(ctx, `INSERT INTO outlets (name) VALUES ($1) RETURNING id`, name).Scan(&newID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outlet: %w", err)
	}

	log.Printf("Created outlet '%s' (ID: %s)", name, newID)
	return newID, nil
}

// seedOwner creates the owner admin user if it doesn't exist.
func seedOwner(ctx context.Context, tx pgx.Tx, outletID uuid.UUID, email, password, fullName string) (uuid.UUID, error) {
	var existingID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM admin_users WHERE email = $1 LIMIT 1`, email).Scan(&existingID)
	if err == nil {
		log.Printf("User '%s' already exists (ID: %s), skipping", email, existingID)
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	insertSQL := `
		INSERT INTO admin_users (outlet_id, email, hashed_password, full_name, role, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id
	`
	var newID uuid.UUID
	err = tx.QueryRow(ctx, insertSQL, outletID, email, string(hashed), fullName, enum.UserRoleOwner).Scan(&newID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}

	log.Printf("Created owner user '%s' (ID: %s)", email, newID)
	return newID, nil
}

// seedStaff creates a staff passcode if no staff of that name exists in
// the same scope. A nil outletID seeds an outlet-less superadmin.
func seedStaff(ctx context.Context, tx pgx.Tx, outletID *uuid.UUID, name, role, passcode string) error {
	var existingID uuid.UUID
	err := tx.QueryRow(ctx,
		`SELECT id FROM staff_passcodes WHERE staff_name = $1 AND outlet_id IS NOT DISTINCT FROM $2 LIMIT 1`,
		name, outletID,
	).Scan(&existingID)
	if err == nil {
		log.Printf("Staff '%s' already exists (ID: %s), skipping", name, existingID)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check staff: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash passcode: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO staff_passcodes (outlet_id, staff_name, role, passcode_hash) VALUES ($1, $2, $3, $4)`,
		outletID, name, role, string(hashed),
	)
	if err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}

	log.Printf("Created %s staff '%s' with passcode %s", role, name, passcode)
	return nil
}
