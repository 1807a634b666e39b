// Package main creates a pre-verified staff or admin account directly in the
// database. The approval workflow only provisions volunteers, so this is how
// the first staff members get a login. A temporary credential is generated
// unless one is passed with -credential, and it is printed once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/volunteer-hub/volunteer-hub/internal/auth"
	"github.com/volunteer-hub/volunteer-hub/internal/config"
	"github.com/volunteer-hub/volunteer-hub/internal/db"
	"github.com/volunteer-hub/volunteer-hub/internal/db/repositories"
	"github.com/volunteer-hub/volunteer-hub/internal/identity"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("create-account failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	email      string
	name       string
	role       string
	credential string
}

// parseOptions reads the flags and rejects anything CreateAccount would
// refuse before a database connection is opened.
func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
	fs.StringVar(&opts.email, "email", "", "account email (required)")
	fs.StringVar(&opts.name, "name", "", "display name")
	fs.StringVar(&opts.role, "role", auth.RoleStaff, "profile role")
	fs.StringVar(&opts.credential, "credential", "", "initial password; generated when empty")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts.email = strings.ToLower(strings.TrimSpace(opts.email))
	opts.name = strings.TrimSpace(opts.name)
	opts.role = strings.TrimSpace(opts.role)
	if opts.email == "" {
		return options{}, errors.New("-email is required")
	}
	if err := validator.New().Var(opts.email, "email"); err != nil {
		return options{}, fmt.Errorf("invalid -email %q", opts.email)
	}
	if !auth.IsKnownRole(opts.role) {
		return options{}, fmt.Errorf("unknown -role %q", opts.role)
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	password := opts.credential
	if password == "" {
		if password, err = auth.GenerateTemporaryCredential(); err != nil {
			return err
		}
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	store := identity.NewStore(repositories.NewIdentityRepository(database))
	acct, err := store.CreateAccount(ctx, identity.NewAccount{
		Email:      opts.email,
		Name:       opts.name,
		Credential: password,
		Role:       opts.role,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created %s account %s (%s)\n", opts.role, acct.Email, acct.ID)
	if opts.credential == "" {
		fmt.Printf("Temporary password: %s\n", password)
	}
	return nil
}
