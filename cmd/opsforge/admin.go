package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/OpsForge/internal/adapter/postgres"
	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/service"
)

func runMigrate(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		fmt.Println("migrations applied")
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
			steps = n
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, steps); err != nil {
			return err
		}
		fmt.Printf("rolled back %d migration(s)\n", steps)
	case "version":
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		fmt.Println(v)
	default:
		return fmt.Errorf("unknown migrate command: %s", cmd)
	}
	return nil
}

// runHashToken reads a token from the terminal (or --token) and prints the
// bcrypt hash to put in auth.token_hash.
func runHashToken(args []string) error {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	token := fs.String("token", "", "token to hash (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *token == "" {
		t, err := readSecret("API token: ")
		if err != nil {
			return err
		}
		confirm, err := readSecret("Repeat token: ")
		if err != nil {
			return err
		}
		if t != confirm {
			return errors.New("tokens do not match")
		}
		*token = t
	}

	hash, err := service.HashToken(*token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func runIssueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	subject := fs.String("subject", "", "token subject, e.g. the calling pipeline (required)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("--subject is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tok, err := service.NewAuthService(cfg.Auth).IssueToken(*subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func readSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) { //nolint:unconvert // syscall.Stdin is uintptr on windows
		return "", errors.New("stdin is not a terminal; pass --token")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // see above
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
