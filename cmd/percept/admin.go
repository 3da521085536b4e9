package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/percept-io/percept/internal/adapter/postgres"
	"github.com/percept-io/percept/internal/config"
	"github.com/percept-io/percept/internal/service"
)

// runAdmin dispatches admin subcommands (create-key, import-key,
// list-keys, revoke-key).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-key":
		return runAdminCreateKey(args[1:])
	case "import-key":
		return runAdminImportKey(args[1:])
	case "list-keys":
		return runAdminListKeys(args[1:])
	case "revoke-key":
		return runAdminRevokeKey(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: percept admin <command> [options]

Commands:
  create-key    Mint a new API key (plaintext printed once)
  import-key    Store a pre-agreed secret as an API key
  list-keys     List all API keys
  revoke-key    Revoke an API key by ID
  help          Show this help message

Examples:
  percept admin create-key --name ci-pipeline
  percept admin import-key --name partner-a
  percept admin list-keys
  percept admin revoke-key --id 3f2a1b9c
`)
}

func loadAdminDeps() (*service.AuthService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(store, cfg.Auth)

	cleanup := func() {
		pool.Close()
	}
	return authSvc, cleanup, nil
}

func runAdminCreateKey(args []string) error {
	fs := flag.NewFlagSet("create-key", flag.ContinueOnError)
	name := fs.String("name", "", "key name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	key, plaintext, err := authSvc.CreateKey(context.Background(), *name)
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Key created: %s (id=%s)\n", key.Name, key.ID)
	fmt.Fprintln(os.Stderr, "Store this key now; it cannot be recovered later:")
	fmt.Println(plaintext)
	return nil
}

func runAdminImportKey(args []string) error {
	fs := flag.NewFlagSet("import-key", flag.ContinueOnError)
	name := fs.String("name", "", "key name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	secret, err := promptSecret("Secret: ")
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	confirm, err := promptSecret("Confirm secret: ")
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	if secret != confirm {
		return fmt.Errorf("secrets do not match")
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	key, plaintext, err := authSvc.ImportKey(context.Background(), *name, secret)
	if err != nil {
		return fmt.Errorf("import key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Key imported: %s (id=%s)\n", key.Name, key.ID)
	fmt.Println(plaintext)
	return nil
}

func runAdminListKeys(args []string) error {
	fs := flag.NewFlagSet("list-keys", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	keys, err := authSvc.ListKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No keys found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCREATED\tACTIVE")
	for i := range keys {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n",
			keys[i].ID, keys[i].Name, keys[i].CreatedAt.Format("2006-01-02 15:04"), keys[i].Active())
	}
	return w.Flush()
}

func runAdminRevokeKey(args []string) error {
	fs := flag.NewFlagSet("revoke-key", flag.ContinueOnError)
	id := fs.String("id", "", "key ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := authSvc.RevokeKey(context.Background(), *id); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Key revoked: %s\n", *id)
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
