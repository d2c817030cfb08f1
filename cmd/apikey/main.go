// Command apikey manages the API keys accepted by POST /upload when
// auth.enabled is set.
//
// Usage:
//
//	apikey [-config configs/generator.yaml] create -name "escritorio-sp" [-rate-limit 30] [-expires-in 720h]
//	apikey revoke -key <raw-key>
//	apikey list
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := apikey.EnsureSchema(ctx, db); err != nil {
		slog.Error("failed to prepare api key schema", "error", err)
		os.Exit(1)
	}
	validator := apikey.NewValidator(db)

	switch args[0] {
	case "create":
		err = cmdCreate(ctx, validator, cfg.Auth.RateLimitPerMinute, args[1:])
	case "revoke":
		err = cmdRevoke(ctx, validator, args[1:])
	case "list":
		err = cmdList(ctx, validator)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdCreate(ctx context.Context, v *apikey.Validator, defaultRate int, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "name for the api key")
	rateLimit := fs.Int("rate-limit", defaultRate, "uploads per minute")
	expiresIn := fs.Duration("expires-in", 0, "expiry duration, e.g. 720h (optional)")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	var expiresAt *time.Time
	if *expiresIn > 0 {
		t := time.Now().Add(*expiresIn)
		expiresAt = &t
	}

	key, err := v.CreateKey(ctx, *name, *rateLimit, expiresAt)
	if err != nil {
		return err
	}

	fmt.Println("API key created. It cannot be retrieved again.")
	fmt.Println()
	fmt.Printf("  Key:        %s\n", key)
	fmt.Printf("  Name:       %s\n", *name)
	fmt.Printf("  Rate Limit: %d uploads/min\n", *rateLimit)
	if expiresAt != nil {
		fmt.Printf("  Expires:    %s\n", expiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("  Expires:    never")
	}
	return nil
}

func cmdRevoke(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	key := fs.String("key", "", "raw api key to revoke")
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("-key is required")
	}
	if err := v.RevokeKey(ctx, *key); err != nil {
		return err
	}
	fmt.Println("API key revoked.")
	return nil
}

func cmdList(ctx context.Context, v *apikey.Validator) error {
	keys, err := v.ListKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No active API keys.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE LIMIT\tCREATED\tEXPIRES")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", k.ID, k.Name, k.RateLimit, k.CreatedAt.Format(time.RFC3339), expires)
	}
	tw.Flush()
	fmt.Printf("\nTotal: %d active key(s)\n", len(keys))
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: apikey [-config file] <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  create   Create a new upload key")
	fmt.Fprintln(os.Stderr, "  revoke   Revoke an existing key")
	fmt.Fprintln(os.Stderr, "  list     List active keys")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, `  apikey create -name "escritorio-sp" -rate-limit 30 -expires-in 720h`)
	fmt.Fprintln(os.Stderr, `  apikey revoke -key "td_abc123..."`)
	fmt.Fprintln(os.Stderr, `  apikey list`)
}
