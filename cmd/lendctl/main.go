package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lendledger/config"
	"lendledger/crypto"
	"lendledger/gateway/middleware"
	"lendledger/native/lending"
	"lendledger/services/lendingd/archive"
	"lendledger/services/lendingd/export"
	"lendledger/storage"
)

const (
	keygenCommand       = "keygen"
	ownerCommand        = "owner"
	tokenCommand        = "token"
	exportLoansCommand  = "export-loans"
	exportEventsCommand = "export-events"

	defaultConfig  = "./config.toml"
	defaultPassEnv = "LENDINGD_JWT_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	case ownerCommand:
		err = runOwner(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case exportLoansCommand:
		err = runExportLoans(os.Args[2:], os.Stdout)
	case exportEventsCommand:
		err = runExportEvents(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ExitOnError)
	keyPath := fs.String("out", "", "Write the private key to this file instead of stdout")
	fs.Parse(args)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	encoded := hex.EncodeToString(key.Bytes())
	if *keyPath != "" {
		if err := os.MkdirAll(filepath.Dir(*keyPath), 0o700); err != nil {
			return err
		}
		if err := os.WriteFile(*keyPath, []byte(encoded+"\n"), 0o600); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "key:     %s\n", encoded)
	}
	fmt.Fprintf(out, "address: %s\n", key.PubKey().Address())
	return nil
}

func runOwner(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(ownerCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledger config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	key, err := cfg.LoadOwnerKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, key.PubKey().Address())
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ExitOnError)
	subject := fs.String("subject", "", "Address the token authenticates")
	secretEnv := fs.String("secret-env", defaultPassEnv, "Environment variable containing the HMAC secret")
	issuer := fs.String("issuer", "lendingd", "Token issuer")
	audience := fs.String("audience", "", "Token audience")
	admin := fs.Bool("admin", false, "Grant the admin scope")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	fs.Parse(args)

	addr, err := crypto.DecodeAddress(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	secret, ok := os.LookupEnv(*secretEnv)
	if !ok || strings.TrimSpace(secret) == "" {
		return fmt.Errorf("environment variable %s is not set", *secretEnv)
	}
	scopes := []string{middleware.ScopeWrite}
	if *admin {
		scopes = append(scopes, middleware.ScopeAdmin)
	}
	token, err := middleware.IssueToken(strings.TrimSpace(secret), addr, *issuer, *audience, scopes, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// runExportLoans reads the ledger directly. lendingd must be stopped since
// LevelDB holds an exclusive lock on the data directory.
func runExportLoans(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportLoansCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the ledger config file")
	format := fs.String("format", "csv", "Output format: csv or parquet")
	outPath := fs.String("out", "", "Output file (required for parquet)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return err
	}
	defer db.Close()

	engine := lending.NewEngine(cfg.Lending.Params())
	engine.SetStorage(db)
	loans, err := engine.GetLoans(1, 0)
	if err != nil {
		return err
	}

	switch strings.ToLower(*format) {
	case "csv":
		if *outPath == "" {
			return export.WriteLoansCSV(out, loans)
		}
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return export.WriteLoansCSV(f, loans)
	case "parquet":
		if *outPath == "" {
			return fmt.Errorf("parquet export requires -out")
		}
		if err := export.WriteLoansParquet(*outPath, loans); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d loans to %s\n", len(loans), *outPath)
		return nil
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func runExportEvents(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportEventsCommand, flag.ExitOnError)
	driver := fs.String("driver", "sqlite", "Archive driver: sqlite or postgres")
	dsn := fs.String("dsn", "./lend-data/events.db", "Archive DSN")
	after := fs.Uint64("after", 0, "Only export events with a sequence number above this")
	limit := fs.Int("limit", 10000, "Maximum number of events")
	loanID := fs.Uint64("loan", 0, "Restrict to one loan")
	fs.Parse(args)

	arch, err := archive.Open(*driver, *dsn, nil)
	if err != nil {
		return err
	}
	defer arch.Close()

	ctx := context.Background()
	var records []archive.EventRecord
	if *loanID != 0 {
		records, err = arch.ByLoan(ctx, *loanID)
	} else {
		records, err = arch.Since(ctx, *after, *limit)
	}
	if err != nil {
		return err
	}
	return export.WriteEventsCSV(out, records)
}

func usage() {
	fmt.Println("lendctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Printf("  %s          Generate an owner key\n", keygenCommand)
	fmt.Printf("  %s           Print the owner address for a config\n", ownerCommand)
	fmt.Printf("  %s           Issue a lendingd bearer token\n", tokenCommand)
	fmt.Printf("  %s    Dump all loans as csv or parquet\n", exportLoansCommand)
	fmt.Printf("  %s   Dump archived ledger events as csv\n", exportEventsCommand)
}
