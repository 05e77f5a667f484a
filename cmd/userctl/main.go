// userctl provisions accounts and maintains the shared database file. It is
// the only writer of the users table; the API and worker only read it.
//
// Usage:
//
//	userctl init
//	userctl create -username alice -apikey k-123 [-quota 50]
//	userctl update-key -username alice -apikey k-456
//	userctl quota -apikey k-456 -quota 100
//	userctl delete -username alice
//	userctl list
//	userctl alter -table history -add-column note -type TEXT
//	userctl alter -table history -drop-column note
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"happysd/internal/infra"
	"happysd/internal/store"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		exitWithError(errors.New("usage: userctl <init|create|update-key|quota|delete|list|alter> [flags]"))
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "userctl").Logger()

	db, err := store.Open(store.Options{
		DBPath:    cfg.DBPath,
		LockPath:  cfg.LockPath,
		ImageDir:  cfg.ImageDir,
		InlineMax: cfg.InlineImageMax,
		Logger:    logger,
	})
	if err != nil {
		exitWithError(fmt.Errorf("failed to open database: %w", err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch command {
	case "init":
		// Open already applied the schema.
		fmt.Printf("database %s initialized\n", cfg.DBPath)

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		username := fs.String("username", "", "account name")
		apikey := fs.String("apikey", "", "access key for the account")
		quota := fs.Int("quota", 0, "pending-job quota (<=0 uses the server default)")
		parse(fs, args)
		requireNonEmpty("-username", *username)
		requireNonEmpty("-apikey", *apikey)
		if err := db.CreateUser(ctx, *username, *apikey); err != nil {
			exitWithError(err)
		}
		if *quota > 0 {
			if err := db.UpdateQuota(ctx, *apikey, *quota); err != nil {
				exitWithError(err)
			}
		}
		fmt.Printf("user %s created\n", *username)

	case "update-key":
		fs := flag.NewFlagSet("update-key", flag.ExitOnError)
		username := fs.String("username", "", "account name")
		apikey := fs.String("apikey", "", "new access key")
		parse(fs, args)
		requireNonEmpty("-username", *username)
		requireNonEmpty("-apikey", *apikey)
		if err := db.UpdateUserKey(ctx, *username, *apikey); err != nil {
			exitWithError(err)
		}
		fmt.Printf("key for %s updated\n", *username)

	case "quota":
		fs := flag.NewFlagSet("quota", flag.ExitOnError)
		apikey := fs.String("apikey", "", "access key of the account")
		quota := fs.Int("quota", 0, "pending-job quota")
		parse(fs, args)
		requireNonEmpty("-apikey", *apikey)
		if err := db.UpdateQuota(ctx, *apikey, *quota); err != nil {
			exitWithError(err)
		}
		fmt.Printf("quota set to %d\n", *quota)

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		username := fs.String("username", "", "account name")
		parse(fs, args)
		requireNonEmpty("-username", *username)
		removed, err := db.DeleteUser(ctx, *username)
		if err != nil {
			exitWithError(err)
		}
		if !removed {
			exitWithError(fmt.Errorf("no user named %s", *username))
		}
		fmt.Printf("user %s deleted\n", *username)

	case "list":
		accounts, err := db.ListUsers(ctx)
		if err != nil {
			exitWithError(err)
		}
		for _, acct := range accounts {
			fmt.Printf("%s\t%s\tquota=%d\n", acct.Username, acct.APIKey, acct.Quota)
		}

	case "alter":
		fs := flag.NewFlagSet("alter", flag.ExitOnError)
		table := fs.String("table", "", "table to alter (users or history)")
		addColumn := fs.String("add-column", "", "column to add")
		colType := fs.String("type", "TEXT", "data type for -add-column")
		dropColumn := fs.String("drop-column", "", "column to drop")
		parse(fs, args)
		requireNonEmpty("-table", *table)
		switch {
		case *addColumn != "":
			if err := db.AddColumn(ctx, *table, *addColumn, *colType); err != nil {
				exitWithError(err)
			}
			fmt.Printf("column %s added to %s\n", *addColumn, *table)
		case *dropColumn != "":
			if err := db.DropColumn(ctx, *table, *dropColumn); err != nil {
				exitWithError(err)
			}
			fmt.Printf("column %s dropped from %s\n", *dropColumn, *table)
		default:
			exitWithError(errors.New("alter needs -add-column or -drop-column"))
		}

	default:
		exitWithError(fmt.Errorf("unknown command %q", command))
	}
}

func parse(fs *flag.FlagSet, args []string) {
	_ = fs.Parse(args)
}

func requireNonEmpty(name, value string) {
	if strings.TrimSpace(value) == "" {
		exitWithError(fmt.Errorf("%s is required", name))
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "userctl:", err)
	os.Exit(1)
}
