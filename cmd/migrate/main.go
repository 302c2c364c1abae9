package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"khamsat_bot/internal/config"
	"khamsat_bot/internal/model"
	"khamsat_bot/internal/storage"
	"khamsat_bot/migrations"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to sqlite database")
	adminID := flag.String("admin", os.Getenv("ADMIN_CHAT_ID"), "admin chat ID used when importing the single-user state layout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	switch cmd {
	case "import":
		if len(args) < 2 {
			log.Fatal("usage: migrate import <state.json>")
		}
		if err := importState(*dbPath, args[1], *adminID); err != nil {
			log.Fatalf("import: %v", err)
		}
		return
	case "export":
		if err := exportState(*dbPath); err != nil {
			log.Fatalf("export: %v", err)
		}
		return
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] [-admin id] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up              Migrate to the latest version")
	fmt.Fprintln(os.Stderr, "  up-one          Migrate one version up")
	fmt.Fprintln(os.Stderr, "  down            Roll back one version")
	fmt.Fprintln(os.Stderr, "  status          Show migration status")
	fmt.Fprintln(os.Stderr, "  version         Show current version")
	fmt.Fprintln(os.Stderr, "  reset           Roll back all migrations")
	fmt.Fprintln(os.Stderr, "  import <file>   Load a JSON state file (monitoring flag, seen items, preferences)")
	fmt.Fprintln(os.Stderr, "  export          Print the current state as JSON")
}

func importState(dbPath, file, rawAdmin string) error {
	data, err := os.ReadFile(file) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	var state model.State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode %s: %w", file, err)
	}

	if state.SelectedCategories != nil && state.UserCategories == nil {
		if rawAdmin == "" {
			return fmt.Errorf("state uses the single-user layout; pass -admin or set ADMIN_CHAT_ID")
		}
		id, err := strconv.ParseInt(rawAdmin, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid admin chat ID %q: %w", rawAdmin, err)
		}
		state.UpgradeLegacy(id)
		log.Printf("converted single-user preferences to chat %d", id)
	}

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.ImportState(context.Background(), &state); err != nil {
		return err
	}
	log.Printf("imported %d seen items and %d preferences", len(state.LastSentIDs), len(state.UserCategories))
	return nil
}

func exportState(dbPath string) error {
	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	state, err := store.ExportState(context.Background())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(state)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
