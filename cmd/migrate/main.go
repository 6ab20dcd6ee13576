package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "FULFILLMENT_POSTGRES_DSN"
)

func main() {
	var (
		direction string
		steps     int
		dsn       string
		verbose   bool
	)

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	flag.BoolVar(&verbose, "v", false, "list every migration in status output")
	flag.Parse()

	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "up", "down", "status":
	default:
		fail("unsupported direction: %s (use up|down|status)", direction)
	}

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv(envPostgresDSN))
	}
	if dsn == "" {
		fail("%s (or -dsn) is required", envPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	switch direction {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			fail("migrate up failed: %v", err)
		}
		printStatus(ctx, os.Stdout, store, "migrate up ok", false)
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			fail("migrate down failed: %v", err)
		}
		printStatus(ctx, os.Stdout, store, "migrate down ok", false)
	case "status":
		printStatus(ctx, os.Stdout, store, "migration status", verbose)
	}
}

func printStatus(ctx context.Context, w io.Writer, store *postgres.Store, title string, verbose bool) {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		fail("migration status failed: %v", err)
	}
	_, _ = fmt.Fprintf(w, "%s: version=%d applied=%d\n", title, version, count)
	if !verbose {
		return
	}

	infos, err := store.Migrations(ctx)
	if err != nil {
		fail("list migrations failed: %v", err)
	}
	writeMigrations(w, infos)
}

func writeMigrations(w io.Writer, infos []postgres.MigrationInfo) {
	for _, info := range infos {
		mark := " "
		if info.Applied {
			mark = "x"
		}
		_, _ = fmt.Fprintf(w, "[%s] %04d %s\n", mark, info.Version, info.Name)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
