// Команда outbox-requeue возвращает запаркованные строки outbox
// (retry_count выше потолка) обратно в polling после ручного разбора.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

func main() {
	var (
		dsn        string
		minRetries int
		dryRun     bool
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: FULFILLMENT_POSTGRES_DSN)")
	flag.IntVar(&minRetries, "min-retries", 5, "requeue rows with retry_count >= this value")
	flag.BoolVar(&dryRun, "dry-run", false, "print backlog stats without requeueing")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("FULFILLMENT_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("FULFILLMENT_POSTGRES_DSN (or -dsn) is required")
	}
	if minRetries <= 0 {
		fail("min-retries must be positive, got %d", minRetries)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	repo := postgres.NewOutboxRepository(store)

	stats, err := repo.Stats(minRetries)
	if err != nil {
		fail("outbox stats failed: %v", err)
	}
	fmt.Printf("outbox backlog: pending=%d parked=%d\n", stats.PendingCount, stats.ParkedCount)

	if dryRun {
		return
	}

	requeued, err := repo.Requeue(minRetries)
	if err != nil {
		fail("requeue failed: %v", err)
	}
	fmt.Printf("requeued %d parked messages (retry_count >= %d)\n", requeued, minRetries)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
