package app

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := Config{
		HTTPAddr:                   "127.0.0.1:0",
		StorageMode:                StorageModeMemory,
		OutboxBatchSize:            100,
		OutboxRetryCeiling:         5,
		OutboxPollInterval:         time.Second,
		IdempotencyTTL:             time.Hour,
		IdempotencyCleanupInterval: time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_UnknownStorageMode(t *testing.T) {
	cfg := Config{
		HTTPAddr:    "127.0.0.1:0",
		StorageMode: "invalid-mode",
	}

	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown storage mode")
	}
}

func TestShutdownHelpers_NilSafe(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	shutdownHTTP(nil, logger)
	stopConsumer(nil, logger)
	closeKafkaProducer(nil, logger)
}
