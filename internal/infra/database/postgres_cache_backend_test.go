package database

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"offline_sync_agent/internal/infra/cachestore"
)

// Runs only against a real server: TEST_DATABASE_URL=postgres://... go test ./internal/infra/database
func TestPostgresCacheBackend(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := NewPostgresConnection(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	backend := NewPostgresCacheBackend(db, 16)
	if err := backend.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	t.Cleanup(func() { _ = backend.DeleteMany(ctx, []string{"pg_test_a", "pg_test_b"}) })

	if err := backend.Put(ctx, "pg_test_a", []byte("one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := backend.Put(ctx, "pg_test_a", []byte("two")); err != nil {
		t.Fatalf("Put (update) failed: %v", err)
	}
	got, err := backend.Get(ctx, "pg_test_a")
	if err != nil || string(got) != "two" {
		t.Fatalf("Expected last write to win, got %q (%v)", got, err)
	}

	if err := backend.Put(ctx, "pg_test_b", []byte(strings.Repeat("x", 17))); !errors.Is(err, cachestore.ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}

	if err := backend.DeleteMany(ctx, []string{"pg_test_a"}); err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if _, err := backend.Get(ctx, "pg_test_a"); !errors.Is(err, cachestore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
