package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"rex/api/internal/store"
	"rex/api/internal/store/storetest"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		t.Skip("DATABASE_URL is not set")
	}
	return dsn
}

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	dsn := getTestDatabaseURL(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b, err := Open(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("open postgres backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackendConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return openTestBackend(t)
	})
}

func TestSchemaIsReentrant(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	if err := ensureSchema(ctx, b.db); err != nil {
		t.Fatalf("second ensureSchema: %v", err)
	}
}

func TestUnknownRoleReadsAsInvalid(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	collection, user := store.NewID(), store.NewID()

	if _, err := b.db.ExecContext(ctx, `
		INSERT INTO roleassignments (collection_id, user_id, role) VALUES ($1, $2, 'Superuser')
	`, collection.String(), user.String()); err != nil {
		t.Fatalf("insert role assignment: %v", err)
	}

	ra, err := b.GetRoleAssignment(ctx, store.GetRoleAssignment{CollectionID: collection, UserID: user})
	if err != nil {
		t.Fatalf("get role assignment: %v", err)
	}
	if ra.Role != store.RoleInvalid {
		t.Fatalf("expected %q, got %q", store.RoleInvalid, ra.Role)
	}
}

func TestFilterArgs(t *testing.T) {
	completed, tag := filterArgs(store.IdeaFilter{})
	if completed.Valid || tag.Valid {
		t.Fatalf("expected null filter arguments, got %+v %+v", completed, tag)
	}

	done, name := false, "x"
	completed, tag = filterArgs(store.IdeaFilter{Completed: &done, Tag: &name})
	if !completed.Valid || completed.Bool || !tag.Valid || tag.String != "x" {
		t.Fatalf("unexpected filter arguments %+v %+v", completed, tag)
	}
}
