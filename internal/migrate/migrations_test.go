package migrate

import (
	"context"
	"testing"

	"callfleet/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
	latest, err := Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != 2 {
		t.Fatalf("expected latest migration 2, got %d", latest)
	}
	v, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != latest {
		t.Fatalf("expected version %d, got %d", latest, v)
	}
	for _, table := range []string{"kv", "events"} {
		var name string
		if err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
