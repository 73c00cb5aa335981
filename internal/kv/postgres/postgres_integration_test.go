package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestSetNXAndExpiry(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ok, err := st.SetNX(ctx, "audio-lock-1", "1000", 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first setnx: ok=%v err=%v", ok, err)
	}
	if ok, _ := st.SetNX(ctx, "audio-lock-1", "2000", time.Second); ok {
		t.Fatalf("second setnx succeeded while the key was live")
	}
	time.Sleep(100 * time.Millisecond)
	if _, found, _ := st.Get(ctx, "audio-lock-1"); found {
		t.Fatalf("expired key still visible")
	}
	if ok, _ := st.SetNX(ctx, "audio-lock-1", "3000", time.Second); !ok {
		t.Fatalf("setnx over expired key failed")
	}
	value, _, _ := st.Get(ctx, "audio-lock-1")
	if value != "3000" {
		t.Fatalf("expected 3000, got %q", value)
	}
}

func TestCompareOperations(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	if err := st.Set(ctx, "senha-senhas-lock", "a", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, _ := st.CompareAndSwap(ctx, "senha-senhas-lock", "x", "b", 0); ok {
		t.Fatalf("cas with wrong old value succeeded")
	}
	if ok, _ := st.CompareAndSwap(ctx, "senha-senhas-lock", "a", "b", 0); !ok {
		t.Fatalf("cas failed")
	}
	if ok, _ := st.CompareAndDelete(ctx, "senha-senhas-lock", "a"); ok {
		t.Fatalf("cad removed a foreign value")
	}
	if ok, _ := st.CompareAndDelete(ctx, "senha-senhas-lock", "b"); !ok {
		t.Fatalf("cad failed")
	}
}

func TestKeysEscapesPrefix(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	for _, key := range []string{"senha-event-2", "senha-event-1", "senhaXevent-3", "other"} {
		if err := st.Set(ctx, key, "{}", time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	keys, err := st.Keys(ctx, "senha-event-")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "senha-event-1" || keys[1] != "senha-event-2" {
		t.Fatalf("unexpected keys %v", keys)
	}

	_ = st.Set(ctx, "gone", "x", time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	removed, err := st.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept row, got %d", removed)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), cleanup
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}
