package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "postbot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	stores := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "last_index.txt")},
		{Driver: "sqlite", Path: filepath.Join(dir, "cursor.db")},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		stores[cfg.Driver] = st
	}
	return stores
}

func TestStoreDefaultsToZeroThenRoundTrips(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			v, err := st.Get(ctx)
			if err != nil || v != 0 {
				t.Fatalf("fresh Get = (%d, %v), want (0, nil)", v, err)
			}
			for _, want := range []uint64{1, 2, 41, 1 << 40} {
				if err := st.Set(ctx, want); err != nil {
					t.Fatalf("Set(%d): %v", want, err)
				}
				got, err := st.Get(ctx)
				if err != nil || got != want {
					t.Fatalf("Get = (%d, %v), want %d", got, err, want)
				}
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "last_index.txt")
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, 7); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(b)) != "7" {
		t.Fatalf("file content = %q, want 7", b)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := st2.Get(ctx); v != 7 {
		t.Fatalf("reopened Get = %d, want 7", v)
	}
}

func TestFileStoreGarbageIsZero(t *testing.T) {
	ctx := context.Background()
	for _, body := range []string{"not-a-number", "-3", "12abc", "", "   \n"} {
		path := filepath.Join(t.TempDir(), "last_index.txt")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		st, err := Open(Config{Path: path}, logx.Nop())
		if err != nil {
			t.Fatal(err)
		}
		v, err := st.Get(ctx)
		if err != nil || v != 0 {
			t.Fatalf("Get(%q) = (%d, %v), want (0, nil)", body, v, err)
		}
	}
}

func TestSQLiteStoreGarbageIsZero(t *testing.T) {
	ctx := context.Background()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "c.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	db := st.(*sqliteStore).db
	if _, err := db.Exec(`INSERT INTO cursor(name, value, updated_at) VALUES(?, 'garbage', '')`, cursorKey); err != nil {
		t.Fatal(err)
	}
	v, err := st.Get(ctx)
	if err != nil || v != 0 {
		t.Fatalf("Get = (%d, %v), want (0, nil)", v, err)
	}
}

func TestFileStoreSetFailureIsPersistError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "last_index.txt")
	st, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// A directory squatting on the temp name makes the write fail.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatal(err)
	}
	err = st.Set(context.Background(), 3)
	var pe *PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PersistError", err)
	}
	if pe.Value != 3 || pe.Driver != "file" {
		t.Fatalf("unexpected PersistError: %+v", pe)
	}
	if v, _ := st.Get(context.Background()); v != 0 {
		t.Fatalf("failed Set must leave old value, got %d", v)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
