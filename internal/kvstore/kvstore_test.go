package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"volspike/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	snap := models.Snapshot{
		EmittedAt: 1718450000000,
		Rows: []models.MarketData{
			{Symbol: "BTCUSDT", Price: 50000, Volume24h: 9e8, Timestamp: 1718450000000},
		},
	}
	if err := fs.Set(ctx, KeyLastSnapshot, snap); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got models.Snapshot
	if err := fs.Get(ctx, KeyLastSnapshot, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EmittedAt != snap.EmittedAt || len(got.Rows) != 1 || got.Rows[0].Symbol != "BTCUSDT" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestFileStoreMissingKey(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	var dest models.Snapshot
	if err := fs.Get(context.Background(), "volspike:absent", &dest); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	if err := fs.Set(context.Background(), KeyExchangeInfo, map[string]int{"t": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if strings.ContainsAny(name, ":/") {
		t.Errorf("filename %q not sanitized", name)
	}
	if filepath.Ext(name) != ".json" {
		t.Errorf("filename %q missing .json extension", name)
	}
}

func TestFileStoreNoPartialWrites(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := fs.Set(ctx, "volspike:lastSnapshot", models.Snapshot{EmittedAt: int64(i)}); err != nil {
			t.Fatalf("Set #%d: %v", i, err)
		}
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	var dest models.AllowlistEntry
	if err := m.Get(ctx, KeyExchangeInfo, &dest); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	entry := models.AllowlistEntry{FetchedAt: 1718450000000, Symbols: []string{"BTCUSDT"}}
	if err := m.Set(ctx, KeyExchangeInfo, entry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Get(ctx, KeyExchangeInfo, &dest); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(dest.Symbols) != 1 || dest.Symbols[0] != "BTCUSDT" {
		t.Errorf("round trip = %+v", dest)
	}
}
