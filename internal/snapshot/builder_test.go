package snapshot

import (
	"testing"
	"time"

	"volspike/internal/store"
)

func seeded() *store.Store {
	s := store.New()
	s.UpsertTicker("BTCUSDT", map[string]any{"c": "50000", "v": "900000000", "P": "2.5"})
	s.UpsertTicker("ETHUSDT", map[string]any{"c": "3000", "v": "400000000", "P": "-1.2"})
	s.UpsertTicker("DOGEUSDT", map[string]any{"c": "0.1", "v": "500000", "P": "0.4"})
	s.UpsertTicker("BTCBUSD", map[string]any{"c": "50000", "v": "800000000", "P": "2.5"})
	s.UpsertFunding("BTCUSDT", map[string]any{"r": "0.0001"})
	return s
}

func TestBuildFiltersAndSorts(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	rows := Build(seeded(), nil, DefaultVolumeFloor, now)

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (DOGEUSDT under floor, BTCBUSD wrong quote)", len(rows))
	}
	if rows[0].Symbol != "BTCUSDT" || rows[1].Symbol != "ETHUSDT" {
		t.Errorf("sort order = %s, %s; want BTCUSDT first by volume", rows[0].Symbol, rows[1].Symbol)
	}
	if rows[0].Price != 50000 || rows[0].Change24h != 2.5 {
		t.Errorf("BTCUSDT row = %+v", rows[0])
	}
	if rows[0].FundingRate != 0.0001 {
		t.Errorf("BTCUSDT funding = %v, want 0.0001", rows[0].FundingRate)
	}
	if rows[1].FundingRate != 0 {
		t.Errorf("ETHUSDT funding = %v, want 0 when no funding state", rows[1].FundingRate)
	}
	for _, r := range rows {
		if r.Timestamp != now.UnixMilli() {
			t.Errorf("%s timestamp = %d, want %d", r.Symbol, r.Timestamp, now.UnixMilli())
		}
	}
}

func TestBuildAllowlist(t *testing.T) {
	allow := map[string]struct{}{"ETHUSDT": {}}
	rows := Build(seeded(), allow, 0, time.Now())
	if len(rows) != 1 || rows[0].Symbol != "ETHUSDT" {
		t.Fatalf("allowlist filter rows = %+v", rows)
	}
}

func TestBuildEmptyAllowlistPassesAll(t *testing.T) {
	rows := Build(seeded(), map[string]struct{}{}, 0, time.Now())
	if len(rows) != 3 {
		t.Fatalf("empty allowlist rows = %d, want 3 USDT symbols", len(rows))
	}
}

func TestBuildVolumeTieBreak(t *testing.T) {
	s := store.New()
	s.UpsertTicker("BBBUSDT", map[string]any{"c": "1", "v": "100"})
	s.UpsertTicker("AAAUSDT", map[string]any{"c": "1", "v": "100"})
	rows := Build(s, nil, 0, time.Now())
	if len(rows) != 2 || rows[0].Symbol != "AAAUSDT" {
		t.Fatalf("tie-break rows = %+v, want AAAUSDT first", rows)
	}
}

func TestBuildMalformedFields(t *testing.T) {
	s := store.New()
	s.UpsertTicker("XRPUSDT", map[string]any{"c": "not-a-number", "v": 2_000_000.0})
	rows := Build(s, nil, DefaultVolumeFloor, time.Now())
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Price != 0 {
		t.Errorf("malformed price coerced to %v, want 0", rows[0].Price)
	}
}

func TestBuildRestSeededFields(t *testing.T) {
	s := store.New()
	s.UpsertTicker("SOLUSDT", map[string]any{
		"lastPrice":          "150",
		"quoteVolume":        "3000000",
		"priceChangePercent": "5.1",
	})
	s.UpsertFunding("SOLUSDT", map[string]any{"lastFundingRate": "0.0003"})
	rows := Build(s, nil, DefaultVolumeFloor, time.Now())
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Price != 150 || rows[0].Volume24h != 3000000 || rows[0].Change24h != 5.1 {
		t.Errorf("REST-shaped row = %+v", rows[0])
	}
	if rows[0].FundingRate != 0.0003 {
		t.Errorf("REST funding = %v, want 0.0003", rows[0].FundingRate)
	}
}
