package store

import "testing"

func TestLastWriteWins(t *testing.T) {
	s := New()

	s.UpsertTicker("BTCUSDT", map[string]any{"c": "100"})
	s.UpsertTicker("BTCUSDT", map[string]any{"c": "200"})
	s.UpsertTicker("ETHUSDT", map[string]any{"c": "10"})

	if s.TickerCount() != 2 {
		t.Fatalf("TickerCount = %d, want 2", s.TickerCount())
	}
	if got := s.Tickers()["BTCUSDT"]["c"]; got != "200" {
		t.Errorf("BTCUSDT price = %v, want last write 200", got)
	}
}

func TestFundingLookup(t *testing.T) {
	s := New()

	if _, ok := s.Funding("BTCUSDT"); ok {
		t.Fatal("unexpected funding state in empty store")
	}

	s.UpsertFunding("BTCUSDT", map[string]any{"r": "0.0001"})
	f, ok := s.Funding("BTCUSDT")
	if !ok || f["r"] != "0.0001" {
		t.Errorf("Funding lookup = %v, %v", f, ok)
	}
	if s.FundingCount() != 1 {
		t.Errorf("FundingCount = %d, want 1", s.FundingCount())
	}
}

func TestIgnoresEmptyInput(t *testing.T) {
	s := New()
	s.UpsertTicker("", map[string]any{"c": "1"})
	s.UpsertTicker("BTCUSDT", nil)
	s.UpsertFunding("", map[string]any{"r": "1"})
	if s.TickerCount() != 0 || s.FundingCount() != 0 {
		t.Errorf("store accepted empty input: %d tickers, %d funding", s.TickerCount(), s.FundingCount())
	}
}

func TestReset(t *testing.T) {
	s := New()
	s.UpsertTicker("BTCUSDT", map[string]any{"c": "1"})
	s.UpsertFunding("BTCUSDT", map[string]any{"r": "1"})
	s.Reset()
	if s.TickerCount() != 0 || s.FundingCount() != 0 {
		t.Error("Reset did not clear state")
	}
}
