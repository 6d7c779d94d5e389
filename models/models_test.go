package models

import (
	"testing"
)

func TestDecodeFrameCombinedEnvelope(t *testing.T) {
	raw := []byte(`{"stream":"!ticker@arr","data":[` +
		`{"e":"24hrTicker","s":"BTCUSDT","c":"65000.10","v":"12345","q":"800000000","P":"2.4"},` +
		`{"e":"24hrTicker","s":"ETHUSDT","c":"3200.55","v":"54321","q":"400000000","P":"-1.1"}]}`)

	updates, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].Symbol != "BTCUSDT" || !updates[0].Ticker {
		t.Errorf("unexpected first update: %+v", updates[0])
	}
	if updates[0].Funding {
		t.Errorf("ticker element misclassified as funding")
	}
}

func TestDecodeFrameMarkPriceEnvelope(t *testing.T) {
	raw := []byte(`{"stream":"!markPrice@arr","data":[` +
		`{"e":"markPriceUpdate","s":"BTCUSDT","p":"65001.00","i":"64999.80","r":"0.0001","T":1700000000000}]}`)

	updates, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	u := updates[0]
	if !u.Funding || u.Ticker {
		t.Errorf("mark-price element misclassified: %+v", u)
	}
	if got := FundingRate(u.Fields); got != 0.0001 {
		t.Errorf("FundingRate = %v, want 0.0001", got)
	}
}

func TestDecodeFrameBareShapes(t *testing.T) {
	bareArray := []byte(`[{"s":"XRPUSDT","c":"0.52","v":"1000"}]`)
	updates, err := DecodeFrame(bareArray)
	if err != nil || len(updates) != 1 {
		t.Fatalf("bare array: updates=%d err=%v", len(updates), err)
	}

	bareObject := []byte(`{"s":"XRPUSDT","r":"0.0003"}`)
	updates, err = DecodeFrame(bareObject)
	if err != nil || len(updates) != 1 {
		t.Fatalf("bare object: updates=%d err=%v", len(updates), err)
	}
	if !updates[0].Funding {
		t.Errorf("bare funding object not classified as funding")
	}
}

func TestDecodeFrameDiscardsJunk(t *testing.T) {
	cases := [][]byte{
		[]byte(`{"stream":"x","data":[{"foo":"bar"}]}`),
		[]byte(`[{"c":"1.0"}]`),
		[]byte(`{"ping":123456}`),
	}
	for _, raw := range cases {
		updates, err := DecodeFrame(raw)
		if err != nil {
			t.Fatalf("DecodeFrame(%s): %v", raw, err)
		}
		if len(updates) != 0 {
			t.Errorf("DecodeFrame(%s) produced %d updates, want 0", raw, len(updates))
		}
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
	if _, err := DecodeFrame([]byte(`"just a string"`)); err == nil {
		t.Error("expected error for scalar frame")
	}
}

func TestFundingRatePreferenceOrder(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]any
		want   float64
	}{
		{"lowercase r wins", map[string]any{"r": "0.0001", "R": "0.0002", "lastFundingRate": "0.0003"}, 0.0001},
		{"upper R before fr", map[string]any{"R": "0.0002", "fr": "0.0004"}, 0.0002},
		{"fr before lastFundingRate", map[string]any{"fr": "0.0004", "lastFundingRate": "0.0003"}, 0.0004},
		{"rest shape", map[string]any{"lastFundingRate": "0.0003"}, 0.0003},
		{"numeric value", map[string]any{"r": 0.0005}, 0.0005},
		{"empty string skipped", map[string]any{"r": "", "R": "0.0002"}, 0.0002},
		{"garbage coerces to zero", map[string]any{"r": "abc"}, 0},
		{"nothing present", map[string]any{"s": "BTCUSDT"}, 0},
	}
	for _, c := range cases {
		if got := FundingRate(c.fields); got != c.want {
			t.Errorf("%s: FundingRate = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNumCoercion(t *testing.T) {
	fields := map[string]any{
		"str":    "123.5",
		"num":    float64(7),
		"null":   nil,
		"bool":   true,
		"object": map[string]any{"x": 1},
	}
	if got := Num(fields, "str"); got != 123.5 {
		t.Errorf("string coercion = %v", got)
	}
	if got := Num(fields, "num"); got != 7 {
		t.Errorf("number coercion = %v", got)
	}
	if got := Num(fields, "null", "num"); got != 7 {
		t.Errorf("nil fallback = %v", got)
	}
	if got := Num(fields, "bool", "object", "missing"); got != 0 {
		t.Errorf("unparseable input = %v, want 0", got)
	}
}

func TestAllowlistEntrySet(t *testing.T) {
	entry := AllowlistEntry{FetchedAt: 0, Symbols: []string{"BTCUSDT", "ETHUSDT"}}
	set := entry.Set()
	if len(set) != 2 {
		t.Fatalf("set size = %d", len(set))
	}
	if _, ok := set["BTCUSDT"]; !ok {
		t.Error("BTCUSDT missing from set")
	}
}
