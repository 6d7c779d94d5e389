package models

import (
	"strconv"
	"time"
)

// MarketData is the normalized per-symbol record emitted in every snapshot.
// OpenInterest is carried for schema compatibility with downstream consumers
// but the ticker stream does not provide it, so it is always zero here.
type MarketData struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Volume24h    float64 `json:"volume24h"`
	Change24h    float64 `json:"change24h"`
	FundingRate  float64 `json:"fundingRate"`
	OpenInterest float64 `json:"openInterest"`
	Timestamp    int64   `json:"timestamp"`
}

// Snapshot is one fully materialized emission: the rows plus the epoch-ms
// instant they were built. The JSON shape doubles as the durable
// last-known-snapshot format.
type Snapshot struct {
	EmittedAt int64        `json:"t"`
	Rows      []MarketData `json:"rows"`
}

// ConnectionState describes the feed connection lifecycle as observed by
// consumers. Consumers never mutate it.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateLive         ConnectionState = "live"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// StreamUpdate is one element decoded from a combined-stream frame. The raw
// exchange fields are kept as-is; a single element may carry ticker data,
// funding data, or both.
type StreamUpdate struct {
	Symbol  string
	Ticker  bool
	Funding bool
	Fields  map[string]any
}

// AllowlistEntry is the durable cache format for the active USDT-perpetual
// symbol set.
type AllowlistEntry struct {
	FetchedAt int64    `json:"t"`
	Symbols   []string `json:"list"`
}

// Set converts the cached symbol list to a lookup set.
func (a AllowlistEntry) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(a.Symbols))
	for _, s := range a.Symbols {
		set[s] = struct{}{}
	}
	return set
}

// Age returns how long ago the allowlist was fetched.
func (a AllowlistEntry) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(a.FetchedAt))
}

// Num extracts the first parseable numeric value from fields, trying keys in
// order. Exchange payloads carry numbers as strings ("2000000") or JSON
// numbers depending on endpoint, and some fields are simply absent; every
// failure mode coerces to 0.
func Num(fields map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n == n {
				return n
			}
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil && f == f {
				return f
			}
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return 0
}

// Str extracts a string field, falling back to "" when absent or non-string.
func Str(fields map[string]any, key string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
