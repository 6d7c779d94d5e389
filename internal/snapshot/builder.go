// Package snapshot materializes the rolling market state into the sorted,
// filtered record array handed to consumers.
package snapshot

import (
	"sort"
	"strings"
	"time"

	"volspike/internal/store"
	"volspike/models"
)

// QuoteSuffix restricts snapshots to USDT-quoted contracts.
const QuoteSuffix = "USDT"

// DefaultVolumeFloor is the minimum 24h quote volume a symbol needs to
// appear in a snapshot. Call sites tune this per product surface, so it is
// a parameter of Build rather than a constant baked into the filter.
const DefaultVolumeFloor = 1_000_000

// Build produces the normalized market-data rows for the current state.
//
// Symbols must end in the USDT quote suffix and, when a non-empty allowlist
// is supplied, be a member of it. Rows below volumeFloor (24h quote volume)
// are dropped. All numeric fields coerce defensively: exchange payloads mix
// string and numeric encodings and occasionally omit fields, and a malformed
// symbol must never take the whole snapshot down, so absent or unparseable
// values become 0. Rows sort by descending volume with symbol name as the
// tie-break so equal-volume output is deterministic.
//
// Build is pure given its inputs and the supplied clock instant.
func Build(st *store.Store, allowlist map[string]struct{}, volumeFloor float64, now time.Time) []models.MarketData {
	ts := now.UnixMilli()
	rows := make([]models.MarketData, 0, st.TickerCount())

	for symbol, ticker := range st.Tickers() {
		if !strings.HasSuffix(symbol, QuoteSuffix) {
			continue
		}
		if len(allowlist) > 0 {
			if _, ok := allowlist[symbol]; !ok {
				continue
			}
		}

		volume := models.Num(ticker, "v", "quoteVolume")
		if volume < volumeFloor {
			continue
		}

		fundingRate := 0.0
		if funding, ok := st.Funding(symbol); ok {
			fundingRate = models.FundingRate(funding)
		}

		rows = append(rows, models.MarketData{
			Symbol:      symbol,
			Price:       models.Num(ticker, "c", "lastPrice"),
			Volume24h:   volume,
			Change24h:   models.Num(ticker, "P", "priceChangePercent"),
			FundingRate: fundingRate,
			Timestamp:   ts,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Volume24h != rows[j].Volume24h {
			return rows[i].Volume24h > rows[j].Volume24h
		}
		return rows[i].Symbol < rows[j].Symbol
	})

	return rows
}
