package models

import (
	"encoding/json"
	"fmt"
)

// FundingRateKeys lists the raw field names that may carry a funding rate,
// in preference order. The order encodes upstream quirks: combined-stream
// mark-price events use "r", some REST payloads use "lastFundingRate", and
// older message shapes used "R" or "fr".
var FundingRateKeys = []string{"r", "R", "fr", "lastFundingRate", "fundingRate", "estimatedSettlePriceRate"}

// fundingShapeKeys marks an element as a funding update. Mark-price events
// always carry "r", so bare price fields ("p") are deliberately not treated
// as funding markers: 24h tickers carry a "p" of their own (price change)
// and must not shadow real funding entries.
var fundingShapeKeys = []string{"r", "R", "fr", "lastFundingRate", "fundingRate"}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DecodeFrame parses one inbound websocket frame into stream updates.
//
// The combined stream wraps payloads in a {stream, data} envelope where data
// is an array of per-symbol objects, but single-stream endpoints deliver a
// bare array or a bare object, so all three shapes are accepted. Elements
// without a symbol, and elements matching neither the ticker nor the funding
// shape, are discarded.
func DecodeFrame(raw []byte) ([]StreamUpdate, error) {
	payload := raw

	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	var elements []map[string]any
	if err := json.Unmarshal(payload, &elements); err != nil {
		var single map[string]any
		if err := json.Unmarshal(payload, &single); err != nil {
			return nil, fmt.Errorf("unrecognized frame shape: %w", err)
		}
		elements = []map[string]any{single}
	}

	updates := make([]StreamUpdate, 0, len(elements))
	for _, fields := range elements {
		if fields == nil {
			continue
		}
		symbol := Str(fields, "s")
		if symbol == "" {
			symbol = Str(fields, "symbol")
		}
		if symbol == "" {
			continue
		}

		ticker := isTickerShape(fields)
		funding := isFundingShape(fields)
		if !ticker && !funding {
			continue
		}

		updates = append(updates, StreamUpdate{
			Symbol:  symbol,
			Ticker:  ticker,
			Funding: funding,
			Fields:  fields,
		})
	}

	return updates, nil
}

func isTickerShape(fields map[string]any) bool {
	if Str(fields, "e") == "24hrTicker" {
		return true
	}
	if _, ok := fields["c"]; ok {
		return true
	}
	if _, ok := fields["v"]; ok {
		return true
	}
	if _, ok := fields["lastPrice"]; ok {
		return true
	}
	return false
}

func isFundingShape(fields map[string]any) bool {
	for _, k := range fundingShapeKeys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

// FundingRate extracts the funding rate from a raw funding payload using the
// documented key preference order. Missing or unparseable values yield 0.
func FundingRate(fields map[string]any) float64 {
	return Num(fields, FundingRateKeys...)
}
