// Package bootstrap fills the market state from Binance futures REST
// endpoints so the first snapshot does not have to wait for the stream to
// mention every symbol, and maintains the active USDT-perpetual allowlist.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"volspike/internal/kvstore"
	"volspike/logger"
	"volspike/models"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultAllowlistTTL = time.Hour

	// Bootstrap fires a burst of three endpoints at startup and then only
	// the hourly allowlist refresh, so the limiter is deliberately tight.
	requestsPerSecond = 4
)

// Seed is one symbol's REST-sourced state, shaped like a stream update so
// the store and snapshot builder treat both sources uniformly.
type Seed struct {
	Symbol string
	Fields map[string]any
}

// restAPI is the slice of the exchange client the loader uses.
type restAPI interface {
	priceChangeStats(ctx context.Context) ([]*futures.PriceChangeStats, error)
	premiumIndex(ctx context.Context) ([]*futures.PremiumIndex, error)
	exchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error)
}

// Loader issues the bootstrap REST calls and caches the allowlist in the
// key-value store.
type Loader struct {
	api          restAPI
	kv           kvstore.Store
	limiter      *rate.Limiter
	allowlistTTL time.Duration
	log          *logger.Log
}

// NewLoader builds a loader around the Binance futures REST client. baseURL
// overrides the production endpoint when non-empty.
func NewLoader(baseURL string, kv kvstore.Store) *Loader {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	client := futures.NewClient("", "")
	client.HTTPClient = httpClient
	if baseURL != "" {
		client.SetApiEndpoint(baseURL)
	}

	log.WithComponent("bootstrap").WithFields(logger.Fields{
		"base_url": baseURL,
		"timeout":  defaultTimeout,
	}).Info("bootstrap loader initialized")

	return &Loader{
		api:          &binanceREST{client: client},
		kv:           kv,
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		allowlistTTL: defaultAllowlistTTL,
		log:          log,
	}
}

// TickerSeeds fetches the 24h ticker stats for every symbol. Field names are
// the REST shape; downstream coercion accepts both stream and REST keys.
func (l *Loader) TickerSeeds(ctx context.Context) ([]Seed, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	stats, err := l.api.priceChangeStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: ticker stats: %w", err)
	}
	logger.IncrementBootstrapCall()

	seeds := make([]Seed, 0, len(stats))
	for _, s := range stats {
		if s == nil || s.Symbol == "" {
			continue
		}
		seeds = append(seeds, Seed{
			Symbol: s.Symbol,
			Fields: map[string]any{
				"lastPrice":          s.LastPrice,
				"priceChangePercent": s.PriceChangePercent,
				"quoteVolume":        s.QuoteVolume,
				"volume":             s.Volume,
			},
		})
	}

	l.log.WithComponent("bootstrap").WithFields(logger.Fields{
		"symbols": len(seeds),
	}).Info("ticker seeds fetched")
	return seeds, nil
}

// FundingSeeds fetches the premium index for every symbol.
func (l *Loader) FundingSeeds(ctx context.Context) ([]Seed, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	index, err := l.api.premiumIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: premium index: %w", err)
	}
	logger.IncrementBootstrapCall()

	seeds := make([]Seed, 0, len(index))
	for _, p := range index {
		if p == nil || p.Symbol == "" {
			continue
		}
		seeds = append(seeds, Seed{
			Symbol: p.Symbol,
			Fields: map[string]any{
				"lastFundingRate": p.LastFundingRate,
				"markPrice":       p.MarkPrice,
			},
		})
	}

	l.log.WithComponent("bootstrap").WithFields(logger.Fields{
		"symbols": len(seeds),
	}).Info("funding seeds fetched")
	return seeds, nil
}

// Allowlist returns the active USDT-perpetual symbol set. A cached entry
// younger than the TTL is served without touching the exchange; on fetch
// failure a stale cache entry is better than nothing.
func (l *Loader) Allowlist(ctx context.Context, now time.Time) (map[string]struct{}, error) {
	log := l.log.WithComponent("bootstrap")

	var cached models.AllowlistEntry
	cacheErr := l.kv.Get(ctx, kvstore.KeyExchangeInfo, &cached)
	if cacheErr == nil && cached.Age(now) < l.allowlistTTL {
		log.WithFields(logger.Fields{
			"symbols": len(cached.Symbols),
			"age":     cached.Age(now).Round(time.Second),
		}).Debug("allowlist served from cache")
		return cached.Set(), nil
	}

	symbols, err := l.fetchAllowlist(ctx)
	if err != nil {
		if cacheErr == nil {
			log.WithError(err).Warn("allowlist refresh failed, serving stale cache")
			return cached.Set(), nil
		}
		return nil, err
	}

	entry := models.AllowlistEntry{FetchedAt: now.UnixMilli(), Symbols: symbols}
	if err := l.kv.Set(ctx, kvstore.KeyExchangeInfo, entry); err != nil {
		log.WithError(err).Warn("failed to persist allowlist")
	}

	log.WithFields(logger.Fields{"symbols": len(symbols)}).Info("allowlist refreshed")
	return entry.Set(), nil
}

func (l *Loader) fetchAllowlist(ctx context.Context) ([]string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	info, err := l.api.exchangeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: exchange info: %w", err)
	}
	logger.IncrementBootstrapCall()

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.QuoteAsset != "USDT" {
			continue
		}
		if s.ContractType != futures.ContractTypePerpetual {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

type binanceREST struct {
	client *futures.Client
}

func (b *binanceREST) priceChangeStats(ctx context.Context) ([]*futures.PriceChangeStats, error) {
	return b.client.NewListPriceChangeStatsService().Do(ctx)
}

func (b *binanceREST) premiumIndex(ctx context.Context) ([]*futures.PremiumIndex, error) {
	return b.client.NewPremiumIndexService().Do(ctx)
}

func (b *binanceREST) exchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error) {
	return b.client.NewExchangeInfoService().Do(ctx)
}
