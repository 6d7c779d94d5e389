// Package store holds the rolling per-symbol market state behind a
// snapshot. It is a plain last-write-wins cache with no policy: a single
// goroutine (the feed engine's run loop) owns all mutation, so the store
// itself carries no locking.
package store

// Store keeps the latest raw ticker and funding payload per symbol.
type Store struct {
	tickers map[string]map[string]any
	funding map[string]map[string]any
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickers: make(map[string]map[string]any),
		funding: make(map[string]map[string]any),
	}
}

// UpsertTicker replaces the ticker state for a symbol.
func (s *Store) UpsertTicker(symbol string, fields map[string]any) {
	if symbol == "" || fields == nil {
		return
	}
	s.tickers[symbol] = fields
}

// UpsertFunding replaces the funding state for a symbol.
func (s *Store) UpsertFunding(symbol string, fields map[string]any) {
	if symbol == "" || fields == nil {
		return
	}
	s.funding[symbol] = fields
}

// TickerCount reports how many distinct symbols have ticker state. The feed
// engine uses it as its bootstrap gate.
func (s *Store) TickerCount() int {
	return len(s.tickers)
}

// Tickers exposes the ticker map for snapshot building. Callers must not
// retain the map across engine events.
func (s *Store) Tickers() map[string]map[string]any {
	return s.tickers
}

// Funding returns the funding state for one symbol.
func (s *Store) Funding(symbol string) (map[string]any, bool) {
	f, ok := s.funding[symbol]
	return f, ok
}

// FundingCount reports how many distinct symbols have funding state.
func (s *Store) FundingCount() int {
	return len(s.funding)
}

// Reset drops all accumulated state.
func (s *Store) Reset() {
	s.tickers = make(map[string]map[string]any)
	s.funding = make(map[string]map[string]any)
}
