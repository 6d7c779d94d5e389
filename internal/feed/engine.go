// Package feed owns the live market-data pipeline: the stream connection
// lifecycle, state accumulation, bootstrap priming, and cadence-gated
// snapshot emission.
package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"volspike/internal/bootstrap"
	"volspike/internal/channel"
	"volspike/internal/kvstore"
	"volspike/internal/platform"
	"volspike/internal/snapshot"
	"volspike/internal/store"
	"volspike/internal/tier"
	"volspike/logger"
	"volspike/models"
)

const (
	defaultMinSymbols       = 50
	defaultBootstrapWindow  = 2500 * time.Millisecond
	defaultGeofenceWindow   = 5 * time.Second
	defaultDebounceInterval = 200 * time.Millisecond
	defaultBaseBackoff      = time.Second
	defaultMaxBackoff       = 30 * time.Second

	eventBufferSize = 1024
)

// Config tunes one engine instance. Zero values take the production
// defaults above.
type Config struct {
	URL              string
	Tier             tier.Tier
	VolumeFloor      float64
	MinSymbols       int
	BootstrapWindow  time.Duration
	GeofenceWindow   time.Duration
	DebounceInterval time.Duration
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
}

func (c Config) withDefaults() Config {
	if c.VolumeFloor == 0 {
		c.VolumeFloor = snapshot.DefaultVolumeFloor
	}
	if c.MinSymbols == 0 {
		c.MinSymbols = defaultMinSymbols
	}
	if c.BootstrapWindow == 0 {
		c.BootstrapWindow = defaultBootstrapWindow
	}
	if c.GeofenceWindow == 0 {
		c.GeofenceWindow = defaultGeofenceWindow
	}
	if c.DebounceInterval == 0 {
		c.DebounceInterval = defaultDebounceInterval
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Emission is one snapshot handed to the consumer callback together with
// the connection state at the moment of emission.
type Emission struct {
	Snapshot models.Snapshot
	State    models.ConnectionState
}

// SeedSource is the REST bootstrap surface the engine consumes.
type SeedSource interface {
	TickerSeeds(ctx context.Context) ([]bootstrap.Seed, error)
	FundingSeeds(ctx context.Context) ([]bootstrap.Seed, error)
	Allowlist(ctx context.Context, now time.Time) (map[string]struct{}, error)
}

// Options wires the engine's collaborators. Nil fields get safe defaults
// (system clock, in-memory key-value store, no seeds, no fan-out).
type Options struct {
	Dialer     platform.Dialer
	Clock      platform.Clock
	KV         kvstore.Store
	Seeds      SeedSource
	Channels   *channel.Channels
	OnSnapshot func(Emission)
}

// Status is the observable side of the engine for health and countdown
// display.
type Status struct {
	State             models.ConnectionState
	ReconnectAttempts int
	MessagesProcessed int64
	LastEmission      time.Time
	NextEmission      time.Time
	SymbolCount       int
}

type (
	evOpened      struct{ conn platform.Conn }
	evFrame       struct{ data []byte }
	evClosed      struct{ err error }
	evTickerSeed  struct{ seeds []bootstrap.Seed }
	evFundingSeed struct{ seeds []bootstrap.Seed }
	evAllowlist   struct{ set map[string]struct{} }
)

// Engine is the connection manager. All pipeline state lives in the run
// loop goroutine; external surfaces (Start, Stop, Status) touch only the
// guarded status mirror.
type Engine struct {
	cfg  Config
	opts Options
	log  *logger.Log

	events chan any

	mu      sync.RWMutex
	running bool
	status  Status
	conn    platform.Conn

	closing atomic.Bool
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
}

// NewEngine builds an engine; Start brings it to life.
func NewEngine(cfg Config, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = platform.SystemClock{}
	}
	if opts.KV == nil {
		opts.KV = kvstore.NewMemoryStore()
	}

	log := logger.GetLogger()
	log.WithComponent("feed_engine").WithFields(logger.Fields{
		"url":          cfg.URL,
		"tier":         cfg.Tier,
		"volume_floor": cfg.VolumeFloor,
	}).Info("feed engine initialized")

	return &Engine{
		cfg:    cfg.withDefaults(),
		opts:   opts,
		log:    log,
		events: make(chan any, eventBufferSize),
		wg:     &sync.WaitGroup{},
		status: Status{State: models.StateConnecting},
	}
}

// Start launches the run loop and the first connection attempt.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("feed engine already running")
	}
	if e.opts.Dialer == nil {
		e.mu.Unlock()
		return fmt.Errorf("feed engine requires a dialer")
	}
	e.running = true
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.run(runCtx)

	e.log.WithComponent("feed_engine").Info("feed engine started")
	return nil
}

// Stop performs a deliberate disconnect: close frame 1000 with the manual
// reason so the close path never schedules a reconnect, then tears the run
// loop down.
func (e *Engine) Stop() {
	e.closing.Store(true)

	e.mu.Lock()
	conn := e.conn
	e.running = false
	e.mu.Unlock()

	if conn != nil {
		conn.Close(1000, "manual disconnect")
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.log.WithComponent("feed_engine").Info("feed engine stopped")
}

// Status returns a copy of the observable engine state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// run is the single writer for all pipeline state.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	log := e.log.WithComponent("feed_engine")

	st := store.New()
	var allowlist map[string]struct{}

	firstPaintDone := false
	seedPainted := false
	bootstrapElapsed := false
	everLive := false
	geofenced := false
	debouncePending := false
	var nextEmission time.Time

	bootstrapTimer := newStoppedTimer()
	geofenceTimer := time.NewTimer(e.cfg.GeofenceWindow)
	reconnectTimer := newStoppedTimer()
	debounceTimer := newStoppedTimer()
	defer func() {
		bootstrapTimer.Stop()
		geofenceTimer.Stop()
		reconnectTimer.Stop()
		debounceTimer.Stop()
	}()

	emit := func(state models.ConnectionState) {
		now := e.opts.Clock.Now()
		rows := snapshot.Build(st, allowlist, e.cfg.VolumeFloor, now)
		snap := models.Snapshot{EmittedAt: now.UnixMilli(), Rows: rows}

		if err := e.opts.KV.Set(ctx, kvstore.KeyLastSnapshot, snap); err != nil {
			log.WithError(err).Warn("failed to persist snapshot")
		}
		if e.opts.Channels != nil {
			e.opts.Channels.SendArchive(ctx, snap)
			e.opts.Channels.SendPublish(ctx, snap)
		}
		e.deliver(Emission{Snapshot: snap, State: state})

		nextEmission = tier.NextAlignedEmission(e.cfg.Tier, now)
		e.setStatus(func(s *Status) {
			s.LastEmission = now
			s.NextEmission = nextEmission
		})
	}

	firstPaint := func() {
		firstPaintDone = true
		bootstrapTimer.Stop()
		emit(models.StateLive)
		log.WithFields(logger.Fields{
			"symbols": st.TickerCount(),
		}).Info("first snapshot painted")
	}

	// Gate applied to every state mutation until the first paint, then to
	// every message afterwards.
	maybeEmit := func() {
		if !firstPaintDone {
			if st.TickerCount() >= e.cfg.MinSymbols {
				firstPaint()
			} else if bootstrapElapsed && st.TickerCount() > 0 {
				firstPaint()
			}
			return
		}

		if e.cfg.Tier == tier.Elite {
			if !debouncePending {
				debouncePending = true
				resetTimer(debounceTimer, e.cfg.DebounceInterval)
			}
			return
		}
		// Throttled tiers emit only at wall-clock aligned boundaries.
		if nextEmission.IsZero() || !e.opts.Clock.Now().Before(nextEmission) {
			emit(models.StateLive)
		}
	}

	e.spawnDial(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-e.events:
			switch ev := ev.(type) {
			case evOpened:
				everLive = true
				geofenced = false
				geofenceTimer.Stop()
				e.mu.Lock()
				e.conn = ev.conn
				e.status.State = models.StateLive
				e.status.ReconnectAttempts = 0
				e.mu.Unlock()
				if !firstPaintDone {
					resetTimer(bootstrapTimer, e.cfg.BootstrapWindow)
				}
				e.spawnBootstrap(ctx)
				log.Info("stream connection live")

			case evFrame:
				logger.IncrementFrameRead(len(ev.data))
				e.setStatus(func(s *Status) { s.MessagesProcessed++ })
				updates, err := models.DecodeFrame(ev.data)
				if err != nil {
					log.WithError(err).Debug("discarding malformed frame")
					continue
				}
				for _, u := range updates {
					if u.Ticker {
						st.UpsertTicker(u.Symbol, u.Fields)
					}
					if u.Funding {
						st.UpsertFunding(u.Symbol, u.Fields)
					}
				}
				e.setStatus(func(s *Status) { s.SymbolCount = st.TickerCount() })
				maybeEmit()

			case evClosed:
				if e.closing.Load() {
					return
				}
				e.mu.Lock()
				e.conn = nil
				e.status.ReconnectAttempts++
				attempt := e.status.ReconnectAttempts
				if !geofenced {
					e.status.State = models.StateReconnecting
				}
				e.mu.Unlock()

				delay := backoffDelay(attempt, e.cfg.BaseBackoff, e.cfg.MaxBackoff)
				resetTimer(reconnectTimer, delay)
				entry := log.WithFields(logger.Fields{
					"attempt": attempt,
					"delay":   delay,
				})
				if ev.err != nil {
					entry = entry.WithError(ev.err)
				}
				entry.Warn("stream connection lost, reconnect scheduled")

			case evTickerSeed:
				for _, s := range ev.seeds {
					st.UpsertTicker(s.Symbol, s.Fields)
				}
				e.setStatus(func(s *Status) { s.SymbolCount = st.TickerCount() })
				if !firstPaintDone && !seedPainted && st.TickerCount() >= e.cfg.MinSymbols {
					seedPainted = true
					emit(models.StateLive)
					log.WithFields(logger.Fields{
						"symbols": st.TickerCount(),
					}).Info("early snapshot painted from bootstrap seeds")
				}

			case evFundingSeed:
				for _, s := range ev.seeds {
					st.UpsertFunding(s.Symbol, s.Fields)
				}
				if !firstPaintDone && !seedPainted && st.TickerCount() >= e.cfg.MinSymbols {
					seedPainted = true
					emit(models.StateLive)
				}

			case evAllowlist:
				allowlist = ev.set
			}

		case <-bootstrapTimer.C:
			bootstrapElapsed = true
			if !firstPaintDone && st.TickerCount() > 0 {
				firstPaint()
			}

		case <-geofenceTimer.C:
			if everLive {
				continue
			}
			geofenced = true
			e.setStatus(func(s *Status) { s.State = models.StateError })

			var cached models.Snapshot
			if err := e.opts.KV.Get(ctx, kvstore.KeyLastSnapshot, &cached); err != nil {
				log.WithError(err).Warn("no cached snapshot for degraded fallback")
				continue
			}
			if len(cached.Rows) == 0 {
				continue
			}
			e.deliver(Emission{Snapshot: cached, State: models.StateError})
			log.WithFields(logger.Fields{
				"rows": len(cached.Rows),
				"age":  time.Since(time.UnixMilli(cached.EmittedAt)).Round(time.Second),
			}).Warn("serving cached snapshot in degraded mode")

		case <-reconnectTimer.C:
			e.spawnDial(ctx)

		case <-debounceTimer.C:
			debouncePending = false
			emit(models.StateLive)
		}
	}
}

// spawnDial connects and pumps frames into the event channel until the
// connection drops.
func (e *Engine) spawnDial(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		conn, err := e.opts.Dialer.Dial(ctx, e.cfg.URL)
		if err != nil {
			e.send(ctx, evClosed{err: err})
			return
		}

		// ReadMessage cannot be interrupted by ctx, so a watcher closes
		// the connection on shutdown to unblock the read loop.
		readerDone := make(chan struct{})
		defer close(readerDone)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			select {
			case <-ctx.Done():
				conn.Close(1000, "manual disconnect")
			case <-readerDone:
			}
		}()

		if !e.send(ctx, evOpened{conn: conn}) {
			return
		}

		for {
			data, err := conn.ReadMessage()
			if err != nil {
				e.send(ctx, evClosed{err: err})
				return
			}
			if !e.send(ctx, evFrame{data: data}) {
				return
			}
		}
	}()
}

// spawnBootstrap fires the three REST loaders concurrently. Failures are
// logged and swallowed; the live stream remains the authority.
func (e *Engine) spawnBootstrap(ctx context.Context) {
	if e.opts.Seeds == nil {
		return
	}
	log := e.log.WithComponent("feed_engine")

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		seeds, err := e.opts.Seeds.TickerSeeds(ctx)
		if err != nil {
			log.WithError(err).Warn("ticker bootstrap failed")
			return
		}
		e.send(ctx, evTickerSeed{seeds: seeds})
	}()
	go func() {
		defer e.wg.Done()
		seeds, err := e.opts.Seeds.FundingSeeds(ctx)
		if err != nil {
			log.WithError(err).Warn("funding bootstrap failed")
			return
		}
		e.send(ctx, evFundingSeed{seeds: seeds})
	}()
	go func() {
		defer e.wg.Done()
		set, err := e.opts.Seeds.Allowlist(ctx, e.opts.Clock.Now())
		if err != nil {
			log.WithError(err).Warn("allowlist bootstrap failed")
			return
		}
		e.send(ctx, evAllowlist{set: set})
	}()
}

func (e *Engine) send(ctx context.Context, ev any) bool {
	select {
	case e.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// deliver invokes the consumer callback behind a recover so a panicking
// consumer cannot take the pipeline down.
func (e *Engine) deliver(em Emission) {
	if e.opts.OnSnapshot == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.WithComponent("feed_engine").WithFields(logger.Fields{
				"panic": r,
			}).Error("snapshot consumer panicked")
		}
	}()
	e.opts.OnSnapshot(em)
}

func (e *Engine) setStatus(fn func(*Status)) {
	e.mu.Lock()
	fn(&e.status)
	e.mu.Unlock()
}

// backoffDelay returns the delay before reconnect attempt N: the base
// doubled per attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
