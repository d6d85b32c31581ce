package marketdata

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"trade-gateway/src/logger"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// SimFeed random-walks quotes around each security's close price. Used by
// the smoke harness and for development without an upstream feed.
// -----------------------------------------------------------------------------

type SimFeed struct {
	Name       string
	Logger     *logger.Logger
	IntervalMs int

	prices map[string]float64 // current walk level per symbol
	mu     sync.Mutex

	connected  atomic.Bool
	isRunning  atomic.Bool
	cancelFunc context.CancelFunc
	runMu      sync.Mutex
}

// -----------------------------------------------------------------------------

func NewSimFeed(name string, intervalMs int, universe []*models.MSecurity) *SimFeed {
	if intervalMs <= 0 {
		intervalMs = 500
	}

	f := &SimFeed{
		Name:       name,
		Logger:     logger.NewLogger(nil, "SimFeed-"+name),
		IntervalMs: intervalMs,
		prices:     make(map[string]float64),
	}
	for _, sec := range universe {
		px := sec.ClosePx
		if px <= 0 {
			px = 100
		}
		f.prices[sec.Symbol] = px
	}
	return f
}

// -----------------------------------------------------------------------------

func (f *SimFeed) GetName() string {
	return f.Name
}

// -----------------------------------------------------------------------------

func (f *SimFeed) Connected() bool {
	return f.connected.Load()
}

// -----------------------------------------------------------------------------

func (f *SimFeed) Reconnect() error {
	f.connected.Store(f.isRunning.Load())
	return nil
}

// -----------------------------------------------------------------------------

func (f *SimFeed) Start(parentCtx context.Context, out chan<- models.MQuote, wg *sync.WaitGroup) error {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if f.isRunning.Load() {
		return fmt.Errorf("feed %s is already running", f.Name)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	f.cancelFunc = cancel
	f.isRunning.Store(true)
	f.connected.Store(true)

	wg.Add(1)
	go f.runLoop(ctx, out, wg)
	f.Logger.Info("Started SimFeed: %s (%d symbols)", f.Name, len(f.prices))
	return nil
}

// -----------------------------------------------------------------------------

func (f *SimFeed) Stop() error {
	f.runMu.Lock()
	defer f.runMu.Unlock()

	if !f.isRunning.Load() {
		return fmt.Errorf("feed %s is not running", f.Name)
	}
	if f.cancelFunc != nil {
		f.cancelFunc()
	}
	f.isRunning.Store(false)
	f.connected.Store(false)
	return nil
}

// -----------------------------------------------------------------------------

func (f *SimFeed) runLoop(ctx context.Context, out chan<- models.MQuote, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Duration(f.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().Unix()
			f.mu.Lock()
			for symbol, px := range f.prices {
				// +-0.1% walk, floored at a cent
				px *= 1 + (rand.Float64()-0.5)*0.002
				if px < 0.01 {
					px = 0.01
				}
				f.prices[symbol] = px

				spread := px * 0.0005
				q := models.MQuote{
					Symbol:    symbol,
					Last:      px,
					Open:      px,
					High:      px * 1.001,
					Low:       px * 0.999,
					Volume:    rand.Int63n(10000) + 100,
					Bid:       px - spread,
					BidSize:   rand.Int63n(50)*100 + 100,
					Ask:       px + spread,
					AskSize:   rand.Int63n(50)*100 + 100,
					Timestamp: now,
					FetchedAt: now,
				}
				select {
				case out <- q:
				case <-ctx.Done():
					f.mu.Unlock()
					return
				}
			}
			f.mu.Unlock()
		}
	}
}

// -----------------------------------------------------------------------------

// LastPrice returns the current walk level for a symbol, 0 if unknown.
func (f *SimFeed) LastPrice(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices[symbol]
}
