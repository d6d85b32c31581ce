package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/models"
	"trade-gateway/src/utils"
)

// -----------------------------------------------------------------------------
// HttpQuoteFeed polls a REST quote endpoint per symbol through the network
// manager (retry, proxy and user-agent rotation) and pushes fresh quotes to
// the manager. Polling is gated on venue hours per security.
// -----------------------------------------------------------------------------

type HttpQuoteFeed struct {
	Config     *models.MConfig
	FeedConfig models.MFeedConfig
	Network    interfaces.INetworkManager
	Logger     *logger.Logger
	Scheduler  *utils.MarketScheduler

	targets []feedTarget

	lastTimestamps   map[string]int64
	lastTimestampsMu sync.RWMutex

	connected  atomic.Bool
	failStreak atomic.Int64
	cancelFunc context.CancelFunc
	isRunning  atomic.Bool
	mu         sync.Mutex
}

type feedTarget struct {
	securityID int64
	symbol     string
}

// -----------------------------------------------------------------------------

// NewHttpQuoteFeed builds a feed over the given universe. Each security is
// registered with the venue scheduler so closed markets are not polled.
func NewHttpQuoteFeed(cfg *models.MConfig, feedCfg models.MFeedConfig,
	netMgr interfaces.INetworkManager, universe []*models.MSecurity) *HttpQuoteFeed {

	f := &HttpQuoteFeed{
		Config:         cfg,
		FeedConfig:     feedCfg,
		Network:        netMgr,
		Logger:         logger.NewLogger(nil, "HttpQuoteFeed-"+feedCfg.Name),
		Scheduler:      utils.NewMarketScheduler(logger.NewLogger(nil, "MarketScheduler-"+feedCfg.Name)),
		lastTimestamps: make(map[string]int64),
	}

	for _, sec := range universe {
		mic := ""
		if sec.Exchange != nil {
			mic = sec.Exchange.Mic
		}
		f.Scheduler.Track(sec.ID, mic)
		f.targets = append(f.targets, feedTarget{securityID: sec.ID, symbol: sec.Symbol})
	}
	return f
}

// -----------------------------------------------------------------------------

func (f *HttpQuoteFeed) GetName() string {
	return f.FeedConfig.Name
}

// -----------------------------------------------------------------------------

func (f *HttpQuoteFeed) Connected() bool {
	return f.connected.Load()
}

// -----------------------------------------------------------------------------

// Reconnect probes the endpoint with the first symbol and resets the
// failure streak on success.
func (f *HttpQuoteFeed) Reconnect() error {
	if len(f.targets) == 0 {
		return fmt.Errorf("feed %s has no symbols", f.GetName())
	}

	_, err := f.fetchQuote(f.targets[0].symbol)
	if err != nil {
		f.connected.Store(false)
		return err
	}
	f.failStreak.Store(0)
	f.connected.Store(true)
	f.Logger.Info("Feed %s reconnected", f.GetName())
	return nil
}

// -----------------------------------------------------------------------------

// Start begins the polling loop.
func (f *HttpQuoteFeed) Start(parentCtx context.Context, out chan<- models.MQuote, wg *sync.WaitGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isRunning.Load() {
		return fmt.Errorf("feed %s is already running", f.GetName())
	}

	ctx, cancel := context.WithCancel(parentCtx)
	f.cancelFunc = cancel
	f.isRunning.Store(true)

	wg.Add(1)
	go f.runLoop(ctx, out, wg)
	f.Logger.Info("Started HttpQuoteFeed: %s (%d symbols)", f.GetName(), len(f.targets))
	return nil
}

// -----------------------------------------------------------------------------

func (f *HttpQuoteFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isRunning.Load() {
		return fmt.Errorf("feed %s is not running", f.GetName())
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
	}
	f.isRunning.Store(false)
	f.connected.Store(false)
	f.Logger.Info("Stopped HttpQuoteFeed: %s", f.GetName())
	return nil
}

// -----------------------------------------------------------------------------

func (f *HttpQuoteFeed) runLoop(ctx context.Context, out chan<- models.MQuote, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := f.Config.MarketData.UpdateIntervalSeconds
	if interval <= 0 {
		interval = 5
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !f.Scheduler.AnyMarketOpen() {
				f.Logger.Info("All venues closed. Pausing feed %s for 10 minutes...", f.GetName())
				select {
				case <-time.After(10 * time.Minute):
				case <-ctx.Done():
					return
				}
				continue
			}

			quotes := f.fetchBatch(ctx)
			for _, q := range quotes {
				select {
				case out <- q:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

// fetchBatch polls every open symbol concurrently, bounded by the configured
// request concurrency, and returns only quotes fresher than the last push.
func (f *HttpQuoteFeed) fetchBatch(ctx context.Context) []models.MQuote {
	concurrency := f.Config.Network.ConcurrentRequests
	if concurrency <= 0 {
		concurrency = 4
	}
	sem := make(chan struct{}, concurrency)

	var mu sync.Mutex
	var results []models.MQuote
	var wg sync.WaitGroup
	fetched, failed := 0, 0

	for _, target := range f.targets {
		if !f.Scheduler.IsOpen(target.securityID) {
			continue
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				return
			default:
			}

			// Small delay to avoid rate limiting
			time.Sleep(10 * time.Millisecond)

			q, err := f.fetchQuote(symbol)
			if err != nil {
				f.Logger.Info("Error fetching quote %s: %v", symbol, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			f.lastTimestampsMu.RLock()
			lastTs := f.lastTimestamps[symbol]
			f.lastTimestampsMu.RUnlock()
			if q.Timestamp != 0 && q.Timestamp <= lastTs {
				return // stale
			}

			f.lastTimestampsMu.Lock()
			f.lastTimestamps[symbol] = q.Timestamp
			f.lastTimestampsMu.Unlock()

			mu.Lock()
			results = append(results, *q)
			fetched++
			mu.Unlock()
		}(target.symbol)
	}
	wg.Wait()

	if failed > 0 && fetched == 0 {
		if f.failStreak.Add(1) >= 3 {
			f.connected.Store(false)
		}
	} else if fetched > 0 {
		f.failStreak.Store(0)
		f.connected.Store(true)
	}

	f.Logger.Debug("Feed %s: %d fresh quotes, %d failures", f.GetName(), fetched, failed)
	return results
}

// -----------------------------------------------------------------------------

// fetchQuote pulls one symbol and parses the JSON quote body.
func (f *HttpQuoteFeed) fetchQuote(symbol string) (*models.MQuote, error) {
	params := map[string]string{"symbol": symbol}
	if f.FeedConfig.APIKey != "" {
		params["apikey"] = f.FeedConfig.APIKey
	}

	body, err := f.Network.Get(f.FeedConfig.QuoteURL, params)
	if err != nil {
		return nil, fmt.Errorf("network error for %s: %w", symbol, err)
	}
	return parseQuote(symbol, body)
}

// -----------------------------------------------------------------------------

func parseQuote(symbol string, body []byte) (*models.MQuote, error) {
	var q models.MQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if q.Last <= 0 {
		return nil, fmt.Errorf("no valid last price for %s", symbol)
	}
	q.FetchedAt = time.Now().Unix()
	return &q, nil
}
