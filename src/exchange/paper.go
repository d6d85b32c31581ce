package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// PaperAdapter is a simulated venue. Orders walk the acknowledgement pipeline
// with a configurable latency per hop and fill in a single clip; fills print
// back into the market data snapshots.
// -----------------------------------------------------------------------------

const defaultPaperLatency = 10 * time.Millisecond

type PaperAdapter struct {
	Logger *logger.Logger

	name    string
	latency time.Duration
	book    *GlobalOrderBook
	md      *marketdata.Manager

	connected atomic.Bool
	venueSeq  atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewPaperAdapter(cfg models.MExchangeAdapterConfig, book *GlobalOrderBook,
	md *marketdata.Manager, log *logger.Logger) *PaperAdapter {

	latency := time.Duration(cfg.LatencyMs) * time.Millisecond
	if latency <= 0 {
		latency = defaultPaperLatency
	}

	p := &PaperAdapter{
		Logger:  log,
		name:    cfg.Name,
		latency: latency,
		book:    book,
		md:      md,
		done:    make(chan struct{}),
	}
	p.connected.Store(true)
	return p
}

// -----------------------------------------------------------------------------

func (p *PaperAdapter) GetName() string {
	return p.name
}

// -----------------------------------------------------------------------------

func (p *PaperAdapter) Connected() bool {
	return p.connected.Load()
}

// -----------------------------------------------------------------------------

func (p *PaperAdapter) Reconnect() error {
	p.connected.Store(true)
	return nil
}

// -----------------------------------------------------------------------------

// Place runs the order through pending, new and a full fill, one latency hop
// apart. The pipeline stops as soon as the order is no longer live.
func (p *PaperAdapter) Place(ord *models.MOrder) error {
	if !p.connected.Load() {
		return fmt.Errorf("venue %s is not connected", p.name)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if !p.pause() {
			return
		}
		p.book.Handle(&models.MConfirmation{
			Order:           ord,
			ExecType:        models.ExecPending,
			TransactionTime: time.Now().UnixMicro(),
		})

		if !p.pause() || !ord.IsLive() {
			return
		}
		p.book.Handle(&models.MConfirmation{
			Order:           ord,
			ExecType:        models.ExecNew,
			TransactionTime: time.Now().UnixMicro(),
			OrderID:         fmt.Sprintf("SIM-%d", p.venueSeq.Add(1)),
		})

		if !p.pause() || !ord.IsLive() {
			return
		}
		p.fill(ord)
	}()
	return nil
}

// -----------------------------------------------------------------------------

// Cancel answers one latency hop later: cancelled while the order is still
// live, cancel_rejected once it is not.
func (p *PaperAdapter) Cancel(ord *models.MOrder) error {
	if !p.connected.Load() {
		return fmt.Errorf("venue %s is not connected", p.name)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if !p.pause() {
			return
		}
		if ord.IsLive() {
			p.book.Handle(&models.MConfirmation{
				Order:           ord,
				ExecType:        models.ExecCancelled,
				TransactionTime: time.Now().UnixMicro(),
			})
			return
		}
		p.book.Handle(&models.MConfirmation{
			Order:           ord,
			ExecType:        models.ExecCancelRejected,
			TransactionTime: time.Now().UnixMicro(),
			Text:            "too late to cancel",
		})
	}()
	return nil
}

// -----------------------------------------------------------------------------

// Stop drops the connection and waits for in-flight pipelines to finish.
func (p *PaperAdapter) Stop() error {
	p.stopOnce.Do(func() {
		p.connected.Store(false)
		close(p.done)
	})
	p.wg.Wait()
	return nil
}

// -----------------------------------------------------------------------------

func (p *PaperAdapter) pause() bool {
	select {
	case <-time.After(p.latency):
		return true
	case <-p.done:
		return false
	}
}

// -----------------------------------------------------------------------------

func (p *PaperAdapter) fill(ord *models.MOrder) {
	px := p.fillPrice(ord)
	qty := ord.Qty - ord.CumQty
	if qty <= 0 {
		return
	}

	p.book.Handle(&models.MConfirmation{
		Order:           ord,
		ExecType:        models.ExecFilled,
		TransactionTime: time.Now().UnixMicro(),
		LastShares:      qty,
		LastPx:          px,
		ExecID:          uuid.NewString(),
		ExecTransType:   models.TransNew,
	})

	if p.md != nil && ord.Security != nil {
		p.md.Apply(ord.Security.ID, func(s *models.MSnapshot) {
			notional := s.Vwap*float64(s.Volume) + px*qty
			s.Close = px
			s.Qty = int64(qty)
			s.Volume += int64(qty)
			if s.Volume > 0 {
				s.Vwap = notional / float64(s.Volume)
			}
			if s.High == 0 || px > s.High {
				s.High = px
			}
			if s.Low == 0 || px < s.Low {
				s.Low = px
			}
			if s.Open == 0 {
				s.Open = px
			}
		})
	}
}

// -----------------------------------------------------------------------------

// fillPrice marks limit orders at their limit and everything else at the last
// observed trade, falling back to the reference close.
func (p *PaperAdapter) fillPrice(ord *models.MOrder) float64 {
	if ord.Type == models.TypeLimit || ord.Type == models.TypeStopLimit {
		return ord.Price
	}

	if p.md != nil && ord.Security != nil {
		if snap := p.md.Get(ord.Security.ID); snap.Close > 0 {
			return snap.Close
		}
	}
	if ord.Security != nil && ord.Security.ClosePx > 0 {
		return ord.Security.ClosePx
	}
	return ord.Price
}
