package session

import (
	"fmt"
	"sort"
	"time"

	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// The publisher is a per-session timer chain. Every tick posts one strand
// task that diffs adapter connectivity, subscribed market data and PnL
// against what this session last sent, and sends only the changes. The timer
// holds the session id, never the pointer: once the session leaves the
// table, the chain dies with it.
// -----------------------------------------------------------------------------

func (s *Session) schedulePublish() {
	if s.Sessions == nil {
		return
	}
	interval := time.Duration(s.Config.PublishIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	table, id := s.Sessions, s.ID
	time.AfterFunc(interval, func() {
		if sess := table.Get(id); sess != nil {
			sess.strand.post(sess.publishTick)
		}
	})
}

// -----------------------------------------------------------------------------

func (s *Session) publishTick() {
	if s.closed.Load() {
		return
	}
	s.schedulePublish()
	s.publishConnectivity()
	s.publishMarketData()
	s.publishPnl()
}

// -----------------------------------------------------------------------------

// publishConnectivity reports adapter up/down transitions, venues first.
// The first tick reports everything.
func (s *Session) publishConnectivity() {
	for _, a := range s.Exchanges.Adapters() {
		connected := a.Connected()
		if seen, ok := s.ecSeen[a.GetName()]; !ok || seen != connected {
			s.ecSeen[a.GetName()] = connected
			s.reply("market", "exchange", a.GetName(), connected)
		}
	}
	for _, a := range s.MarketData.Adapters() {
		connected := a.Connected()
		if seen, ok := s.mdSeen[a.GetName()]; !ok || seen != connected {
			s.mdSeen[a.GetName()] = connected
			s.reply("market", "data", a.GetName(), connected)
		}
	}
}

// -----------------------------------------------------------------------------

// publishMarketData sends one md frame holding every subscribed security
// that changed since the session last saw it.
func (s *Session) publishMarketData() {
	if len(s.subs) == 0 {
		return
	}
	ids := make([]int64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	frame := []interface{}{"md"}
	for _, id := range ids {
		e := s.subs[id]
		cur := s.MarketData.Get(id)
		if sub := diffSnapshot(e.last, cur); sub != nil {
			frame = append(frame, []interface{}{id, sub})
		}
		e.last = cur
	}
	if len(frame) > 1 {
		s.reply(frame...)
	}
}

// -----------------------------------------------------------------------------

// diffSnapshot returns the changed fields of cur keyed by their wire names,
// or nil when nothing tradable moved. The timestamp always rides along once
// any field differs.
func diffSnapshot(last, cur models.MSnapshot) map[string]interface{} {
	if cur.Tm == last.Tm {
		return nil
	}
	sub := map[string]interface{}{"t": cur.Tm}
	if cur.Open != last.Open {
		sub["o"] = cur.Open
	}
	if cur.High != last.High {
		sub["h"] = cur.High
	}
	if cur.Low != last.Low {
		sub["l"] = cur.Low
	}
	if cur.Close != last.Close {
		sub["c"] = cur.Close
	}
	if cur.Qty != last.Qty {
		sub["q"] = cur.Qty
	}
	if cur.Volume != last.Volume {
		sub["v"] = cur.Volume
	}
	if cur.Vwap != last.Vwap {
		sub["V"] = cur.Vwap
	}
	for i := 0; i < models.DepthLevels; i++ {
		lv, cv := last.Depth[i], cur.Depth[i]
		if cv.AskPrice != lv.AskPrice {
			sub[fmt.Sprintf("a%d", i)] = cv.AskPrice
		}
		if cv.AskSize != lv.AskSize {
			sub[fmt.Sprintf("A%d", i)] = cv.AskSize
		}
		if cv.BidPrice != lv.BidPrice {
			sub[fmt.Sprintf("b%d", i)] = cv.BidPrice
		}
		if cv.BidSize != lv.BidSize {
			sub[fmt.Sprintf("B%d", i)] = cv.BidSize
		}
	}
	if len(sub) == 1 {
		// Only the timestamp moved.
		return nil
	}
	return sub
}

// -----------------------------------------------------------------------------

// publishPnl streams per-position and per-account PnL changes once the pnl
// verb has armed the stream. Ownership is by direct account membership;
// admins do not receive other users' PnL here.
func (s *Session) publishPnl() {
	if !s.subPnl {
		return
	}

	s.Positions.IterateSingle(func(accID, secID int64, pos models.MPosition) {
		if s.user.GetSubAccount(accID) == nil {
			return
		}
		key := pnlKey{acc: accID, sec: secID}
		prev := s.singleLast[key]
		realizedMoved := pos.RealizedPnl != prev.Realized
		if !realizedMoved && pos.UnrealizedPnl == prev.Unrealized {
			return
		}
		s.singleLast[key] = models.MPnl{Realized: pos.RealizedPnl, Unrealized: pos.UnrealizedPnl}
		if realizedMoved {
			s.reply("pnl", accID, secID, pos.UnrealizedPnl, pos.RealizedPnl)
		} else {
			s.reply("pnl", accID, secID, pos.UnrealizedPnl)
		}
	})

	now := time.Now().Unix()
	s.Positions.IteratePnl(func(accID int64, pnl models.MPnl) {
		if s.user.GetSubAccount(accID) == nil {
			return
		}
		if s.pnlLast[accID] == pnl {
			return
		}
		s.pnlLast[accID] = pnl
		s.reply("Pnl", accID, now, pnl.Realized, pnl.Unrealized)
	})
}
