package session

import (
	"bytes"
	"fmt"
	"time"

	"trade-gateway/src/models"
	"trade-gateway/src/wire"
)

// -----------------------------------------------------------------------------
// Inbound dispatch. Every frame is a JSON array whose first element names the
// verb. Malformed JSON and wrong element kinds come back as "json" errors
// with the offending message echoed; anything a handler rejects beyond that
// comes back under "Session.OnMessage".
// -----------------------------------------------------------------------------

func (s *Session) dispatch(raw []byte, token string) {
	if s.closed.Load() {
		return
	}
	if bytes.Equal(raw, wire.Heartbeat) {
		s.sendRaw(wire.Heartbeat)
		return
	}

	msg, err := wire.Parse(raw)
	if err != nil {
		s.Logger.Debug("%s: invalid json string: %s", s.transport.RemoteAddr(), raw)
		s.sendRaw(wire.ErrorFrame("json", string(raw), "invalid json string"))
		return
	}
	action, err := msg.GetString(0)
	if err != nil {
		s.jsonError(raw, err)
		return
	}
	if action == "" {
		s.reply("error", "msg", "action", "empty action")
		return
	}

	// Everything except the login handshake and heartbeats requires an
	// authenticated user. Stateless requests authenticate per message
	// through their token.
	if s.user == nil && action != "login" && action != "validate_user" && action != "h" {
		s.user = s.Tokens.Resolve(token)
		if s.user == nil {
			s.reply("error", "msg", "action", "you must login first")
			return
		}
	}

	if err := s.handle(action, msg, raw); err != nil {
		if wire.IsTypeError(err) {
			s.jsonError(raw, err)
			return
		}
		s.Logger.Debug("%s: %v, %s", s.transport.RemoteAddr(), err, raw)
		s.reply("error", "Session.OnMessage", string(raw), err.Error())
	}
}

// -----------------------------------------------------------------------------

func (s *Session) jsonError(raw []byte, err error) {
	s.Logger.Debug("%s: json error: %v, %s", s.transport.RemoteAddr(), err, raw)
	s.reply("error", "json", string(raw), "json error: "+err.Error())
}

// -----------------------------------------------------------------------------

// handle runs one verb. Returned errors feed the dispatch error taxonomy;
// handlers that reply with a verb-specific error frame return nil. Unknown
// verbs are dropped.
func (s *Session) handle(action string, msg wire.Msg, raw []byte) error {
	switch action {
	case "h":
		s.sendRaw(wire.Heartbeat)
	case "login", "validate_user":
		return s.onLogin(action, msg)
	case "order":
		return s.onOrder(msg)
	case "cancel":
		return s.onCancel(msg)
	case "algo":
		return s.onAlgo(msg)
	case "sub":
		return s.onSub(msg)
	case "unsub":
		return s.onUnsub(msg)
	case "securities":
		s.sendSecurities()
	case "bod":
		s.onBod()
	case "position":
		return s.onPosition(msg)
	case "pnl":
		return s.onPnl(msg)
	case "offline":
		return s.onOffline(msg)
	case "reconnect":
		return s.onReconnect(msg)
	case "shutdown":
		return s.onShutdown(msg)
	case "algoFile":
		return s.onAlgoFile(msg)
	case "saveAlgoFile":
		return s.onSaveAlgoFile(msg)
	case "deleteAlgoFile":
		return s.onDeleteAlgoFile(msg)
	}
	return nil
}

// -----------------------------------------------------------------------------

// onBod streams the beginning-of-day rows the user may see.
func (s *Session) onBod() {
	s.Positions.IterateBod(func(row *models.MBodPosition) {
		if !s.user.IsAdmin && s.user.GetSubAccount(row.SubAccountID) == nil {
			return
		}
		s.reply("bod", row.SubAccountID, row.SecurityID,
			row.Position.Qty, row.Position.AvgPx, row.Position.RealizedPnl,
			row.Position.BrokerAccountID, row.Position.Tm)
	})
}

// -----------------------------------------------------------------------------

// onReconnect kicks one adapter by name, feeds first.
func (s *Session) onReconnect(msg wire.Msg) error {
	name, err := msg.GetString(1)
	if err != nil {
		return err
	}
	if a := s.MarketData.GetAdapter(name); a != nil {
		s.Logger.Info("%s: reconnecting feed %s", s.transport.RemoteAddr(), name)
		a.Reconnect()
		return nil
	}
	if a := s.Exchanges.GetAdapter(name); a != nil {
		s.Logger.Info("%s: reconnecting venue %s", s.transport.RemoteAddr(), name)
		a.Reconnect()
		return nil
	}
	s.Logger.Warning("%s: reconnect: unknown adapter %s", s.transport.RemoteAddr(), name)
	return nil
}

// -----------------------------------------------------------------------------

// onPosition answers one point-in-time position query. With the broker flag
// the sub-account position is swapped for its clearing account's.
func (s *Session) onPosition(msg wire.Msg) error {
	secID, err := msg.GetInt(1)
	if err != nil {
		return err
	}
	sec := s.Securities.Get(secID)
	if sec == nil {
		s.reply("error", "position", "security id", fmt.Sprintf("Invalid security id: %d", secID))
		return nil
	}
	accName, err := msg.GetString(2)
	if err != nil {
		return err
	}
	acc := s.Accounts.GetSubAccountByName(accName)
	if acc == nil {
		s.reply("error", "position", "account name", "Invalid account name: "+accName)
		return nil
	}

	broker := false
	if msg.Len() > 3 {
		if broker, err = msg.GetBool(3); err != nil {
			return err
		}
	}
	var pos models.MPosition
	if broker {
		b := acc.GetBrokerAccount(sec.ExchangeID())
		if b == nil {
			s.reply("error", "position", "account name",
				"Can not find broker for this account and security pair")
			return nil
		}
		pos = s.Positions.GetBroker(b.ID, sec.ID)
	} else {
		pos = s.Positions.Get(acc.ID, sec.ID)
	}
	s.reply("position", pos)
	return nil
}

// -----------------------------------------------------------------------------

// onPnl replays up to a day of PnL history for the user's accounts, then
// turns the live PnL stream on for this session.
func (s *Session) onPnl(msg wire.Msg) error {
	since := int64(0)
	if msg.Len() > 1 {
		var err error
		if since, err = msg.GetInt(1); err != nil {
			return err
		}
	}
	cutoff := time.Now().Unix() - 24*3600
	if since > cutoff {
		cutoff = since
	}

	s.Positions.IteratePnl(func(accID int64, _ models.MPnl) {
		if s.user.GetSubAccount(accID) == nil {
			return
		}
		points := s.Positions.History(accID, cutoff)
		if len(points) == 0 {
			return
		}
		rows := make([]interface{}, 0, len(points))
		for _, pt := range points {
			rows = append(rows, []interface{}{pt.Tm, pt.Realized, pt.Unrealized})
		}
		s.reply("Pnl", accID, rows)
	})
	s.subPnl = true
	return nil
}

// -----------------------------------------------------------------------------

// onOffline replays stored events newer than the client's cursors: algo
// events first when an algo cursor is given, then order confirmations.
// Replayed frames use the capitalized verb form.
func (s *Session) onOffline(msg wire.Msg) error {
	if msg.Len() > 2 {
		algoSeq, err := msg.GetInt(2)
		if err != nil {
			return err
		}
		s.Algos.LoadStore(algoSeq, s)
		s.reply("offline_algos", "complete")
	}
	ordSeq, err := msg.GetInt(1)
	if err != nil {
		return err
	}
	s.Book.LoadStore(ordSeq, s)
	s.reply("offline_orders", "complete")
	s.reply("offline", "complete")
	return nil
}

// -----------------------------------------------------------------------------

// onShutdown drains and stops the process: new connections stop first, then
// algos, then live orders are cancelled every tick until the grace period
// runs out. Admin only; for anyone else this is a silent no-op.
func (s *Session) onShutdown(msg wire.Msg) error {
	if !s.user.IsAdmin {
		return nil
	}
	seconds, interval := 3.0, 1.0
	if msg.Len() > 1 {
		n, err := msg.GetNum(1)
		if err != nil {
			return err
		}
		if n > seconds {
			seconds = n
		}
	}
	if msg.Len() > 2 {
		n, err := msg.GetNum(2)
		if err != nil {
			return err
		}
		if n > interval && n < seconds {
			interval = n
		}
	}

	s.Logger.Info("%s: shutdown requested by %s, %g seconds",
		s.transport.RemoteAddr(), s.user.Name, seconds)
	if s.StopServer != nil {
		s.StopServer()
	}
	s.Algos.StopAll()
	for seconds > 0 {
		s.Logger.Info("shutdown in %g", seconds)
		seconds -= interval
		time.Sleep(time.Duration(interval * float64(time.Second)))
		s.Book.CancelAll()
	}
	time.Sleep(time.Second)
	if s.Kill != nil {
		s.Kill()
	}
	return nil
}

// -----------------------------------------------------------------------------

// onCancel cancels one live order by id.
func (s *Session) onCancel(msg wire.Msg) error {
	id, err := msg.GetInt(1)
	if err != nil {
		return err
	}
	ord := s.Book.Get(id)
	if ord == nil {
		s.reply("error", "cancel", "order id", fmt.Sprintf("Invalid order id: %d", id))
		return nil
	}
	s.Book.Cancel(ord)
	return nil
}

// -----------------------------------------------------------------------------

// onSub registers market data subscriptions and answers with the current
// snapshot of each. Unknown ids are skipped; repeat subscriptions stack.
func (s *Session) onSub(msg wire.Msg) error {
	frame := []interface{}{"md"}
	for i := 1; i < msg.Len(); i++ {
		id, err := msg.GetInt(i)
		if err != nil {
			return err
		}
		if s.Securities.Get(id) == nil {
			continue
		}
		e := s.subs[id]
		if e == nil {
			e = &subEntry{}
			s.subs[id] = e
		}
		cur := s.MarketData.Get(id)
		if sub := diffSnapshot(e.last, cur); sub != nil {
			frame = append(frame, []interface{}{id, sub})
		}
		e.last = cur
		e.refs++
	}
	if len(frame) > 1 {
		s.reply(frame...)
	}
	return nil
}

// -----------------------------------------------------------------------------

// onUnsub drops one reference per id; the stream ends when the count hits
// zero. Ids that were never subscribed are ignored.
func (s *Session) onUnsub(msg wire.Msg) error {
	for i := 1; i < msg.Len(); i++ {
		id, err := msg.GetInt(i)
		if err != nil {
			return err
		}
		e := s.subs[id]
		if e == nil {
			continue
		}
		if e.refs--; e.refs <= 0 {
			delete(s.subs, id)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Strategy file verbs. Failures ride in the reply, not the error taxonomy.

func (s *Session) onAlgoFile(msg wire.Msg) error {
	name, err := msg.GetString(1)
	if err != nil {
		return err
	}
	text, err := s.Algos.ReadFile(name)
	if err != nil {
		s.reply("algoFile", name, nil, "Not found")
		return nil
	}
	s.reply("algoFile", name, text)
	return nil
}

func (s *Session) onSaveAlgoFile(msg wire.Msg) error {
	name, err := msg.GetString(1)
	if err != nil {
		return err
	}
	text, err := msg.GetString(2)
	if err != nil {
		return err
	}
	if err := s.Algos.SaveFile(name, text); err != nil {
		s.Logger.Warning("%s: saveAlgoFile %s: %v", s.transport.RemoteAddr(), name, err)
		s.reply("saveAlgoFile", name, "Can not write")
		return nil
	}
	s.reply("saveAlgoFile", name)
	return nil
}

func (s *Session) onDeleteAlgoFile(msg wire.Msg) error {
	name, err := msg.GetString(1)
	if err != nil {
		return err
	}
	if err := s.Algos.DeleteFile(name); err != nil {
		s.reply("deleteAlgoFile", name, err.Error())
		return nil
	}
	s.reply("deleteAlgoFile", name)
	return nil
}
