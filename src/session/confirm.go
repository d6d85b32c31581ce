package session

import (
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Outbound event sinks. Engines fan every stored event to every registered
// session; each session filters by ownership on its own strand. Offline
// replay already runs on the strand inside the offline verb, so those
// deliveries go straight through instead of being posted.
// -----------------------------------------------------------------------------

// SendConfirmation implements interfaces.IConfirmationSink.
func (s *Session) SendConfirmation(cm *models.MConfirmation, offline bool) {
	if offline {
		s.deliverConfirmation(cm, true)
		return
	}
	if s.closed.Load() {
		return
	}
	s.strand.post(func() { s.deliverConfirmation(cm, false) })
}

func (s *Session) deliverConfirmation(cm *models.MConfirmation, offline bool) {
	if s.closed.Load() || s.user == nil {
		return
	}
	if cm.Order == nil || cm.Order.SubAccount == nil {
		return
	}
	if s.user.GetSubAccount(cm.Order.SubAccount.ID) == nil {
		return
	}
	if frame := encodeConfirmation(cm, offline); frame != nil {
		s.reply(frame...)
	}
}

// -----------------------------------------------------------------------------

// SendAlgoEvent implements interfaces.IAlgoEventSink. Algo events go to
// their owner only.
func (s *Session) SendAlgoEvent(ev *models.MAlgoEvent, offline bool) {
	if offline {
		s.deliverAlgoEvent(ev, true)
		return
	}
	if s.closed.Load() {
		return
	}
	s.strand.post(func() { s.deliverAlgoEvent(ev, false) })
}

func (s *Session) deliverAlgoEvent(ev *models.MAlgoEvent, offline bool) {
	if s.closed.Load() || s.user == nil || ev.UserID != s.user.ID {
		return
	}
	verb := "algo"
	if offline {
		verb = "Algo"
	}
	s.reply(verb, ev.Seq, ev.AlgoID, ev.Tm, ev.Token, ev.Name, ev.Status, ev.Body)
}

// -----------------------------------------------------------------------------

// SendTestMsg implements interfaces.IAlgoEventSink. Scripted test output
// reaches only the session that registered the run's token.
func (s *Session) SendTestMsg(token string, msg string, stopped bool) {
	if s.closed.Load() {
		return
	}
	s.strand.post(func() {
		if s.closed.Load() {
			return
		}
		if _, ok := s.testTokens[token]; !ok {
			return
		}
		s.reply("test_msg", msg)
		if stopped {
			s.reply("test_done", token)
		}
	})
}

// -----------------------------------------------------------------------------

// encodeConfirmation renders one execution report. Replayed reports use the
// capitalized verb. Returns nil for reports that never reach clients, like
// correction fills.
func encodeConfirmation(cm *models.MConfirmation, offline bool) []interface{} {
	verb := "order"
	if offline {
		verb = "Order"
	}
	ord := cm.Order
	j := []interface{}{verb, ord.ID, cm.TransactionTime / 1000000, cm.Seq}

	switch cm.ExecType {
	case models.ExecUnconfirmed:
		j = append(j, cm.ExecType.Status(),
			ord.Security.ID, ord.AlgoID, orderUserID(ord),
			ord.SubAccountID(), ord.BrokerAccountID(),
			ord.Qty, ord.Price, ord.Side.String(), ord.Type.String(), ord.Tif.String())

	case models.ExecPending, models.ExecPendingCancel, models.ExecNew, models.ExecCancelled:
		j = append(j, cm.ExecType.Status())
		if cm.ExecType == models.ExecNew {
			j = append(j, cm.OrderID)
		}
		if cm.Text != "" {
			j = append(j, cm.Text)
		}

	case models.ExecFilled, models.ExecPartial:
		j = append(j, cm.ExecType.Status(), cm.LastShares, cm.LastPx, cm.ExecID)
		switch cm.ExecTransType {
		case models.TransNew:
			j = append(j, "new")
		case models.TransCancel:
			j = append(j, "cancel")
		default:
			return nil
		}

	case models.ExecNewRejected, models.ExecCancelRejected, models.ExecRiskRejected:
		j = append(j, cm.ExecType.Status(), cm.Text)
		if cm.ExecType == models.ExecRiskRejected {
			j = append(j, ord.Security.ID, ord.AlgoID, orderUserID(ord),
				ord.SubAccountID(), ord.Qty, ord.Price,
				ord.Side.String(), ord.Type.String(), ord.Tif.String())
			if ord.OrigID != 0 {
				j = append(j, ord.OrigID)
			}
		}

	default:
		return nil
	}
	return j
}

func orderUserID(o *models.MOrder) int64 {
	if o.User == nil {
		return 0
	}
	return o.User.ID
}
