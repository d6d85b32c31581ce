package session

import (
	"sort"
	"strconv"

	"trade-gateway/src/algo"
	"trade-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Reference data streamed at login: the user's accounts, the broker account
// table, strategy definitions and the strategy file listing. Admins also get
// the full user/account mapping.
// -----------------------------------------------------------------------------

func (s *Session) sendCatalog() {
	user := s.user

	ids := make([]int64, 0, len(user.SubAccounts))
	for id := range user.SubAccounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s.reply("sub_account", id, user.SubAccounts[id].Name)
	}

	if user.IsAdmin {
		s.Accounts.IterateUsers(func(u *models.MUser) {
			accIDs := make([]int64, 0, len(u.SubAccounts))
			for id := range u.SubAccounts {
				accIDs = append(accIDs, id)
			}
			sort.Slice(accIDs, func(i, j int) bool { return accIDs[i] < accIDs[j] })
			for _, id := range accIDs {
				s.reply("user_sub_account", u.ID, id, u.SubAccounts[id].Name)
			}
		})
	}

	s.Accounts.IterateBrokerAccounts(func(b *models.MBrokerAccount) {
		s.reply("broker_account", b.ID, b.Name)
	})

	for _, adapter := range s.Algos.Adapters() {
		frame := []interface{}{"algo_def", adapter.GetName()}
		for _, pd := range adapter.GetParamDefs() {
			def := algo.Jsonify(pd.Default, []interface{}{pd.Name})
			def = append(def, pd.Required, pd.Min, pd.Max, pd.Precision)
			frame = append(frame, def)
		}
		s.reply(frame...)
	}

	if files := s.Algos.ListFiles(); len(files) > 0 {
		s.reply("algoFiles", files)
	}
}

// -----------------------------------------------------------------------------

// sendSecurities exports the instrument catalog. Admins get the full record,
// everyone else the trading essentials. Stateful connections stream one
// frame per security and finish with a terminator; stateless requests get
// the whole catalog as a single array instead.
func (s *Session) sendSecurities() {
	admin := s.user.IsAdmin
	stateless := s.transport.Stateless()

	var bulk []interface{}
	s.Securities.Iterate(func(sec *models.MSecurity) {
		var rec []interface{}
		if admin {
			rec = []interface{}{"security", sec.ID, sec.Symbol, sec.ExchangeName(),
				sec.Type, sec.Multiplier, sec.ClosePx, sec.Rate, sec.Currency,
				sec.Adv20, sec.MarketCap,
				strconv.FormatInt(sec.Sector, 10),
				strconv.FormatInt(sec.IndustryGroup, 10),
				strconv.FormatInt(sec.Industry, 10),
				strconv.FormatInt(sec.SubIndustry, 10),
				sec.LocalSymbol, sec.Bbgid, sec.Cusip, sec.Sedol, sec.Isin}
		} else {
			rec = []interface{}{"security", sec.ID, sec.Symbol, sec.ExchangeName(),
				sec.Type, sec.LotSize, sec.Multiplier}
		}
		if stateless {
			bulk = append(bulk, rec)
		} else {
			s.reply(rec...)
		}
	})

	if stateless {
		s.reply(bulk...)
		return
	}
	s.reply("securities", "complete")
}
