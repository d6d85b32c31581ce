package session

import (
	"fmt"
	"sort"

	"trade-gateway/src/algo"
	"trade-gateway/src/models"
	"trade-gateway/src/wire"
)

// -----------------------------------------------------------------------------
// Trading verbs: manual order placement and the algo lifecycle. Validation
// failures reply with verb-specific error frames; only element-kind problems
// surface through the json error path.
// -----------------------------------------------------------------------------

// onOrder places one manual order:
//
//	["order", securityId, subAccount, side, type, tif, qty, price, stopPrice]
//
// Unknown type and tif strings silently fall back to limit and Day. The risk
// gate inside the book does the ownership check; everything the user got
// wrong syntactically is rejected here first.
func (s *Session) onOrder(msg wire.Msg) error {
	secID, err := msg.GetInt(1)
	if err != nil {
		return err
	}
	subName, err := msg.GetString(2)
	if err != nil {
		return err
	}
	acc := s.Accounts.GetSubAccountByName(subName)
	if acc == nil {
		s.reply("error", "order", "sub_account", "Invalid sub_account: "+subName)
		return nil
	}

	sideStr, err := msg.GetString(3)
	if err != nil {
		return err
	}
	typeStr, err := msg.GetString(4)
	if err != nil {
		return err
	}
	tifStr, err := msg.GetString(5)
	if err != nil {
		return err
	}
	qty, err := msg.GetNum(6)
	if err != nil {
		return err
	}
	px, err := msg.GetNum(7)
	if err != nil {
		return err
	}
	stopPx, err := msg.GetNum(8)
	if err != nil {
		return err
	}

	sec := s.Securities.Get(secID)
	if sec == nil {
		s.reply("error", "order", "security id", fmt.Sprintf("Invalid security id: %d", secID))
		return nil
	}
	side, ok := models.ParseOrderSide(sideStr)
	if !ok {
		s.reply("error", "order", "side", "Invalid side: "+sideStr)
		return nil
	}
	typ := models.ParseOrderType(typeStr)
	if stopPx <= 0 && (typ == models.TypeStop || typ == models.TypeStopLimit) {
		s.reply("error", "order", "stop price", "Miss stop price for stop order")
		return nil
	}
	tif := models.ParseTimeInForce(tifStr)

	ord := &models.MOrder{
		Security:      sec,
		User:          s.user,
		SubAccount:    acc,
		BrokerAccount: acc.GetBrokerAccount(sec.ExchangeID()),
		Qty:           qty,
		Price:         px,
		StopPrice:     stopPx,
		Side:          side,
		Type:          typ,
		Tif:           tif,
	}
	s.Book.Place(ord)
	return nil
}

// -----------------------------------------------------------------------------

// onAlgo runs one algo sub-action:
//
//	["algo", "new",    name, token, params]
//	["algo", "test",   name, token, params]
//	["algo", "modify", id|token, params]
//	["algo", "cancel", id|token]
//
// new and test share the spawn path; test runs never parse or validate
// params and route their scripted output back by token.
func (s *Session) onAlgo(msg wire.Msg) error {
	action, err := msg.GetString(1)
	if err != nil {
		return err
	}

	switch action {
	case "cancel":
		if v, ok := msg.At(2); ok && wire.IsString(v) {
			token, _ := wire.StringValue(v)
			s.Algos.StopToken(token)
			return nil
		}
		id, err := msg.GetInt(2)
		if err != nil {
			return err
		}
		s.Algos.Stop(id)

	case "modify":
		obj, err := paramsObject(msg, 3)
		if err != nil {
			return err
		}
		params, err := algo.ParseParams(obj, s.Securities, s.Accounts)
		if err != nil {
			return err
		}
		raw, _ := msg.At(3)
		paramsJSON := wire.Render(raw)
		if v, ok := msg.At(2); ok && wire.IsString(v) {
			token, _ := wire.StringValue(v)
			s.Algos.ModifyToken(token, paramsJSON, params)
			return nil
		}
		id, err := msg.GetInt(2)
		if err != nil {
			return err
		}
		s.Algos.Modify(id, paramsJSON, params)

	case "new", "test":
		return s.onAlgoSpawn(action, msg)

	default:
		s.reply("error", "algo", "invalid action", action)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *Session) onAlgoSpawn(action string, msg wire.Msg) error {
	name, err := msg.GetString(2)
	if err != nil {
		return err
	}
	token, err := msg.GetString(3)
	if err != nil {
		return err
	}
	if s.Algos.FindToken(token) != nil {
		s.reply("error", "algo", "duplicate token", token)
		return nil
	}

	var params algo.ParamMap
	var spawnErr error
	if action == "new" {
		var obj map[string]interface{}
		if obj, spawnErr = paramsObject(msg, 4); spawnErr == nil {
			params, spawnErr = algo.ParseParams(obj, s.Securities, s.Accounts)
		}
		if spawnErr == nil {
			spawnErr = s.checkTupleOwnership(params)
		}
	} else if token != "" {
		// Remembered before the spawn so scripted output for a bad name
		// still routes nowhere quietly.
		s.testTokens[token] = struct{}{}
	}

	raw, _ := msg.At(4)
	paramsJSON := wire.Render(raw)
	if spawnErr == nil {
		_, spawnErr = s.Algos.Spawn(name, token, s.user, paramsJSON, params)
	}
	if spawnErr != nil {
		s.reply("error", "algo", "invalid params", token, spawnErr.Error())
	}
	return nil
}

// -----------------------------------------------------------------------------

// checkTupleOwnership requires every security tuple's account to be owned by
// the session user directly. Admins get no bypass on algo flow.
func (s *Session) checkTupleOwnership(params algo.ParamMap) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t, ok := params[k].(*algo.SecurityTuple)
		if !ok {
			continue
		}
		if s.user.GetSubAccount(t.SubAccount.ID) == nil {
			return fmt.Errorf("No permission to trade with account: %s", t.SubAccount.Name)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// paramsObject reads one element as a JSON object. Failures classify as
// element-kind errors.
func paramsObject(msg wire.Msg, i int) (map[string]interface{}, error) {
	v, ok := msg.At(i)
	if !ok {
		return nil, wire.KindError(nil, "object")
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, wire.KindError(v, "object")
	}
	return obj, nil
}
