package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"trade-gateway/src/config"
	"trade-gateway/src/control"
)

// -----------------------------------------------------------------------------
// Scenario order matters: the websocket client is the first session the
// gateway sees, the offline replay runs before any algo has stored events,
// and the control-plane kick ends the stateful conversation.
// -----------------------------------------------------------------------------

func runScenarios(ck *checker, conf *config.Config, gw *gateway) {
	checkRest(ck, conf)

	cli, err := dialGateway(conf.Port)
	if err != nil {
		ck.fail("ws dial", "%v", err)
		return
	}
	defer cli.close()

	checkProtocol(ck, cli)
	checkLoginStates(ck, cli)
	checkLoginCatalog(ck, cli)
	checkSecurities(ck, cli)
	checkMarketData(ck, cli, gw)
	lastSeq := checkOrders(ck, cli)
	checkOfflineReplay(ck, cli, lastSeq)
	checkAlgos(ck, cli)
	checkPositions(ck, cli)
	checkPnl(ck, cli)
	checkStateless(ck, conf)
	checkControlPlane(ck, conf, cli)
}

// -----------------------------------------------------------------------------

// at reads one frame element, nil when out of range.
func at(f []interface{}, i int) interface{} {
	if i < 0 || i >= len(f) {
		return nil
	}
	return f[i]
}

// isError matches the 4-element error frames of one context.
func isError(f []interface{}, context string) bool {
	return verb(f) == "error" && len(f) >= 4 && str(at(f, 1)) == context
}

// -----------------------------------------------------------------------------
// REST surface
// -----------------------------------------------------------------------------

func checkRest(ck *checker, conf *config.Config) {
	doc, err := getJSON(conf.Port, "/api/health")
	ck.check("rest health", err == nil && str(doc["status"]) == "ok",
		"doc=%v err=%v", doc, err)

	doc, err = getJSON(conf.Port, "/api/status")
	ck.check("rest status",
		err == nil && str(doc["name"]) == conf.Name && integer(doc["securities"]) == 5,
		"doc=%v err=%v", doc, err)

	doc, err = getJSON(conf.Port, "/api/config")
	ck.check("rest config", err == nil && str(doc["storage"]) == "sqlite",
		"doc=%v err=%v", doc, err)
}

// -----------------------------------------------------------------------------
// Wire protocol basics: heartbeat, malformed input, the login gate
// -----------------------------------------------------------------------------

func checkProtocol(ck *checker, cli *wsProbe) {
	cli.sendRaw("h")
	f, err := cli.awaitVerb(3*time.Second, "h")
	ck.check("heartbeat echo", err == nil && len(f) == 1, "frame=%v err=%v", f, err)

	cli.sendRaw("this is not json")
	f, err = cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "json") })
	ck.check("malformed json rejected",
		err == nil && str(at(f, 3)) == "invalid json string", "frame=%v err=%v", f, err)

	cli.send(42)
	f, err = cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "json") })
	ck.check("wrong element kind rejected",
		err == nil && strings.HasPrefix(str(at(f, 3)), "json error:"), "frame=%v err=%v", f, err)

	cli.send("")
	f, err = cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "msg") })
	ck.check("empty action rejected",
		err == nil && str(at(f, 3)) == "empty action", "frame=%v err=%v", f, err)

	cli.send("order", 1, "ALPHA", "buy", "limit", "Day", 100, 190.25, 0)
	f, err = cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "msg") })
	ck.check("login gate",
		err == nil && str(at(f, 3)) == "you must login first", "frame=%v err=%v", f, err)
}

// -----------------------------------------------------------------------------
// Credential outcomes
// -----------------------------------------------------------------------------

func checkLoginStates(ck *checker, cli *wsProbe) {
	for _, tc := range []struct {
		check string
		user  string
		pass  string
		want  string
	}{
		{"login unknown user", "ghost", "test", "unknown user"},
		{"login wrong password", "trader", "bad", "wrong password"},
		{"login disabled user", "retired", "test", "disabled"},
	} {
		cli.send("login", tc.user, tc.pass)
		f, err := cli.awaitVerb(3*time.Second, "connection")
		ck.check(tc.check, err == nil && str(at(f, 1)) == tc.want, "frame=%v err=%v", f, err)
	}

	cli.send("validate_user", "trader", "test", 7)
	f, err := cli.awaitVerb(3*time.Second, "user_validation")
	ck.check("validate user good",
		err == nil && integer(at(f, 1)) == 2 && integer(at(f, 2)) == 7, "frame=%v err=%v", f, err)

	cli.send("validate_user", "trader", "bad", 8)
	f, err = cli.awaitVerb(3*time.Second, "user_validation")
	ck.check("validate user bad",
		err == nil && integer(at(f, 1)) == 0 && integer(at(f, 2)) == 8, "frame=%v err=%v", f, err)
}

// -----------------------------------------------------------------------------
// The real login and the catalog that follows it
// -----------------------------------------------------------------------------

func checkLoginCatalog(ck *checker, cli *wsProbe) {
	cli.send("login", "trader", "test")
	f, err := cli.awaitVerb(3*time.Second, "connection")
	hs := obj(at(f, 2))
	ck.check("login handshake",
		err == nil && str(at(f, 1)) == "ok" &&
			str(hs["sessionToken"]) != "" && integer(hs["userId"]) == 2 &&
			str(hs["securitiesCheckSum"]) != "",
		"frame=%v err=%v", f, err)

	f, err = cli.awaitVerb(3*time.Second, "sub_account")
	ck.check("catalog account ALPHA",
		err == nil && integer(at(f, 1)) == 1 && str(at(f, 2)) == "ALPHA", "frame=%v err=%v", f, err)
	f, err = cli.awaitVerb(3*time.Second, "sub_account")
	ck.check("catalog account BETA",
		err == nil && integer(at(f, 1)) == 2 && str(at(f, 2)) == "BETA", "frame=%v err=%v", f, err)

	brokers := map[string]bool{}
	for i := 0; i < 2; i++ {
		if f, err = cli.awaitVerb(3*time.Second, "broker_account"); err == nil {
			brokers[str(at(f, 2))] = true
		}
	}
	ck.check("catalog broker accounts",
		brokers["SIM-NYSE"] && brokers["SIM-NASDAQ"], "saw %v err=%v", brokers, err)

	defs := map[string]bool{}
	for i := 0; i < 2; i++ {
		if f, err = cli.awaitVerb(3*time.Second, "algo_def"); err == nil {
			defs[str(at(f, 1))] = true
		}
	}
	ck.check("catalog algo definitions",
		defs["TWAP"] && defs["POV"], "saw %v err=%v", defs, err)
}

// -----------------------------------------------------------------------------
// Instrument export, stateful form
// -----------------------------------------------------------------------------

func checkSecurities(ck *checker, cli *wsProbe) {
	cli.send("securities")
	frames, err := cli.collectUntil(5*time.Second, func(f []interface{}) bool {
		return verb(f) == "securities" && str(at(f, 1)) == "complete"
	})

	count := 0
	var aapl []interface{}
	for _, f := range frames {
		if verb(f) != "security" {
			continue
		}
		count++
		if integer(at(f, 1)) == 1 {
			aapl = f
		}
	}
	ck.check("securities stream", err == nil && count == 5, "count=%d err=%v", count, err)
	ck.check("securities record",
		len(aapl) == 7 && str(at(aapl, 2)) == "AAPL" && str(at(aapl, 3)) == "NASDAQ" &&
			integer(at(aapl, 5)) == 100,
		"record=%v", aapl)
}

// -----------------------------------------------------------------------------
// Connectivity report, subscription snapshot, the periodic diff
// -----------------------------------------------------------------------------

func checkMarketData(ck *checker, cli *wsProbe, gw *gateway) {
	warmed := waitUntil(5*time.Second, func() bool { return gw.md.Get(1).Tm > 0 })
	ck.check("sim feed warm-up", warmed, "no print for security 1 within 5s")

	// First publish tick reports every adapter, venues first
	up := map[string]bool{}
	var err error
	for i := 0; i < 2; i++ {
		var f []interface{}
		if f, err = cli.awaitVerb(4*time.Second, "market"); err == nil {
			connected, _ := at(f, 3).(bool)
			up[str(at(f, 1))+"/"+str(at(f, 2))] = connected
		}
	}
	ck.check("connectivity report",
		up["exchange/paper"] && up["data/quotes"], "saw %v err=%v", up, err)

	// Unknown ids contribute nothing; known ids answer with the snapshot
	cli.send("sub", 1, 999)
	f, err := cli.awaitVerb(3*time.Second, "md")
	pair := arr(at(f, 1))
	fields := obj(at(pair, 1))
	ck.check("sub initial snapshot",
		err == nil && len(f) == 2 && integer(at(pair, 0)) == 1 && num(fields["c"]) > 0,
		"frame=%v err=%v", f, err)

	f, err = cli.awaitVerb(4*time.Second, "md")
	pair = arr(at(f, 1))
	fields = obj(at(pair, 1))
	ck.check("md tick diff",
		err == nil && integer(at(pair, 0)) == 1 && num(fields["t"]) > 0,
		"frame=%v err=%v", f, err)

	cli.send("unsub", 1)
}

// -----------------------------------------------------------------------------
// Manual order path: rejects, then a full lifecycle on the paper venue.
// Returns the seq of the last confirmation for the replay check.
// -----------------------------------------------------------------------------

func checkOrders(ck *checker, cli *wsProbe) int64 {
	for _, tc := range []struct {
		check string
		frame []interface{}
		field string
		text  string
	}{
		{"order unknown security",
			[]interface{}{"order", 99999, "ALPHA", "buy", "limit", "Day", 100, 190.25, 0},
			"security id", "Invalid security id: 99999"},
		{"order unknown account",
			[]interface{}{"order", 1, "GAMMA", "buy", "limit", "Day", 100, 190.25, 0},
			"sub_account", "Invalid sub_account: GAMMA"},
		{"order bad side",
			[]interface{}{"order", 1, "ALPHA", "hold", "limit", "Day", 100, 190.25, 0},
			"side", "Invalid side: hold"},
		{"order stop without stop price",
			[]interface{}{"order", 1, "ALPHA", "sell", "stop", "Day", 100, 0, 0},
			"stop price", "Miss stop price for stop order"},
	} {
		cli.send(tc.frame...)
		f, err := cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "order") })
		ck.check(tc.check,
			err == nil && str(at(f, 2)) == tc.field && str(at(f, 3)) == tc.text,
			"frame=%v err=%v", f, err)
	}

	cli.send("order", 1, "ALPHA", "buy", "limit", "Day", 100, 190.25, 0)
	f, err := cli.await(3*time.Second, func(f []interface{}) bool {
		return verb(f) == "order" && str(at(f, 4)) == "unconfirmed"
	})
	ordID := integer(at(f, 1))
	ck.check("order acknowledged",
		err == nil && ordID > 0 && integer(at(f, 5)) == 1 && num(at(f, 10)) == 100 &&
			str(at(f, 12)) == "buy",
		"frame=%v err=%v", f, err)

	byStatus := func(state string) func([]interface{}) bool {
		return func(f []interface{}) bool {
			return verb(f) == "order" && integer(at(f, 1)) == ordID && str(at(f, 4)) == state
		}
	}

	_, err = cli.await(3*time.Second, byStatus("pending"))
	ck.check("order pending at venue", err == nil, "err=%v", err)

	f, err = cli.await(3*time.Second, byStatus("new"))
	ck.check("order live at venue",
		err == nil && strings.HasPrefix(str(at(f, 5)), "SIM-"), "frame=%v err=%v", f, err)

	f, err = cli.await(3*time.Second, byStatus("filled"))
	ck.check("order filled",
		err == nil && num(at(f, 5)) == 100 && num(at(f, 6)) == 190.25 && str(at(f, 8)) == "new",
		"frame=%v err=%v", f, err)

	cli.send("cancel", 424242)
	f, err = cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "cancel") })
	ck.check("cancel unknown order",
		err == nil && str(at(f, 3)) == "Invalid order id: 424242", "frame=%v err=%v", f, err)

	cli.send("cancel", ordID)
	f, err = cli.await(3*time.Second, byStatus("cancel_rejected"))
	lastSeq := integer(at(f, 3))
	ck.check("cancel rejected after fill",
		err == nil && str(at(f, 5)) == "order is not live" && lastSeq > 0,
		"frame=%v err=%v", f, err)
	return lastSeq
}

// -----------------------------------------------------------------------------
// Offline replay over the stored confirmations
// -----------------------------------------------------------------------------

func checkOfflineReplay(ck *checker, cli *wsProbe, lastSeq int64) {
	cli.send("offline", lastSeq-1)
	frames, err := cli.collectUntil(5*time.Second, func(f []interface{}) bool {
		return verb(f) == "offline" && str(at(f, 1)) == "complete"
	})

	var replayed [][]interface{}
	ordersDone := -1
	for i, f := range frames {
		switch verb(f) {
		case "Order":
			replayed = append(replayed, f)
		case "offline_orders":
			ordersDone = i
		}
	}
	ck.check("offline replays newer confirmations",
		err == nil && len(replayed) == 1 &&
			integer(at(replayed[0], 3)) == lastSeq &&
			str(at(replayed[0], 4)) == "cancel_rejected" &&
			ordersDone >= 0 && ordersDone < len(frames)-1,
		"frames=%v err=%v", frames, err)

	// With the algo cursor set and both stores drained: completes only
	cli.send("offline", lastSeq, 0)
	frames, err = cli.collectUntil(5*time.Second, func(f []interface{}) bool {
		return verb(f) == "offline" && str(at(f, 1)) == "complete"
	})
	algosDone, ordersDone, extras := -1, -1, 0
	for i, f := range frames {
		switch verb(f) {
		case "offline_algos":
			algosDone = i
		case "offline_orders":
			ordersDone = i
		case "Order", "Algo":
			extras++
		}
	}
	ck.check("offline with drained stores",
		err == nil && extras == 0 && algosDone >= 0 && ordersDone > algosDone,
		"frames=%v err=%v", frames, err)
}

// -----------------------------------------------------------------------------
// Algo lifecycle over the wire
// -----------------------------------------------------------------------------

func checkAlgos(ck *checker, cli *wsProbe) {
	params := map[string]interface{}{
		"Security": map[string]interface{}{"acc": 1, "sec": 1, "side": "buy", "qty": 300},
		"Price":    189.5,
		"Seconds":  120,
		"MinSize":  100,
	}

	cli.send("algo", "new", "TWAP", "smoke-1", params)
	f, err := cli.await(3*time.Second, func(f []interface{}) bool {
		return verb(f) == "algo" && str(at(f, 4)) == "smoke-1"
	})
	algoID := integer(at(f, 2))
	ck.check("algo spawned",
		err == nil && algoID > 0 && str(at(f, 5)) == "TWAP" && str(at(f, 6)) == "running",
		"frame=%v err=%v", f, err)

	cli.send("algo", "new", "TWAP", "smoke-1", params)
	f, err = cli.await(3*time.Second, func(f []interface{}) bool {
		return isError(f, "algo") && str(at(f, 2)) == "duplicate token"
	})
	ck.check("algo duplicate token",
		err == nil && str(at(f, 3)) == "smoke-1", "frame=%v err=%v", f, err)

	cli.send("algo", "new", "TWAP", "smoke-2", map[string]interface{}{
		"Security": map[string]interface{}{"acc": 1, "sec": 999, "side": "buy", "qty": 100},
	})
	f, err = cli.await(3*time.Second, func(f []interface{}) bool {
		return isError(f, "algo") && str(at(f, 2)) == "invalid params"
	})
	ck.check("algo invalid params",
		err == nil && str(at(f, 3)) == "smoke-2" &&
			strings.Contains(str(at(f, 4)), "Unknown security id"),
		"frame=%v err=%v", f, err)

	cli.send("algo", "noop")
	f, err = cli.await(3*time.Second, func(f []interface{}) bool {
		return isError(f, "algo") && str(at(f, 2)) == "invalid action"
	})
	ck.check("algo invalid action",
		err == nil && str(at(f, 3)) == "noop", "frame=%v err=%v", f, err)

	// Scripted dry run routes its output back by token
	cli.send("algo", "test", "TWAP", "smoke-t", map[string]interface{}{})
	f, err = cli.awaitVerb(3*time.Second, "test_msg")
	ck.check("algo test output",
		err == nil && strings.Contains(str(at(f, 1)), "test run started"),
		"frame=%v err=%v", f, err)
	f, err = cli.awaitVerb(8*time.Second, "test_done")
	ck.check("algo test done",
		err == nil && str(at(f, 1)) == "smoke-t", "frame=%v err=%v", f, err)

	cli.send("algo", "cancel", "smoke-1")
	f, err = cli.await(5*time.Second, func(f []interface{}) bool {
		return verb(f) == "algo" && integer(at(f, 2)) == algoID && str(at(f, 6)) == "stopped"
	})
	ck.check("algo cancelled by token", err == nil, "frame=%v err=%v", f, err)
}

// -----------------------------------------------------------------------------
// BOD rows and point-in-time positions
// -----------------------------------------------------------------------------

func checkPositions(ck *checker, cli *wsProbe) {
	cli.send("bod")
	rows := map[string]float64{}
	var err error
	for i := 0; i < 3; i++ {
		var f []interface{}
		if f, err = cli.awaitVerb(3*time.Second, "bod"); err != nil {
			break
		}
		rows[fmt.Sprintf("%d/%d", integer(at(f, 1)), integer(at(f, 2)))] = num(at(f, 3))
	}
	_, has11 := rows["1/1"]
	_, has13 := rows["1/3"]
	_, has22 := rows["2/2"]
	ck.check("bod rows",
		err == nil && has11 && has13 && has22 && rows["1/1"] == 200 && rows["1/3"] == -50,
		"rows=%v err=%v", rows, err)

	// BOD inventory plus this run's fill
	cli.send("position", 1, "ALPHA")
	f, err := cli.awaitVerb(3*time.Second, "position")
	pos := obj(at(f, 1))
	ck.check("position query",
		err == nil && num(pos["qty"]) >= 300, "frame=%v err=%v", f, err)

	cli.send("position", 1, "ALPHA", true)
	f, err = cli.awaitVerb(3*time.Second, "position")
	ck.check("position broker view",
		err == nil && obj(at(f, 1)) != nil, "frame=%v err=%v", f, err)

	cli.send("position", 999, "ALPHA")
	f, err = cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "position") })
	ck.check("position unknown security",
		err == nil && str(at(f, 2)) == "security id", "frame=%v err=%v", f, err)

	cli.send("position", 1, "GAMMA")
	f, err = cli.await(3*time.Second, func(f []interface{}) bool { return isError(f, "position") })
	ck.check("position unknown account",
		err == nil && str(at(f, 3)) == "Invalid account name: GAMMA", "frame=%v err=%v", f, err)
}

// -----------------------------------------------------------------------------
// PnL stream
// -----------------------------------------------------------------------------

func checkPnl(ck *checker, cli *wsProbe) {
	cli.send("pnl")
	// Marks move with every sim print, so a frame lands within a tick or two
	f, err := cli.await(6*time.Second, func(f []interface{}) bool {
		return verb(f) == "pnl" || verb(f) == "Pnl"
	})
	ck.check("pnl stream armed", err == nil, "frame=%v err=%v", f, err)
}

// -----------------------------------------------------------------------------
// One-shot command endpoint
// -----------------------------------------------------------------------------

func checkStateless(ck *checker, conf *config.Config) {
	frames, err := postFrame(conf.Port, "", "login", "admin", "test")
	var token string
	if err == nil && len(frames) == 1 {
		token = str(obj(at(frames[0], 2))["sessionToken"])
	}
	ck.check("stateless login",
		err == nil && len(frames) == 1 && str(at(frames[0], 1)) == "ok" && token != "",
		"frames=%v err=%v", frames, err)

	frames, err = postFrame(conf.Port, "", "bod")
	ck.check("stateless auth gate",
		err == nil && len(frames) == 1 && str(at(frames[0], 3)) == "you must login first",
		"frames=%v err=%v", frames, err)

	// Admins get the full record, and stateless requests get it in bulk
	frames, err = postFrame(conf.Port, token, "securities")
	ok := err == nil && len(frames) == 1 && len(frames[0]) == 5
	if ok {
		rec := arr(at(frames[0], 0))
		ok = str(at(rec, 0)) == "security" && len(rec) == 20
	}
	ck.check("stateless securities bulk", ok, "frames=%v err=%v", frames, err)

	frames, err = postFrame(conf.Port, token, "bod")
	count := 0
	for _, f := range frames {
		if verb(f) == "bod" {
			count++
		}
	}
	ck.check("stateless bod for admin",
		err == nil && count == 3, "frames=%v err=%v", frames, err)

	frames, err = postRaw(conf.Port, "", "h")
	ck.check("stateless heartbeat",
		err == nil && len(frames) == 1 && verb(frames[0]) == "h",
		"frames=%v err=%v", frames, err)
}

// -----------------------------------------------------------------------------
// gRPC control plane
// -----------------------------------------------------------------------------

func checkControlPlane(ck *checker, conf *config.Config, cli *wsProbe) {
	conn, err := control.Dial(fmt.Sprintf("127.0.0.1:%d", conf.GrpcPort))
	if err != nil {
		ck.fail("control dial", "%v", err)
		return
	}
	defer conn.Close()
	ctl := control.NewControlClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	st, err := ctl.GetStatus(ctx)
	up := map[string]bool{}
	if err == nil {
		for _, a := range st.Adapters {
			up[a.Kind+"/"+a.Name] = a.Connected
		}
	}
	ck.check("control status",
		err == nil && st.Name == conf.Name && st.Securities == 5 && st.Sessions >= 1 &&
			up["exchange/paper"] && up["data/quotes"],
		"st=%+v err=%v", st, err)

	resp, err := ctl.Reconnect(ctx, "data", "quotes")
	ck.check("control reconnect feed",
		err == nil && resp.Success, "resp=%+v err=%v", resp, err)
	resp, err = ctl.Reconnect(ctx, "exchange", "paper")
	ck.check("control reconnect venue",
		err == nil && resp.Success, "resp=%+v err=%v", resp, err)
	_, err = ctl.Reconnect(ctx, "exchange", "ghost")
	ck.check("control reconnect unknown adapter",
		status.Code(err) == codes.NotFound, "err=%v", err)
	_, err = ctl.Reconnect(ctx, "telex", "quotes")
	ck.check("control reconnect bad kind",
		status.Code(err) == codes.InvalidArgument, "err=%v", err)

	resp, err = ctl.StopAlgos(ctx)
	ck.check("control algo sweep",
		err == nil && resp.Success, "resp=%+v err=%v", resp, err)
	resp, err = ctl.CancelAll(ctx)
	ck.check("control cancel all",
		err == nil && resp.Success, "resp=%+v err=%v", resp, err)

	_, err = ctl.Disconnect(ctx, 0)
	ck.check("control disconnect without id",
		status.Code(err) == codes.InvalidArgument, "err=%v", err)
	_, err = ctl.Disconnect(ctx, 424242)
	ck.check("control disconnect unknown session",
		status.Code(err) == codes.NotFound, "err=%v", err)

	// The websocket client was this run's first session, so it holds id 1
	resp, err = ctl.Disconnect(ctx, 1)
	ck.check("control disconnect session",
		err == nil && resp.Success, "resp=%+v err=%v", resp, err)

	kicked := false
	for i := 0; i < 10; i++ {
		if _, err := cli.next(time.Second); err != nil {
			kicked = true
			break
		}
	}
	ck.check("kicked socket closes", kicked, "socket still open after disconnect")
}
